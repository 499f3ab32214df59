package hydration

import (
	"encoding/json"
	"errors"
	"regexp"
	"sync"
)

var ErrSlotSealed = errors.New("initial data slot already set or read")

// InitialData is the payload a page embeds for its first render.
type InitialData struct {
	User  json.RawMessage `json:"user"`
	Links []string        `json:"links"`
}

func (d *InitialData) hasUser() bool {
	return d != nil && len(d.User) > 0 && string(d.User) != "null"
}

// Slot is a single-assignment holder for embedded initial data. It may be set
// once, before the first Get; after that it is read-only and never cleared.
type Slot struct {
	mu     sync.Mutex
	data   *InitialData
	sealed bool
}

func NewSlot() *Slot { return &Slot{} }

func (s *Slot) Set(d *InitialData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return ErrSlotSealed
	}
	s.data = d
	s.sealed = true
	return nil
}

// Get returns the embedded data, if any. The first call seals the slot.
func (s *Slot) Get() (*InitialData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
	return s.data, s.data != nil
}

var embeddedAssignment = regexp.MustCompile(`window\.__INITIAL_DATA__ = (.+);\n\} catch`)

// FromPage extracts the embedded data from a rendered page. A page without the
// data script, or one that assigned null, yields nil.
func FromPage(html []byte) (*InitialData, error) {
	m := embeddedAssignment.FindSubmatch(html)
	if m == nil {
		return nil, nil
	}
	var d *InitialData
	if err := json.Unmarshal(m[1], &d); err != nil {
		return nil, err
	}
	return d, nil
}
