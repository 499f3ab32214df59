// Package headers parses raw upstream header blocks and filters them down to
// the set a subscription client is allowed to see.
package headers

import (
	"errors"
	"strings"
)

var (
	ErrMalformedHeaderBlock = errors.New("malformed header block: missing status line")
	ErrNoValidHeaders       = errors.New("no valid headers found")
)

// Allowed holds the lower-cased names forwarded to subscription clients.
var Allowed = map[string]struct{}{
	"content-disposition":     {},
	"content-type":            {},
	"subscription-userinfo":   {},
	"profile-update-interval": {},
}

// Field is a single header line, name kept exactly as the upstream sent it.
type Field struct {
	Name  string
	Value string
}

type Block struct {
	Status string
	Fields []Field
}

// Parse reads a "Name: value" block whose first line is the status line.
// Lines without a colon-space separator are skipped.
func Parse(raw string) (Block, error) {
	lines := strings.Split(raw, "\n")
	status := strings.TrimRight(lines[0], "\r")
	if strings.TrimSpace(status) == "" {
		return Block{}, ErrMalformedHeaderBlock
	}

	b := Block{Status: status}
	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		name, value, ok := strings.Cut(line, ": ")
		if !ok || name == "" {
			continue
		}
		b.Fields = append(b.Fields, Field{Name: name, Value: value})
	}
	return b, nil
}

// Filter keeps the allowlisted fields in their original order.
func Filter(fields []Field) []Field {
	var out []Field
	for _, f := range fields {
		if IsAllowed(f.Name) {
			out = append(out, f)
		}
	}
	return out
}

func IsAllowed(name string) bool {
	_, ok := Allowed[strings.ToLower(name)]
	return ok
}

// Forwardable parses raw and returns the allowlisted fields. An empty result
// is ErrNoValidHeaders: a proxied body without them is unusable to the client.
func Forwardable(raw string) ([]Field, error) {
	b, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	out := Filter(b.Fields)
	if len(out) == 0 {
		return nil, ErrNoValidHeaders
	}
	return out, nil
}
