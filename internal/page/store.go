package page

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

var ErrNoTemplate = errors.New("page template not loaded")

// prerenderBlock matches the data block some builds ship for other template engines.
var prerenderBlock = regexp.MustCompile(`<!-- Jinja2 embedded initial data[\s\S]*?</script>`)

// Store holds the current page template. Reads are lock-free; Reload swaps it.
type Store struct {
	path        string
	placeholder string
	tmpl        atomic.Pointer[[]byte]
	log         zerolog.Logger
}

func NewStore(path, placeholder string, log zerolog.Logger) *Store {
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	return &Store{path: path, placeholder: placeholder, log: log}
}

func (s *Store) Placeholder() string { return s.placeholder }

// Template returns the loaded template or ErrNoTemplate.
func (s *Store) Template() ([]byte, error) {
	p := s.tmpl.Load()
	if p == nil {
		return nil, ErrNoTemplate
	}
	return *p, nil
}

// Ready reports whether a template is loaded.
func (s *Store) Ready() error {
	_, err := s.Template()
	return err
}

// Set installs tmpl directly, after the same preparation as Reload.
func (s *Store) Set(tmpl []byte) {
	prepared := Prepare(tmpl, s.placeholder)
	s.tmpl.Store(&prepared)
}

// Reload reads the template file again. The previous template stays in place on error.
func (s *Store) Reload() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read page template %q: %w", s.path, err)
	}
	s.Set(b)
	s.log.Info().Str("path", s.path).Int("bytes", len(b)).Msg("page template loaded")
	return nil
}

// Render embeds data into the current template.
func (s *Store) Render(data InitialData) ([]byte, error) {
	tmpl, err := s.Template()
	if err != nil {
		return nil, err
	}
	return Embed(tmpl, s.placeholder, data), nil
}

// Prepare swaps a prerendered data block for the placeholder, once.
func Prepare(tmpl []byte, placeholder string) []byte {
	loc := prerenderBlock.FindIndex(tmpl)
	if loc == nil {
		return tmpl
	}
	out := make([]byte, 0, len(tmpl)-(loc[1]-loc[0])+len(placeholder))
	out = append(out, tmpl[:loc[0]]...)
	out = append(out, placeholder...)
	out = append(out, tmpl[loc[1]:]...)
	return out
}

// Watch reloads the template when its file changes until ctx is done. The
// parent directory is watched so editors that replace the file are seen.
func (s *Store) Watch(ctx context.Context, debounce time.Duration) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %q: %w", filepath.Dir(s.path), err)
	}

	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	target := filepath.Clean(s.path)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if err := s.Reload(); err != nil {
					s.log.Error().Err(err).Msg("page template reload failed")
				}
			})
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			s.log.Error().Err(err).Msg("page template watcher error")
		}
	}
}
