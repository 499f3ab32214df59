package releases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var ErrNotResolved = errors.New("release catalog not resolved yet")

// Catalog keeps the latest resolved catalog in memory and refreshes it on a
// cron schedule.
type Catalog struct {
	resolver *Resolver
	in, out  string
	current  atomic.Pointer[[]byte]

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	log     zerolog.Logger
}

func NewCatalog(resolver *Resolver, in, out string, log zerolog.Logger) *Catalog {
	return &Catalog{resolver: resolver, in: in, out: out, cron: cron.New(), log: log}
}

// Current returns the last resolved catalog.
func (c *Catalog) Current() ([]byte, error) {
	p := c.current.Load()
	if p == nil {
		return nil, ErrNotResolved
	}
	return *p, nil
}

// Refresh resolves the catalog now. On failure the previous catalog is kept.
func (c *Catalog) Refresh(ctx context.Context) error {
	resolved, err := c.resolver.ResolveFile(ctx, c.in, c.out)
	if err != nil {
		return err
	}
	c.current.Store(&resolved)
	c.log.Info().Str("catalog", c.in).Int("bytes", len(resolved)).Msg("release catalog refreshed")
	return nil
}

// Start schedules Refresh using a standard cron expression. An empty schedule
// does nothing. The scheduler stops when ctx is done.
func (c *Catalog) Start(ctx context.Context, schedule string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if schedule == "" {
		c.log.Info().Msg("release schedule not configured, skipping scheduler")
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	if _, err := c.cron.AddFunc(schedule, func() {
		if err := c.Refresh(ctx); err != nil {
			c.log.Error().Err(err).Msg("scheduled release refresh failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule release refresh: %w", err)
	}

	c.cron.Start()
	c.running = true
	c.log.Info().Str("schedule", schedule).Msg("release scheduler started")

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return nil
}

// Stop halts the scheduler and waits for a running refresh to finish.
func (c *Catalog) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		<-c.cron.Stop().Done()
		c.running = false
		c.log.Info().Msg("release scheduler stopped")
	}
}
