package hydration

import (
	"context"
	"sync"
	"time"

	"subgate/pkg/cache"
)

// Entry is a cached successful GET response.
type Entry struct {
	URL       string    `json:"url"`
	Response  Response  `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// Fresh reports whether the entry is younger than ttl at now.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.Timestamp) < ttl
}

// Store keeps entries keyed by URL. Freshness is decided by the caller.
type Store interface {
	Get(ctx context.Context, url string) (Entry, bool, error)
	Put(ctx context.Context, e Entry) error
}

// MemoryStore is a process-local Store safe for concurrent use. Entries are
// overwritten, never evicted.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Entry)}
}

func (m *MemoryStore) Get(_ context.Context, url string) (Entry, bool, error) {
	m.mu.RLock()
	e, ok := m.items[url]
	m.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}
	e.Response = e.Response.clone()
	return e, true, nil
}

func (m *MemoryStore) Put(_ context.Context, e Entry) error {
	e.Response = e.Response.clone()
	m.mu.Lock()
	m.items[e.URL] = e
	m.mu.Unlock()
	return nil
}

// RedisStore shares entries between processes. Redis expiry is set to the
// TTL as well so stale keys don't pile up.
type RedisStore struct {
	c   *cache.Cache
	ttl time.Duration
}

func NewRedisStore(c *cache.Cache, ttl time.Duration) *RedisStore {
	return &RedisStore{c: c, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, url string) (Entry, bool, error) {
	var e Entry
	ok, err := r.c.GetJSON(ctx, r.c.Key("hydration", url), &e)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (r *RedisStore) Put(ctx context.Context, e Entry) error {
	return r.c.SetJSON(ctx, r.c.Key("hydration", e.URL), e, r.ttl)
}

func (r Response) clone() Response {
	out := r
	if r.Header != nil {
		out.Header = r.Header.Clone()
	}
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return out
}
