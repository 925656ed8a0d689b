package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/km-arc/cubex/framework/container"
	"github.com/km-arc/cubex/framework/validation"
)

// Ephemeral is a process-local LRU cache. Each service instance owns its
// entries; share the instance through the service manager to share them.
//
//	[cache]
//	service_provider = "cache.ephemeral"
//	ttl = "5m"
//	max_entries = 10000
type Ephemeral struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	eviction   *list.List
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time
}

type ephemeralEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewEphemeral creates an ephemeral cache with no expiry and 10000 entries.
func NewEphemeral() *Ephemeral {
	return &Ephemeral{
		items:      make(map[string]*list.Element),
		eviction:   list.New(),
		maxEntries: 10000,
		now:        time.Now,
	}
}

// ConfigRules implements container.ConfigRules.
func (c *Ephemeral) ConfigRules() validation.Rules {
	return validation.Rules{
		"ttl":         "duration",
		"max_entries": "integer|min:1",
	}
}

// Configure implements container.Service.
func (c *Ephemeral) Configure(cfg *container.ServiceConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultTTL = cfg.Duration("ttl", 0)
	c.maxEntries = cfg.Int("max_entries", c.maxEntries)
	return nil
}

// Get retrieves a value from the cache.
func (c *Ephemeral) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	entry := elem.Value.(*ephemeralEntry)
	if c.expired(entry) {
		c.remove(elem)
		return nil, ErrCacheMiss
	}
	c.eviction.MoveToFront(elem)
	return append([]byte(nil), entry.value...), nil
}

// Set stores a value, evicting the least recently used entry when full.
func (c *Ephemeral) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if d := effectiveTTL(ttl, c.defaultTTL); d > 0 {
		expiresAt = c.now().Add(d)
	}
	value = append([]byte(nil), value...)

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*ephemeralEntry)
		entry.value, entry.expiresAt = value, expiresAt
		c.eviction.MoveToFront(elem)
		return nil
	}

	for c.eviction.Len() >= c.maxEntries {
		c.remove(c.eviction.Back())
	}
	c.items[key] = c.eviction.PushFront(&ephemeralEntry{key: key, value: value, expiresAt: expiresAt})
	return nil
}

// Delete removes a value from the cache.
func (c *Ephemeral) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
	return nil
}

// Exists checks if a live key exists in the cache.
func (c *Ephemeral) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.Get(ctx, key)
	return err == nil, nil
}

// Len returns the number of stored entries, expired ones included.
func (c *Ephemeral) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eviction.Len()
}

// Flush drops every entry.
func (c *Ephemeral) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.eviction.Init()
}

func (c *Ephemeral) expired(e *ephemeralEntry) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}

func (c *Ephemeral) remove(elem *list.Element) {
	entry := c.eviction.Remove(elem).(*ephemeralEntry)
	delete(c.items, entry.key)
}
