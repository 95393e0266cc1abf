// ABOUTME: Thread-safe TTL cache of recently claimed send keys
// ABOUTME: Lets the realtime hub reject client retries of a message it already accepted

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry stores when a key was claimed and its place in the eviction list.
type cacheEntry struct {
	claimed time.Time
	element *list.Element
}

// Cache is a TTL-based, size-limited set of claimed keys.
// The oldest key is evicted first when the cache is full.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List // keys, oldest claim at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	sweepEvery time.Duration
	done       chan struct{}
	stopOnce   sync.Once
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithCleanupInterval starts a background sweep of expired keys.
// Without it expired keys are only dropped lazily or by eviction.
func WithCleanupInterval(every time.Duration) Option {
	return func(c *Cache) { c.sweepEvery = every }
}

// New creates a cache that remembers keys for ttl and holds at most maxSize.
func New(ttl time.Duration, maxSize int, opts ...Option) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sweepEvery > 0 {
		go c.sweep(c.sweepEvery)
	}
	return c
}

// SendKey builds the key for a client-supplied message ID. Keys are scoped to
// the sender so two members can never collide.
func SendKey(memberID, clientMessageID string) string {
	return memberID + "\x00" + clientMessageID
}

// Claim atomically records key and reports whether it was new.
// It returns false if the key was claimed within the TTL.
func (c *Cache) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, ok := c.seen[key]; ok {
		if now.Sub(entry.claimed) < c.ttl {
			return false
		}
		c.removeLocked(key, entry)
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.seen[key] = &cacheEntry{
		claimed: now,
		element: c.order.PushBack(key),
	}
	return true
}

// Release forgets key so a later Claim succeeds. The hub releases a key when
// the send it guarded failed to persist.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.seen[key]; ok {
		c.removeLocked(key, entry)
	}
}

// Seen reports whether key is currently claimed.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[key]
	return ok && c.now().Sub(entry.claimed) < c.ttl
}

// Len returns the number of keys held, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) removeLocked(key string, entry *cacheEntry) {
	c.order.Remove(entry.element)
	delete(c.seen, key)
}

// evictOldestLocked drops the front of the list. O(1).
func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

func (c *Cache) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}

// Sweep removes every expired key. Claims are appended in time order, so
// the walk stops at the first live key.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for e := c.order.Front(); e != nil; {
		key, _ := e.Value.(string)
		entry := c.seen[key]
		if entry == nil || now.Sub(entry.claimed) < c.ttl {
			return
		}
		next := e.Next()
		c.removeLocked(key, entry)
		e = next
	}
}

// Close stops the background sweep. It is safe to call multiple times.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.done) })
}
