// ABOUTME: TTL-based cache for deduplicating inbound transport deliveries.
// ABOUTME: Keeps redelivered messages from reaching the manager twice.

// Package dedupe suppresses duplicate inbound deliveries. Message transports
// redeliver on reconnect or ack loss; the manager's sequential-caller
// contract assumes each inbound event is seen once, so the serve loop runs
// every delivery through this cache first.
package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry pairs a delivery's arrival time with its position in the eviction
// order.
type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache is a thread-safe, TTL-bounded, size-bounded set of recently seen
// delivery keys. Insertion order is kept in a linked list so capacity
// eviction is O(1).
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // oldest key at the front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a dedupe cache. Keys older than ttl no longer count as seen;
// at most maxSize keys are retained. A background goroutine sweeps expired
// entries until Close is called.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Duplicate atomically reports whether key was already seen within the TTL,
// marking it as seen if it was not. The single atomic operation avoids the
// check-then-mark race between concurrent deliveries of the same message.
func (c *Cache) Duplicate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[key]; ok && time.Since(e.seenAt) < c.ttl {
		return true
	}

	c.record(key)
	return false
}

// Len returns the number of tracked keys, including expired ones not yet
// swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// record marks a key as seen now. Caller must hold mu.
func (c *Cache) record(key string) {
	now := time.Now()

	if e, ok := c.seen[key]; ok {
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			evicted, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, evicted)
		}
	}

	c.seen[key] = &entry{
		seenAt:  now,
		element: c.order.PushBack(key),
	}
}

// sweepLoop periodically drops expired entries so the map does not hold
// stale keys up to the capacity bound.
func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.seen {
		if now.Sub(e.seenAt) > c.ttl {
			c.order.Remove(e.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the background sweeper. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
