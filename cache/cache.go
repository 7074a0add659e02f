package cache

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
)

const (
	DefaultCapacity      = 2048
	DefaultTTL           = 5 * time.Minute
	defaultPromoteBuffer = 256
)

// ErrInvalidPattern is returned by Invalidate for patterns that do not compile.
var ErrInvalidPattern = errors.New("invalid cache pattern")

// Config configures a Cache. Zero values select defaults.
type Config struct {
	Capacity int
	// DefaultTTL applies when Set is called with ttl <= 0.
	DefaultTTL time.Duration
	// PromoteBuffer bounds the hits queued for recency promotion between
	// structural changes.
	PromoteBuffer int
	// Now overrides the clock.
	Now func() time.Time
}

// Stats is a point-in-time view of cache accounting.
type Stats struct {
	Size        int
	Capacity    int
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
	HitRate     float64
}

type entry struct {
	key        string
	actorID    string
	decision   bool
	insertedAt time.Time
	ttl        time.Duration
	lastAccess atomic.Int64
	elem       *list.Element
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.insertedAt) >= e.ttl
}

// Cache is a bounded, TTL-aware LRU of authorization decisions. The zero value
// is not usable; construct with New.
type Cache struct {
	mu         sync.RWMutex
	capacity   int
	defaultTTL time.Duration
	now        func() time.Time

	items    map[string]*entry
	lru      *list.List
	byActor  map[string]map[*entry]struct{}
	counters map[string]map[string]int64
	promote  chan *entry

	// generation advances on every invalidation and Clear, always under mu.
	generation atomic.Uint64

	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64
}

// testHookExpiredRead runs in Get between dropping the read lock and taking
// the write lock on the expired path.
var testHookExpiredRead func()

// New constructs an empty Cache.
func New(cfg Config) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.PromoteBuffer <= 0 {
		cfg.PromoteBuffer = defaultPromoteBuffer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{
		capacity:   cfg.Capacity,
		defaultTTL: cfg.DefaultTTL,
		now:        cfg.Now,
		items:      make(map[string]*entry, cfg.Capacity),
		lru:        list.New(),
		byActor:    make(map[string]map[*entry]struct{}),
		counters:   make(map[string]map[string]int64),
		promote:    make(chan *entry, cfg.PromoteBuffer),
	}
}

// Get returns the cached decision for k. ok is false on a miss, including
// when the entry has expired; an expired entry is evicted before returning.
func (c *Cache) Get(k Key) (decision bool, ok bool) {
	ks := k.String()
	now := c.now()

	c.mu.RLock()
	e, found := c.items[ks]
	if !found {
		c.mu.RUnlock()
		c.misses.Add(1)
		return false, false
	}
	if e.expired(now) {
		c.mu.RUnlock()
		if testHookExpiredRead != nil {
			testHookExpiredRead()
		}
		c.mu.Lock()
		c.drainLocked()
		// Set may have refreshed the entry in place since the read lock
		// was dropped.
		if cur, still := c.items[ks]; still {
			now = c.now()
			if !cur.expired(now) {
				decision = cur.decision
				cur.lastAccess.Store(now.UnixNano())
				c.lru.MoveToFront(cur.elem)
				c.mu.Unlock()
				c.hits.Add(1)
				return decision, true
			}
			c.removeLocked(cur)
			c.expirations.Add(1)
		}
		c.mu.Unlock()
		c.misses.Add(1)
		return false, false
	}

	decision = e.decision
	e.lastAccess.Store(now.UnixNano())
	queued := true
	select {
	case c.promote <- e:
	default:
		queued = false
	}
	c.mu.RUnlock()

	if !queued {
		c.mu.Lock()
		c.drainLocked()
		if e.elem != nil {
			c.lru.MoveToFront(e.elem)
		}
		c.mu.Unlock()
	}

	c.hits.Add(1)
	return decision, true
}

// Set stores decision for k with the given ttl (DefaultTTL when ttl <= 0)
// and marks it most recently used, evicting the least recently used entry
// when the cache is full.
func (c *Cache) Set(k Key, decision bool, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	ks := k.String()
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(k, ks, decision, ttl, now)
}

// Generation returns a value that changes whenever entries are invalidated
// or cleared. Pair it with SetIfGeneration to store a decision computed
// outside the lock.
func (c *Cache) Generation() uint64 {
	return c.generation.Load()
}

// SetIfGeneration behaves like Set but stores nothing, returning false, when
// an invalidation or Clear ran since gen was read from Generation.
func (c *Cache) SetIfGeneration(k Key, decision bool, ttl time.Duration, gen uint64) bool {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	ks := k.String()
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation.Load() != gen {
		return false
	}
	c.setLocked(k, ks, decision, ttl, now)
	return true
}

func (c *Cache) setLocked(k Key, ks string, decision bool, ttl time.Duration, now time.Time) {
	c.drainLocked()

	if e, ok := c.items[ks]; ok {
		e.decision = decision
		e.insertedAt = now
		e.ttl = ttl
		e.lastAccess.Store(now.UnixNano())
		c.lru.MoveToFront(e.elem)
		return
	}

	for len(c.items) >= c.capacity {
		if !c.evictOldestLocked() {
			break
		}
	}

	e := &entry{
		key:        ks,
		actorID:    k.ActorID,
		decision:   decision,
		insertedAt: now,
		ttl:        ttl,
	}
	e.lastAccess.Store(now.UnixNano())
	e.elem = c.lru.PushFront(e)
	c.items[ks] = e

	set, ok := c.byActor[k.ActorID]
	if !ok {
		set = make(map[*entry]struct{})
		c.byActor[k.ActorID] = set
	}
	set[e] = struct{}{}
}

// Invalidate removes every entry whose serialized key matches the glob
// pattern. '*' does not cross ':' component boundaries; '**' does. See
// ResourcePattern and ActorPattern for quoted helpers.
func (c *Cache) Invalidate(pattern string) (int, error) {
	g, err := glob.Compile(pattern, ':')
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.drainLocked()
	c.generation.Add(1)

	removed := 0
	for ks, e := range c.items {
		if g.Match(ks) {
			c.removeLocked(e)
			removed++
		}
	}
	return removed, nil
}

// InvalidateActor removes every entry of actorID and clears its counters.
func (c *Cache) InvalidateActor(actorID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drainLocked()
	c.generation.Add(1)

	removed := 0
	for e := range c.byActor[actorID] {
		c.removeLocked(e)
		removed++
	}
	delete(c.byActor, actorID)
	delete(c.counters, actorID)
	return removed
}

// Clear removes every entry and every actor counter. Hit and miss totals
// are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drainLocked()
	c.generation.Add(1)

	for _, e := range c.items {
		e.elem = nil
	}
	c.items = make(map[string]*entry, c.capacity)
	c.lru.Init()
	c.byActor = make(map[string]map[*entry]struct{})
	c.counters = make(map[string]map[string]int64)
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns size and hit/miss accounting.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	size := len(c.items)
	c.mu.RUnlock()

	s := Stats{
		Size:        size,
		Capacity:    c.capacity,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// ActorCounter returns a per-actor counter, zero when unset.
func (c *Cache) ActorCounter(actorID, name string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[actorID][name]
}

// SetActorCounter sets a per-actor counter.
func (c *Cache) SetActorCounter(actorID, name string, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.counters[actorID]
	if !ok {
		m = make(map[string]int64)
		c.counters[actorID] = m
	}
	m[name] = value
}

// drainLocked applies queued hit promotions. Caller holds the write lock.
func (c *Cache) drainLocked() {
	for {
		select {
		case e := <-c.promote:
			if e.elem != nil {
				c.lru.MoveToFront(e.elem)
			}
		default:
			return
		}
	}
}

func (c *Cache) evictOldestLocked() bool {
	back := c.lru.Back()
	if back == nil {
		return false
	}
	c.removeLocked(back.Value.(*entry))
	c.evictions.Add(1)
	return true
}

func (c *Cache) removeLocked(e *entry) {
	if e.elem != nil {
		c.lru.Remove(e.elem)
		e.elem = nil
	}
	delete(c.items, e.key)
	if set, ok := c.byActor[e.actorID]; ok {
		delete(set, e)
		if len(set) == 0 {
			delete(c.byActor, e.actorID)
		}
	}
}
