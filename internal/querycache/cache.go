package querycache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/supercurriculum-admin/internal/models"
)

// Key identifies a cached query: the resource type plus a scope within it
// (a list filter hash or a single item). Principal separates the results
// fetched under different credentials; the zero value is an anonymous caller.
type Key struct {
	Type      models.ResourceType
	Scope     string
	Principal string
}

// ListKey keys a filtered list. Filters equal by value share a key.
func ListKey(t models.ResourceType, filter models.Filter) Key {
	return Key{Type: t, Scope: "list:" + filter.Hash()}
}

// ItemKey keys a single resource.
func ItemKey(t models.ResourceType, id string) Key {
	return Key{Type: t, Scope: "item:" + id}
}

// For returns k scoped to principal.
func (k Key) For(principal string) Key {
	k.Principal = principal
	return k
}

func (k Key) String() string {
	if k.Principal == "" {
		return string(k.Type) + "/" + k.Scope
	}
	return string(k.Type) + "/" + k.Scope + "@" + k.Principal
}

// Entry is a read-only snapshot of a cache slot.
type Entry struct {
	Value     interface{}
	HasValue  bool
	Err       error
	IsLoading bool
	IsError   bool
	Stale     bool
	UpdatedAt time.Time
	Version   uint64
}

// FetchFunc loads the value for a key.
type FetchFunc func(ctx context.Context) (interface{}, error)

// Recorder receives hit/miss observations.
type Recorder interface {
	RecordCacheOperation(hit bool, duration time.Duration)
}

// Options configures a Cache.
type Options struct {
	// StaleTime ages fresh entries into stale ones. Zero keeps entries fresh until invalidated.
	StaleTime time.Duration
	Logger    *zap.Logger
	Recorder  Recorder
	Now       func() time.Time
}

type slot struct {
	value       interface{}
	hasValue    bool
	err         error
	updatedAt   time.Time
	invalidated bool
	// fetches issued at or before invalidatedAt cannot clear the invalidated flag
	invalidatedAt uint64
	// failed is set when the newest resolution was an error; reads do not
	// retry it until the key is invalidated again or StaleTime has passed.
	failed     bool
	failedAt   time.Time
	generation uint64
	issued     uint64
	applied    uint64
	inflight   int
}

// Cache is a process-wide keyed store of fetched results.
type Cache struct {
	mu      sync.Mutex
	slots   map[Key]*slot
	subs    map[Key]map[uint64]chan Key
	nextSub uint64
	group   singleflight.Group

	staleTime time.Duration
	logger    *zap.Logger
	recorder  Recorder
	now       func() time.Time

	hits   uint64
	misses uint64
}

// New constructs an empty cache.
func New(opts Options) *Cache {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		slots:     make(map[Key]*slot),
		subs:      make(map[Key]map[uint64]chan Key),
		staleTime: opts.StaleTime,
		logger:    opts.Logger,
		recorder:  opts.Recorder,
		now:       opts.Now,
	}
}

// Get returns the current snapshot for key without fetching.
func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok {
		return Entry{}, false
	}
	return c.snapshotLocked(s), true
}

// Set stores value for key as the newest resolution.
func (c *Cache) Set(key Key, value interface{}) {
	c.mu.Lock()
	s := c.slotLocked(key)
	s.issued++
	s.applied = s.issued
	s.value = value
	s.hasValue = true
	s.err = nil
	s.failed = false
	s.invalidated = false
	s.updatedAt = c.now()
	c.mu.Unlock()
	c.notify(key)
}

// Query returns the entry for key, fetching when absent or stale.
// An absent entry blocks until the shared fetch resolves or ctx ends. A stale
// entry is returned immediately while a background fetch revalidates it.
// A failed fetch is not retried by later reads; it is surfaced from the entry.
func (c *Cache) Query(ctx context.Context, key Key, fetch FetchFunc) (Entry, error) {
	start := c.now()
	c.mu.Lock()
	s := c.slotLocked(key)
	snapshot := c.snapshotLocked(s)
	due := c.fetchDueLocked(s)
	c.mu.Unlock()

	if snapshot.HasValue {
		c.record(true, c.now().Sub(start))
		if due {
			c.start(ctx, key, fetch, false)
			snapshot.IsLoading = true
		}
		return snapshot, nil
	}

	c.record(false, c.now().Sub(start))
	if !due {
		return snapshot, snapshot.Err
	}
	ch := c.start(ctx, key, fetch, false)
	select {
	case res := <-ch:
		entry, _ := c.Get(key)
		if res.Err != nil && entry.Err == nil {
			// result superseded by a newer resolution; report what is cached
			return entry, nil
		}
		return entry, entry.Err
	case <-ctx.Done():
		entry, _ := c.Get(key)
		return entry, ctx.Err()
	}
}

// Refetch issues a new fetch for key that supersedes any fetch already in flight.
func (c *Cache) Refetch(ctx context.Context, key Key, fetch FetchFunc) <-chan singleflight.Result {
	return c.start(ctx, key, fetch, true)
}

// Invalidate marks a single key stale.
func (c *Cache) Invalidate(key Key) bool {
	c.mu.Lock()
	s, ok := c.slots[key]
	if ok {
		c.invalidateLocked(s)
	}
	c.mu.Unlock()
	if ok {
		c.notify(key)
	}
	return ok
}

// InvalidateType marks every entry of resource type t stale, for every
// principal, and returns how many were touched.
func (c *Cache) InvalidateType(t models.ResourceType) int {
	c.mu.Lock()
	var touched []Key
	for key, s := range c.slots {
		if key.Type != t {
			continue
		}
		c.invalidateLocked(s)
		touched = append(touched, key)
	}
	c.mu.Unlock()

	for _, key := range touched {
		c.notify(key)
	}
	if len(touched) > 0 {
		c.logger.Debug("cache namespace invalidated", zap.String("type", string(t)), zap.Int("entries", len(touched)))
	}
	return len(touched)
}

// Subscribe registers for change notifications on key. The returned channel
// receives key after every invalidation and every applied resolution;
// bursts are coalesced. Call cancel to unsubscribe.
func (c *Cache) Subscribe(key Key) (<-chan Key, func()) {
	ch := make(chan Key, 1)
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	if c.subs[key] == nil {
		c.subs[key] = make(map[uint64]chan Key)
	}
	c.subs[key][id] = ch
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs[key], id)
			if len(c.subs[key]) == 0 {
				delete(c.subs, key)
			}
			c.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Stats reports size and hit/miss counters.
func (c *Cache) Stats() models.CacheStats {
	c.mu.Lock()
	entries := len(c.slots)
	c.mu.Unlock()
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)
	stats := models.CacheStats{Entries: entries, Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		stats.HitRatio = float64(hits) / float64(total)
	}
	return stats
}

// start joins the fetch running for the key's current generation or begins a
// new one; supersede moves the key to a fresh generation first. Sequence
// numbers are taken under the same lock, so they follow call order. A call
// that joins a running flight leaves its number unused.
func (c *Cache) start(ctx context.Context, key Key, fetch FetchFunc, supersede bool) <-chan singleflight.Result {
	c.mu.Lock()
	s := c.slotLocked(key)
	if supersede {
		s.generation++
	}
	generation := s.generation
	s.issued++
	seq := s.issued
	c.mu.Unlock()

	// The fetch outlives the caller: an abandoned view stops waiting but the
	// request still completes and populates the cache.
	fetchCtx := context.WithoutCancel(ctx)
	flight := fmt.Sprintf("%s#%d", key, generation)
	return c.group.DoChan(flight, func() (interface{}, error) {
		c.begin(key)
		value, err := fetch(fetchCtx)
		c.resolve(key, seq, value, err)
		return value, err
	})
}

func (c *Cache) begin(key Key) {
	c.mu.Lock()
	c.slotLocked(key).inflight++
	c.mu.Unlock()
}

func (c *Cache) resolve(key Key, seq uint64, value interface{}, err error) {
	c.mu.Lock()
	s := c.slotLocked(key)
	s.inflight--
	if seq < s.applied {
		applied := s.applied
		c.mu.Unlock()
		c.logger.Debug("discarding superseded fetch", zap.String("key", key.String()), zap.Uint64("seq", seq), zap.Uint64("applied", applied))
		return
	}
	s.applied = seq
	if err != nil {
		s.err = err
		if seq > s.invalidatedAt {
			s.failed = true
			s.failedAt = c.now()
		}
	} else {
		s.value = value
		s.hasValue = true
		s.err = nil
		s.failed = false
		s.updatedAt = c.now()
		if seq > s.invalidatedAt {
			s.invalidated = false
		}
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("query fetch failed", zap.String("key", key.String()), zap.Error(err))
	}
	c.notify(key)
}

func (c *Cache) invalidateLocked(s *slot) {
	s.invalidated = true
	s.failed = false
	s.invalidatedAt = s.issued
	s.generation++
}

func (c *Cache) slotLocked(key Key) *slot {
	s, ok := c.slots[key]
	if !ok {
		s = &slot{}
		c.slots[key] = s
	}
	return s
}

func (c *Cache) fetchDueLocked(s *slot) bool {
	if s.failed {
		return c.staleTime > 0 && c.now().Sub(s.failedAt) > c.staleTime
	}
	if !s.hasValue {
		return true
	}
	return c.staleLocked(s)
}

func (c *Cache) staleLocked(s *slot) bool {
	if s.invalidated {
		return true
	}
	return s.hasValue && c.staleTime > 0 && c.now().Sub(s.updatedAt) > c.staleTime
}

func (c *Cache) snapshotLocked(s *slot) Entry {
	stale := c.staleLocked(s)
	return Entry{
		Value:     s.value,
		HasValue:  s.hasValue,
		Err:       s.err,
		IsLoading: s.inflight > 0,
		IsError:   s.err != nil,
		Stale:     stale,
		UpdatedAt: s.updatedAt,
		Version:   s.applied,
	}
}

func (c *Cache) notify(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs[key] {
		select {
		case ch <- key:
		default:
		}
	}
}

func (c *Cache) record(hit bool, d time.Duration) {
	if hit {
		atomic.AddUint64(&c.hits, 1)
	} else {
		atomic.AddUint64(&c.misses, 1)
	}
	if c.recorder != nil {
		c.recorder.RecordCacheOperation(hit, d)
	}
}
