package cache

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"
)

// DefaultCapacity is used when a non-positive capacity is configured
const DefaultCapacity = 1000

// ComputeFunc produces the value for a cache miss
type ComputeFunc func(ctx context.Context) (any, error)

// ErrComputePanic is wrapped by the error returned when a computation panics
var ErrComputePanic = errors.New("cache: computation panicked")

// PanicError carries the recovered value and the stack of a panicking
// computation.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%v: %v", ErrComputePanic, e.Value)
}

func (e *PanicError) Unwrap() error { return ErrComputePanic }

type entry struct {
	value      any
	generation uint64
	inserted   uint64
}

// QueryCache is a bounded LRU memo of query results stamped with the data
// generation they were computed from. Concurrent misses for the same key and
// generation share a single computation.
type QueryCache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[Key, *entry]
	capacity int
	latest   uint64
	seq      uint64
	removing bool

	group singleflight.Group

	hits           atomic.Int64
	misses         atomic.Int64
	evictions      atomic.Int64
	staleEvictions atomic.Int64
	coalesced      atomic.Int64
	computations   atomic.Int64
}

// Stats reports cache counters
type Stats struct {
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	HitRate        float64 `json:"hitRate"`
	Evictions      int64   `json:"evictions"`
	StaleEvictions int64   `json:"staleEvictions"`
	Coalesced      int64   `json:"coalesced"`
	Computations   int64   `json:"computations"`
	Size           int     `json:"size"`
	Capacity       int     `json:"capacity"`
	Generation     uint64  `json:"generation"`
}

// New creates a cache holding at most capacity entries
func New(capacity int) *QueryCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &QueryCache{capacity: capacity}
	// NewLRU only fails for a non-positive size.
	c.lru, _ = simplelru.NewLRU[Key, *entry](capacity, c.onEvict)
	return c
}

// onEvict runs with mu held
func (c *QueryCache) onEvict(_ Key, _ *entry) {
	if !c.removing {
		c.evictions.Add(1)
	}
}

// GetOrCompute returns the cached value for key at generation, or runs
// compute once for all concurrent callers of the same key and generation.
// hit is true only when the value came from the cache.
//
// Each caller waits under its own ctx. When the computing caller is cancelled
// the others retry rather than inheriting its error. Failed computations are
// never stored.
func (c *QueryCache) GetOrCompute(ctx context.Context, key Key, generation uint64, compute ComputeFunc) (any, bool, error) {
	if v, ok := c.get(key, generation, true); ok {
		return v, true, nil
	}

	flightKey := key.String() + "@" + strconv.FormatUint(generation, 10)
	for {
		leaderCtx := ctx
		ch := c.group.DoChan(flightKey, func() (any, error) {
			if v, ok := c.get(key, generation, false); ok {
				return v, nil
			}
			c.computations.Add(1)
			v, err := safeCompute(leaderCtx, compute)
			if err != nil {
				return nil, err
			}
			if err := leaderCtx.Err(); err != nil {
				return nil, err
			}
			c.store(key, generation, v)
			return v, nil
		})

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				if isContextErr(res.Err) && ctx.Err() == nil {
					continue
				}
				return nil, false, res.Err
			}
			if res.Shared {
				c.coalesced.Add(1)
			}
			return res.Val, false, nil
		}
	}
}

// safeCompute runs compute, turning a panic into a *PanicError. singleflight
// re-panics DoChan panics on a fresh goroutine, where nothing can recover them.
func safeCompute(ctx context.Context, compute ComputeFunc) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return compute(ctx)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *QueryCache) get(key Key, generation uint64, record bool) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation > c.latest {
		c.latest = generation
	}

	e, ok := c.lru.Get(key)
	if ok && e.generation != generation {
		if e.generation < generation {
			c.remove(key)
			c.staleEvictions.Add(1)
		}
		ok = false
	}
	if record {
		if ok {
			c.hits.Add(1)
		} else {
			c.misses.Add(1)
		}
	}
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (c *QueryCache) store(key Key, generation uint64, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation < c.latest {
		return
	}
	c.latest = generation
	c.seq++
	c.lru.Add(key, &entry{value: value, generation: generation, inserted: c.seq})
}

// remove deletes a key without counting it as a capacity eviction; mu held
func (c *QueryCache) remove(key Key) {
	c.removing = true
	c.lru.Remove(key)
	c.removing = false
}

// Peek returns a cached value and its generation without touching recency
func (c *QueryCache) Peek(key Key) (any, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Peek(key)
	if !ok {
		return nil, 0, false
	}
	return e.value, e.generation, true
}

// Advance records that generation is now current. Results computed for
// older generations are no longer stored.
func (c *QueryCache) Advance(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation > c.latest {
		c.latest = generation
	}
}

// Sweep removes every entry older than the latest generation and returns
// how many were removed.
func (c *QueryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if ok && e.generation < c.latest {
			c.remove(key)
			removed++
		}
	}
	c.staleEvictions.Add(int64(removed))
	return removed
}

// Purge drops every entry
func (c *QueryCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removing = true
	c.lru.Purge()
	c.removing = false
}

// Len returns the number of entries, stale ones included
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns a snapshot of the counters
func (c *QueryCache) Stats() Stats {
	c.mu.Lock()
	size, latest := c.lru.Len(), c.latest
	c.mu.Unlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Hits:           hits,
		Misses:         misses,
		HitRate:        rate,
		Evictions:      c.evictions.Load(),
		StaleEvictions: c.staleEvictions.Load(),
		Coalesced:      c.coalesced.Load(),
		Computations:   c.computations.Load(),
		Size:           size,
		Capacity:       c.capacity,
		Generation:     latest,
	}
}
