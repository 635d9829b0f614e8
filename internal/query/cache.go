// Package query caches catalog fetches by request key, deduplicating
// concurrent identical requests and keeping settled results around for
// stale-while-revalidate refetches.
package query

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"ShopFront/internal/catalog"
)

type Kind int

const (
	KindList Kind = iota
	KindItem
)

// Key identifies one catalog request. Two keys are the same cache slot
// iff every field matches; changing any field (a new filter term, a new
// page) is a fresh slot with its own lifecycle.
type Key struct {
	Kind   Kind
	Title  string
	Offset int
	Limit  int
	ID     int
}

func (k Key) String() string {
	if k.Kind == KindItem {
		return fmt.Sprintf("item/%d", k.ID)
	}
	return fmt.Sprintf("list/%d/%d/%q", k.Offset, k.Limit, k.Title)
}

// Query is a Key plus a gate. A disabled query never issues network
// traffic and reports pending until it is looked up enabled.
type Query struct {
	Key      Key
	Disabled bool
}

func ListQuery(offset, limit int, title string) Query {
	return Query{Key: Key{Kind: KindList, Offset: offset, Limit: limit, Title: title}}
}

func ItemQuery(id int) Query {
	return Query{Key: Key{Kind: KindItem, ID: id}}
}

type State int

const (
	StatePending State = iota
	StateSuccess
	StateError
)

// Result is the tri-state outcome for a key. Fetching is true while a
// revalidation runs over an already settled result, so callers may show
// a spinner without losing the stale data.
type Result struct {
	State    State
	Fetching bool
	Items    []catalog.Item
	Item     catalog.Item
	Err      error
}

// Fetcher is the slice of the catalog client the cache needs.
type Fetcher interface {
	ListItems(ctx context.Context, offset, limit int, title string) ([]catalog.Item, error)
	GetItem(ctx context.Context, id int) (catalog.Item, error)
}

type entry struct {
	res Result
	// gen counts issued fetches; a completion carrying an older gen is
	// a stale response and is discarded.
	gen      int
	inflight bool
	settled  chan struct{}
}

type Cache struct {
	client  Fetcher
	log     *zap.Logger
	metrics *Metrics

	mu      sync.Mutex
	entries map[Key]*entry
	sf      singleflight.Group
	subs    map[int]func(Key, Result)
	nextSub int
}

func NewCache(client Fetcher, log *zap.Logger, metrics *Metrics) *Cache {
	return &Cache{
		client:  client,
		log:     log,
		metrics: metrics,
		entries: map[Key]*entry{},
		subs:    map[int]func(Key, Result){},
	}
}

// Lookup returns the current result for q, launching a fetch first if
// the key has never been fetched. A settled slot is returned as-is with
// no network traffic; Refetch is the only way to go back to the
// network for a settled key.
func (c *Cache) Lookup(q Query) Result {
	if q.Disabled {
		return Result{State: StatePending}
	}

	c.mu.Lock()
	e, ok := c.entries[q.Key]
	if !ok {
		e = c.startFetchLocked(q.Key)
		c.metrics.miss()
	} else {
		c.metrics.hit()
	}
	res := e.res
	c.mu.Unlock()
	return res
}

// Refetch forces a new fetch for q even when a settled result exists.
// The old result stays visible (with Fetching set) until the new one
// settles and replaces it, success or error.
func (c *Cache) Refetch(q Query) Result {
	if q.Disabled {
		return Result{State: StatePending}
	}

	c.mu.Lock()
	e := c.startFetchLocked(q.Key)
	res := e.res
	c.mu.Unlock()
	return res
}

// Wait behaves like Lookup but blocks until the key settles or ctx is
// done. For a disabled query it returns the pending result immediately.
func (c *Cache) Wait(ctx context.Context, q Query) (Result, error) {
	res := c.Lookup(q)
	if q.Disabled {
		return res, nil
	}

	c.mu.Lock()
	ch := c.entries[q.Key].settled
	c.mu.Unlock()

	select {
	case <-ch:
		return c.peek(q.Key), nil
	case <-ctx.Done():
		return c.peek(q.Key), ctx.Err()
	}
}

// Subscribe registers fn to run after any key settles. The returned
// cancel removes it.
func (c *Cache) Subscribe(fn func(Key, Result)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Cache) peek(key Key) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.res
	}
	return Result{State: StatePending}
}

// startFetchLocked bumps the key's generation and launches the fetch.
// An entry that is already fetching is returned as-is when called from
// Lookup; Refetch reaches here too and piggybacks on the in-flight
// call through singleflight.
func (c *Cache) startFetchLocked(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{res: Result{State: StatePending}}
		c.entries[key] = e
	}

	e.gen++
	gen := e.gen
	e.res.Fetching = true
	// Waiters hold the current settled channel, so it is only replaced
	// once the previous fetch has closed it.
	if !e.inflight {
		e.settled = make(chan struct{})
		e.inflight = true
	}

	go c.fetch(key, gen)
	return e
}

func (c *Cache) fetch(key Key, gen int) {
	v, err, _ := c.sf.Do(key.String(), func() (any, error) {
		ctx := context.Background()
		if key.Kind == KindItem {
			return c.client.GetItem(ctx, key.ID)
		}
		return c.client.ListItems(ctx, key.Offset, key.Limit, key.Title)
	})

	res := Result{State: StateSuccess}
	switch {
	case err != nil:
		res = Result{State: StateError, Err: err}
	case key.Kind == KindItem:
		res.Item = v.(catalog.Item)
	default:
		res.Items = v.([]catalog.Item)
	}

	c.settle(key, gen, res)
}

// settle writes a completed fetch into its slot unless a newer fetch
// for the same key was issued in the meantime.
func (c *Cache) settle(key Key, gen int, res Result) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || gen != e.gen {
		c.mu.Unlock()
		c.log.Debug("discarding stale catalog response", zap.Stringer("key", key))
		return
	}

	e.res = res
	e.inflight = false
	close(e.settled)

	subs := make([]func(Key, Result), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	if res.Err != nil {
		c.log.Warn("catalog fetch failed", zap.Stringer("key", key), zap.Error(res.Err))
	}
	for _, fn := range subs {
		fn(key, res)
	}
}
