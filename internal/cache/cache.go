package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/parsakn/smartlight-client/internal/model"
)

type Reason string

const (
	ReasonFetched     Reason = "fetched"
	ReasonFailed      Reason = "failed"
	ReasonInvalidated Reason = "invalidated"
	ReasonPatched     Reason = "patched"
	ReasonReplaced    Reason = "replaced"
	ReasonPushed      Reason = "pushed"
	ReasonCleared     Reason = "cleared"
)

// Event describes one change to a collection. IDs is empty for changes that
// affect the whole collection.
type Event struct {
	Kind   model.Kind `json:"kind"`
	Reason Reason     `json:"reason"`
	IDs    []int64    `json:"ids,omitempty"`
}

// Source is the backend the cache reads from.
type Source interface {
	Homes(ctx context.Context) ([]model.Home, error)
	Rooms(ctx context.Context) ([]model.Room, error)
	Lamps(ctx context.Context) ([]model.Lamp, error)
}

// Cache holds the three entity collections of one session.
type Cache struct {
	Homes *Collection[model.Home]
	Rooms *Collection[model.Room]
	Lamps *Collection[model.Lamp]

	mu     sync.Mutex
	subs   map[uint64]func(Event)
	nextID uint64
}

func New(src Source, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "cache")

	c := &Cache{subs: make(map[uint64]func(Event))}
	c.Homes = NewCollection(model.KindHome, src.Homes, c.publish, logger)
	c.Rooms = NewCollection(model.KindRoom, src.Rooms, c.publish, logger)
	c.Lamps = NewCollection(model.KindLamp, src.Lamps, c.publish, logger)
	return c
}

// Subscribe registers fn for every change event. fn runs on the goroutine
// that made the change and must not block. The returned func unsubscribes.
func (c *Cache) Subscribe(fn func(Event)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func (c *Cache) publish(ev Event) {
	c.mu.Lock()
	subs := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// Invalidate marks one collection stale and schedules its refetch.
func (c *Cache) Invalidate(kind model.Kind) error {
	switch kind {
	case model.KindHome:
		c.Homes.Invalidate()
	case model.KindRoom:
		c.Rooms.Invalidate()
	case model.KindLamp:
		c.Lamps.Invalidate()
	default:
		return fmt.Errorf("unknown collection %q", kind)
	}
	return nil
}

// Clear drops every collection, e.g. on logout.
func (c *Cache) Clear() {
	c.Homes.Clear()
	c.Rooms.Clear()
	c.Lamps.Clear()
}

// RefreshAll refetches every collection concurrently.
func (c *Cache) RefreshAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := c.Homes.Fetch(ctx)
		return err
	})
	g.Go(func() error {
		_, err := c.Rooms.Fetch(ctx)
		return err
	})
	g.Go(func() error {
		_, err := c.Lamps.Fetch(ctx)
		return err
	})
	return g.Wait()
}

// Run serves background refetches for all collections until ctx ends.
func (c *Cache) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Homes.Run(ctx) })
	g.Go(func() error { return c.Rooms.Run(ctx) })
	g.Go(func() error { return c.Lamps.Run(ctx) })
	return g.Wait()
}
