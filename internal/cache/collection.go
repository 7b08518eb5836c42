package cache

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/parsakn/smartlight-client/internal/model"
)

// Entity is anything cached by primary key.
type Entity interface {
	EntityID() int64
}

// DeviceEntity is an entity that physical devices address by token.
type DeviceEntity interface {
	Entity
	DeviceToken() string
}

type Status string

const (
	StatusAbsent  Status = "absent"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Entry is a point-in-time copy of one collection.
type Entry[T Entity] struct {
	Status    Status
	Items     []T
	Err       error
	Stale     bool
	UpdatedAt time.Time
}

// Fetcher loads the authoritative collection from the backend.
type Fetcher[T Entity] func(ctx context.Context) ([]T, error)

var errCleared = errors.New("collection cleared during fetch")

// Collection caches one entity kind. All methods are safe for concurrent use;
// observers are notified after the lock is released.
type Collection[T Entity] struct {
	kind   model.Kind
	fetch  Fetcher[T]
	notify func(Event)
	logger *slog.Logger

	mu         sync.Mutex
	entry      Entry[T]
	pending    map[int64]struct{}
	generation uint64
	// version counts local writes and invalidations; a fetch that started
	// at an older version does not overwrite the entry.
	version uint64
	started uint64

	group     singleflight.Group
	refetchCh chan struct{}
}

func NewCollection[T Entity](kind model.Kind, fetch Fetcher[T], notify func(Event), logger *slog.Logger) *Collection[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if notify == nil {
		notify = func(Event) {}
	}
	return &Collection[T]{
		kind:      kind,
		fetch:     fetch,
		notify:    notify,
		logger:    logger.With("collection", string(kind)),
		entry:     Entry[T]{Status: StatusAbsent},
		pending:   make(map[int64]struct{}),
		refetchCh: make(chan struct{}, 1),
	}
}

func (c *Collection[T]) Kind() model.Kind {
	return c.kind
}

// Get returns a copy of the current entry without fetching.
func (c *Collection[T]) Get() Entry[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.entry
	out.Items = slices.Clone(c.entry.Items)
	return out
}

// Load serves a ready, fresh collection from memory and otherwise fetches.
// Concurrent loads share one fetch.
func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	c.mu.Lock()
	if c.entry.Status == StatusReady && !c.entry.Stale {
		items := slices.Clone(c.entry.Items)
		c.mu.Unlock()
		return items, nil
	}
	c.mu.Unlock()
	return c.Fetch(ctx)
}

// Fetch always goes to the backend, joining a fetch already in flight.
func (c *Collection[T]) Fetch(ctx context.Context) ([]T, error) {
	ch := c.group.DoChan("fetch", func() (any, error) {
		return c.fetchNow(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]T)), nil
	}
}

func (c *Collection[T]) fetchNow(ctx context.Context) ([]T, error) {
	c.mu.Lock()
	generation := c.generation
	version := c.version
	c.started = version
	if c.entry.Status != StatusReady {
		c.entry.Status = StatusLoading
	}
	c.mu.Unlock()

	items, err := c.fetch(ctx)

	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		return nil, errCleared
	}
	if version != c.version {
		return c.supersededLocked(err)
	}
	if err != nil {
		c.entry.Status = StatusError
		c.entry.Err = err
		c.mu.Unlock()
		c.notify(Event{Kind: c.kind, Reason: ReasonFailed})
		return nil, err
	}

	if items == nil {
		items = []T{}
	}
	for i, item := range items {
		if _, ok := c.pending[item.EntityID()]; !ok {
			continue
		}
		if current, ok := c.find(item.EntityID()); ok {
			items[i] = current
		}
	}
	c.entry = Entry[T]{
		Status:    StatusReady,
		Items:     items,
		UpdatedAt: time.Now().UTC(),
	}
	out := slices.Clone(items)
	c.mu.Unlock()

	c.notify(Event{Kind: c.kind, Reason: ReasonFetched})
	return out, nil
}

// supersededLocked handles a fetch whose result predates a local write. The
// result is dropped and, unless a newer fetch is already running, another
// refetch is scheduled. Callers get the current items. Must hold c.mu; it
// is released on return.
func (c *Collection[T]) supersededLocked(fetchErr error) ([]T, error) {
	rerun := c.started != c.version
	if rerun {
		c.entry.Stale = true
	}
	out := slices.Clone(c.entry.Items)
	c.mu.Unlock()

	c.logger.Debug("dropping fetch result older than local changes", "rerun", rerun)
	if rerun {
		c.scheduleRefetch()
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// Invalidate marks the collection stale and schedules a background refetch.
// A fetch already in flight is not joined. An absent collection has nothing
// to refetch.
func (c *Collection[T]) Invalidate() {
	c.mu.Lock()
	if c.entry.Status == StatusAbsent {
		c.mu.Unlock()
		return
	}
	c.entry.Stale = true
	c.version++
	c.group.Forget("fetch")
	c.mu.Unlock()

	c.notify(Event{Kind: c.kind, Reason: ReasonInvalidated})
	c.scheduleRefetch()
}

func (c *Collection[T]) scheduleRefetch() {
	select {
	case c.refetchCh <- struct{}{}:
	default:
	}
}

// Run refetches after every Invalidate until ctx ends. Triggers that arrive
// while a refetch is running collapse into one.
func (c *Collection[T]) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.refetchCh:
		}
		if _, err := c.Fetch(ctx); err != nil && ctx.Err() == nil && !errors.Is(err, errCleared) {
			c.logger.Warn("background refetch failed", "err", err)
		}
	}
}

// Clear drops all items and pending marks. Fetches already in flight are
// discarded when they land.
func (c *Collection[T]) Clear() {
	c.mu.Lock()
	c.generation++
	c.entry = Entry[T]{Status: StatusAbsent}
	c.pending = make(map[int64]struct{})
	c.mu.Unlock()

	c.notify(Event{Kind: c.kind, Reason: ReasonCleared})
}

// Snapshot returns the cached entity with id.
func (c *Collection[T]) Snapshot(id int64) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.find(id)
}

func (c *Collection[T]) find(id int64) (T, bool) {
	for _, item := range c.entry.Items {
		if item.EntityID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Patch applies update to the entity with id. It reports whether the entity
// was cached.
func (c *Collection[T]) Patch(id int64, update func(T) T) bool {
	c.mu.Lock()
	idx := slices.IndexFunc(c.entry.Items, func(item T) bool { return item.EntityID() == id })
	if idx < 0 {
		c.mu.Unlock()
		return false
	}
	c.entry.Items[idx] = update(c.entry.Items[idx])
	c.mu.Unlock()

	c.notify(Event{Kind: c.kind, Reason: ReasonPatched, IDs: []int64{id}})
	return true
}

// Replace swaps the entity with id for value.
func (c *Collection[T]) Replace(id int64, value T) bool {
	c.mu.Lock()
	idx := slices.IndexFunc(c.entry.Items, func(item T) bool { return item.EntityID() == id })
	if idx < 0 {
		c.mu.Unlock()
		return false
	}
	c.entry.Items[idx] = value
	c.version++
	c.mu.Unlock()

	c.notify(Event{Kind: c.kind, Reason: ReasonReplaced, IDs: []int64{id}})
	return true
}

// MarkPending records that a mutation owns id. Fetch results keep the cached
// value for pending ids. It returns false if id was already pending.
func (c *Collection[T]) MarkPending(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; ok {
		return false
	}
	c.pending[id] = struct{}{}
	return true
}

// ClearPending releases id. Fetches that started while it was pending are
// dropped when they land.
func (c *Collection[T]) ClearPending(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; ok {
		delete(c.pending, id)
		c.version++
	}
}

// PatchDevice applies update to every entity whose device token equals token
// and returns how many matched. Primary keys play no part in the match.
func PatchDevice[T DeviceEntity](c *Collection[T], token string, update func(T) T) int {
	if token == "" {
		return 0
	}
	c.mu.Lock()
	var ids []int64
	for i, item := range c.entry.Items {
		if item.DeviceToken() != token {
			continue
		}
		c.entry.Items[i] = update(item)
		ids = append(ids, item.EntityID())
	}
	c.mu.Unlock()

	if len(ids) > 0 {
		c.notify(Event{Kind: c.kind, Reason: ReasonPushed, IDs: ids})
	}
	return len(ids)
}
