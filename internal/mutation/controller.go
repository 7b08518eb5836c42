package mutation

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/parsakn/smartlight-client/internal/cache"
)

var (
	ErrInProgress    = errors.New("mutation already in progress")
	ErrUnknownEntity = errors.New("entity not cached")
)

type State string

const (
	StateIdle       State = "idle"
	StateOptimistic State = "optimistically_applied"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
)

// Target is the cache collection a controller writes to.
type Target[T cache.Entity] interface {
	Snapshot(id int64) (T, bool)
	Replace(id int64, value T) bool
	MarkPending(id int64) bool
	ClearPending(id int64)
	Invalidate()
}

// Pending is one mutation between optimistic apply and settlement.
type Pending[T cache.Entity] struct {
	ID        int64
	Previous  T
	Desired   T
	State     State
	StartedAt time.Time
}

// SendFunc performs the remote write and returns the server's representation.
type SendFunc[T cache.Entity] func(ctx context.Context, desired T) (T, error)

// Controller applies writes optimistically and then commits the server value
// or restores the previous one. At most one mutation per id is in flight.
type Controller[T cache.Entity] struct {
	target Target[T]
	logger *slog.Logger

	mu      sync.Mutex
	pending map[int64]*Pending[T]
	settled map[int64]State
}

func NewController[T cache.Entity](target Target[T], logger *slog.Logger) *Controller[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller[T]{
		target:  target,
		logger:  logger.With("component", "mutation"),
		pending: make(map[int64]*Pending[T]),
		settled: make(map[int64]State),
	}
}

// Apply patches id with desire, sends the desired value and settles the
// cache with the outcome. The returned error is the send error unchanged.
func (c *Controller[T]) Apply(ctx context.Context, id int64, desire func(T) T, send SendFunc[T]) (T, error) {
	var zero T

	c.mu.Lock()
	if _, busy := c.pending[id]; busy {
		c.mu.Unlock()
		return zero, ErrInProgress
	}
	previous, ok := c.target.Snapshot(id)
	if !ok {
		c.mu.Unlock()
		return zero, ErrUnknownEntity
	}
	if !c.target.MarkPending(id) {
		c.mu.Unlock()
		return zero, ErrInProgress
	}
	desired := desire(previous)
	c.pending[id] = &Pending[T]{
		ID:        id,
		Previous:  previous,
		Desired:   desired,
		State:     StateOptimistic,
		StartedAt: time.Now().UTC(),
	}
	delete(c.settled, id)
	c.mu.Unlock()

	c.target.Replace(id, desired)

	value, err := send(ctx, desired)
	if err != nil {
		c.target.Replace(id, previous)
		c.settle(id, StateRolledBack)
		c.logger.Info("mutation rolled back", "id", id, "err", err)
		return zero, err
	}

	c.target.Replace(id, value)
	c.settle(id, StateCommitted)
	c.logger.Debug("mutation committed", "id", id)
	return value, nil
}

func (c *Controller[T]) settle(id int64, state State) {
	c.target.ClearPending(id)
	c.mu.Lock()
	delete(c.pending, id)
	c.settled[id] = state
	c.mu.Unlock()

	c.target.Invalidate()
}

// InProgress reports whether a mutation for id awaits settlement.
func (c *Controller[T]) InProgress(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

// State returns the state of the current or most recent mutation for id.
func (c *Controller[T]) State(id int64) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pending[id]; ok {
		return p.State
	}
	if state, ok := c.settled[id]; ok {
		return state
	}
	return StateIdle
}

// Pending lists in-flight mutations ordered by id.
func (c *Controller[T]) Pending() []Pending[T] {
	c.mu.Lock()
	out := make([]Pending[T], 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, *p)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reset forgets settled states, e.g. on logout. In-flight mutations are kept.
func (c *Controller[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settled = make(map[int64]State)
}
