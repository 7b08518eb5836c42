package poller

import (
	"context"
	"log/slog"
	"time"
)

// Refresher reloads every cached collection from the backend.
type Refresher interface {
	RefreshAll(ctx context.Context) error
}

// Poller resyncs the cache periodically and on demand. A zero interval
// disables the periodic part; TriggerRefresh still works.
type Poller struct {
	target    Refresher
	interval  time.Duration
	refreshCh chan struct{}
	logger    *slog.Logger
}

func New(target Refresher, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		target:    target,
		interval:  interval,
		refreshCh: make(chan struct{}, 1),
		logger:    logger.With("component", "poller"),
	}
}

func (p *Poller) TriggerRefresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		var tick <-chan time.Time
		var timer *time.Timer
		if p.interval > 0 {
			timer = time.NewTimer(p.interval)
			tick = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-p.refreshCh:
			if timer != nil {
				timer.Stop()
			}
		case <-tick:
		}
		if err := p.target.RefreshAll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("resync failed", "err", err)
		}
	}
}
