package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

var (
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrEmptyAccess    = errors.New("refresh response carried no access token")
)

// TokenStore is the subset of the credential store the coordinator needs.
type TokenStore interface {
	Access() string
	Refresh() string
	SetAccess(ctx context.Context, access string) error
	Clear(ctx context.Context) error
}

// RefreshClient exchanges a refresh token for a new access token.
type RefreshClient interface {
	RefreshAccess(ctx context.Context, refresh string) (string, error)
}

// Coordinator serializes access-token refreshes so that at most one refresh
// request is in flight at any time. Every concurrent caller shares its result.
type Coordinator struct {
	store   TokenStore
	client  RefreshClient
	logger  *slog.Logger
	timeout time.Duration

	group singleflight.Group
}

func NewCoordinator(store TokenStore, client RefreshClient, timeout time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Coordinator{
		store:   store,
		client:  client,
		logger:  logger.With("component", "auth"),
		timeout: timeout,
	}
}

// ValidAccessToken obtains a fresh access token. It returns ok=false when no
// refresh token is held or the refresh failed; credentials are cleared in
// both cases.
func (c *Coordinator) ValidAccessToken(ctx context.Context) (string, bool) {
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		return c.refresh()
	})
	select {
	case <-ctx.Done():
		return "", false
	case res := <-ch:
		if res.Err != nil {
			return "", false
		}
		return res.Val.(string), true
	}
}

// Refresh is called after the server rejected stale. When another request
// already replaced that token, the newer one is returned without a refresh.
func (c *Coordinator) Refresh(ctx context.Context, stale string) (string, bool) {
	if current := c.store.Access(); current != "" && current != stale {
		return current, true
	}
	return c.ValidAccessToken(ctx)
}

// Access returns the access token currently held.
func (c *Coordinator) Access() string {
	return c.store.Access()
}

func (c *Coordinator) refresh() (string, error) {
	// Detached from callers so one caller giving up does not fail the others.
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	refresh := c.store.Refresh()
	if refresh == "" {
		c.clear(ctx)
		return "", ErrNoRefreshToken
	}

	access, err := c.client.RefreshAccess(ctx, refresh)
	if err == nil && access == "" {
		err = ErrEmptyAccess
	}
	if err != nil {
		c.logger.Warn("token refresh failed", "err", err)
		c.clear(ctx)
		return "", err
	}

	if err := c.store.SetAccess(ctx, access); err != nil {
		// The token is valid in memory even if persisting it failed.
		c.logger.Warn("failed to persist refreshed access token", "err", err)
	}
	c.logger.Debug("access token refreshed")
	return access, nil
}

func (c *Coordinator) clear(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Warn("failed to clear credentials", "err", err)
	}
}

