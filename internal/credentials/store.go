package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/parsakn/smartlight-client/internal/model"
	"github.com/parsakn/smartlight-client/internal/storage"
)

const (
	AccessKey  = "smartlight:access"
	RefreshKey = "smartlight:refresh"
)

// Backend is durable key-value storage for the token pair.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Store keeps the token pair in memory and mirrors every write to Backend.
// Reads never touch the backend after Load.
type Store struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.RWMutex
	creds   model.Credentials
	onClear []func()
}

func NewStore(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger}
}

// Load reads both tokens from the backend into memory.
func (s *Store) Load(ctx context.Context) (model.Credentials, error) {
	access, err := s.read(ctx, AccessKey)
	if err != nil {
		return model.Credentials{}, err
	}
	refresh, err := s.read(ctx, RefreshKey)
	if err != nil {
		return model.Credentials{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = model.Credentials{Access: access, Refresh: refresh}
	return s.creds, nil
}

func (s *Store) read(ctx context.Context, key string) (string, error) {
	if s.backend == nil {
		return "", nil
	}
	value, err := s.backend.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return value, nil
}

// Access returns the current access token or "".
func (s *Store) Access() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.Access
}

// Refresh returns the current refresh token or "".
func (s *Store) Refresh() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.Refresh
}

// Snapshot returns both tokens.
func (s *Store) Snapshot() model.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// Authenticated reports whether either token is present.
func (s *Store) Authenticated() bool {
	return s.Snapshot().Authenticated()
}

// Set replaces the in-memory access token and persists whichever tokens are
// non-empty. An empty refresh token leaves the stored one in place.
func (s *Store) Set(ctx context.Context, creds model.Credentials) error {
	s.mu.Lock()
	s.creds.Access = creds.Access
	if creds.Refresh != "" {
		s.creds.Refresh = creds.Refresh
	}
	s.mu.Unlock()

	if s.backend == nil {
		return nil
	}
	if creds.Access != "" {
		if err := s.backend.Put(ctx, AccessKey, creds.Access); err != nil {
			return fmt.Errorf("persist access token: %w", err)
		}
	}
	if creds.Refresh != "" {
		if err := s.backend.Put(ctx, RefreshKey, creds.Refresh); err != nil {
			return fmt.Errorf("persist refresh token: %w", err)
		}
	}
	return nil
}

// SetAccess stores a refreshed access token; the refresh token is unchanged.
func (s *Store) SetAccess(ctx context.Context, access string) error {
	return s.Set(ctx, model.Credentials{Access: access})
}

// OnClear registers fn to run after every Clear, whoever triggered it.
// fn runs without the store lock held.
func (s *Store) OnClear(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClear = append(s.onClear, fn)
}

// Clear drops both tokens from memory and durable storage together. Hooks run
// even when the backend delete fails.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.creds = model.Credentials{}
	hooks := append([]func(){}, s.onClear...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	if s.backend == nil {
		return nil
	}
	if err := s.backend.Delete(ctx, AccessKey, RefreshKey); err != nil {
		s.logger.Warn("failed to clear persisted credentials", "err", err)
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
