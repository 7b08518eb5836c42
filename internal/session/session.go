package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parsakn/smartlight-client/internal/api"
	"github.com/parsakn/smartlight-client/internal/auth"
	"github.com/parsakn/smartlight-client/internal/cache"
	"github.com/parsakn/smartlight-client/internal/credentials"
	"github.com/parsakn/smartlight-client/internal/failure"
	"github.com/parsakn/smartlight-client/internal/model"
	"github.com/parsakn/smartlight-client/internal/mutation"
	"github.com/parsakn/smartlight-client/internal/poller"
	"github.com/parsakn/smartlight-client/internal/push"
	"github.com/parsakn/smartlight-client/internal/telemetry"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrLampOffline      = errors.New("lamp is offline")
)

// Fallback copy shown when the backend gives nothing more specific.
const (
	LoginFailed      = "Login failed. Please check your credentials and try again."
	RegisterFailed   = "Registration failed. Please review the inputs and try again."
	CreateHomeFailed = "Failed to create home. Please check the name and try again."
	CreateRoomFailed = "Failed to create room. Make sure name is unique within this home."
	CreateLampFailed = "Failed to create lamp. Please review the inputs and try again."
)

type Options struct {
	APIBaseURL         string
	RequestTimeout     time.Duration
	RefreshTimeout     time.Duration
	PushReconnectDelay time.Duration
	ResyncInterval     time.Duration
}

// Session owns the synchronization engine for one signed-in user.
type Session struct {
	store  *credentials.Store
	client *api.Client
	cache  *cache.Cache
	lamps  *mutation.Lamps
	push   *push.Reconciler
	poller *poller.Poller
	logger *slog.Logger

	mu       sync.RWMutex
	username string
}

func New(opts Options, store *credentials.Store, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	refresher := api.NewRefreshClient(opts.APIBaseURL, opts.RefreshTimeout)
	coordinator := auth.NewCoordinator(store, refresher, opts.RefreshTimeout, logger)
	client := api.NewClient(opts.APIBaseURL, coordinator, opts.RequestTimeout)
	entities := cache.New(client, logger)

	s := &Session{
		store:  store,
		client: client,
		cache:  entities,
		lamps:  mutation.NewLamps(entities.Lamps, client, logger),
		push:   push.New(entities.Lamps, client, store, opts.PushReconnectDelay, logger),
		logger: logger.With("component", "session"),
	}
	s.poller = poller.New(s, opts.ResyncInterval, logger)
	store.OnClear(s.signedOut)
	return s
}

// Bootstrap loads persisted credentials and reports whether a user is
// signed in.
func (s *Session) Bootstrap(ctx context.Context) (bool, error) {
	creds, err := s.store.Load(ctx)
	if err != nil {
		return false, err
	}
	return creds.Authenticated(), nil
}

func (s *Session) Authenticated() bool {
	return s.store.Authenticated()
}

// Username is the name used at the last login in this process.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) Login(ctx context.Context, username, password string) error {
	pair, err := s.client.Login(ctx, model.LoginRequest{Username: username, Password: password})
	if err != nil {
		s.report("login", err)
		return err
	}
	if err := s.store.Set(ctx, model.Credentials{Access: pair.Access, Refresh: pair.Refresh}); err != nil {
		return err
	}

	s.mu.Lock()
	s.username = username
	s.mu.Unlock()

	s.cache.Clear()
	s.lamps.Reset()
	// The socket still carries the previous token.
	s.push.Disconnect()
	s.poller.TriggerRefresh()
	s.logger.Info("signed in", "username", username)
	return nil
}

// Register creates the account and then signs in with it.
func (s *Session) Register(ctx context.Context, req model.RegisterRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := s.client.Register(ctx, req); err != nil {
		s.report("register", err)
		return err
	}
	return s.Login(ctx, req.Username, req.Password)
}

// Logout forgets the credentials and everything cached for the user.
func (s *Session) Logout(ctx context.Context) error {
	return s.store.Clear(ctx)
}

// signedOut runs whenever the credentials are cleared: on Logout and when a
// token refresh fails or has no refresh token to work with.
func (s *Session) signedOut() {
	s.mu.Lock()
	s.username = ""
	s.mu.Unlock()

	s.cache.Clear()
	s.lamps.Reset()
	s.push.Disconnect()
	s.logger.Info("signed out")
}

// Start runs the background refetch workers, the push channel and the
// periodic resync until ctx ends.
func (s *Session) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.cache.Run(ctx) })
	g.Go(func() error {
		s.push.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.poller.Run(ctx)
		return nil
	})
	if s.Authenticated() {
		s.poller.TriggerRefresh()
	}
	err := g.Wait()
	s.push.Close()
	return err
}

// RefreshAll refetches every collection. It does nothing while signed out.
func (s *Session) RefreshAll(ctx context.Context) error {
	if !s.Authenticated() {
		return nil
	}
	return s.cache.RefreshAll(ctx)
}

// Resync schedules RefreshAll on the background poller.
func (s *Session) Resync() {
	s.poller.TriggerRefresh()
}

func (s *Session) Homes(ctx context.Context) ([]model.Home, error) {
	if !s.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	return s.cache.Homes.Load(ctx)
}

func (s *Session) Rooms(ctx context.Context) ([]model.Room, error) {
	if !s.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	return s.cache.Rooms.Load(ctx)
}

func (s *Session) Lamps(ctx context.Context) ([]model.Lamp, error) {
	if !s.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	return s.cache.Lamps.Load(ctx)
}

// Dashboard loads all three collections and groups them.
func (s *Session) Dashboard(ctx context.Context) (model.Dashboard, error) {
	if !s.Authenticated() {
		return model.Dashboard{}, ErrNotAuthenticated
	}
	var (
		homes []model.Home
		rooms []model.Room
		lamps []model.Lamp
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		homes, err = s.cache.Homes.Load(gctx)
		return err
	})
	g.Go(func() (err error) {
		rooms, err = s.cache.Rooms.Load(gctx)
		return err
	})
	g.Go(func() (err error) {
		lamps, err = s.cache.Lamps.Load(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Dashboard{}, err
	}
	return model.BuildDashboard(homes, rooms, lamps), nil
}

// Subscribe forwards cache change events to fn.
func (s *Session) Subscribe(fn func(cache.Event)) func() {
	return s.cache.Subscribe(fn)
}

// CollectionStatus returns the cache status of every collection.
func (s *Session) CollectionStatus() map[model.Kind]cache.Status {
	return map[model.Kind]cache.Status{
		model.KindHome: s.cache.Homes.Get().Status,
		model.KindRoom: s.cache.Rooms.Get().Status,
		model.KindLamp: s.cache.Lamps.Get().Status,
	}
}

func (s *Session) PushConnected() bool {
	return s.push.Connected()
}

func (s *Session) CreateHome(ctx context.Context, in model.HomeInput) (model.HomeInput, error) {
	if !s.Authenticated() {
		return model.HomeInput{}, ErrNotAuthenticated
	}
	out, err := s.client.CreateHome(ctx, in)
	if err != nil {
		s.report("create_home", err)
		return out, err
	}
	s.invalidate(model.KindHome)
	return out, nil
}

func (s *Session) CreateRoom(ctx context.Context, in model.RoomInput) (model.RoomInput, error) {
	if !s.Authenticated() {
		return model.RoomInput{}, ErrNotAuthenticated
	}
	out, err := s.client.CreateRoom(ctx, in)
	if err != nil {
		s.report("create_room", err)
		return out, err
	}
	s.invalidate(model.KindRoom)
	return out, nil
}

func (s *Session) CreateLamp(ctx context.Context, in model.LampInput) (model.LampInput, error) {
	if !s.Authenticated() {
		return model.LampInput{}, ErrNotAuthenticated
	}
	out, err := s.client.CreateLamp(ctx, in)
	if err != nil {
		s.report("create_lamp", err)
		return out, err
	}
	s.invalidate(model.KindLamp)
	return out, nil
}

// VoiceCommand uploads recorded audio. The backend may have switched lamps,
// so the lamp collection is refetched afterwards.
func (s *Session) VoiceCommand(ctx context.Context, filename string, audio io.Reader) (model.VoiceCommandResult, error) {
	if !s.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	out, err := s.client.VoiceCommand(ctx, filename, audio)
	s.invalidate(model.KindLamp)
	if err != nil {
		s.report("voice_command", err)
		return nil, err
	}
	return out, nil
}

func (s *Session) invalidate(kind model.Kind) {
	if err := s.cache.Invalidate(kind); err != nil {
		s.logger.Warn("invalidate failed", "kind", kind, "err", err)
	}
}

// report sends failures the taxonomy cannot place to telemetry.
func (s *Session) report(op string, err error) {
	if err == nil || errors.Is(err, context.Canceled) || failure.KindOf(err) != failure.KindUnknown {
		return
	}
	s.logger.Error("unexpected failure", "op", op, "err", err)
	telemetry.CaptureError(err, map[string]string{"op": op})
}
