package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsakn/smartlight-client/internal/credentials"
	"github.com/parsakn/smartlight-client/internal/model"
)

type fakeRefresher struct {
	calls   atomic.Int32
	release chan struct{}
	access  string
	err     error
}

func (f *fakeRefresher) RefreshAccess(ctx context.Context, refresh string) (string, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.access, f.err
}

func newStore(t *testing.T, creds model.Credentials) *credentials.Store {
	t.Helper()
	store := credentials.NewStore(nil, nil)
	require.NoError(t, store.Set(context.Background(), creds))
	return store
}

func TestValidAccessTokenSingleFlight(t *testing.T) {
	store := newStore(t, model.Credentials{Access: "old", Refresh: "r"})
	refresher := &fakeRefresher{release: make(chan struct{}), access: "new"}
	coord := NewCoordinator(store, refresher, time.Second, nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, ok := coord.ValidAccessToken(context.Background())
			if ok {
				results[i] = token
			}
		}(i)
	}

	require.Eventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, time.Millisecond)
	// Give the remaining callers time to join the in-flight refresh.
	time.Sleep(20 * time.Millisecond)
	close(refresher.release)
	wg.Wait()

	assert.Equal(t, int32(1), refresher.calls.Load())
	for _, token := range results {
		assert.Equal(t, "new", token)
	}
	assert.Equal(t, model.Credentials{Access: "new", Refresh: "r"}, store.Snapshot())
}

func TestValidAccessTokenWithoutRefreshMakesNoCall(t *testing.T) {
	store := newStore(t, model.Credentials{Access: "stale"})
	refresher := &fakeRefresher{access: "new"}
	coord := NewCoordinator(store, refresher, time.Second, nil)

	token, ok := coord.ValidAccessToken(context.Background())

	assert.False(t, ok)
	assert.Empty(t, token)
	assert.Zero(t, refresher.calls.Load())
	assert.False(t, store.Authenticated())
}

func TestValidAccessTokenFailureClearsCredentials(t *testing.T) {
	store := newStore(t, model.Credentials{Access: "old", Refresh: "r"})
	coord := NewCoordinator(store, &fakeRefresher{err: errors.New("401")}, time.Second, nil)

	_, ok := coord.ValidAccessToken(context.Background())

	assert.False(t, ok)
	assert.False(t, store.Authenticated())
}

func TestValidAccessTokenEmptyAccessIsFailure(t *testing.T) {
	store := newStore(t, model.Credentials{Access: "old", Refresh: "r"})
	coord := NewCoordinator(store, &fakeRefresher{access: ""}, time.Second, nil)

	_, ok := coord.ValidAccessToken(context.Background())

	assert.False(t, ok)
	assert.False(t, store.Authenticated())
}

func TestFailedRefreshDoesNotBlockNextAttempt(t *testing.T) {
	store := newStore(t, model.Credentials{Refresh: "r"})
	refresher := &fakeRefresher{err: errors.New("boom")}
	coord := NewCoordinator(store, refresher, time.Second, nil)

	_, ok := coord.ValidAccessToken(context.Background())
	require.False(t, ok)

	require.NoError(t, store.Set(context.Background(), model.Credentials{Refresh: "r2"}))
	refresher.err = nil
	refresher.access = "fresh"
	token, ok := coord.ValidAccessToken(context.Background())

	assert.True(t, ok)
	assert.Equal(t, "fresh", token)
	assert.Equal(t, int32(2), refresher.calls.Load())
}

func TestRefreshReturnsNewerTokenWithoutCall(t *testing.T) {
	store := newStore(t, model.Credentials{Access: "newer", Refresh: "r"})
	refresher := &fakeRefresher{access: "unused"}
	coord := NewCoordinator(store, refresher, time.Second, nil)

	token, ok := coord.Refresh(context.Background(), "stale")

	assert.True(t, ok)
	assert.Equal(t, "newer", token)
	assert.Zero(t, refresher.calls.Load())
}

func TestCallerCancellationDoesNotCancelSharedRefresh(t *testing.T) {
	store := newStore(t, model.Credentials{Refresh: "r"})
	refresher := &fakeRefresher{release: make(chan struct{}), access: "new"}
	coord := NewCoordinator(store, refresher, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool)
	go func() {
		_, ok := coord.ValidAccessToken(ctx)
		done <- ok
	}()
	require.Eventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.False(t, <-done)

	close(refresher.release)
	assert.Eventually(t, func() bool { return store.Access() == "new" }, time.Second, time.Millisecond)
}
