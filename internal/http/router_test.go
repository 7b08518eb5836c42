package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsakn/smartlight-client/internal/api"
	"github.com/parsakn/smartlight-client/internal/cache"
	httpapi "github.com/parsakn/smartlight-client/internal/http"
	"github.com/parsakn/smartlight-client/internal/http/handlers"
	"github.com/parsakn/smartlight-client/internal/model"
	"github.com/parsakn/smartlight-client/internal/mutation"
	"github.com/parsakn/smartlight-client/internal/push"
	"github.com/parsakn/smartlight-client/internal/session"
)

type fakeEngine struct {
	mu        sync.Mutex
	authed    bool
	loginErr  error
	lamps     []model.Lamp
	toggleErr error
	commands  []bool
	cmdErr    error
	resyncs   int
	voice     string
	subs      []func(cache.Event)
	createErr error
}

func (f *fakeEngine) Authenticated() bool { return f.authed }
func (f *fakeEngine) Username() string    { return "alice" }

func (f *fakeEngine) Login(_ context.Context, _, password string) error {
	if f.loginErr != nil {
		return f.loginErr
	}
	f.authed = password != ""
	return nil
}

func (f *fakeEngine) Register(_ context.Context, req model.RegisterRequest) error {
	return req.Validate()
}

func (f *fakeEngine) Logout(context.Context) error {
	f.authed = false
	return nil
}

func (f *fakeEngine) Homes(context.Context) ([]model.Home, error) {
	return []model.Home{{ID: 1, Name: "Flat"}}, nil
}

func (f *fakeEngine) Rooms(context.Context) ([]model.Room, error) { return nil, nil }

func (f *fakeEngine) Lamps(context.Context) ([]model.Lamp, error) {
	if !f.authed {
		return nil, session.ErrNotAuthenticated
	}
	return f.lamps, nil
}

func (f *fakeEngine) Dashboard(context.Context) (model.Dashboard, error) {
	return model.Dashboard{}, nil
}

func (f *fakeEngine) CreateHome(_ context.Context, in model.HomeInput) (model.HomeInput, error) {
	return in, f.createErr
}

func (f *fakeEngine) CreateRoom(_ context.Context, in model.RoomInput) (model.RoomInput, error) {
	return in, f.createErr
}

func (f *fakeEngine) CreateLamp(_ context.Context, in model.LampInput) (model.LampInput, error) {
	return in, f.createErr
}

func (f *fakeEngine) ToggleLamp(_ context.Context, id int64) (session.ToggleResult, error) {
	lamp := model.Lamp{ID: id, Name: "Desk"}
	if f.toggleErr != nil {
		return session.ToggleResult{Lamp: lamp, Message: "Desk didn't respond."}, f.toggleErr
	}
	lamp.Status = true
	return session.ToggleResult{Lamp: lamp, OK: true, Message: "Desk turned ON"}, nil
}

func (f *fakeEngine) SetLampStatus(ctx context.Context, id int64, _ bool) (session.ToggleResult, error) {
	return f.ToggleLamp(ctx, id)
}

func (f *fakeEngine) MutationState(int64) mutation.State { return mutation.StateCommitted }

func (f *fakeEngine) SendDeviceCommand(_ context.Context, _ int64, on bool) error {
	if f.cmdErr != nil {
		return f.cmdErr
	}
	f.commands = append(f.commands, on)
	return nil
}

func (f *fakeEngine) VoiceCommand(_ context.Context, filename string, audio io.Reader) (model.VoiceCommandResult, error) {
	data, _ := io.ReadAll(audio)
	f.voice = filename + ":" + string(data)
	return model.VoiceCommandResult{"intent": "turn_on"}, nil
}

func (f *fakeEngine) Resync() { f.resyncs++ }

func (f *fakeEngine) Subscribe(fn func(cache.Event)) func() {
	f.mu.Lock()
	f.subs = append(f.subs, fn)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeEngine) publish(ev cache.Event) {
	f.mu.Lock()
	subs := append([]func(cache.Event){}, f.subs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (f *fakeEngine) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeEngine) CollectionStatus() map[model.Kind]cache.Status {
	return map[model.Kind]cache.Status{model.KindLamp: cache.StatusReady}
}

func (f *fakeEngine) PushConnected() bool { return true }

func newServer(t *testing.T, engine *fakeEngine) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(httpapi.NewRouter(handlers.New(engine, nil)))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func errorOf(t *testing.T, body map[string]any) (string, string) {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error object in %v", body)
	return e["code"].(string), e["message"].(string)
}

func TestHealth(t *testing.T) {
	srv := newServer(t, &fakeEngine{authed: true})
	resp, body := do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["authenticated"])
}

func TestReadsRequireSignIn(t *testing.T) {
	srv := newServer(t, &fakeEngine{})
	resp, body := do(t, http.MethodGet, srv.URL+"/api/lamps", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	code, _ := errorOf(t, body)
	assert.Equal(t, "not_authenticated", code)
}

func TestLoginFailureUsesBackendMessage(t *testing.T) {
	engine := &fakeEngine{loginErr: &api.StatusError{StatusCode: 401, Detail: "No active account found with the given credentials"}}
	srv := newServer(t, engine)
	resp, body := do(t, http.MethodPost, srv.URL+"/api/session/login", `{"username":"alice","password":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	code, msg := errorOf(t, body)
	assert.Equal(t, "auth_expired", code)
	assert.Equal(t, "No active account found with the given credentials", msg)
}

func TestLoginRejectsMalformedBody(t *testing.T) {
	srv := newServer(t, &fakeEngine{})
	resp, body := do(t, http.MethodPost, srv.URL+"/api/session/login", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	code, _ := errorOf(t, body)
	assert.Equal(t, "invalid_payload", code)
}

func TestRegisterValidation(t *testing.T) {
	srv := newServer(t, &fakeEngine{})
	resp, body := do(t, http.MethodPost, srv.URL+"/api/session/register",
		`{"username":"bob","email":"bob@example.com","password":"secret1","password2":"secret2","phone_number":"5550100"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	code, msg := errorOf(t, body)
	assert.Equal(t, "validation_failed", code)
	assert.Equal(t, "password2: Passwords must match", msg)
}

func TestCreateHomeFallsBackToDefaultCopy(t *testing.T) {
	srv := newServer(t, &fakeEngine{authed: true, createErr: errors.New("")})
	resp, body := do(t, http.MethodPost, srv.URL+"/api/homes", `{"name":"Flat"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	_, msg := errorOf(t, body)
	assert.Equal(t, session.CreateHomeFailed, msg)
}

func TestListLamps(t *testing.T) {
	srv := newServer(t, &fakeEngine{authed: true, lamps: []model.Lamp{{ID: 3, Name: "Desk"}}})
	resp, body := do(t, http.MethodGet, srv.URL+"/api/lamps", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Desk", items[0].(map[string]any)["name"])
}

func TestToggleSuccess(t *testing.T) {
	srv := newServer(t, &fakeEngine{authed: true})
	resp, body := do(t, http.MethodPost, srv.URL+"/api/lamps/3/toggle", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "Desk turned ON", body["message"])
}

func TestToggleDeviceTimeout(t *testing.T) {
	srv := newServer(t, &fakeEngine{authed: true, toggleErr: &api.StatusError{StatusCode: 504}})
	resp, body := do(t, http.MethodPost, srv.URL+"/api/lamps/3/toggle", "")
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	code, msg := errorOf(t, body)
	assert.Equal(t, "device_timeout", code)
	assert.Equal(t, "Desk didn't respond.", msg)
	assert.Equal(t, "Desk", body["lamp"].(map[string]any)["name"])
}

func TestToggleInProgressConflicts(t *testing.T) {
	srv := newServer(t, &fakeEngine{authed: true, toggleErr: mutation.ErrInProgress})
	resp, body := do(t, http.MethodPost, srv.URL+"/api/lamps/3/toggle", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	code, _ := errorOf(t, body)
	assert.Equal(t, "in_progress", code)
}

func TestSetStatusRequiresStatus(t *testing.T) {
	srv := newServer(t, &fakeEngine{authed: true})
	resp, _ := do(t, http.MethodPatch, srv.URL+"/api/lamps/3/status", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPatch, srv.URL+"/api/lamps/abc/status", `{"status":true}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLampMutationState(t *testing.T) {
	srv := newServer(t, &fakeEngine{authed: true})
	resp, body := do(t, http.MethodGet, srv.URL+"/api/lamps/3/mutation", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "committed", body["state"])
}

func TestLampCommand(t *testing.T) {
	engine := &fakeEngine{authed: true}
	srv := newServer(t, engine)
	resp, _ := do(t, http.MethodPost, srv.URL+"/api/lamps/3/command", `{"status":false}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []bool{false}, engine.commands)

	engine.cmdErr = push.ErrNotConnected
	resp, body := do(t, http.MethodPost, srv.URL+"/api/lamps/3/command", `{"status":true}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	code, _ := errorOf(t, body)
	assert.Equal(t, "push_unavailable", code)
}

func TestRefreshSchedulesResync(t *testing.T) {
	engine := &fakeEngine{authed: true}
	srv := newServer(t, engine)
	resp, _ := do(t, http.MethodPost, srv.URL+"/api/refresh", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, engine.resyncs)
}

func TestStatus(t *testing.T) {
	srv := newServer(t, &fakeEngine{authed: true})
	_, body := do(t, http.MethodGet, srv.URL+"/api/status", "")
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, true, body["push_connected"])
	assert.Equal(t, "ready", body["collections"].(map[string]any)["lamps"])
}

func TestVoiceUpload(t *testing.T) {
	engine := &fakeEngine{authed: true}
	srv := newServer(t, engine)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", "cmd.webm")
	require.NoError(t, err)
	_, _ = part.Write([]byte("pcm"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/voice", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cmd.webm:pcm", engine.voice)
}

func TestEventsStream(t *testing.T) {
	engine := &fakeEngine{authed: true}
	srv := newServer(t, engine)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return engine.subscribers() == 1 }, time.Second, 10*time.Millisecond)
	engine.publish(cache.Event{Kind: model.KindLamp, Reason: cache.ReasonPushed, IDs: []int64{3}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev cache.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, cache.Event{Kind: model.KindLamp, Reason: cache.ReasonPushed, IDs: []int64{3}}, ev)
}

func TestRecoverJSON(t *testing.T) {
	h := httpapi.RecoverJSON(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}

func TestRunServerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- httpapi.RunServer(ctx, &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}, nil)
	}()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRequestLoggerRecordsRouteAndLamp(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	srv := httptest.NewServer(httpapi.NewRouter(handlers.New(&fakeEngine{authed: true, toggleErr: &api.StatusError{StatusCode: 504}}, logger)))
	defer srv.Close()

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/lamps/7/toggle", "")
	require.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)

	var line map[string]any
	for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(raw, &entry))
		if entry["msg"] == "api call" {
			line = entry
		}
	}
	require.NotNil(t, line, "no access log line in %s", buf.String())
	assert.Equal(t, "/api/lamps/{id}/toggle", line["route"])
	assert.Equal(t, "7", line["lamp_id"])
	assert.Equal(t, float64(http.StatusGatewayTimeout), line["status"])
	assert.Equal(t, "WARN", line["level"])
	assert.NotEmpty(t, line["request_id"])
}
