package push

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parsakn/smartlight-client/internal/cache"
	"github.com/parsakn/smartlight-client/internal/model"
)

const DefaultReconnectDelay = 3 * time.Second

var ErrNotConnected = errors.New("push channel not connected")

// Message is one device update. Absent fields leave the lamp unchanged.
type Message struct {
	Token     string `json:"token"`
	Status    *bool  `json:"status,omitempty"`
	Establish *bool  `json:"establish,omitempty"`
}

// Command switches a device over the socket.
type Command struct {
	Token   string `json:"token"`
	Payload string `json:"payload"`
}

// Endpoint builds the websocket URL for an access token.
type Endpoint interface {
	PushURL(token string) (string, error)
}

// TokenSource returns the access token current at connect time.
type TokenSource interface {
	Access() string
}

// Reconciler keeps a websocket to the backend open and patches cached lamps
// from every message it receives. Delivery is best effort.
type Reconciler struct {
	lamps    *cache.Collection[model.Lamp]
	endpoint Endpoint
	tokens   TokenSource
	delay    time.Duration
	dialer   *websocket.Dialer
	logger   *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
}

func New(lamps *cache.Collection[model.Lamp], endpoint Endpoint, tokens TokenSource, delay time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &Reconciler{
		lamps:    lamps,
		endpoint: endpoint,
		tokens:   tokens,
		delay:    delay,
		dialer:   websocket.DefaultDialer,
		logger:   logger.With("component", "push"),
		closed:   make(chan struct{}),
	}
}

// Run connects and reconnects after a fixed delay until ctx ends or Close is
// called.
func (r *Reconciler) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil || r.isClosed() {
			return
		}
		if err := r.runSession(ctx); err != nil && ctx.Err() == nil && !r.isClosed() {
			r.logger.Warn("push channel disconnected", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-r.closed:
			return
		case <-time.After(r.delay):
		}
	}
}

func (r *Reconciler) runSession(ctx context.Context) error {
	token := r.tokens.Access()
	if token == "" {
		// Signed out; try again after the delay.
		return nil
	}
	wsURL, err := r.endpoint.PushURL(token)
	if err != nil {
		return err
	}
	conn, _, err := r.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	r.setConn(conn)
	defer r.setConn(nil)
	defer conn.Close()
	r.logger.Info("push channel connected")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-r.closed:
		case <-stop:
			return
		}
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		r.Apply(msg)
	}
}

// Apply patches the lamps matching one raw message by device token and
// returns how many changed. Malformed or tokenless messages are ignored.
func (r *Reconciler) Apply(raw []byte) int {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.logger.Debug("ignoring malformed push message", "err", err)
		return 0
	}
	if msg.Token == "" {
		return 0
	}
	return cache.PatchDevice(r.lamps, msg.Token, func(lamp model.Lamp) model.Lamp {
		if msg.Status != nil {
			lamp.Status = *msg.Status
		}
		if msg.Establish != nil {
			lamp.Connection = *msg.Establish
		}
		return lamp
	})
}

// SendCommand asks the backend to switch the device with token.
func (r *Reconciler) SendCommand(token string, on bool) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	payload := "OFF"
	if on {
		payload = "ON"
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return conn.WriteJSON(Command{Token: token, Payload: payload})
}

// Connected reports whether a socket is currently open.
func (r *Reconciler) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

// Disconnect closes the open socket. Run reconnects after the usual delay
// once an access token is available again.
func (r *Reconciler) Disconnect() {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Close stops Run and closes the open socket.
func (r *Reconciler) Close() {
	r.closeOnce.Do(func() { close(r.closed) })
	r.Disconnect()
}

func (r *Reconciler) setConn(conn *websocket.Conn) {
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
}

func (r *Reconciler) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}
