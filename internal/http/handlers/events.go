package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parsakn/smartlight-client/internal/cache"
)

const (
	eventBuffer    = 64
	eventWriteWait = 10 * time.Second
	eventPingEvery = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Events streams cache change events over a websocket. A slow reader loses
// events rather than stalling the cache.
func (a *API) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("events upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	events := make(chan cache.Event, eventBuffer)
	unsubscribe := a.engine.Subscribe(func(ev cache.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	// Reading is only for noticing the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventPingEvery)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			return
		case ev := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteWait)); err != nil {
				return
			}
		}
	}
}
