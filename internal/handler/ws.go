package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pavelanni/schoolportal/internal/exam"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// buildUpgrader creates a WebSocket upgrader that only accepts same-origin
// connections.
func buildUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return strings.EqualFold(u.Host, r.Host)
		},
	}
}

func writeEvent(conn *websocket.Conn, ev exam.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(ev)
}

// handleCountdown streams the attempt's events over a websocket: the
// current remaining time first, then every tick until the attempt is
// submitted, the runner closes or the client goes away.
func (h *Handler) handleCountdown(w http.ResponseWriter, r *http.Request) {
	runner, ok := h.runner(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := runner.Subscribe()
	defer unsubscribe()

	// The reader only serves control frames and notices a closed client.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	first := exam.Event{Kind: exam.EventTick, Remaining: runner.Remaining()}
	if runner.Expired() {
		first.Kind = exam.EventExpired
	}
	if err := writeEvent(conn, first); err != nil {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				closeNormal(conn)
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				slog.Debug("countdown stream write failed", "attempt_id", runner.AttemptID(), "error", err)
				return
			}
			if ev.Kind == exam.EventSubmitted {
				closeNormal(conn)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
