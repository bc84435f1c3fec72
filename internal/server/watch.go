package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ASHISH26940/globby/internal/metrics"
	"github.com/ASHISH26940/globby/internal/store"
)

const (
	writeWait = 10 * time.Second
	// closeRoomNotFound is sent when the watched room does not exist.
	closeRoomNotFound = 4404
	maxClientMessage  = 512
)

// handleWatch streams every change of one room over a websocket. The client
// passes the version it already has; each later version is pushed as a
// {version, data} text frame. Pings keep the connection alive meanwhile.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("room")
	var known uint64
	if v := r.URL.Query().Get("version"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "Invalid version", http.StatusBadRequest)
			return
		}
		known = parsed
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	metrics.IncrCounter(metrics.KeyWatchOpen)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Pings go out on a fixed period whether or not the room is busy; every
	// pong the read pump sees extends the read deadline by pongWait.
	pingPeriod := s.opts.ListTimeout
	pongWait := 2 * pingPeriod
	go s.watchReadPump(conn, pongWait, cancel)

	changes := make(chan store.Record)
	watchErr := make(chan error, 1)
	go s.followRoom(ctx, key, known, changes, watchErr)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case rec := <-changes:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(listReply{Version: rec.Version, Data: rec.Data}); err != nil {
				s.log.Debug("watch write failed", "room", key, "error", err)
				return
			}
		case err := <-watchErr:
			if errors.Is(err, store.ErrNotFound) {
				s.closeWatch(conn, closeRoomNotFound, "room not found")
			} else {
				s.closeWatch(conn, websocket.CloseGoingAway, "")
			}
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// followRoom sends every version of the room after known on changes until
// ctx ends or the room cannot be read. The terminal error goes to errs.
func (s *Server) followRoom(ctx context.Context, key string, known uint64, changes chan<- store.Record, errs chan<- error) {
	for {
		rec, changed, err := s.store.Read(ctx, key, known, s.opts.ListTimeout)
		if err != nil {
			errs <- err
			return
		}
		if !changed {
			continue
		}
		select {
		case changes <- rec:
			known = rec.Version
		case <-ctx.Done():
			errs <- ctx.Err()
			return
		}
	}
}

// watchReadPump drains client frames so pongs and close frames are
// processed, and cancels the watch when the connection goes away.
func (s *Server) watchReadPump(conn *websocket.Conn, pongWait time.Duration, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxClientMessage)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.Debug("watch connection error", "error", err)
			}
			return
		}
	}
}

func (s *Server) closeWatch(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		s.log.Debug("watch close failed", "error", err)
	}
}
