// Package server handles the HTTP API for the room store.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	gometrics "github.com/hashicorp/go-metrics"

	"github.com/ASHISH26940/globby/internal/metrics"
	"github.com/ASHISH26940/globby/internal/ratelimit"
	"github.com/ASHISH26940/globby/internal/store"
)

// RoomStore is the interface the server needs from the storage layer.
// Depending on an interface lets tests substitute a fake store.
type RoomStore interface {
	Read(ctx context.Context, key string, known uint64, timeout time.Duration) (store.Record, bool, error)
	Write(key string, expected uint64, data json.RawMessage) bool
	Create(data json.RawMessage) string
	Len() int
}

// Options tunes the transport. Zero values fall back to the defaults below.
type Options struct {
	// ListTimeout is the server-side ceiling on one /list wait.
	ListTimeout time.Duration
	// BodyLimit caps request bodies in bytes.
	BodyLimit int64
	// StaticDir is served for every path not handled by the API.
	StaticDir string
	// CreateRate is room creations per second per client; 0 disables limiting.
	CreateRate  float64
	CreateBurst int
	// Metrics, when set, is exposed at /debug/metrics.
	Metrics *gometrics.InmemSink
}

const (
	DefaultListTimeout = 45 * time.Second
	DefaultBodyLimit   = 1 << 20

	requestIDHeader = "X-Request-Id"
)

// Server is the HTTP server for the room store.
type Server struct {
	store    RoomStore
	opts     Options
	log      hclog.Logger
	router   *mux.Router
	limiters *ratelimit.ClientLimiters
	upgrader websocket.Upgrader
}

// New creates a new Server instance.
func New(st RoomStore, opts Options, logger hclog.Logger) *Server {
	if opts.ListTimeout <= 0 {
		opts.ListTimeout = DefaultListTimeout
	}
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = DefaultBodyLimit
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	s := &Server{
		store:  st,
		opts:   opts,
		log:    logger,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	if opts.CreateRate > 0 {
		s.limiters = ratelimit.NewClientLimiters(opts.CreateRate, opts.CreateBurst, 5*time.Minute)
	}
	s.registerRoutes()
	return s
}

// ServeHTTP makes Server a standard http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases background resources. It does not touch open connections.
func (s *Server) Close() {
	if s.limiters != nil {
		s.limiters.Stop()
	}
}

// registerRoutes sets up the HTTP routing for the server.
func (s *Server) registerRoutes() {
	s.router.Use(s.logRequests)

	s.router.HandleFunc("/list", s.handleList).Methods(http.MethodPost)
	s.router.HandleFunc("/commit", s.handleCommit).Methods(http.MethodPost)
	s.router.HandleFunc("/make_room", s.handleMakeRoom).Methods(http.MethodPost)
	s.router.HandleFunc("/watch", s.handleWatch).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.opts.Metrics != nil {
		s.router.Handle("/debug/metrics", metrics.Handler(s.opts.Metrics)).Methods(http.MethodGet)
	}
	if s.opts.StaticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.opts.StaticDir)))
	}
}

type listRequest struct {
	Version   uint64 `json:"version"`
	Room      string `json:"room"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
}

type listReply struct {
	Version uint64          `json:"version"`
	Data    json.RawMessage `json:"data"`
}

type commitRequest struct {
	Version uint64          `json:"version"`
	Room    string          `json:"room"`
	Data    json.RawMessage `json:"data"`
}

type commitReply struct {
	Success bool `json:"success"`
}

type makeRoomRequest struct {
	Data json.RawMessage `json:"data"`
}

type makeRoomReply struct {
	Room string `json:"room"`
}

// handleList answers a long poll: it replies as soon as the room's version
// differs from the one the client holds, or with 204 once the wait ceiling
// passes so the client can ask again.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if !s.decode(w, r, &req) {
		return
	}

	timeout := s.opts.ListTimeout
	if requested := time.Duration(req.TimeoutMS) * time.Millisecond; requested > 0 && requested < timeout {
		timeout = requested
	}

	start := time.Now()
	rec, changed, err := s.store.Read(r.Context(), req.Room, req.Version, timeout)
	metrics.MeasureSince(metrics.KeyListWait, start)

	switch {
	case errors.Is(err, store.ErrNotFound):
		metrics.IncrCounter(metrics.KeyListNotFound)
		http.Error(w, "Room not found", http.StatusNotFound)
	case err != nil:
		// The request context ended: the client left or the server is
		// shutting down. Either way the client should simply retry.
		w.WriteHeader(http.StatusNoContent)
	case !changed:
		metrics.IncrCounter(metrics.KeyListTimedOut)
		w.WriteHeader(http.StatusNoContent)
	default:
		metrics.IncrCounter(metrics.KeyListChanged)
		s.writeJSON(w, http.StatusOK, listReply{Version: rec.Version, Data: rec.Data})
	}
}

// handleCommit applies a conditional write.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		http.Error(w, "Missing data", http.StatusBadRequest)
		return
	}

	ok := s.store.Write(req.Room, req.Version, req.Data)
	s.log.Debug("commit", "room", req.Room, "version", req.Version, "success", ok)
	s.writeJSON(w, http.StatusOK, commitReply{Success: ok})
}

// handleMakeRoom creates a room holding the request's data.
func (s *Server) handleMakeRoom(w http.ResponseWriter, r *http.Request) {
	if s.limiters != nil && !s.limiters.Allow(clientAddr(r)) {
		http.Error(w, "Too many rooms created, slow down", http.StatusTooManyRequests)
		return
	}

	var req makeRoomRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		http.Error(w, "Missing data", http.StatusBadRequest)
		return
	}

	key := s.store.Create(req.Data)
	s.log.Info("created room", "room", key)
	s.writeJSON(w, http.StatusOK, makeRoomReply{Room: key})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"rooms":  s.store.Len(),
	})
}

// decode reads a size-capped JSON body into v, answering 413 or 400 itself
// when it cannot.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.BodyLimit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("error encoding response", "error", err)
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
