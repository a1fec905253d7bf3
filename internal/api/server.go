package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marcus/hearth/internal/notify"
	"github.com/marcus/hearth/internal/serverdb"
)

// Fanouter delivers a notification to a set of endpoints.
type Fanouter interface {
	Fanout(ctx context.Context, n notify.Notification, targets []notify.Target) []notify.Result
}

// Server is the HTTP API server for hearth-server.
type Server struct {
	// Version is reported by /healthz.
	Version string

	config      Config
	http        *http.Server
	store       *serverdb.ServerDB
	metrics     *Metrics
	rateLimiter *RateLimiter
	dispatcher  Fanouter

	// background work (rate limiter cleanup, notification fan-out)
	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup
}

// NewServer creates a new Server with the given config and store.
func NewServer(cfg Config, store *serverdb.ServerDB) (*Server, error) {
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 30 * time.Second
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = notify.DefaultTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := notify.NewDispatcher()
	d.HTTP.Timeout = cfg.NotifyTimeout

	s := &Server{
		config:      cfg,
		store:       store,
		metrics:     NewMetrics(),
		rateLimiter: NewRateLimiter(ctx),
		dispatcher:  d,
		ctx:         ctx,
		cancel:      cancel,
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.MaxWait + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	return nil
}

// Shutdown stops accepting requests, releases waiting long-polls and waits
// for in-flight notification fan-outs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.store.Hub().Close()
	err := s.http.Shutdown(ctx)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("shutdown: notification fan-out still running")
	}
	return err
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)

	read := func(h http.HandlerFunc) http.HandlerFunc {
		return s.requireAuth(s.withRateLimit(h, s.config.RateLimitRead))
	}
	write := func(h http.HandlerFunc) http.HandlerFunc {
		return s.requireAuth(s.withRateLimit(h, s.config.RateLimitWrite))
	}

	mux.HandleFunc("GET /v1/members", read(s.handleListMembers))

	// Collections
	mux.HandleFunc("GET /v1/collections/{name}", read(s.handleSelect))
	mux.HandleFunc("GET /v1/collections/{name}/changes", read(s.handleChanges))
	mux.HandleFunc("GET /v1/collections/{name}/{id}", read(s.handleGet))
	mux.HandleFunc("POST /v1/collections/{name}", write(s.handleInsert))
	mux.HandleFunc("PATCH /v1/collections/{name}/{id}", write(s.handleUpdate))
	mux.HandleFunc("DELETE /v1/collections/{name}/{id}", write(s.handleDelete))
	mux.HandleFunc("GET /v1/changes", read(s.handleChanges))
	mux.HandleFunc("GET /v1/changes/head", read(s.handleHead))

	// Push notifications
	mux.HandleFunc("GET /v1/push/endpoints", read(s.handleListEndpoints))
	mux.HandleFunc("POST /v1/push/endpoints", write(s.handleRegisterEndpoint))
	mux.HandleFunc("DELETE /v1/push/endpoints/{id}", write(s.handleDeleteEndpoint))
	mux.HandleFunc("POST /v1/notify", write(s.handleNotify))

	return chain(mux, recoveryMiddleware, requestIDMiddleware, loggerMiddleware, metricsMiddleware(s.metrics), loggingMiddleware, maxBytesMiddleware(1<<20))
}

// handleHealth returns a health check response, pinging the server DB.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.Version})
}

// handleMetrics returns a snapshot of server metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.Snapshot()
	snap.HeadSeq = s.store.Hub().Head()
	writeJSON(w, http.StatusOK, snap)
}

// MemberResponse is one entry of GET /v1/members.
type MemberResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.store.ListMembers()
	if err != nil {
		writeStoreError(w, r, "list members", err)
		return
	}
	out := make([]MemberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, MemberResponse{ID: m.ID, Name: m.Name, CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339)})
	}
	writeJSON(w, http.StatusOK, out)
}

// Handler returns the server's HTTP handler with every route and middleware.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
