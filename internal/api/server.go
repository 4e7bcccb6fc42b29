package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Roelanb/churnboard/internal/actions"
	"github.com/Roelanb/churnboard/internal/task"
)

type Logger interface {
	Infow(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
}

type Control interface {
	// Reload re-reads the config file and applies it.
	Reload(ctx context.Context) error
	// ActionsSnapshot returns the view state of every action.
	ActionsSnapshot() any
	// GetConfig returns the current config model as JSON-able structure.
	GetConfig() any
	// ApplyConfig replaces the current config with the provided JSON bytes.
	ApplyConfig(ctx context.Context, raw []byte) error
}

// Runner executes dashboard actions. Peek runs an action for display only,
// without taking part in the in-flight guard or the recorded state.
type Runner interface {
	Run(ctx context.Context, name string, p actions.Params, onState func(task.Status)) (*task.Result, error)
	Peek(ctx context.Context, name string, p actions.Params) (*task.Result, error)
}

type Options struct {
	Addr        string
	MessageTTL  time.Duration
	DownloadTTL time.Duration
}

type Server struct {
	log       Logger
	ctrl      Control
	runner    Runner
	router    chi.Router
	srv       *http.Server
	addr      string
	ln        net.Listener
	mu        sync.Mutex
	start     bool
	downloads *downloadStore

	ttlMu      sync.RWMutex
	messageTTL time.Duration

	// closed on Shutdown so pending message timers stop
	done     chan struct{}
	doneOnce sync.Once
}

func New(log Logger, ctrl Control, runner Runner, opts Options) *Server {
	if opts.MessageTTL <= 0 {
		opts.MessageTTL = 5 * time.Second
	}
	if opts.DownloadTTL <= 0 {
		opts.DownloadTTL = 5 * time.Minute
	}
	s := &Server{
		log:        log,
		ctrl:       ctrl,
		runner:     runner,
		addr:       opts.Addr,
		downloads:  newDownloadStore(opts.DownloadTTL),
		messageTTL: opts.MessageTTL,
		done:       make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		log.Warnw("response compression disabled", "error", err)
		compress = func(h http.Handler) http.Handler { return h }
	}

	r.With(compress).Get("/", s.handleDashboard)
	r.With(compress).Get("/downloads/{id}", s.handleDownload)
	r.Post("/actions/{name}", s.handleAction)
	r.Get("/actions", s.handleActions)
	r.Get("/health", s.handleHealth)
	r.Get("/config", s.handleConfigGet)
	r.Post("/config", s.handleConfigPost)
	r.Post("/reload", s.handleReload)
	s.router = r
	return s
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetTimings updates message and download lifetimes after a config change.
func (s *Server) SetTimings(messageTTL, downloadTTL time.Duration) {
	if messageTTL > 0 {
		s.ttlMu.Lock()
		s.messageTTL = messageTTL
		s.ttlMu.Unlock()
	}
	if downloadTTL > 0 {
		s.downloads.setTTL(downloadTTL)
	}
}

func (s *Server) ttl() time.Duration {
	s.ttlMu.RLock()
	defer s.ttlMu.RUnlock()
	return s.messageTTL
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.start {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.log.Infow("dashboard listening", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorw("dashboard server error", "error", err)
		}
	}()
	s.start = true
	go func() {
		<-ctx.Done()
		_ = s.Shutdown(context.Background())
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	s.start = false
	return err
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Infow("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	if s.ctrl == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.ActionsSnapshot())
}

func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	if s.ctrl == nil {
		http.Error(w, "control unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.GetConfig())
}

func (s *Server) handleConfigPost(w http.ResponseWriter, r *http.Request) {
	if s.ctrl == nil {
		http.Error(w, "control unavailable", http.StatusServiceUnavailable)
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := s.ctrl.ApplyConfig(ctx, raw); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.ctrl == nil {
		http.Error(w, "control unavailable", http.StatusServiceUnavailable)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := s.ctrl.Reload(ctx); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
