// Package httpapi exposes the generation pipeline, validator, history,
// and grimoire over a small REST + SSE surface: CORS-enabled, optionally
// bearer-authenticated, and rate-limited per remote address.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/floegence/forge/internal/grimoire"
	"github.com/floegence/forge/internal/history"
	"github.com/floegence/forge/internal/pipeline"
	"github.com/floegence/forge/internal/providerrouter"
	"github.com/floegence/forge/internal/sse"
)

const defaultRateLimitPerMinute = 30

// Options configures a new Server.
type Options struct {
	Logger *slog.Logger
	Port   int

	Pipeline *pipeline.Pipeline
	Router   *providerrouter.Router
	History  *history.Store
	Grimoire *grimoire.Store
	Progress *sse.Channel

	AuthToken       string
	RateLimitPerMin int
}

// Server is the HTTP/SSE surface.
type Server struct {
	log *slog.Logger
	port int

	pipeline *pipeline.Pipeline
	router   *providerrouter.Router
	history  *history.Store
	grimoire *grimoire.Store
	progress *sse.Channel

	authToken string
	rateLimit int

	startedAt    time.Time
	requestCount atomic.Int64

	limiterMu sync.Mutex
	limiter   map[string][]time.Time

	ln4 net.Listener
	ln6 net.Listener
	srv *http.Server
}

func New(opts Options) (*Server, error) {
	if opts.Pipeline == nil {
		return nil, errors.New("httpapi: missing Pipeline")
	}
	port := opts.Port
	if port == 0 {
		port = 8420
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("httpapi: invalid port %d", port)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	rateLimit := opts.RateLimitPerMin
	if rateLimit <= 0 {
		rateLimit = defaultRateLimitPerMinute
	}

	return &Server{
		log:       logger,
		port:      port,
		pipeline:  opts.Pipeline,
		router:    opts.Router,
		history:   opts.History,
		grimoire:  opts.Grimoire,
		progress:  opts.Progress,
		authToken: strings.TrimSpace(opts.AuthToken),
		rateLimit: rateLimit,
		startedAt: time.Now(),
		limiter:   map[string][]time.Time{},
	}, nil
}

func (s *Server) Port() int {
	if s == nil {
		return 0
	}
	return s.port
}

func (s *Server) mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/models", s.handleModels)
	mux.HandleFunc("/api/generate", s.handleGenerate)
	mux.HandleFunc("/api/validate", s.handleValidate)
	mux.HandleFunc("/api/grimoire", s.handleGrimoireCollection)
	mux.HandleFunc("/api/grimoire/", s.handleGrimoireItem)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/progress", s.handleProgress)

	exempt := map[string]bool{"/api/health": true, "/api/progress": true}
	return s.withMiddleware(mux, exempt)
}

// Start listens on both loopback interfaces and serves until Close.
func (s *Server) Start(ctx context.Context) error {
	if s.srv != nil {
		return nil
	}
	addr4 := net.JoinHostPort("127.0.0.1", strconv.Itoa(s.port))
	ln4, err := net.Listen("tcp", addr4)
	if err != nil {
		return fmt.Errorf("httpapi: listen %s: %w", addr4, err)
	}
	addr6 := net.JoinHostPort("::1", strconv.Itoa(s.port))
	ln6, err := net.Listen("tcp", addr6)
	if err != nil {
		_ = ln4.Close()
		return fmt.Errorf("httpapi: listen %s: %w", addr6, err)
	}

	s.srv = &http.Server{Handler: s.mux(), ReadHeaderTimeout: 10 * time.Second}
	s.ln4, s.ln6 = ln4, ln6

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	go func() {
		if err := s.srv.Serve(ln4); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("httpapi server stopped (ipv4)", "error", err)
		}
	}()
	go func() {
		if err := s.srv.Serve(ln6); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("httpapi server stopped (ipv6)", "error", err)
		}
	}()

	s.log.Info("httpapi listening", "port", s.port)
	return nil
}

func (s *Server) Close() error {
	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(ctx)
	}
	if s.ln4 != nil {
		_ = s.ln4.Close()
	}
	if s.ln6 != nil {
		_ = s.ln6.Close()
	}
	s.srv, s.ln4, s.ln6 = nil, nil, nil
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
