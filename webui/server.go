// Package webui is the HTTP surface of AlterEgo: a JSON API over the
// generation orchestrator, a websocket stream of session snapshots, the
// remote transform backend endpoint and Prometheus metrics.
package webui

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"alterego/imagegen"
	"alterego/logging"
	"alterego/metrics"
	"alterego/orchestrator"
	"alterego/webui/auth"

	"go.uber.org/zap"
)

// ServerConfig configures the Server.
type ServerConfig struct {
	Host string
	Port int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// APIToken protects /api and /ws when set; plaintext or bcrypt hash
	APIToken string
	// TransformAPIKey enables POST /api/transform when set
	TransformAPIKey string

	// RateLimitRPS is per client; zero disables rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	MaxUploadBytes int64
	Version        string
	Provider       string

	// LogSkipPaths are not request-logged
	LogSkipPaths []string
	Streamer     StreamerConfig
}

// DefaultServerConfig returns the defaults for a local deployment.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "localhost",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxUploadBytes:  DefaultMaxUploadBytes,
		Version:         "dev",
		LogSkipPaths:    []string{"/health", "/metrics"},
		Streamer:        DefaultStreamerConfig(),
	}
}

// Deps are the collaborators the server exposes. Orchestrator is required.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	// Activity backs /api/activity (optional)
	Activity ActivitySource
	// Metrics backs /api/tasks and /metrics (optional)
	Metrics *metrics.Metrics
	// Backend serves /api/transform (optional)
	Backend imagegen.Transformer
	Logger  *logging.Logger
}

// Server owns the http.Server and its handlers.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	config     ServerConfig
	logger     *logging.Logger
	api        *API
	streamer   *SnapshotStreamer
	limiter    *RateLimiter
	auth       *auth.Authenticator
}

// NewServer wires the middleware and routes.
func NewServer(config ServerConfig, deps Deps) (*Server, error) {
	if deps.Orchestrator == nil {
		return nil, errors.New("webui: orchestrator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("webui")

	s := &Server{config: config, logger: logger}

	if config.APIToken != "" {
		a, err := auth.NewAuthenticator(config.APIToken)
		if err != nil {
			return nil, fmt.Errorf("webui: api token: %w", err)
		}
		s.auth = a
	}
	if config.RateLimitRPS > 0 {
		s.limiter = NewRateLimiter(config.RateLimitRPS, config.RateLimitBurst)
	}

	s.streamer = NewSnapshotStreamer(deps.Orchestrator, config.Streamer, logger)
	s.api = NewAPI(deps.Orchestrator, deps.Activity, deps.Metrics, APIConfig{
		MaxUploadBytes: config.MaxUploadBytes,
		Version:        config.Version,
		Provider:       config.Provider,
	}, logger)
	s.api.clients = s.streamer.ClientCount

	apiMux := http.NewServeMux()
	s.api.RegisterRoutes(apiMux)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.Handle("/api/", s.protect(apiMux))
	mux.Handle("GET /ws", s.protect(http.HandlerFunc(s.streamer.HandleConnection)))
	if config.TransformAPIKey != "" && deps.Backend != nil {
		mux.Handle("/api/transform", s.limit(NewTransformBackend(deps.Backend, config.TransformAPIKey, config.MaxUploadBytes, logger)))
	}

	var handler http.Handler = mux
	if deps.Metrics != nil && deps.Metrics.Prom != nil {
		mux.Handle("GET /metrics", deps.Metrics.Prom.Handler())
		handler = deps.Metrics.Prom.InstrumentHandler(handler)
	}
	handler = NewLoggingMiddleware(logger, config.LogSkipPaths...).Handler(handler)
	s.handler = handler

	addr := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	logger.Info("Web server configured",
		zap.String("addr", addr),
		zap.Bool("auth_enabled", s.auth != nil),
		zap.Bool("rate_limited", s.limiter != nil),
		zap.Bool("transform_backend", config.TransformAPIKey != "" && deps.Backend != nil),
	)
	return s, nil
}

// protect applies the token check and the rate limit.
func (s *Server) protect(next http.Handler) http.Handler {
	next = s.limit(next)
	if s.auth != nil {
		next = s.auth.Middleware(next)
	}
	return next
}

func (s *Server) limit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return s.limiter.Middleware(next)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start listens until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("webui: listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.limiter != nil {
		s.limiter.StartCleanupTicker(ctx, 5*time.Minute)
	}
	s.logger.Info("Web server listening", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webui: serve: %w", err)
	}
	return nil
}

// Shutdown closes websocket clients, then drains HTTP requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.streamer.Close()

	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("webui: shutdown: %w", err)
	}
	s.logger.Info("Web server stopped")
	return nil
}
