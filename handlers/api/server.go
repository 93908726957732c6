package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/nijaru/videoverse/config"
	"github.com/nijaru/videoverse/metrics"
	"github.com/nijaru/videoverse/middleware"
	"github.com/nijaru/videoverse/services/video"
	"github.com/nijaru/videoverse/validation"
	"github.com/sirupsen/logrus"
)

type Server struct {
	auth      *AuthHandler
	video     *VideoHandler
	drive     *DriveHandler
	playback  *PlaybackHandler
	config    *config.Config
	logger    *logrus.Logger
	server    *http.Server
	startTime time.Time
}

type ServerOption func(*Server)

// Services bundles what the routes call into.
type Services struct {
	Videos   video.Service
	Uploads  Uploads
	Drive    DataURIUploader
	Playback Resolver
}

// NewServer creates a new API server with the provided services and options
func NewServer(cfg *config.Config, opts ...ServerOption) *Server {
	s := &Server{
		config:    cfg,
		logger:    logrus.StandardLogger(),
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           s.routes(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	return s
}

// WithLogger sets a custom logger for the server. Apply it before the
// other options so handlers share it.
func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAuth installs the sign-in routes and the session guard.
func WithAuth(h *AuthHandler) ServerOption {
	return func(s *Server) {
		s.auth = h
	}
}

// WithServices sets up the handlers with the provided services
func WithServices(svc Services) ServerOption {
	return func(s *Server) {
		validator := validation.NewValidator(s.config)
		s.video = NewVideoHandler(svc.Videos, svc.Uploads, validator, s.config, s.logger)
		s.drive = NewDriveHandler(svc.Drive, validator, s.config.Upload.MaxFileSize, s.logger)
		s.playback = NewPlaybackHandler(svc.Playback, s.logger)
	}
}

// Handler exposes the routed middleware stack.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.WithField("port", s.config.ServerPort).Info("Starting server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	s.addAuthRoutes(mux)
	s.addV1Routes(mux)

	if s.playback != nil {
		mux.HandleFunc("GET /video/{id}", s.playback.HandlePage)
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.config.Middleware.EnableMetrics {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	return s.middleware(mux)
}

func (s *Server) addAuthRoutes(mux *http.ServeMux) {
	if s.auth == nil {
		return
	}
	mux.HandleFunc("GET /auth/login", s.auth.HandleLogin)
	mux.HandleFunc("GET /auth/callback", s.auth.HandleCallback)
	mux.HandleFunc("POST /auth/logout", s.auth.HandleLogout)
	mux.HandleFunc("GET /api/v1/me", s.auth.Require(s.auth.HandleMe))
}

func (s *Server) addV1Routes(mux *http.ServeMux) {
	const v1Prefix = "/api/v1"

	if s.drive != nil {
		mux.HandleFunc("POST "+v1Prefix+"/drive/upload", s.drive.HandleUpload)
	}
	if s.playback != nil {
		mux.HandleFunc("GET "+v1Prefix+"/playback/{id}", s.playback.HandleGet)
	}

	// Library routes act on the signed-in user's records.
	if s.video == nil || s.auth == nil {
		return
	}
	require := s.auth.Require
	mux.HandleFunc("POST "+v1Prefix+"/videos", require(s.video.HandleUpload))
	mux.HandleFunc("GET "+v1Prefix+"/videos", require(s.video.HandleList))
	mux.HandleFunc("GET "+v1Prefix+"/videos/stream", require(s.video.HandleStream))
	mux.HandleFunc("PATCH "+v1Prefix+"/videos/{id}", require(s.video.HandleRename))
	mux.HandleFunc("DELETE "+v1Prefix+"/videos/{id}", require(s.video.HandleDelete))
	mux.HandleFunc("GET "+v1Prefix+"/videos/{id}/details", require(s.video.HandleDetails))
	mux.HandleFunc("GET "+v1Prefix+"/uploads", require(s.video.HandleUploads))
}

func (s *Server) middleware(handler http.Handler) http.Handler {
	toggles := s.config.Middleware

	middlewares := []func(http.Handler) http.Handler{middleware.Logger(s.logger)}
	if toggles.EnableRecover {
		middlewares = append(middlewares, middleware.Recovery(s.logger))
	}
	if toggles.EnableRequestID {
		middlewares = append(middlewares, middleware.RequestID())
	}
	if toggles.EnableLogger {
		middlewares = append(middlewares, middleware.Logging(s.logger))
	}
	if toggles.EnableCORS && s.config.CORS.Enabled {
		middlewares = append(middlewares, middleware.CORS(s.config.CORS))
	}
	if toggles.EnableTimeout {
		middlewares = append(middlewares, middleware.Timeout(s.config.RequestTimeout))
	}
	if toggles.EnableRateLimit && s.config.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.config.RateLimit.RequestsPerMinute,
			s.config.RateLimit.BurstSize,
		)
		middlewares = append(middlewares, rateLimiter.Middleware)
	}
	// Innermost, so the mux records the matched pattern on this request.
	if toggles.EnableMetrics {
		middlewares = append(middlewares, middleware.Metrics())
	}

	return middleware.Chain(handler, middlewares...)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   s.config.Version,
		"uptime":    time.Since(s.startTime).String(),
	}

	if s.config.Debug {
		status["debug"] = true
		status["goroutines"] = runtime.NumGoroutine()
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		status["memory"] = map[string]interface{}{
			"allocated": m.Alloc,
			"total":     m.TotalAlloc,
			"system":    m.Sys,
			"gc_cycles": m.NumGC,
		}
	}

	respondJSON(w, r, http.StatusOK, status)
}
