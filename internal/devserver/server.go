// Package devserver is a self-contained reference backend for the task
// manager CLI: cookie sessions with token versions, notifications and a
// realtime push channel. It backs local development and end-to-end tests.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const serviceName = "taskmgr-devserver"

// Config holds the reference backend settings.
type Config struct {
	Addr       string
	DSN        string
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Seed fills an empty database with the demo account and fake data.
	Seed bool
	// SecureCookies marks the session cookies Secure.
	SecureCookies bool
	// Now is the clock used for token issue and expiry. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns settings for a local, in-memory server.
func DefaultConfig() Config {
	return Config{
		Addr:       "127.0.0.1:5000",
		DSN:        MemoryDSN(),
		JWTSecret:  uuid.NewString(),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}
}

// Server wires the store, token issuer and realtime hub behind a gin router.
type Server struct {
	cfg     Config
	log     *zap.Logger
	store   *Store
	tokens  *Tokens
	hub     *Hub
	metrics *Metrics
	router  *gin.Engine
}

// New opens the store and builds the router.
func New(cfg Config, log *zap.Logger) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.DSN == "" {
		cfg.DSN = MemoryDSN()
	}
	if log == nil {
		log = zap.NewNop()
	}

	store, err := OpenStore(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.Seed {
		demo, err := Seed(store, SeedOptions{Users: 5, Notifications: 25})
		if err != nil {
			store.Close()
			return nil, err
		}
		log.Info("Seeded database", zap.String("email", demo.Email), zap.String("password", DemoPassword))
	}

	m := NewMetrics()
	s := &Server{
		cfg:     cfg,
		log:     log,
		store:   store,
		tokens:  NewTokens([]byte(cfg.JWTSecret), cfg.AccessTTL, cfg.RefreshTTL, cfg.Now),
		hub:     NewHub(log, m),
		metrics: m,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(requestID())
	r.Use(s.requestLogger())
	r.Use(s.metrics.middleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	r.GET("/ws", s.handleRealtime)

	api := r.Group("/api")
	auth := api.Group("/auth")
	{
		auth.POST("/login", s.handleLogin)
		auth.POST("/logout", s.handleLogout)
		auth.POST("/refresh", s.handleRefresh)
	}

	protected := api.Group("")
	protected.Use(s.requireSession())
	{
		protected.GET("/auth/me", s.handleMe)
		protected.POST("/auth/change-password", s.handleChangePassword)

		protected.GET("/notifications", s.handleListNotifications)
		protected.GET("/notifications/stats", s.handleStats)
		protected.PATCH("/notifications/read", s.handleMarkRead)
		protected.POST("/notifications/read-all", s.handleMarkAllRead)

		protected.POST("/dev/notifications", s.handleCreateNotification)
	}
	return r
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Store exposes the persistence layer, mainly for seeding in tests.
func (s *Server) Store() *Store {
	return s.store
}

// Hub exposes the realtime hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Server starting", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close releases the store.
func (s *Server) Close() error {
	return s.store.Close()
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// requestLogger logs each request at a level picked from its status.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("status", status),
			zap.Int("response_size", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString("request_id")),
		}
		if uid := c.GetString(ctxUserID); uid != "" {
			fields = append(fields, zap.String("user_id", uid))
		}

		switch {
		case status >= 500:
			s.log.Error("HTTP request", fields...)
		case status >= 400:
			s.log.Warn("HTTP request", fields...)
		default:
			s.log.Debug("HTTP request", fields...)
		}
	}
}
