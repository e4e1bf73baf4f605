// Package server exposes the lease analysis, clause preview and billing
// operations over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"leasecheck/internal/access"
	"leasecheck/internal/billing"
	"leasecheck/internal/logger"
	"leasecheck/internal/pipeline"
	"leasecheck/internal/preview"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8000"

	// DefaultMaxUploadBytes caps the multipart body of an analysis request.
	DefaultMaxUploadBytes = 200 << 20

	shutdownTimeout = 15 * time.Second
)

// Config tunes the HTTP layer.
type Config struct {
	Addr           string
	AdminJWTSecret string
	MaxUploadBytes int64
	// UploadDir is where uploaded pages are staged. Empty means the OS temp dir.
	UploadDir string
}

// Deps are the services behind the routes.
type Deps struct {
	Coordinator *pipeline.Coordinator
	Gate        *access.Gate
	Preview     *preview.Service
	Billing     *billing.Service
}

// Server is the HTTP front end.
type Server struct {
	deps   Deps
	config Config
	router *gin.Engine
	log    zerolog.Logger
}

// New builds the server and its routes.
func New(deps Deps, config Config) *Server {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultMaxUploadBytes
	}

	s := &Server{
		deps:   deps,
		config: config,
		log:    logger.WithComponent("server"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = 32 << 20

	router.Use(RequestID())
	router.Use(Recovery())
	router.Use(RequestLogger())

	router.GET("/health", s.health)

	lease := router.Group("/api/lease")
	{
		lease.GET("/health", s.health)
		lease.POST("/analyze", s.analyze)
		lease.GET("/full-report", s.fullReport)
		lease.GET("/full-report/:id", s.fullReport)
		lease.GET("/access", s.accessStatus)
		lease.POST("/clause/quick-analyze", s.quickAnalyze)
		lease.GET("/clause/quick-analyze/history", s.quickHistory)
	}

	bill := router.Group("/api/billing")
	{
		bill.POST("/webhook", s.webhook)
		bill.POST("/register-pending", s.registerPending)
		bill.POST("/create-checkout", s.createCheckout)
		bill.GET("/check-access", s.checkAccess)
		bill.POST("/grant-access", AdminAuth(s.config.AdminJWTSecret), s.grantAccess)
	}

	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       120 * time.Second,
		WriteTimeout:      300 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.config.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "leasecheck",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
