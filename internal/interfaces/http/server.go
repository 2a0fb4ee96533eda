// Package http exposes the document sessions over a JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/logistics-console/internal/application/service"
	"github.com/garyjia/logistics-console/internal/domain/entity"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// IdentityService stores the user the console acts as
type IdentityService interface {
	Current(ctx context.Context) (*entity.Identity, error)
	SignIn(ctx context.Context, token, userID, name string) (*entity.Identity, error)
	SignOut(ctx context.Context) error
}

// ActivityLister reads the document activity journal
type ActivityLister interface {
	List(ctx context.Context, documentType, documentID string, limit int) ([]*entity.Activity, error)
}

// Exporter renders a loaded form as a spreadsheet
type Exporter interface {
	Write(w io.Writer, form *service.DocumentFormController) error
}

// HealthFunc reports overall health and per-component details
type HealthFunc func(ctx context.Context) (bool, any)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	Mode         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MetricsPath  string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		Mode:         gin.ReleaseMode,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		MetricsPath:  "/metrics",
	}
}

// Deps are the services behind the API
type Deps struct {
	Sessions *service.SessionManager
	Identity IdentityService
	Activity ActivityLister
	Exports  Exporter
	Health   HealthFunc
	Metrics  http.Handler
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       Deps
	logger     Logger
}

// NewServer creates a server with every route registered
func NewServer(config ServerConfig, deps Deps, logger Logger) *Server {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	server := &Server{
		config: config,
		router: gin.New(),
		deps:   deps,
		logger: logger,
	}
	server.setupMiddleware()
	server.setupRoutes()
	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

const requestIDHeader = "X-Request-ID"

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// loggingMiddleware logs one line per request
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"request_id", c.GetString("request_id"),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.deps, s.logger)

	s.router.GET("/health", h.HealthCheck)
	if s.deps.Metrics != nil {
		path := s.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(s.deps.Metrics))
	}

	api := s.router.Group("/api")
	{
		api.GET("/document-types", h.ListDocumentTypes)
		api.GET("/documents/:type/:id/activity", h.ListActivity)

		api.GET("/identity", h.GetIdentity)
		api.PUT("/identity", h.PutIdentity)
		api.DELETE("/identity", h.DeleteIdentity)

		api.POST("/sessions", h.OpenSession)
		sessions := api.Group("/sessions/:id")
		{
			sessions.GET("", h.GetSession)
			sessions.DELETE("", h.CloseSession)
			sessions.POST("/retry", h.RetrySession)
			sessions.PUT("/header", h.SaveHeader)
			sessions.POST("/cancel", h.CancelSession)
			sessions.POST("/lines", h.AddLine)
			sessions.PUT("/lines/:lineId", h.UpdateLine)
			sessions.DELETE("/lines/:lineId", h.RemoveLine)
			sessions.POST("/status", h.SelectStatus)
			sessions.GET("/export.xlsx", h.ExportLines)
		}
	}
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
