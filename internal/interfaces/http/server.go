// Package http exposes the invoice workflow over a JSON API.
// Handlers only translate requests; all rules live in the application layer.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/application/service"
	appwf "github.com/garyjia/invoice-workflow/internal/application/workflow"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	Mode            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MetricsPath     string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		Mode:            gin.ReleaseMode,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MetricsPath:     "/metrics",
	}
}

// Dependencies are the application services the API is built on
type Dependencies struct {
	Engine      appwf.WorkflowEngine
	Bulk        *appwf.BulkCoordinator
	Invoices    *service.InvoiceService
	Delegations *service.DelegationService
	Reports     *service.ReportService
	Users       port.UserRepository
	// Metrics is mounted on ServerConfig.MetricsPath when set
	Metrics  http.Handler
	Location *time.Location
	Logger   Logger
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       Dependencies
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, deps Dependencies) *Server {
	if config.Mode == "" {
		config.Mode = gin.ReleaseMode
	}
	gin.SetMode(config.Mode)
	useJSONFieldNames()
	if deps.Location == nil {
		deps.Location = time.UTC
	}

	s := &Server{
		config: config,
		router: gin.New(),
		deps:   deps,
		logger: deps.Logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(loggingMiddleware(s.logger))
}

func (s *Server) setupRoutes() {
	h := NewHandlers(s.deps)

	s.router.GET("/health", h.HealthCheck)
	if s.deps.Metrics != nil && s.config.MetricsPath != "" {
		s.router.GET(s.config.MetricsPath, gin.WrapH(s.deps.Metrics))
	}

	api := s.router.Group("/api")
	api.Use(actorMiddleware(s.deps.Users, s.logger))
	{
		api.POST("/invoices", h.SubmitInvoice)
		api.GET("/invoices", h.ListInvoices)
		api.POST("/invoices/transition-bulk", h.TransitionBulk)
		api.GET("/invoices/:id", h.GetInvoice)
		api.GET("/invoices/:id/audit", h.GetAuditTrail)
		api.GET("/invoices/:id/transitions", h.AllowedTransitions)
		api.POST("/invoices/:id/transition", h.Transition)
		api.PUT("/invoices/:id/manager", h.ReassignManager)

		api.GET("/delegations", h.ListDelegations)
		api.POST("/delegations", h.CreateDelegation)
		api.GET("/delegations/active", h.ActiveDelegation)
		api.PUT("/delegations/:id", h.UpdateDelegation)
		api.DELETE("/delegations/:id", h.DeleteDelegation)

		api.GET("/reports/payments.xlsx", h.PaymentReport)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
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

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
