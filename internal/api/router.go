package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shellbot/shellbot/internal/auth"
	"github.com/shellbot/shellbot/internal/metrics"
	"github.com/shellbot/shellbot/pkg/types"
)

// Sandbox is the operation set the API exposes. *sandbox.Service implements it.
type Sandbox interface {
	Term(ctx context.Context, command string) (*types.ExecutionResult, error)
	Distros() []types.DistroListing
	Distro(ctx context.Context, name string) (*types.DistroSwitchResponse, error)
	Complete(prefix string) []string
	Status() types.SandboxStatus
}

// Server holds the API server dependencies.
type Server struct {
	echo    *echo.Echo
	sandbox Sandbox
}

// NewServer creates a new API server with all routes configured.
func NewServer(sb Sandbox, apiKey string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		sandbox: sb,
	}

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(metrics.EchoMiddleware())

	// Health check and metrics (no auth)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// API routes (with auth)
	api := e.Group("")
	api.Use(auth.APIKeyMiddleware(apiKey))

	api.POST("/term", s.term)
	api.GET("/distros", s.listDistros)
	api.GET("/distros/complete", s.completeDistro)
	api.PUT("/distro", s.switchDistro)
	api.GET("/status", s.status)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
