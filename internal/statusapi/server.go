package statusapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/glmigrate/internal/jobstate"
	"github.com/temirov/glmigrate/internal/migrate"
)

const (
	// StartMigrationPath triggers a migration run.
	StartMigrationPath = "/start-migration"
	// StatusPath returns the current run snapshot.
	StatusPath         = "/get-status"
	// HealthPath answers liveness probes.
	HealthPath         = "/healthz"
	// MetricsPath serves Prometheus metrics.
	MetricsPath        = "/metrics"

	healthStatusOKConstant                   = "ok"
	readHeaderTimeoutConstant                = 10 * time.Second
	shutdownTimeoutConstant                  = 15 * time.Second
	logMessageRequestServedConstant          = "HTTP request served"
	logMessageServerListeningConstant        = "Status API listening"
	logMessageServerStoppedConstant          = "Status API stopped"
	logMessageStartRequestFailedConstant     = "Start request failed"
	logFieldMethodConstant                   = "method"
	logFieldPathConstant                     = "path"
	logFieldStatusCodeConstant               = "status_code"
	logFieldLatencyConstant                  = "latency"
	logFieldAddressConstant                  = "address"
	launcherNotConfiguredMessageConstant     = "migration launcher not configured"
	statusSourceNotConfiguredMessageConstant = "status source not configured"
)

var (
	// ErrLauncherNotConfigured indicates a missing start trigger.
	ErrLauncherNotConfigured     = errors.New(launcherNotConfiguredMessageConstant)
	// ErrStatusSourceNotConfigured indicates a missing status source.
	ErrStatusSourceNotConfigured = errors.New(statusSourceNotConfiguredMessageConstant)
)

// StartTrigger launches migration runs. migrate.Launcher satisfies it.
type StartTrigger interface {
	Start(requestContext context.Context) (migrate.StartResponse, error)
}

// StatusSource supplies run snapshots. jobstate.Tracker satisfies it.
type StatusSource interface {
	Snapshot() jobstate.Snapshot
}

// ServerDependencies describes collaborators of the HTTP server.
type ServerDependencies struct {
	Launcher StartTrigger
	Status   StatusSource
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// Server routes the status API.
type Server struct {
	router   *echo.Echo
	launcher StartTrigger
	status   StatusSource
	logger   *zap.Logger
}

type healthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer constructs the router. A nil Gatherer leaves /metrics unrouted.
func NewServer(dependencies ServerDependencies) (*Server, error) {
	if dependencies.Launcher == nil {
		return nil, ErrLauncherNotConfigured
	}
	if dependencies.Status == nil {
		return nil, ErrStatusSourceNotConfigured
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	server := &Server{
		router:   echo.New(),
		launcher: dependencies.Launcher,
		status:   dependencies.Status,
		logger:   logger,
	}
	server.router.HideBanner = true
	server.router.HidePort = true
	server.router.Use(middleware.Recover())
	server.router.Use(server.requestLogger)

	server.router.POST(StartMigrationPath, server.handleStart)
	server.router.GET(StatusPath, server.handleStatus)
	server.router.GET(HealthPath, server.handleHealth)
	if dependencies.Gatherer != nil {
		metricsHandler := promhttp.HandlerFor(dependencies.Gatherer, promhttp.HandlerOpts{ErrorHandling: promhttp.HTTPErrorOnError})
		server.router.GET(MetricsPath, echo.WrapHandler(metricsHandler))
	}
	return server, nil
}

// Handler exposes the router for embedding and tests.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Serve answers requests on listener until executionContext is cancelled, then shuts down gracefully.
func (server *Server) Serve(executionContext context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           server.router,
		ReadHeaderTimeout: readHeaderTimeoutConstant,
	}

	group, groupContext := errgroup.WithContext(executionContext)
	group.Go(func() error {
		server.logger.Info(logMessageServerListeningConstant, zap.String(logFieldAddressConstant, listener.Addr().String()))
		if serveError := httpServer.Serve(listener); serveError != nil && !errors.Is(serveError, http.ErrServerClosed) {
			return serveError
		}
		return nil
	})
	group.Go(func() error {
		<-groupContext.Done()
		shutdownContext, cancel := context.WithTimeout(context.WithoutCancel(executionContext), shutdownTimeoutConstant)
		defer cancel()
		shutdownError := httpServer.Shutdown(shutdownContext)
		server.logger.Info(logMessageServerStoppedConstant, zap.String(logFieldAddressConstant, listener.Addr().String()))
		return shutdownError
	})
	return group.Wait()
}

func (server *Server) handleStart(requestContext echo.Context) error {
	response, startError := server.launcher.Start(requestContext.Request().Context())
	if startError != nil {
		server.logger.Warn(logMessageStartRequestFailedConstant, zap.Error(startError))
		return requestContext.JSON(http.StatusServiceUnavailable, errorResponse{Error: startError.Error()})
	}
	if !response.Accepted {
		return requestContext.JSON(http.StatusOK, response)
	}
	return requestContext.JSON(http.StatusAccepted, response)
}

func (server *Server) handleStatus(requestContext echo.Context) error {
	return requestContext.JSON(http.StatusOK, server.status.Snapshot())
}

func (server *Server) handleHealth(requestContext echo.Context) error {
	return requestContext.JSON(http.StatusOK, healthResponse{Status: healthStatusOKConstant})
}

func (server *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(requestContext echo.Context) error {
		startedAt := time.Now()
		handlerError := next(requestContext)
		if handlerError != nil {
			requestContext.Error(handlerError)
		}
		server.logger.Debug(
			logMessageRequestServedConstant,
			zap.String(logFieldMethodConstant, requestContext.Request().Method),
			zap.String(logFieldPathConstant, requestContext.Path()),
			zap.Int(logFieldStatusCodeConstant, requestContext.Response().Status),
			zap.Duration(logFieldLatencyConstant, time.Since(startedAt)),
		)
		return nil
	}
}
