// Package server provides the HTTP API: chat, ingestion trigger, health and
// metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zoontopia/superdaddy/internal/chat"
	"github.com/zoontopia/superdaddy/internal/config"
	"github.com/zoontopia/superdaddy/internal/ingest"
	"github.com/zoontopia/superdaddy/internal/logging"
)

// Chatter answers questions. Implemented by chat.Service.
type Chatter interface {
	Ask(ctx context.Context, question string) (chat.Answer, error)
}

// Ingester runs an ingestion. Implemented by ingest.Pipeline.
type Ingester interface {
	Run(ctx context.Context, source ingest.Source, force bool) ingest.Report
}

// Server provides the HTTP endpoints.
type Server struct {
	echo      *echo.Echo
	chatter   Chatter
	ingester  Ingester
	logger    *logging.Logger
	cfg       config.ServerConfig
	ingestCfg config.IngestionConfig

	// ingesting serializes ingestion runs; a second trigger while one is
	// in flight is rejected with 409.
	ingesting sync.Mutex
}

// New creates the HTTP server.
func New(chatter Chatter, ingester Ingester, cfg config.ServerConfig, ingestCfg config.IngestionConfig, logger *logging.Logger) (*Server, error) {
	if chatter == nil {
		return nil, fmt.Errorf("chat service is required")
	}
	if ingester == nil {
		return nil, fmt.Errorf("ingestion pipeline is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})

	s := &Server{
		echo:      e,
		chatter:   chatter,
		ingester:  ingester,
		logger:    logger,
		cfg:       cfg,
		ingestCfg: ingestCfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")
	api.POST("/chat", s.handleChat)
	api.POST("/ingest", s.handleIngest)
}

// ChatRequest is the request body for POST /api/chat.
type ChatRequest struct {
	Question string `json:"question"`
}

// IngestRequest is the request body for POST /api/ingest. All fields are
// optional; an empty body re-runs the configured source.
type IngestRequest struct {
	SourcePath string `json:"source_path"`
	SourceID   string `json:"source_id"`
	Force      bool   `json:"force"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	answer, err := s.chatter.Ask(c.Request().Context(), req.Question)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyQuestion) {
			return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
		}
		s.logger.Error(c.Request().Context(), "chat request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to answer question")
	}
	return c.JSON(http.StatusOK, answer)
}

func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	path := req.SourcePath
	if path == "" {
		path = s.ingestCfg.SourcePath
	}
	if path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "no source path configured or provided")
	}
	id := req.SourceID
	if id == "" && path == s.ingestCfg.SourcePath {
		id = s.ingestCfg.SourceID
	}

	source, err := ingest.NewFileSource(path, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if !s.ingesting.TryLock() {
		return echo.NewHTTPError(http.StatusConflict, "ingestion already in progress")
	}
	defer s.ingesting.Unlock()

	report := s.ingester.Run(c.Request().Context(), source, req.Force)
	status := http.StatusOK
	if report.Status == ingest.StatusFailed {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, report)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
