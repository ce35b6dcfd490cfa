// Package http provides the HTTP API for ragd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/rag"
)

// userIDHeader carries the authenticated user id, set by the fronting
// auth layer. Authentication itself is not this daemon's concern.
const userIDHeader = "X-User-ID"

// Pipeline is the subset of the answer pipeline the API exposes.
type Pipeline interface {
	Answer(ctx context.Context, query string, documentIDs []string, userID string) (*rag.Answer, error)
	IngestDocument(ctx context.Context, req rag.IngestRequest) (*rag.IngestResult, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides HTTP endpoints for ragd.
type Server struct {
	echo     *echo.Echo
	pipeline Pipeline
	logger   *zap.Logger
	config   *Config
}

// NewServer creates a new HTTP server.
func NewServer(pipeline Pipeline, logger *zap.Logger, cfg *Config) (*Server, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		pipeline: pipeline,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/documents", s.handleIngest)
	v1.DELETE("/documents/:id", s.handleDelete)
	v1.POST("/chat", s.handleChat)
}

// IngestRequest is the request body for POST /api/v1/documents.
type IngestRequest struct {
	DocumentID string `json:"document_id,omitempty"`
	Text       string `json:"text"`
	PageNumber int    `json:"page_number,omitempty"`
}

// ChatRequest is the request body for POST /api/v1/chat.
type ChatRequest struct {
	Query       string   `json:"query"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleIngest(c echo.Context) error {
	userID := c.Request().Header.Get(userIDHeader)
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing user id header")
	}

	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ingest request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	documentID := req.DocumentID
	if documentID == "" {
		documentID = fmt.Sprintf("doc_%s", uuid.New().String())
	}

	result, err := s.pipeline.IngestDocument(c.Request().Context(), rag.IngestRequest{
		DocumentID: documentID,
		UserID:     userID,
		Text:       req.Text,
		PageNumber: req.PageNumber,
	})
	if err != nil {
		return s.mapError(c, err, "ingesting document")
	}

	return c.JSON(http.StatusCreated, result)
}

func (s *Server) handleDelete(c echo.Context) error {
	userID := c.Request().Header.Get(userIDHeader)
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing user id header")
	}

	documentID := c.Param("id")
	if err := s.pipeline.DeleteDocument(c.Request().Context(), documentID); err != nil {
		return s.mapError(c, err, "deleting document")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleChat(c echo.Context) error {
	userID := c.Request().Header.Get(userIDHeader)
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing user id header")
	}

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid chat request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	answer, err := s.pipeline.Answer(c.Request().Context(), req.Query, req.DocumentIDs, userID)
	if err != nil {
		return s.mapError(c, err, "answering query")
	}

	return c.JSON(http.StatusOK, answer)
}

// mapError translates pipeline errors to HTTP status codes. Upstream
// collaborator failures surface as 502 so callers can distinguish them
// from bad input.
func (s *Server) mapError(c echo.Context, err error, action string) error {
	s.logger.Error(action, zap.Error(err),
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))

	if errors.Is(err, rag.ErrUnsupportedInput) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadGateway, "upstream service failure")
}

// Start begins serving HTTP requests. Blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("http server starting", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
