package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ternarybob/arbor"

	"resumerag/internal/config"
	"resumerag/internal/domain"
	"resumerag/internal/logging"
	"resumerag/internal/service"
	"resumerag/internal/session"
)

// RAGService is the subset of the service the HTTP layer needs.
type RAGService interface {
	Ingest(ctx context.Context, name string, data []byte) (service.IngestResult, error)
	Chat(ctx context.Context, sessionID, query string) (service.ChatResult, error)
	Status(sessionID string) session.State
	EndSession(sessionID string)
}

type chatRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Query     string `json:"query" validate:"required,max=2000"`
}

type statusResponse struct {
	SessionID string        `json:"session_id"`
	Status    session.State `json:"status"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

// multipartOverhead is the allowance for multipart framing on top of the file itself.
const multipartOverhead = 64 << 10

type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i interface{}) error { return rv.v.Struct(i) }

// Server exposes the RAG service over HTTP.
type Server struct {
	echo      *echo.Echo
	svc       RAGService
	logger    arbor.ILogger
	maxUpload int64
}

// New builds the router. Metrics are served from gatherer when it is non-nil.
func New(svc RAGService, cfg config.ServerConfig, gatherer prometheus.Gatherer, logger arbor.ILogger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 1 << 20
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{echo: echo.New(), svc: svc, logger: logger, maxUpload: cfg.MaxUploadBytes}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{v: validator.New()}
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(s.requestLogger)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))

	api := e.Group("/api")
	api.GET("/health", s.health)
	uploadLimit := fmt.Sprintf("%dK", (cfg.MaxUploadBytes+multipartOverhead+1023)/1024)
	api.POST("/upload", s.upload, middleware.BodyLimit(uploadLimit))
	api.POST("/chat", s.chat)
	api.GET("/session/:id", s.status)
	api.DELETE("/session/:id", s.endSession)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// Handler returns the router, for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("address", addr).Msg("HTTP server listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
	}
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".pdf") {
		return echo.NewHTTPError(http.StatusBadRequest, "only PDF files are supported")
	}
	if fh.Size == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "file is empty")
	}
	if fh.Size > s.maxUpload {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", s.maxUpload))
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.maxUpload+1))
	if err != nil {
		return err
	}

	res, err := s.svc.Ingest(c.Request().Context(), fh.Filename, data)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return validationError(err)
	}
	res, err := s.svc.Chat(c.Request().Context(), req.SessionID, req.Query)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) status(c echo.Context) error {
	id := c.Param("id")
	return c.JSON(http.StatusOK, statusResponse{SessionID: id, Status: s.svc.Status(id)})
}

func (s *Server) endSession(c echo.Context) error {
	id := c.Param("id")
	s.svc.EndSession(id)
	return c.JSON(http.StatusOK, map[string]string{"session_id": id, "status": "ended"})
}

// validationError maps a failed query field to ErrInvalidQuery and anything else to 400.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Field() == "Query" {
				return fmt.Errorf("%w: query %s", domain.ErrInvalidQuery, fe.Tag())
			}
		}
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s is %s", strings.ToLower(verrs[0].Field()), verrs[0].Tag()))
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

var statusByCode = map[string]int{
	"invalid_query":       http.StatusBadRequest,
	"empty_document":      http.StatusUnprocessableEntity,
	"malformed_geometry":  http.StatusUnprocessableEntity,
	"unreadable_document": http.StatusUnprocessableEntity,
	"indexing_failed":     http.StatusServiceUnavailable,
	"empty_index":         http.StatusConflict,
	"embedding_mismatch":  http.StatusConflict,
	"session_not_found":   http.StatusNotFound,
	"session_expired":     http.StatusGone,
	"generation_timeout":  http.StatusGatewayTimeout,
}

// render converts err into a status and a stable body.
func render(err error) (int, errorResponse) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		code := strings.ReplaceAll(strings.ToLower(http.StatusText(he.Code)), " ", "_")
		return he.Code, errorResponse{Error: msg, Code: code}
	}
	code := domain.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return status, errorResponse{Error: err.Error(), Code: code, Retryable: domain.IsRetryable(err)}
}

func (s *Server) handleError(err error, c echo.Context) {
	status, body := render(err)
	req := c.Request()
	ev := s.logger.Warn()
	if status >= http.StatusInternalServerError {
		ev = s.logger.Error()
	}
	ev.Int("status", status).Str("method", req.Method).Str("path", req.URL.Path).Str("code", body.Code).Err(err).Msg("Request failed")
	if c.Response().Committed {
		return
	}
	if req.Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		req := c.Request()
		s.logger.Debug().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Str("remote", c.RealIP()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
		return err
	}
}
