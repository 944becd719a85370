package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"akashchat/internal/analysis"
	"akashchat/internal/config"
	"akashchat/internal/models"
	"akashchat/internal/provider"
	"akashchat/internal/session"
	"akashchat/internal/translator"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	writeTimeoutSlack   = 15 * time.Second
	idleTimeout         = 120 * time.Second
)

// Server serves the chat session and analysis over HTTP.
type Server struct {
	cfg      config.Config
	session  *session.Session
	analyzer *analysis.Analyzer
	registry *provider.Registry
	app      *echo.Echo
	address  string
	logger   *slog.Logger
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, sess *session.Session, analyzer *analysis.Analyzer, registry *provider.Registry, logger *slog.Logger) (*Server, error) {
	if sess == nil {
		return nil, errors.New("session must not be nil")
	}
	if analyzer == nil {
		return nil, errors.New("analyzer must not be nil")
	}
	if registry == nil {
		return nil, errors.New("registry must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))

	srv := &Server{
		cfg:      cfg,
		session:  sess,
		analyzer: analyzer,
		registry: registry,
		app:      e,
		address:  fmt.Sprintf(":%d", cfg.Server.Port),
		logger:   logger,
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the routed echo instance.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg.Server.Port, s.session.Model(), s.session.CanSend())
	s.logger.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: s.cfg.API.Timeout + writeTimeoutSlack,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.GET("/api/models", s.handleModels)
	s.app.GET("/api/session", s.handleSession)
	s.app.DELETE("/api/session", s.handleResetSession)
	s.app.PUT("/api/session/model", s.handleSelectModel)
	s.app.POST("/api/chat", s.handleChat)
	s.app.POST("/api/analyze", s.handleAnalyze)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModels(c echo.Context) error {
	return c.JSON(http.StatusOK, translator.FromRegistry(s.registry, s.session.Model()))
}

func (s *Server) handleSession(c echo.Context) error {
	return c.JSON(http.StatusOK, translator.FromSession(s.session))
}

func (s *Server) handleResetSession(c echo.Context) error {
	s.session.Reset()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSelectModel(c echo.Context) error {
	var req translator.SelectModelRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	if err := s.session.SetModel(req.Model); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, translator.FromSession(s.session))
}

func (s *Server) handleChat(c echo.Context) error {
	var req translator.ChatRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	// The session outlives the request; a dropped connection must not cut the turn short.
	turn, err := s.session.Send(context.WithoutCancel(c.Request().Context()), req.Message)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, translator.FromTurn(turn))
}

func (s *Server) handleAnalyze(c echo.Context) error {
	if !s.cfg.HasAPIKey() {
		return toHTTPError(session.ErrMissingAPIKey)
	}

	var req translator.AnalyzeRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	model := req.Model
	if model == "" {
		model = s.session.Model()
	}

	result := s.analyzer.Analyze(c.Request().Context(), s.cfg.API.APIKey, model, req.Fields)
	switch res := result.(type) {
	case models.Success:
		effective, _ := s.registry.Resolve(model)
		return c.JSON(http.StatusOK, translator.AnalyzeResponse{Content: res.Content, Model: effective})
	case models.Failure:
		details := translator.FromFailure(res)
		return requestError{
			Status:  http.StatusBadGateway,
			Message: res.Message,
			Type:    "upstream_error",
			Details: &details,
		}
	default:
		return requestError{
			Status:  http.StatusBadGateway,
			Message: "completion returned no result",
			Type:    "upstream_error",
		}
	}
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: "request body is required",
				Type:    "invalid_request_error",
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid request payload: %v", err),
			Type:    "invalid_request_error",
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
			Type:    "invalid_request_error",
		}
	}
	return nil
}

type requestError struct {
	Status  int
	Message string
	Type    string
	Code    string
	Details *translator.FailureDetails
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error struct {
		Message        string   `json:"message"`
		Type           string   `json:"type"`
		Code           string   `json:"code,omitempty"`
		Kind           string   `json:"kind,omitempty"`
		SuggestedModel string   `json:"suggested_model,omitempty"`
		AllowedModels  []string `json:"allowed_models,omitempty"`
	} `json:"error"`
}

func writeError(c echo.Context, reqErr requestError) error {
	var payload errorBody
	payload.Error.Message = reqErr.Message
	payload.Error.Type = reqErr.Type
	payload.Error.Code = reqErr.Code
	if reqErr.Details != nil {
		payload.Error.Kind = reqErr.Details.Kind
		payload.Error.SuggestedModel = reqErr.Details.SuggestedModel
		payload.Error.AllowedModels = reqErr.Details.AllowedModels
	}
	return c.JSON(reqErr.Status, payload)
}

func jsonErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, requestError{
			Status:  he.Code,
			Message: fmt.Sprint(he.Message),
			Type:    "invalid_request_error",
		})
		return
	}

	_ = writeError(c, requestError{
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
		Type:    "server_error",
	})
}

func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	switch {
	case errors.Is(err, provider.ErrUnknownModel), errors.Is(err, session.ErrEmptyInput):
		return requestError{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
			Type:    "invalid_request_error",
		}
	case errors.Is(err, session.ErrMissingAPIKey):
		return requestError{
			Status:  http.StatusServiceUnavailable,
			Message: "API key is not configured; set " + config.EnvAPIKey,
			Type:    "configuration_error",
		}
	}

	return requestError{
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
		Type:    "server_error",
	}
}

func printStartupBanner(port int, model string, canSend bool) {
	host := "127.0.0.1"
	fmt.Println()
	fmt.Println("akashchat ready")
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Printf("Selected model: %s\n", model)
	if !canSend {
		fmt.Printf("Sending is disabled until %s is set.\n", config.EnvAPIKey)
	}
	fmt.Println("Endpoints:")
	fmt.Println("  GET    /health")
	fmt.Println("  GET    /api/models")
	fmt.Println("  GET    /api/session")
	fmt.Println("  DELETE /api/session")
	fmt.Println("  PUT    /api/session/model")
	fmt.Println("  POST   /api/chat")
	fmt.Println("  POST   /api/analyze")
	fmt.Printf("Example:\n  curl http://%s:%d/api/chat -H 'Content-Type: application/json' -d '{\"message\":\"hello\"}'\n\n", host, port)
}
