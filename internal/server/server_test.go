package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"akashchat/internal/analysis"
	"akashchat/internal/config"
	"akashchat/internal/models"
	"akashchat/internal/provider"
	"akashchat/internal/session"
	"akashchat/internal/translator"
)

type stubCompleter struct {
	result models.Result
	models []string
}

func (s *stubCompleter) Complete(_ context.Context, _ string, model string, _ []models.Message, _ models.Options) models.Result {
	s.models = append(s.models, model)
	return s.result
}

func newTestServer(t *testing.T, apiKey string, completer *stubCompleter) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.API.APIKey = apiKey
	cfg.Models.Known = []string{"alpha", "beta"}
	cfg.Models.Default = "alpha"

	registry, err := cfg.Registry()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sess := session.New(completer, registry, session.Config{APIKey: apiKey, Greeting: "Hello!"}, logger)
	analyzer := analysis.NewAnalyzer(completer, cfg.Analysis)

	srv, err := New(cfg, sess, analyzer, registry, logger)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, "key", &stubCompleter{})

	rec := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestModels(t *testing.T) {
	srv := newTestServer(t, "key", &stubCompleter{})

	rec := do(t, srv, http.MethodGet, "/api/models/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[translator.ModelsResponse](t, rec)
	assert.Equal(t, "alpha", resp.Selected)
	require.Len(t, resp.Models, 2)
	assert.True(t, resp.Models[0].Default)
}

func TestChatSuccess(t *testing.T) {
	srv := newTestServer(t, "key", &stubCompleter{result: models.Success{Content: "Hello!"}})

	rec := do(t, srv, http.MethodPost, "/api/chat", `{"message":"Hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[translator.ChatResponse](t, rec)
	require.NotNil(t, resp.Reply)
	assert.Equal(t, "Hello!", resp.Reply.Content)
	assert.Equal(t, "alpha", resp.Model)
	assert.False(t, resp.Switched)

	state := decode[translator.SessionResponse](t, do(t, srv, http.MethodGet, "/api/session", ""))
	assert.Len(t, state.Messages, 3)
	assert.True(t, state.CanSend)
}

func TestChatModelSwitch(t *testing.T) {
	completer := &stubCompleter{result: models.Failure{
		Kind:           models.FailureUpstream,
		Message:        "Team not allowed to access model alpha. Allowed team models = ['beta']",
		SuggestedModel: "beta",
	}}
	srv := newTestServer(t, "key", completer)

	rec := do(t, srv, http.MethodPost, "/api/chat", `{"message":"Hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[translator.ChatResponse](t, rec)
	assert.Nil(t, resp.Reply)
	assert.True(t, resp.Switched)
	assert.Equal(t, "beta", resp.Model)
	assert.Contains(t, resp.Notice, "Switched to 'beta'")
}

type contextCheckingCompleter struct{}

func (contextCheckingCompleter) Complete(ctx context.Context, _, _ string, _ []models.Message, _ models.Options) models.Result {
	if err := ctx.Err(); err != nil {
		return models.Failure{Kind: models.FailureTransport, Message: err.Error(), SuggestedModel: "alpha"}
	}
	return models.Success{Content: "finished"}
}

func TestChatSurvivesClientDisconnect(t *testing.T) {
	srv := newTestServer(t, "key", &stubCompleter{})
	srv.session = session.New(contextCheckingCompleter{}, srv.registry, session.Config{APIKey: "key", Greeting: "Hello!"}, srv.logger)
	require.NoError(t, srv.session.SetModel("beta"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"Hi"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[translator.ChatResponse](t, rec)
	require.NotNil(t, resp.Reply)
	assert.Equal(t, "finished", resp.Reply.Content)
	assert.Equal(t, "beta", srv.session.Model())
}

func TestChatRequestErrors(t *testing.T) {
	srv := newTestServer(t, "key", &stubCompleter{result: models.Success{Content: "x"}})

	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "blank message", body: `{"message":"   "}`},
		{name: "two objects", body: `{"message":"a"}{"message":"b"}`},
		{name: "not json", body: `hello`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			body := decode[errorBody](t, rec)
			assert.Equal(t, "invalid_request_error", body.Error.Type)
		})
	}
}

func TestChatWithoutAPIKey(t *testing.T) {
	completer := &stubCompleter{}
	srv := newTestServer(t, "", completer)

	rec := do(t, srv, http.MethodPost, "/api/chat", `{"message":"Hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, completer.models)

	rec = do(t, srv, http.MethodPost, "/api/analyze", `{"behavior":"b","antecedent":"a","consequence":"c"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSelectModelAndReset(t *testing.T) {
	srv := newTestServer(t, "key", &stubCompleter{result: models.Success{Content: "x"}})

	rec := do(t, srv, http.MethodPut, "/api/session/model", `{"model":"beta"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "beta", decode[translator.SessionResponse](t, rec).Model)

	rec = do(t, srv, http.MethodPut, "/api/session/model", `{"model":"gpt-4"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	do(t, srv, http.MethodPost, "/api/chat", `{"message":"Hi"}`)
	rec = do(t, srv, http.MethodDelete, "/api/session", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	state := decode[translator.SessionResponse](t, do(t, srv, http.MethodGet, "/api/session", ""))
	assert.Len(t, state.Messages, 1)
	assert.Equal(t, "beta", state.Model)
}

func TestAnalyze(t *testing.T) {
	completer := &stubCompleter{result: models.Success{Content: "GENERAL:\nok\n\nHabits:\n1. **Walk**"}}
	srv := newTestServer(t, "key", completer)

	rec := do(t, srv, http.MethodPost, "/api/analyze", `{"behavior":"b","antecedent":"a","consequence":"c","model":"beta"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[translator.AnalyzeResponse](t, rec)
	assert.Contains(t, resp.Content, "Habits:")
	assert.Equal(t, "beta", resp.Model)
	assert.Equal(t, []string{"beta"}, completer.models)
}

func TestAnalyzeFailure(t *testing.T) {
	completer := &stubCompleter{result: models.Failure{
		Kind:           models.FailureUpstream,
		Message:        "Allowed team models = ['beta']",
		SuggestedModel: "beta",
		AllowedModels:  []string{"beta"},
	}}
	srv := newTestServer(t, "key", completer)

	rec := do(t, srv, http.MethodPost, "/api/analyze", `{"behavior":"b","antecedent":"a","consequence":"c"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	body := decode[errorBody](t, rec)
	assert.Equal(t, "beta", body.Error.SuggestedModel)
	assert.Equal(t, []string{"beta"}, body.Error.AllowedModels)
	assert.Equal(t, "upstream", body.Error.Kind)
	assert.Equal(t, []string{"alpha"}, completer.models, "defaults to the session model")
}

func TestAnalyzeValidation(t *testing.T) {
	srv := newTestServer(t, "key", &stubCompleter{})

	rec := do(t, srv, http.MethodPost, "/api/analyze", `{"behavior":"b"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, "key", &stubCompleter{})

	rec := do(t, srv, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "invalid_request_error", decode[errorBody](t, rec).Error.Type)
}

func TestNewRequiresCollaborators(t *testing.T) {
	cfg := config.Default()
	registry := provider.DefaultRegistry()

	_, err := New(cfg, nil, nil, registry, nil)
	assert.Error(t, err)
}
