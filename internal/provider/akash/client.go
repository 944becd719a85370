package akash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"akashchat/internal/config"
	"akashchat/internal/models"
	"akashchat/internal/provider"
	"akashchat/internal/sanitize"
	"akashchat/internal/tracer"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "akashchat/0.1"

	maxErrorBodyBytes    = 64 * 1024
	maxResponseBodyBytes = 8 << 20

	// EmptyContentReply replaces a choice that carried no content.
	EmptyContentReply = "I apologize, but I couldn't generate a response. Please try again."

	malformedResponseMessage = "Invalid response format from API"
)

// Client sends chat completions to the Akash Chat API.
type Client struct {
	chatURL      string
	systemPrompt string
	registry     *provider.Registry
	client       *http.Client
	logger       *slog.Logger
}

// New creates a completion client. The registry is consulted for model
// fallback; the http client carries the request timeout.
func New(cfg config.APIConfig, registry *provider.Registry, client *http.Client, logger *slog.Logger) (*Client, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	if registry == nil {
		return nil, errors.New("model registry must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	return &Client{
		chatURL:      baseURL + "/chat/completions",
		systemPrompt: cfg.SystemPrompt,
		registry:     registry,
		client:       client,
		logger:       logger,
	}, nil
}

// Registry returns the model registry the client resolves against.
func (c *Client) Registry() *provider.Registry {
	return c.registry
}

// Complete performs one completion round trip. It never returns an error:
// every fault is reported as a models.Failure.
func (c *Client) Complete(ctx context.Context, apiKey, model string, messages []models.Message, opts models.Options) (result models.Result) {
	req := c.BuildRequest(model, messages, opts)
	if req.Model != model {
		c.logger.Warn("model not in registry, using default", "requested", model, "model", req.Model)
	}

	ctx, span := tracer.StartSpan(ctx, "akash.complete",
		trace.WithAttributes(
			attribute.String("llm.model", req.Model),
			attribute.Int("llm.messages", len(req.Messages)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = c.fault(models.FailureTransport, 0, fmt.Sprintf("completion request aborted: %v", r))
		}

		switch res := result.(type) {
		case models.Success:
			tracer.SetOK(span)
			c.logger.Info("completion finished",
				"model", req.Model,
				"latency_ms", time.Since(start).Milliseconds(),
				"chars", len(res.Content),
			)
		case models.Failure:
			tracer.RecordFailure(span, res.Message)
			c.logger.Warn("completion failed",
				"model", req.Model,
				"kind", res.Kind,
				"status", res.StatusCode,
				"suggested_model", res.SuggestedModel,
				"error", res.Message,
			)
		}
	}()

	return c.dispatch(ctx, apiKey, req)
}

// BuildRequest resolves the model, normalises roles and prepends the default
// system message when the history has none. Caller order is preserved.
func (c *Client) BuildRequest(model string, messages []models.Message, opts models.Options) models.CompletionRequest {
	effective, _ := c.registry.Resolve(model)
	opts = opts.WithDefaults()

	normalised := make([]models.Message, 0, len(messages)+1)
	hasSystem := false
	for _, msg := range messages {
		role := msg.Role
		if !role.Valid() {
			role = models.RoleUser
		}
		if role == models.RoleSystem {
			hasSystem = true
		}
		normalised = append(normalised, models.Message{Role: role, Content: msg.Content})
	}

	if !hasSystem {
		normalised = append([]models.Message{{Role: models.RoleSystem, Content: c.systemPrompt}}, normalised...)
	}

	return models.CompletionRequest{
		Model:       effective,
		Messages:    normalised,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
}

func (c *Client) dispatch(ctx context.Context, apiKey string, payload models.CompletionRequest) models.Result {
	httpReq, err := c.newRequest(ctx, apiKey, payload)
	if err != nil {
		return c.fault(models.FailureTransport, 0, err.Error())
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return c.fault(models.FailureTransport, 0, err.Error())
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return c.fault(models.FailureUpstream, httpResp.StatusCode, readFaultMessage(httpResp))
	}

	var body chatResponse
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, maxResponseBodyBytes)).Decode(&body); err != nil {
		return malformed(httpResp.StatusCode)
	}
	return body.toResult(httpResp.StatusCode, c)
}

func (c *Client) newRequest(ctx context.Context, apiKey string, payload models.CompletionRequest) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	return req, nil
}

// fault builds a Failure whose suggested model is the first allowed model
// named in the message, or the registry default when none is named.
func (c *Client) fault(kind models.FailureKind, status int, message string) models.Failure {
	allowed := AllowedModels(message)
	if len(allowed) == 0 {
		allowed = []string{c.registry.DefaultModel()}
	}
	return models.Failure{
		Kind:           kind,
		Message:        message,
		StatusCode:     status,
		SuggestedModel: allowed[0],
		AllowedModels:  allowed,
	}
}

func malformed(status int) models.Failure {
	return models.Failure{
		Kind:       models.FailureMalformed,
		Message:    malformedResponseMessage,
		StatusCode: status,
	}
}

type chatResponse struct {
	ID      string          `json:"id"`
	Choices []chatChoice    `json:"choices"`
	Error   *apiErrorObject `json:"error,omitempty"`
}

type chatChoice struct {
	Index        int          `json:"index"`
	Message      *chatMessage `json:"message"`
	FinishReason string       `json:"finish_reason"`
}

type chatMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type apiErrorObject struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func (r chatResponse) toResult(status int, c *Client) models.Result {
	if len(r.Choices) == 0 {
		if r.Error != nil && strings.TrimSpace(r.Error.Message) != "" {
			return c.fault(models.FailureUpstream, status, r.Error.Message)
		}
		return malformed(status)
	}

	msg := r.Choices[0].Message
	if msg == nil || msg.Content == nil || strings.TrimSpace(*msg.Content) == "" {
		return models.Success{Content: EmptyContentReply}
	}
	return models.Success{Content: sanitize.Reasoning(*msg.Content)}
}
