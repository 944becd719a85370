package translator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"akashchat/internal/analysis"
	"akashchat/internal/models"
	"akashchat/internal/provider"
	"akashchat/internal/session"
)

var (
	errEmptyMessage   = errors.New("message must not be empty")
	errEmptyModel     = errors.New("model must be provided")
	errInvalidContent = errors.New("invalid message content")
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string
}

// UnmarshalJSON accepts plain string or array-of-text message content.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode chat request: %w", err)
	}

	content, err := extractMessageContent(raw.Message)
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return errEmptyMessage
	}
	r.Message = content
	return nil
}

// ChatResponse reports the outcome of one session turn.
type ChatResponse struct {
	Reply    *session.Entry `json:"reply,omitempty"`
	Notice   string         `json:"notice,omitempty"`
	Model    string         `json:"model"`
	Switched bool           `json:"switched"`
}

// FromTurn builds the response for a settled turn.
func FromTurn(turn session.Turn) ChatResponse {
	return ChatResponse{
		Reply:    turn.Reply,
		Notice:   turn.Notice,
		Model:    turn.Model,
		Switched: turn.Switched,
	}
}

// AnalyzeRequest is the body of POST /api/analyze.
type AnalyzeRequest struct {
	analysis.Fields
	Model string
}

// UnmarshalJSON decodes and validates the behavioral observations.
func (r *AnalyzeRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Behavior         string `json:"behavior"`
		Antecedent       string `json:"antecedent"`
		Consequence      string `json:"consequence"`
		PreviousAttempts string `json:"previous_attempts"`
		EmotionsThoughts string `json:"emotions_thoughts"`
		Model            string `json:"model"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode analyze request: %w", err)
	}

	r.Fields = analysis.Fields{
		Behavior:         strings.TrimSpace(raw.Behavior),
		Antecedent:       strings.TrimSpace(raw.Antecedent),
		Consequence:      strings.TrimSpace(raw.Consequence),
		PreviousAttempts: strings.TrimSpace(raw.PreviousAttempts),
		EmotionsThoughts: strings.TrimSpace(raw.EmotionsThoughts),
	}
	r.Model = strings.TrimSpace(raw.Model)
	return r.Fields.Validate()
}

// AnalyzeResponse carries a successful analysis.
type AnalyzeResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

// SelectModelRequest is the body of PUT /api/session/model.
type SelectModelRequest struct {
	Model string
}

// UnmarshalJSON requires a non-blank model id.
func (r *SelectModelRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode model selection: %w", err)
	}
	r.Model = strings.TrimSpace(raw.Model)
	if r.Model == "" {
		return errEmptyModel
	}
	return nil
}

// ModelEntry mirrors the OpenAI model object.
type ModelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
	Default bool   `json:"default"`
}

// ModelsResponse is the body of GET /api/models.
type ModelsResponse struct {
	Models   []ModelEntry `json:"models"`
	Selected string       `json:"selected"`
}

// FromRegistry lists the registry with the current selection.
func FromRegistry(registry *provider.Registry, selected string) ModelsResponse {
	listed := registry.Models()
	entries := make([]ModelEntry, 0, len(listed))
	for _, m := range listed {
		entries = append(entries, ModelEntry{
			ID:      m.ID,
			Object:  "model",
			OwnedBy: "akash",
			Default: m.Default,
		})
	}
	return ModelsResponse{Models: entries, Selected: selected}
}

// SessionResponse is the body of GET /api/session.
type SessionResponse struct {
	Model    string          `json:"model"`
	CanSend  bool            `json:"can_send"`
	Messages []session.Entry `json:"messages"`
}

// FromSession snapshots a session.
func FromSession(s *session.Session) SessionResponse {
	return SessionResponse{
		Model:    s.Model(),
		CanSend:  s.CanSend(),
		Messages: s.Transcript(),
	}
}

// FailureDetails is attached to error bodies produced from a models.Failure.
type FailureDetails struct {
	SuggestedModel string   `json:"suggested_model,omitempty"`
	AllowedModels  []string `json:"allowed_models,omitempty"`
	Kind           string   `json:"kind"`
}

// FromFailure extracts the details a client needs to recover.
func FromFailure(f models.Failure) FailureDetails {
	return FailureDetails{
		SuggestedModel: f.SuggestedModel,
		AllowedModels:  f.AllowedModels,
		Kind:           string(f.Kind),
	}
}

func extractMessageContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", errEmptyMessage
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var segments []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &segments); err == nil {
		var builder strings.Builder
		for _, segment := range segments {
			if segment.Type != "text" {
				return "", fmt.Errorf("%w: segment type %q not supported", errInvalidContent, segment.Type)
			}
			builder.WriteString(segment.Text)
		}
		return builder.String(), nil
	}

	return "", fmt.Errorf("%w: unsupported content structure", errInvalidContent)
}
