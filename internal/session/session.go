// Package session holds one chat transcript and drives completion turns,
// including the model-fallback policy.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"akashchat/internal/models"
	"akashchat/internal/provider"
)

var (
	// ErrEmptyInput is returned for blank user messages.
	ErrEmptyInput = errors.New("message must not be empty")
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("no API key configured")
)

// ApologyReply is appended when a turn fails without a usable alternative model.
const ApologyReply = "I apologize, but I encountered an error processing your request. Please try using a different model or try again later."

// Completer is the completion client contract the session relies on.
type Completer interface {
	Complete(ctx context.Context, apiKey, model string, messages []models.Message, opts models.Options) models.Result
}

// Entry is one transcript message.
type Entry struct {
	ID        string      `json:"id"`
	Role      models.Role `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// Config tunes a session.
type Config struct {
	APIKey      string
	Greeting    string
	Temperature float64
	MaxTokens   int
}

// Turn reports what happened to one Send.
type Turn struct {
	// Reply is the appended assistant entry, nil when the model was switched.
	Reply *Entry
	// Notice is a user-facing status line, empty on success.
	Notice string
	// Model is the selection after the turn.
	Model string
	// Switched reports whether the selection changed because of a failure.
	Switched bool
}

// Session owns an append-only transcript and the current model selection.
// Turns are serialised: a Send blocks until the previous one has settled.
type Session struct {
	completer Completer
	registry  *provider.Registry
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	turnMu sync.Mutex

	mu         sync.RWMutex
	transcript []Entry
	model      string
}

// New creates a session selecting the registry default model.
func New(completer Completer, registry *provider.Registry, cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		completer: completer,
		registry:  registry,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		model:     registry.DefaultModel(),
	}
	s.transcript = s.initialTranscript()
	return s
}

// CanSend reports whether an API key is configured.
func (s *Session) CanSend() bool {
	return strings.TrimSpace(s.cfg.APIKey) != ""
}

// Model returns the selected model.
func (s *Session) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// SetModel selects a model from the registry.
func (s *Session) SetModel(id string) error {
	id, err := s.registry.LookupModel(strings.TrimSpace(id))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.model = id
	s.mu.Unlock()
	return nil
}

// Transcript returns a copy of the transcript.
func (s *Session) Transcript() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Reset discards the conversation, keeping the model selection.
func (s *Session) Reset() {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	s.mu.Lock()
	s.transcript = s.initialTranscript()
	s.mu.Unlock()
}

// Send appends the user's message, requests a completion over the whole
// transcript and applies the outcome. It returns an error only when nothing
// was attempted.
func (s *Session) Send(ctx context.Context, text string) (Turn, error) {
	if strings.TrimSpace(text) == "" {
		return Turn{}, ErrEmptyInput
	}
	if !s.CanSend() {
		return Turn{}, ErrMissingAPIKey
	}

	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	s.mu.Lock()
	s.transcript = append(s.transcript, s.newEntry(models.RoleUser, text))
	history := toMessages(s.transcript)
	model := s.model
	s.mu.Unlock()

	result := s.completer.Complete(ctx, s.cfg.APIKey, model, history, models.Options{Temperature: s.cfg.Temperature, MaxTokens: s.cfg.MaxTokens})

	s.mu.Lock()
	defer s.mu.Unlock()

	switch res := result.(type) {
	case models.Success:
		reply := s.appendLocked(models.RoleAssistant, res.Content)
		return Turn{Reply: &reply, Model: s.model}, nil
	case models.Failure:
		// A cancelled caller is not a rejection of the model.
		if ctx.Err() != nil {
			s.logger.Warn("completion interrupted by caller", "model", model, "error", ctx.Err())
			reply := s.appendLocked(models.RoleAssistant, ApologyReply)
			return Turn{Reply: &reply, Notice: failureNotice(res), Model: s.model}, nil
		}
		if res.SuggestedModel != "" && res.SuggestedModel != model {
			s.model = res.SuggestedModel
			s.logger.Info("switching model after rejection", "from", model, "to", res.SuggestedModel, "error", res.Message)
			return Turn{
				Notice:   fmt.Sprintf("Model '%s' is not available. Switched to '%s'. Please try again.", model, res.SuggestedModel),
				Model:    s.model,
				Switched: true,
			}, nil
		}
		reply := s.appendLocked(models.RoleAssistant, ApologyReply)
		return Turn{Reply: &reply, Notice: failureNotice(res), Model: s.model}, nil
	default:
		reply := s.appendLocked(models.RoleAssistant, ApologyReply)
		return Turn{Reply: &reply, Notice: "Failed to get a response. Please try again later.", Model: s.model}, nil
	}
}

func failureNotice(f models.Failure) string {
	if strings.TrimSpace(f.Message) == "" {
		return "Failed to get a response from the AI"
	}
	return f.Message
}

func (s *Session) appendLocked(role models.Role, content string) Entry {
	e := s.newEntry(role, content)
	s.transcript = append(s.transcript, e)
	return e
}

func (s *Session) newEntry(role models.Role, content string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: s.now().UTC(),
	}
}

func (s *Session) initialTranscript() []Entry {
	if strings.TrimSpace(s.cfg.Greeting) == "" {
		return nil
	}
	return []Entry{s.newEntry(models.RoleAssistant, s.cfg.Greeting)}
}

func toMessages(entries []Entry) []models.Message {
	out := make([]models.Message, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.Message{Role: e.Role, Content: e.Content})
	}
	return out
}
