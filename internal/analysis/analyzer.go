package analysis

import (
	"context"

	"akashchat/internal/config"
	"akashchat/internal/models"
)

// Completer is the completion client contract the analyzer relies on.
type Completer interface {
	Complete(ctx context.Context, apiKey, model string, messages []models.Message, opts models.Options) models.Result
}

// Analyzer sends behavior-analysis prompts with a dedicated system persona.
type Analyzer struct {
	completer    Completer
	systemPrompt string
	temperature  float64
}

// NewAnalyzer builds an analyzer from the analysis configuration.
func NewAnalyzer(completer Completer, cfg config.AnalysisConfig) *Analyzer {
	return &Analyzer{
		completer:    completer,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
	}
}

// Analyze renders the prompt for f and sends it as the sole user message.
// The reply's structure is requested of the model, not verified.
func (a *Analyzer) Analyze(ctx context.Context, apiKey, model string, f Fields) models.Result {
	messages := []models.Message{
		{Role: models.RoleSystem, Content: a.systemPrompt},
		{Role: models.RoleUser, Content: BuildPrompt(f)},
	}
	return a.completer.Complete(ctx, apiKey, model, messages, models.Options{Temperature: a.temperature})
}
