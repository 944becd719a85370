package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"akashchat/internal/analysis"
	"akashchat/internal/models"
	"akashchat/internal/session"
)

const analyzeUsage = `Usage:
  akashchat analyze --behavior <text> --antecedent <text> --consequence <text> [flags]

Flags:
  --config      string   Path to YAML configuration file (optional)
  --model       string   Model to use (defaults to the registry default)
  --previous    string   Previous attempts to change the behavior
  --emotions    string   Emotional or cognitive context`

func analyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, analyzeUsage)
	}

	var cfgPath, model string
	var fields analysis.Fields
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.StringVar(&model, "model", "", "model to use")
	fs.StringVar(&fields.Behavior, "behavior", "", "behavior to analyze")
	fs.StringVar(&fields.Antecedent, "antecedent", "", "context in which the behavior occurs")
	fs.StringVar(&fields.Consequence, "consequence", "", "immediate consequence of the behavior")
	fs.StringVar(&fields.PreviousAttempts, "previous", "", "previous attempts to change the behavior")
	fs.StringVar(&fields.EmotionsThoughts, "emotions", "", "emotional or cognitive context")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse analyze flags: %w", err)
	}

	if err := fields.Validate(); err != nil {
		return err
	}

	a, err := newApp(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.cfg.HasAPIKey() {
		return fmt.Errorf("%w: set AKASH_API_KEY", session.ErrMissingAPIKey)
	}
	if model == "" {
		model = a.registry.DefaultModel()
	}

	return printAnalysis(os.Stdout, a.analyzer.Analyze(ctx, a.cfg.API.APIKey, model, fields))
}

func printAnalysis(out io.Writer, result models.Result) error {
	switch res := result.(type) {
	case models.Success:
		fmt.Fprintln(out, res.Content)
		return nil
	case models.Failure:
		if res.SuggestedModel != "" {
			return fmt.Errorf("analysis failed: %s (try --model %s)", res.Message, res.SuggestedModel)
		}
		return fmt.Errorf("analysis failed: %s", res.Message)
	default:
		return errors.New("analysis returned no result")
	}
}
