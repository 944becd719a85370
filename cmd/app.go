package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"akashchat/internal/analysis"
	"akashchat/internal/config"
	"akashchat/internal/logger"
	"akashchat/internal/provider"
	"akashchat/internal/provider/akash"
	providerfactory "akashchat/internal/provider/factory"
	"akashchat/internal/session"
	"akashchat/internal/tracer"
)

// app bundles the components every command needs.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	client   *akash.Client
	registry *provider.Registry
	session  *session.Session
	analyzer *analysis.Analyzer
	closers  []func(context.Context) error
}

// Swapped in tests.
var (
	setupTracer         = tracer.Setup
	newCompletionClient = providerfactory.NewCompletionClient
)

func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)

	shutdownTracer, err := setupTracer(ctx, cfg.Tracer)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	client, registry, err := newCompletionClient(cfg, log)
	if err != nil {
		_ = shutdownTracer(ctx)
		_ = closeLog()
		return nil, err
	}

	sess := session.New(client, registry, session.Config{
		APIKey:      cfg.API.APIKey,
		Greeting:    cfg.Session.Greeting,
		Temperature: cfg.API.Temperature,
		MaxTokens:   cfg.API.MaxTokens,
	}, log)

	return &app{
		cfg:      cfg,
		logger:   log,
		client:   client,
		registry: registry,
		session:  sess,
		analyzer: analysis.NewAnalyzer(client, cfg.Analysis),
		closers: []func(context.Context) error{
			shutdownTracer,
			func(context.Context) error { return closeLog() },
		},
	}, nil
}

func (a *app) Close() error {
	var errs []error
	for _, closeFn := range a.closers {
		if err := closeFn(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
