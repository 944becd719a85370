package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"akashchat/internal/config"
	"akashchat/internal/models"
	"akashchat/internal/provider"
	"akashchat/internal/provider/akash"
	"akashchat/internal/session"
)

type scriptedInput struct {
	lines   []string
	history []string
}

func (s *scriptedInput) Prompt(string) (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptedInput) AppendHistory(item string) {
	s.history = append(s.history, item)
}

type echoCompleter struct{}

func (echoCompleter) Complete(_ context.Context, _, model string, messages []models.Message, _ models.Options) models.Result {
	last := messages[len(messages)-1]
	return models.Success{Content: model + ": " + last.Content}
}

func newChatFixture(t *testing.T) (*session.Session, *provider.Registry) {
	t.Helper()
	registry, err := provider.NewRegistry([]string{"alpha", "beta"}, "alpha")
	require.NoError(t, err)
	return session.New(echoCompleter{}, registry, session.Config{APIKey: "key", Greeting: "Hello!"}, nil), registry
}

func TestRunChatLoop(t *testing.T) {
	sess, registry := newChatFixture(t)
	in := &scriptedInput{lines: []string{"hi", "", "/models", "/model beta", "again", "/model nope", "/reset", "/quit", "never read"}}
	var out bytes.Buffer

	require.NoError(t, runChatLoop(context.Background(), in, &out, sess, registry))

	text := out.String()
	assert.Contains(t, text, "assistant> Hello!")
	assert.Contains(t, text, "assistant> alpha: hi")
	assert.Contains(t, text, "* alpha (default)")
	assert.Contains(t, text, "switched to beta")
	assert.Contains(t, text, "assistant> beta: again")
	assert.Contains(t, text, "error: unknown model")
	assert.Contains(t, text, "conversation cleared")
	assert.NotContains(t, text, "never read")

	assert.Equal(t, []string{"hi", "/models", "/model beta", "again", "/model nope", "/reset", "/quit"}, in.history)
	assert.Len(t, sess.Transcript(), 1)
}

func TestRunChatLoopStopsOnEOF(t *testing.T) {
	sess, registry := newChatFixture(t)
	var out bytes.Buffer

	require.NoError(t, runChatLoop(context.Background(), &scriptedInput{}, &out, sess, registry))
}

func TestRunChatLoopCancelled(t *testing.T) {
	sess, registry := newChatFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runChatLoop(ctx, &scriptedInput{lines: []string{"hi"}}, io.Discard, sess, registry)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrintAnalysis(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printAnalysis(&out, models.Success{Content: "GENERAL:"}))
	assert.Equal(t, "GENERAL:\n", out.String())

	err := printAnalysis(io.Discard, models.Failure{Message: "denied", SuggestedModel: "beta"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--model beta")
}

func TestPrintModels(t *testing.T) {
	registry, err := provider.NewRegistry([]string{"alpha", "beta"}, "beta")
	require.NoError(t, err)

	var out bytes.Buffer
	printModels(&out, registry)
	assert.Equal(t, "alpha\nbeta (default)\n", out.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	assert.Error(t, Execute(context.Background(), []string{"bogus"}))
	assert.NoError(t, Execute(context.Background(), []string{"--help"}))
}

func TestNewAppShutsDownTracerWhenClientFails(t *testing.T) {
	prevTracer, prevClient := setupTracer, newCompletionClient
	t.Cleanup(func() {
		setupTracer, newCompletionClient = prevTracer, prevClient
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	shutdowns := 0
	setupTracer = func(context.Context, config.TracerConfig) (func(context.Context) error, error) {
		return func(context.Context) error {
			shutdowns++
			return nil
		}, nil
	}
	clientErr := errors.New("client unavailable")
	newCompletionClient = func(config.Config, *slog.Logger) (*akash.Client, *provider.Registry, error) {
		return nil, nil, clientErr
	}

	a, err := newApp(context.Background(), "")
	assert.Nil(t, a)
	assert.ErrorIs(t, err, clientErr)
	assert.Equal(t, 1, shutdowns)
}

func TestMainExitCodes(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, 0, Main(context.Background(), []string{"help"}, &stderr))
	assert.Empty(t, stderr.String())

	assert.Equal(t, 1, Main(context.Background(), []string{"bogus"}, &stderr))
	assert.Contains(t, stderr.String(), `error: unknown command "bogus"`)
}
