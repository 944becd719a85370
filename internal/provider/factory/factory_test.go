package factory

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"akashchat/internal/config"
)

func TestNewCompletionClient(t *testing.T) {
	cfg := config.Default()
	cfg.Models.Known = []string{"alpha", "beta"}
	cfg.Models.Default = "alpha"

	client, registry, err := NewCompletionClient(cfg, slog.Default())
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, "alpha", registry.DefaultModel())
	assert.Same(t, registry, client.Registry())
}

func TestNewCompletionClientBadRegistry(t *testing.T) {
	cfg := config.Default()
	cfg.Models.Known = []string{"alpha"}
	cfg.Models.Default = "beta"

	_, _, err := NewCompletionClient(cfg, slog.Default())
	assert.Error(t, err)
}

func TestNewHTTPClientTimeout(t *testing.T) {
	client := NewHTTPClient(180 * time.Second)
	assert.Equal(t, 180*time.Second, client.Timeout)
}
