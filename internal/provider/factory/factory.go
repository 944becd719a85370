package factory

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"akashchat/internal/config"
	"akashchat/internal/provider"
	"akashchat/internal/provider/akash"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// NewCompletionClient builds the model registry and the Akash completion
// client described by cfg.
func NewCompletionClient(cfg config.Config, logger *slog.Logger) (*akash.Client, *provider.Registry, error) {
	registry, err := cfg.Registry()
	if err != nil {
		return nil, nil, fmt.Errorf("build model registry: %w", err)
	}

	client, err := akash.New(cfg.API, registry, NewHTTPClient(cfg.API.Timeout), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise akash client: %w", err)
	}
	return client, registry, nil
}

// NewHTTPClient returns a client whose overall timeout bounds each completion.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
