package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"akashchat/internal/provider"
)

const (
	EnvAPIKey       = "AKASH_API_KEY"
	EnvAPIURL       = "AKASH_API_URL"
	EnvDefaultModel = "AKASH_DEFAULT_MODEL"

	defaultPort    = 8080
	defaultBaseURL = "https://chatapi.akash.network/api/v1"
	defaultTimeout = 180 * time.Second

	defaultSystemPrompt = "You are a helpful behavioral analysis assistant that provides evidence-based advice. " +
		"Be concise, practical, and friendly. Format your responses with clear headings and bullet points when appropriate. " +
		"Make your responses look professional and don't include any internal thinking or markdown symbols in your output " +
		"that would make your response look raw or unformatted."

	defaultAnalysisPrompt = "You are a behavioral analysis expert who provides detailed, evidence-based analyses and practical suggestions. " +
		"Format your response professionally with clear headings and avoid showing any internal thinking or raw markdown symbols."

	defaultGreeting = "Hello! I'm your AkashChat behavioral analysis assistant. How can I help you today?"
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Models   ModelsConfig   `yaml:"models"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Session  SessionConfig  `yaml:"session"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// APIConfig captures how to reach the completion endpoint.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout"`
	Temperature  float64       `yaml:"temperature"`
	MaxTokens    int           `yaml:"max_tokens"`
	SystemPrompt string        `yaml:"system_prompt"`
}

// ModelsConfig lists the known models. An empty list selects the built-in catalogue.
type ModelsConfig struct {
	Default string   `yaml:"default"`
	Known   []string `yaml:"known"`
}

// AnalysisConfig tunes the behavior-analysis prompt.
type AnalysisConfig struct {
	SystemPrompt string  `yaml:"system_prompt"`
	Temperature  float64 `yaml:"temperature"`
}

// SessionConfig tunes the chat session.
type SessionConfig struct {
	Greeting string `yaml:"greeting"`
}

// LoggerConfig selects log level, format and destination.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig toggles OpenTelemetry tracing.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Default returns a configuration usable without any file.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: defaultPort},
		API: APIConfig{
			BaseURL:      defaultBaseURL,
			Timeout:      defaultTimeout,
			Temperature:  0.7,
			MaxTokens:    2000,
			SystemPrompt: defaultSystemPrompt,
		},
		Models: ModelsConfig{Default: provider.DefaultModel},
		Analysis: AnalysisConfig{
			SystemPrompt: defaultAnalysisPrompt,
			Temperature:  0.5,
		},
		Session: SessionConfig{Greeting: defaultGreeting},
		Logger:  LoggerConfig{Level: "info", Format: "text", Output: "stderr"},
		Tracer:  TracerConfig{Exporter: "noop"},
	}
}

// Load reads optional .env and YAML files, applies environment overrides and
// validates the result. An empty path yields the defaults.
func Load(path string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	cfg.applyEnv()
	cfg.fillBlankPrompts()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// fillBlankPrompts restores the built-in personas when a file blanks them out.
func (c *Config) fillBlankPrompts() {
	if strings.TrimSpace(c.API.SystemPrompt) == "" {
		c.API.SystemPrompt = defaultSystemPrompt
	}
	if strings.TrimSpace(c.Analysis.SystemPrompt) == "" {
		c.Analysis.SystemPrompt = defaultAnalysisPrompt
	}
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		c.API.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		c.API.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDefaultModel)); v != "" {
		c.Models.Default = v
	}
}

// HasAPIKey reports whether sending is enabled.
func (c Config) HasAPIKey() bool {
	return strings.TrimSpace(c.API.APIKey) != ""
}

// Registry builds the model registry described by the configuration.
func (c Config) Registry() (*provider.Registry, error) {
	if len(c.Models.Known) == 0 {
		def := c.Models.Default
		if def == "" {
			def = provider.DefaultModel
		}
		return provider.NewRegistry(provider.DefaultRegistry().ListModels(), def)
	}
	return provider.NewRegistry(c.Models.Known, c.Models.Default)
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}

	if err := validateAPI(c.API); err != nil {
		return err
	}

	if _, err := c.Registry(); err != nil {
		return fmt.Errorf("models: %w", err)
	}

	if c.Analysis.Temperature < 0 || c.Analysis.Temperature > 2 {
		return fmt.Errorf("analysis.temperature must be within [0, 2], got %v", c.Analysis.Temperature)
	}

	switch strings.ToLower(c.Logger.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logger.format %q must be one of %q or %q", c.Logger.Format, "text", "json")
	}

	return nil
}

func validateAPI(api APIConfig) error {
	if strings.TrimSpace(api.BaseURL) == "" {
		return errors.New("api.base_url must be provided")
	}
	u, err := url.Parse(api.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url %q must be an absolute http(s) URL", api.BaseURL)
	}
	if api.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %s", api.Timeout)
	}
	if api.Temperature < 0 || api.Temperature > 2 {
		return fmt.Errorf("api.temperature must be within [0, 2], got %v", api.Temperature)
	}
	if api.MaxTokens < 0 {
		return fmt.Errorf("api.max_tokens must not be negative, got %d", api.MaxTokens)
	}
	return nil
}
