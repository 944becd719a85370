package models

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the roles accepted by the completion API.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Message represents a single conversational message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
)

// Options tunes a single completion. Zero values select the defaults.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// WithDefaults returns a copy of o where unset fields carry the defaults.
func (o Options) WithDefaults() Options {
	if o.Temperature == 0 {
		o.Temperature = DefaultTemperature
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	return o
}

// CompletionRequest is the normalised payload sent to the completion endpoint.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// Model describes a known model for listings.
type Model struct {
	ID      string
	Default bool
}
