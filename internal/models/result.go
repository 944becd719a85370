package models

// Result is the outcome of a completion call. It is either Success or Failure.
type Result interface {
	isResult()
}

// Success carries sanitised assistant content.
type Success struct {
	Content string
}

// FailureKind classifies why a completion did not produce content.
type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureUpstream  FailureKind = "upstream"
	FailureMalformed FailureKind = "malformed"
)

// Failure carries a displayable message and an optional model to switch to.
// SuggestedModel is empty when no alternative applies.
type Failure struct {
	Kind           FailureKind
	Message        string
	StatusCode     int
	SuggestedModel string
	AllowedModels  []string
}

func (Success) isResult() {}
func (Failure) isResult() {}

// Error lets a Failure travel through error-returning code paths.
func (f Failure) Error() string {
	return f.Message
}
