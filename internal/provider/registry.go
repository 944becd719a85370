package provider

import (
	"errors"
	"fmt"
	"strings"

	"akashchat/internal/models"
)

// ErrUnknownModel indicates the requested model is not in the registry.
var ErrUnknownModel = errors.New("unknown model")

// ErrDuplicateModel indicates the same model id was listed twice.
var ErrDuplicateModel = errors.New("model listed more than once")

// ErrEmptyRegistry indicates a registry was built without any models.
var ErrEmptyRegistry = errors.New("at least one model must be registered")

// DefaultModel works with most Akash API keys.
const DefaultModel = "Meta-Llama-3-2-3B-Instruct"

var builtinModels = []string{
	"DeepSeek-R1",
	"DeepSeek-R1-Distill-Llama-70B",
	"DeepSeek-R1-Distill-Qwen-14B",
	"DeepSeek-R1-Distill-Qwen-32B",
	"Meta-Llama-3-1-8B-Instruct-FP8",
	"Meta-Llama-3-1-405B-Instruct-FP8",
	"Meta-Llama-3-2-3B-Instruct",
	"Meta-Llama-3-3-70B-Instruct",
}

// Registry is the immutable set of known model ids plus the designated default.
// The remote service remains the authority on access; the registry is a hint.
type Registry struct {
	ids          []string
	index        map[string]struct{}
	defaultModel string
}

// NewRegistry validates and freezes the given model list.
func NewRegistry(known []string, defaultModel string) (*Registry, error) {
	if len(known) == 0 {
		return nil, ErrEmptyRegistry
	}

	ids := make([]string, 0, len(known))
	index := make(map[string]struct{}, len(known))
	for _, id := range known {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, errors.New("model id must not be empty")
		}
		if _, exists := index[id]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateModel, id)
		}
		index[id] = struct{}{}
		ids = append(ids, id)
	}

	defaultModel = strings.TrimSpace(defaultModel)
	if _, ok := index[defaultModel]; !ok {
		return nil, fmt.Errorf("default model %q: %w", defaultModel, ErrUnknownModel)
	}

	return &Registry{
		ids:          ids,
		index:        index,
		defaultModel: defaultModel,
	}, nil
}

// DefaultRegistry returns the built-in Akash model catalogue.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(builtinModels, DefaultModel)
	if err != nil {
		panic(fmt.Sprintf("builtin model registry is invalid: %v", err))
	}
	return r
}

// ListModels returns the known model ids in their configured order.
func (r *Registry) ListModels() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// Models returns listing descriptors with the default flagged.
func (r *Registry) Models() []models.Model {
	out := make([]models.Model, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, models.Model{ID: id, Default: id == r.defaultModel})
	}
	return out
}

// DefaultModel returns the registry default, always a member of ListModels.
func (r *Registry) DefaultModel() string {
	return r.defaultModel
}

// Known reports whether id is in the registry.
func (r *Registry) Known(id string) bool {
	_, ok := r.index[id]
	return ok
}

// Resolve maps unknown ids to the default model.
func (r *Registry) Resolve(id string) (effective string, substituted bool) {
	if r.Known(id) {
		return id, false
	}
	return r.defaultModel, true
}

// LookupModel returns id when known and ErrUnknownModel otherwise.
func (r *Registry) LookupModel(id string) (string, error) {
	if !r.Known(id) {
		return "", fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	return id, nil
}
