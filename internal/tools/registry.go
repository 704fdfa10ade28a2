// ABOUTME: Immutable tool registry with id and name lookup built once at startup
// ABOUTME: Rejects duplicate ids and names; resolves parameter schemas for validation

package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// ErrToolCollision indicates two tools share an id or an external name.
var ErrToolCollision = errors.New("tool name collision")

// ErrInvalidTool indicates a tool definition is incomplete.
var ErrInvalidTool = errors.New("invalid tool definition")

// ErrInvalidArguments indicates call arguments do not match the tool's schema.
var ErrInvalidArguments = errors.New("invalid arguments")

// Handler executes a tool call and returns its text result.
type Handler func(ctx context.Context, env *Env, args Arguments) (string, error)

// Tool is a named, schema-described callable.
type Tool struct {
	ID          string
	Name        string
	Description string
	Schema      *jsonschema.Schema
	Handler     Handler

	resolved *jsonschema.Resolved
}

// Registry is a read-only set of tools. It is safe for concurrent use
// because nothing mutates it after NewRegistry returns.
type Registry struct {
	ordered []*Tool
	byID    map[string]*Tool
	byName  map[string]*Tool
}

// NewRegistry builds a registry from tools in the given order.
func NewRegistry(tools ...*Tool) (*Registry, error) {
	r := &Registry{
		ordered: make([]*Tool, 0, len(tools)),
		byID:    make(map[string]*Tool, len(tools)),
		byName:  make(map[string]*Tool, len(tools)),
	}

	for _, t := range tools {
		if t == nil || t.ID == "" || t.Name == "" || t.Handler == nil {
			return nil, fmt.Errorf("%w: tool needs an id, a name and a handler", ErrInvalidTool)
		}
		if _, exists := r.byID[t.ID]; exists {
			return nil, fmt.Errorf("%w: id %q registered twice", ErrToolCollision, t.ID)
		}
		if other, exists := r.byName[t.Name]; exists {
			return nil, fmt.Errorf("%w: %q used by both %s and %s", ErrToolCollision, t.Name, other.ID, t.ID)
		}

		if t.Schema == nil {
			t.Schema = &jsonschema.Schema{Type: "object"}
		}
		resolved, err := t.Schema.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: schema for %q: %w", ErrInvalidTool, t.Name, err)
		}
		t.resolved = resolved

		r.ordered = append(r.ordered, t)
		r.byID[t.ID] = t
		r.byName[t.Name] = t
	}

	return r, nil
}

// All returns every tool in registration order.
func (r *Registry) All() []*Tool {
	out := make([]*Tool, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ByName returns the tool with the given external name, or nil.
func (r *Registry) ByName(name string) *Tool {
	return r.byName[name]
}

// ByID returns the tool with the given internal id, or nil.
func (r *Registry) ByID(id string) *Tool {
	return r.byID[id]
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.ordered)
}

// Validate checks args against the tool's parameter schema.
func (r *Registry) Validate(t *Tool, args Arguments) error {
	if t.resolved == nil {
		return nil
	}
	if args == nil {
		args = Arguments{}
	}
	if err := t.resolved.Validate(map[string]any(args)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	return nil
}
