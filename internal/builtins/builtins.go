// ABOUTME: Assembles the built-in tool set served by the bridge
// ABOUTME: Shared helpers for schemas, argument binding and editor replies

package builtins

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/2389/editor-bridge/internal/tools"
)

// All returns every built-in tool in listing order.
func All() []*tools.Tool {
	var all []*tools.Tool
	all = append(all, SystemTools()...)
	all = append(all, ExecTools()...)
	all = append(all, EditorTools()...)
	return all
}

// NewRegistry builds a registry holding the built-in tools followed by extra.
func NewRegistry(extra ...*tools.Tool) (*tools.Registry, error) {
	return tools.NewRegistry(append(All(), extra...)...)
}

// mustSchema parses a JSON schema literal. It panics on malformed input,
// which can only come from a typo in this package.
func mustSchema(s string) *jsonschema.Schema {
	var schema jsonschema.Schema
	if err := json.Unmarshal([]byte(s), &schema); err != nil {
		panic(fmt.Sprintf("builtins: bad schema %s: %v", s, err))
	}
	return &schema
}

// bind decodes args into a typed input struct.
func bind(args tools.Arguments, v any) error {
	if len(args) == 0 {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}

// replyText renders an editor reply as tool output. JSON strings are
// unquoted; an empty or null reply becomes "ok".
func replyText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "ok"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
