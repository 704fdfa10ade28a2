// ABOUTME: Editor tools that post a command to the editor and await its reply
// ABOUTME: Every call is a correlated round trip through the relay bridge

package builtins

import (
	"context"
	"fmt"

	"github.com/2389/editor-bridge/internal/tools"
)

// Commands posted to the editor extension.
const (
	CommandExecute      = "executeCommand"
	CommandOpenFile     = "openFile"
	CommandShowMessage  = "showMessage"
	CommandGetSelection = "getSelection"
)

// EditorTools returns the tools that act on the editor.
func EditorTools() []*tools.Tool {
	return []*tools.Tool{
		{
			ID:          "builtin:editor_command",
			Name:        "editor_command",
			Description: "Run an editor command by id and return its result",
			Schema:      mustSchema(`{"type":"object","properties":{"command":{"type":"string"},"arguments":{"type":"array"}},"required":["command"]}`),
			Handler:     editorCommand,
		},
		{
			ID:          "builtin:open_file",
			Name:        "open_file",
			Description: "Open a file in the editor, optionally at a line",
			Schema:      mustSchema(`{"type":"object","properties":{"path":{"type":"string"},"line":{"type":"integer","minimum":1},"preview":{"type":"boolean"}},"required":["path"]}`),
			Handler:     openFile,
		},
		{
			ID:          "builtin:show_message",
			Name:        "show_message",
			Description: "Show a notification in the editor",
			Schema:      mustSchema(`{"type":"object","properties":{"message":{"type":"string"},"level":{"type":"string","enum":["info","warning","error"]}},"required":["message"]}`),
			Handler:     showMessage,
		},
		{
			ID:          "builtin:get_selection",
			Name:        "get_selection",
			Description: "Return the active editor's file, selection range and selected text",
			Schema:      mustSchema(`{"type":"object","properties":{}}`),
			Handler:     getSelection,
		},
	}
}

type editorCommandInput struct {
	Command   string `json:"command"`
	Arguments []any  `json:"arguments"`
}

func editorCommand(ctx context.Context, env *tools.Env, args tools.Arguments) (string, error) {
	var in editorCommandInput
	if err := bind(args, &in); err != nil {
		return "", err
	}
	if in.Command == "" {
		return "", fmt.Errorf("invalid input: command is required")
	}
	return roundTrip(ctx, env, CommandExecute, map[string]any{
		"command":   in.Command,
		"arguments": in.Arguments,
	})
}

type openFileInput struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Preview bool   `json:"preview"`
}

func openFile(ctx context.Context, env *tools.Env, args tools.Arguments) (string, error) {
	var in openFileInput
	if err := bind(args, &in); err != nil {
		return "", err
	}
	if in.Path == "" {
		return "", fmt.Errorf("invalid input: path is required")
	}
	params := map[string]any{"path": in.Path, "preview": in.Preview}
	if in.Line > 0 {
		params["line"] = in.Line
	}
	return roundTrip(ctx, env, CommandOpenFile, params)
}

type showMessageInput struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

func showMessage(ctx context.Context, env *tools.Env, args tools.Arguments) (string, error) {
	var in showMessageInput
	if err := bind(args, &in); err != nil {
		return "", err
	}
	if in.Level == "" {
		in.Level = "info"
	}
	return roundTrip(ctx, env, CommandShowMessage, map[string]any{
		"message": in.Message,
		"level":   in.Level,
	})
}

func getSelection(ctx context.Context, env *tools.Env, args tools.Arguments) (string, error) {
	return roundTrip(ctx, env, CommandGetSelection, nil)
}

func roundTrip(ctx context.Context, env *tools.Env, command string, params map[string]any) (string, error) {
	if env.Editor == nil {
		return "", fmt.Errorf("editor: %w", ErrNotConfigured)
	}
	raw, err := env.Editor.Request(ctx, command, params, env.EditorTimeout)
	if err != nil {
		return "", err
	}
	return replyText(raw), nil
}
