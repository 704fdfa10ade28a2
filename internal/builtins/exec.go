// ABOUTME: execute_code tool handing a code string to the configured executor
// ABOUTME: Formats printed output and the final value as the tool result

package builtins

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/editor-bridge/internal/executor"
	"github.com/2389/editor-bridge/internal/tools"
)

// ExecTools returns the code execution tools.
func ExecTools() []*tools.Tool {
	return []*tools.Tool{
		{
			ID:          "builtin:execute_code",
			Name:        "execute_code",
			Description: "Run code in the configured interpreter and return what it printed",
			Schema:      mustSchema(`{"type":"object","properties":{"code":{"type":"string"},"quiet":{"type":"boolean"},"silent":{"type":"boolean"}},"required":["code"]}`),
			Handler:     executeCode,
		},
	}
}

type executeCodeInput struct {
	Code   string `json:"code"`
	Quiet  bool   `json:"quiet"`
	Silent bool   `json:"silent"`
}

func executeCode(ctx context.Context, env *tools.Env, args tools.Arguments) (string, error) {
	if env.Executor == nil {
		return "", fmt.Errorf("code execution: %w", ErrNotConfigured)
	}
	var in executeCodeInput
	if err := bind(args, &in); err != nil {
		return "", err
	}
	if strings.TrimSpace(in.Code) == "" {
		return "", fmt.Errorf("invalid input: code is empty")
	}

	res, err := env.Executor.Execute(ctx, in.Code, executor.Options{Quiet: in.Quiet, Silent: in.Silent})
	if err != nil {
		return "", err
	}

	switch {
	case res.Output != "":
		return res.Output, nil
	case res.Value != "":
		return res.Value, nil
	default:
		return "executed", nil
	}
}
