// ABOUTME: System tools: health check, server info, docs lookup and lifecycle control
// ABOUTME: Lifecycle tools signal the supervisor instead of exiting the process

package builtins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2389/editor-bridge/internal/tools"
)

// ErrNotConfigured indicates a tool's collaborator is absent from the Env.
var ErrNotConfigured = errors.New("not configured")

// SystemTools returns the tools that inspect or control the bridge itself.
func SystemTools() []*tools.Tool {
	return []*tools.Tool{
		{
			ID:          "builtin:ping",
			Name:        "ping",
			Description: "Check that the bridge is up",
			Schema:      mustSchema(`{"type":"object","properties":{}}`),
			Handler:     ping,
		},
		{
			ID:          "builtin:server_info",
			Name:        "server_info",
			Description: "Describe the running bridge: address, version, uptime and tools",
			Schema:      mustSchema(`{"type":"object","properties":{}}`),
			Handler:     serverInfo,
		},
		{
			ID:          "builtin:read_agents_doc",
			Name:        "read_agents_doc",
			Description: "Read the agents document describing how to use this server",
			Schema:      mustSchema(`{"type":"object","properties":{}}`),
			Handler:     readAgentsDoc,
		},
		{
			ID:          "builtin:restart_server",
			Name:        "restart_server",
			Description: "Restart the bridge after the current request completes",
			Schema:      mustSchema(`{"type":"object","properties":{"reason":{"type":"string"}}}`),
			Handler:     restartServer,
		},
		{
			ID:          "builtin:shutdown_server",
			Name:        "shutdown_server",
			Description: "Stop the bridge after the current request completes",
			Schema:      mustSchema(`{"type":"object","properties":{"reason":{"type":"string"}}}`),
			Handler:     shutdownServer,
		},
	}
}

func ping(ctx context.Context, env *tools.Env, args tools.Arguments) (string, error) {
	return fmt.Sprintf("pong: bridge healthy, %d tools, up %s",
		env.Registry.Len(), uptime(env)), nil
}

type serverInfoOutput struct {
	Address        string   `json:"address"`
	Version        string   `json:"version"`
	Uptime         string   `json:"uptime"`
	Tools          []string `json:"tools"`
	Editor         bool     `json:"editor_configured"`
	Executor       bool     `json:"executor_configured"`
	EditorTimeoutS float64  `json:"editor_timeout_seconds"`
}

func serverInfo(ctx context.Context, env *tools.Env, args tools.Arguments) (string, error) {
	out := serverInfoOutput{
		Address:        env.ServerAddr,
		Version:        env.Version,
		Uptime:         uptime(env),
		Editor:         env.Editor != nil,
		Executor:       env.Executor != nil,
		EditorTimeoutS: env.EditorTimeout.Seconds(),
	}
	for _, t := range env.Registry.All() {
		out.Tools = append(out.Tools, t.Name)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func readAgentsDoc(ctx context.Context, env *tools.Env, args tools.Arguments) (string, error) {
	if env.Docs == nil {
		return "", fmt.Errorf("agents document: %w", ErrNotConfigured)
	}
	_, content, err := env.Docs.Find()
	if err != nil {
		return "", err
	}
	return string(content), nil
}

type lifecycleInput struct {
	Reason string `json:"reason"`
}

func restartServer(ctx context.Context, env *tools.Env, args tools.Arguments) (string, error) {
	if env.Lifecycle == nil {
		return "", fmt.Errorf("lifecycle control: %w", ErrNotConfigured)
	}
	var in lifecycleInput
	if err := bind(args, &in); err != nil {
		return "", err
	}
	if in.Reason == "" {
		in.Reason = "requested by client"
	}
	env.Lifecycle.RequestRestart(in.Reason)
	env.Log().Info("restart requested", "reason", in.Reason)
	return "restart scheduled", nil
}

func shutdownServer(ctx context.Context, env *tools.Env, args tools.Arguments) (string, error) {
	if env.Lifecycle == nil {
		return "", fmt.Errorf("lifecycle control: %w", ErrNotConfigured)
	}
	var in lifecycleInput
	if err := bind(args, &in); err != nil {
		return "", err
	}
	if in.Reason == "" {
		in.Reason = "requested by client"
	}
	env.Lifecycle.RequestShutdown(in.Reason)
	env.Log().Info("shutdown requested", "reason", in.Reason)
	return "shutdown scheduled", nil
}

func uptime(env *tools.Env) string {
	if env.StartedAt.IsZero() {
		return "0s"
	}
	return time.Since(env.StartedAt).Truncate(time.Second).String()
}
