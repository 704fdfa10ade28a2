// Package builtins provides the tools the bridge serves.
//
// # Tools
//
// System tools:
//
//   - ping: health check
//   - server_info: address, version, uptime and tool names
//   - read_agents_doc: contents of the agents document
//   - restart_server: ask the supervisor for a restart
//   - shutdown_server: ask the supervisor for a shutdown
//
// Execution tools:
//
//   - execute_code: hand code to the configured executor
//
// Editor tools, each a correlated round trip through the relay bridge:
//
//   - editor_command: run an editor command by id
//   - open_file: open a file, optionally at a line
//   - show_message: show a notification
//   - get_selection: read the active selection
//
// # Registration
//
//	registry, err := builtins.NewRegistry()
//
// # Tool Implementation
//
// Each tool is a tools.Handler:
//
//	func(ctx context.Context, env *tools.Env, args tools.Arguments) (string, error)
//
// Handlers bind their arguments into a typed input struct and reach every
// collaborator through env. A collaborator missing from env makes the tool
// fail with ErrNotConfigured rather than panic.
package builtins
