// Package config handles configuration loading for editor-bridge.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. A file ending in .toml is decoded as TOML; anything else is YAML.
// Every field has a default, so an empty file is a valid configuration.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from EDITOR_BRIDGE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/editor-bridge/config.yaml
//  3. ~/.config/editor-bridge/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	security:
//	  api_keys: ["${EDITOR_BRIDGE_KEY}"]
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax and must be positive:
//
//	editor:
//	  timeout: "10s"
//	  send_timeout: "5s"
//
// # Sections
//
//   - server: listen address, public URL for the relay route, shutdown timeout
//   - tailscale: optional tsnet listener
//   - security: gate mode (open, lax, strict), API keys, address allowlist
//   - editor: command endpoint of the editor extension and timeouts
//   - executor: interpreter command for execute_code
//   - database: SQLite audit log path (empty disables auditing)
//   - docs: where to look for the agents document
//   - logging: level and format (text or json)
package config
