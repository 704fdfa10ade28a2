// ABOUTME: Interactive config file generation for editor-bridge
// ABOUTME: Prompts for each section and writes a YAML config with a generated API key in strict mode

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/editor-bridge/internal/config"
)

// initAnswers holds the values collected by runInit.
type initAnswers struct {
	HTTPAddr     string
	Mode         string
	APIKey       string
	EditorURL    string
	Interpreter  string
	DBPath       string
	Tailscale    bool
	TSHostname   string
	TSAuthKey    string
	TSEphemeral  bool
	TSHTTPS      bool
	LogLevel     string
	LogFormat    string
	AllowedAddrs []string
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("editor-bridge configuration setup")
	fmt.Println("=================================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDbPath := filepath.Join(getDataPath(), "audit.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var a initAnswers

	fmt.Println("\n--- Server Configuration ---")
	a.HTTPAddr = prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	fmt.Println("\n--- Security Configuration ---")
	a.Mode = strings.ToLower(prompt(reader, "Security mode (open/lax/strict)", "strict"))
	if a.Mode != "open" {
		a.APIKey = prompt(reader, "API key (leave empty to generate one)", "")
		if a.APIKey == "" {
			key, err := generateKey()
			if err != nil {
				return err
			}
			a.APIKey = key
		}
		if addrs := prompt(reader, "Allowed client addresses (comma separated, empty for any)", ""); addrs != "" {
			for _, addr := range strings.Split(addrs, ",") {
				if addr = strings.TrimSpace(addr); addr != "" {
					a.AllowedAddrs = append(a.AllowedAddrs, addr)
				}
			}
		}
	}

	fmt.Println("\n--- Editor Configuration ---")
	a.EditorURL = prompt(reader, "Editor command URL (leave empty to disable editor tools)", "")

	fmt.Println("\n--- Executor Configuration ---")
	a.Interpreter = prompt(reader, "Interpreter command reading code on stdin (leave empty to disable)", "")

	fmt.Println("\n--- Database Configuration ---")
	a.DBPath = prompt(reader, "SQLite audit log path (\"none\" to disable)", defaultDbPath)
	if strings.EqualFold(a.DBPath, "none") {
		a.DBPath = ""
	}

	fmt.Println("\n--- Tailscale Configuration ---")
	a.Tailscale = yes(prompt(reader, "Enable Tailscale?", "no"))
	if a.Tailscale {
		a.TSHostname = prompt(reader, "Tailscale hostname", "editor-bridge")
		a.TSAuthKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		a.TSEphemeral = yes(prompt(reader, "Ephemeral node?", "no"))
		a.TSHTTPS = yes(prompt(reader, "Serve HTTPS with Tailscale certs?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, "Log format (text/json)", "text")

	content := renderConfig(a)

	// Refuse to write something the server would reject
	if _, err := config.Parse([]byte(content), false); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Keys live in the file, so keep it private
	if err := os.WriteFile(outputFile, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if a.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(a.DBPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	if a.APIKey != "" {
		fmt.Printf("API key: %s\n", a.APIKey)
	}
	fmt.Println("\nTo start the server:")
	fmt.Printf("  editor-bridge serve\n")

	return nil
}

// renderConfig writes the answers as a YAML config file.
func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# editor-bridge configuration\n")
	cfg.WriteString("# Generated by editor-bridge init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", a.HTTPAddr))
	cfg.WriteString("\n")

	cfg.WriteString("security:\n")
	cfg.WriteString(fmt.Sprintf("  mode: %q\n", a.Mode))
	if a.APIKey != "" {
		cfg.WriteString("  api_keys:\n")
		cfg.WriteString(fmt.Sprintf("    - %q\n", a.APIKey))
	}
	if len(a.AllowedAddrs) > 0 {
		cfg.WriteString("  allowed_addresses:\n")
		for _, addr := range a.AllowedAddrs {
			cfg.WriteString(fmt.Sprintf("    - %q\n", addr))
		}
	}
	cfg.WriteString("\n")

	cfg.WriteString("editor:\n")
	cfg.WriteString(fmt.Sprintf("  command_url: %q\n", a.EditorURL))
	cfg.WriteString("  timeout: \"10s\"\n")
	cfg.WriteString("\n")

	if a.Interpreter != "" {
		cfg.WriteString("executor:\n")
		cfg.WriteString("  command:\n")
		for _, part := range strings.Fields(a.Interpreter) {
			cfg.WriteString(fmt.Sprintf("    - %q\n", part))
		}
		cfg.WriteString("  timeout: \"30s\"\n")
		cfg.WriteString("\n")
	}

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", a.DBPath))
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", a.Tailscale))
	if a.Tailscale {
		cfg.WriteString(fmt.Sprintf("  hostname: %q\n", a.TSHostname))
		if a.TSAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: %q\n", a.TSAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", a.TSEphemeral))
		cfg.WriteString(fmt.Sprintf("  https: %t\n", a.TSHTTPS))
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", a.LogLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", a.LogFormat))

	return cfg.String()
}

// generateKey returns a random URL-safe API key.
func generateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("generating API key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func yes(answer string) bool {
	answer = strings.ToLower(answer)
	return answer == "yes" || answer == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
