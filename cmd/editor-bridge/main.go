// ABOUTME: Entry point for editor-bridge, the JSON-RPC tool server that relays commands to an editor
// ABOUTME: Runs the serve loop (restartable via the lifecycle supervisor) and the helper subcommands

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/editor-bridge/internal/config"
	"github.com/2389/editor-bridge/internal/gateway"
	"github.com/2389/editor-bridge/internal/lifecycle"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
          _ _ _                 _          _     _
  ___  __| (_) |_ ___  _ __    | |__  _ __(_) __| | __ _  ___
 / _ \/ _' | | __/ _ \| '__|___| '_ \| '__| |/ _' |/ _' |/ _ \
|  __/ (_| | | || (_) | | |____| |_) | |  | | (_| | (_| |  __/
 \___|\__,_|_|\__\___/|_|      |_.__/|_|  |_|\__,_|\__, |\___|
                                                   |___/
`

// getConfigPath returns the path to the config file.
// Priority: EDITOR_BRIDGE_CONFIG env var > XDG_CONFIG_HOME/editor-bridge/config.yaml > ~/.config/editor-bridge/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("EDITOR_BRIDGE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "editor-bridge", "config.yaml")
}

// getDataPath returns the path to the editor-bridge data directory.
// Priority: XDG_DATA_HOME/editor-bridge > ~/.local/share/editor-bridge
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "editor-bridge")
}

// loadConfig loads the config file, falling back to defaults when it does
// not exist.
func loadConfig(path string) (*config.Config, bool, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading config: %w", err)
	}
	return cfg, true, nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: editor-bridge <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve              Start the bridge server")
		fmt.Println("  init               Create a new config file interactively")
		fmt.Println("  health             Check server health")
		fmt.Println("  tools              List the tools a running server exposes")
		fmt.Println("  audit [--limit N]  Show recent tool calls from the audit log")
		fmt.Println("  keyhash [KEY]      Print a bcrypt hash for security.api_key_hashes")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "tools":
		err = runTools(ctx)
	case "audit":
		err = runAudit(ctx, os.Args[2:])
	case "keyhash":
		err = runKeyHash(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, found, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)
	printStartup(configPath, found, cfg)

	supervisor := lifecycle.NewSupervisor()
	for {
		logger.Info("starting editor-bridge",
			"config", configPath,
			"http_addr", cfg.Server.HTTPAddr,
			"mode", cfg.Security.Mode,
		)

		sig, err := serveOnce(ctx, cfg, logger, supervisor)
		if err != nil || sig == nil {
			return err
		}
		if sig.Action == lifecycle.Shutdown {
			logger.Info("shutdown requested", "reason", sig.Reason)
			return nil
		}

		logger.Info("restart requested", "reason", sig.Reason)
		reloaded, _, err := loadConfig(configPath)
		if err != nil {
			logger.Error("keeping previous config", "error", err)
			continue
		}
		cfg = reloaded
	}
}

// serveOnce runs one gateway until ctx is canceled, the server fails, or the
// supervisor signals. It returns the signal, or nil when ctx ended the run.
func serveOnce(ctx context.Context, cfg *config.Config, logger *slog.Logger, supervisor *lifecycle.Supervisor) (*lifecycle.Signal, error) {
	gw, err := gateway.New(cfg, logger, gateway.Options{
		Version:   version,
		Lifecycle: supervisor,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gateway: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- gw.Run(runCtx) }()

	select {
	case err := <-errCh:
		return nil, err
	case sig := <-supervisor.Signals():
		cancel()
		if err := <-errCh; err != nil {
			return nil, err
		}
		return &sig, nil
	}
}

func printStartup(configPath string, found bool, cfg *config.Config) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s", configPath)
	if !found {
		yellow.Print(" (not found, using defaults)")
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Security:  %s\n", cfg.Security.Mode)
	green.Print("    ▶ ")
	fmt.Printf("Editor:    ")
	if cfg.Editor.CommandURL == "" {
		yellow.Println("not configured")
	} else {
		fmt.Println(cfg.Editor.CommandURL)
	}
	green.Print("    ▶ ")
	fmt.Printf("Relay:     %s\n", cfg.RelayURL(gateway.RelayPath))
	if len(cfg.Executor.Command) > 0 {
		green.Print("    ▶ ")
		fmt.Printf("Executor:  %s\n", strings.Join(cfg.Executor.Command, " "))
	}

	// Tailscale status
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.HTTPS {
			yellow.Print(" [https]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			mu:    &sync.Mutex{},
			level: level,
		}
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// colorHandler provides colorized log output with thread-safe writes.
// Derived handlers share the parent's mutex.
type colorHandler struct {
	mu     *sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	// Handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprint(color.Output, buf.String())
	return err
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		newAttrs = append(newAttrs, slog.Attr{Key: prefix + a.Key, Value: a.Value})
	}
	return &colorHandler{
		mu:     h.mu,
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		mu:     h.mu,
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig(getConfigPath())
	if err != nil {
		return err
	}

	// Make HTTP request to health endpoint with context
	url := cfg.BaseURL() + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
