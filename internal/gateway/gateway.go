// ABOUTME: Gateway orchestrator that wires the security gate, JSON-RPC router and editor relay
// ABOUTME: Builds every component from config and manages the HTTP server lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"tailscale.com/tsnet"

	"github.com/2389/editor-bridge/internal/auth"
	"github.com/2389/editor-bridge/internal/builtins"
	"github.com/2389/editor-bridge/internal/config"
	"github.com/2389/editor-bridge/internal/dedupe"
	"github.com/2389/editor-bridge/internal/docs"
	"github.com/2389/editor-bridge/internal/editor"
	"github.com/2389/editor-bridge/internal/executor"
	"github.com/2389/editor-bridge/internal/mcp"
	"github.com/2389/editor-bridge/internal/oauth"
	"github.com/2389/editor-bridge/internal/relay"
	"github.com/2389/editor-bridge/internal/store"
	"github.com/2389/editor-bridge/internal/tools"
)

// RelayPath is the route on which the editor posts correlated replies.
const RelayPath = auth.DefaultRelayPath

// Options carries the values New needs beyond the config file.
type Options struct {
	Version string
	// Lifecycle receives restart and shutdown requests from tools. Nil
	// disables the restart_server and shutdown_server tools.
	Lifecycle tools.Lifecycle
	// Tools are registered after the built-in tools.
	Tools []*tools.Tool
}

// Gateway orchestrates the editor-bridge server components.
type Gateway struct {
	config      *config.Config
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	gate       *auth.Gate
	nonces     *auth.NonceStore
	correlator *relay.Correlator
	registry   *tools.Registry
	mcpServer  *mcp.Server

	// store is nil when auditing is disabled
	store *store.SQLiteStore

	startedAt    time.Time
	shutdownOnce sync.Once
	shutdownErr  error
}

// initStore opens the audit store, or returns nil when no path is configured.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("EDITOR_BRIDGE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	if dbPath == "" {
		return nil, nil
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// buildPolicy creates the security policy and, when tokens may be issued, the
// verifier that signs them. The verifier is nil in open mode.
func buildPolicy(cfg *config.Config) (*auth.Policy, *auth.JWTVerifier, error) {
	mode, err := auth.ParseMode(cfg.Security.Mode)
	if err != nil {
		return nil, nil, err
	}
	if mode == auth.ModeOpen {
		return nil, nil, nil
	}

	var verifier *auth.JWTVerifier
	if cfg.Security.JWTSecret != "" {
		verifier, err = auth.NewJWTVerifier([]byte(cfg.Security.JWTSecret), cfg.Security.TokenIssuer)
	} else {
		verifier, err = auth.NewRandomJWTVerifier(cfg.Security.TokenIssuer)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("creating token verifier: %w", err)
	}

	policyCfg := auth.PolicyConfig{
		Mode:             cfg.Security.Mode,
		APIKeys:          cfg.Security.APIKeys,
		APIKeyHashes:     cfg.Security.APIKeyHashes,
		AllowedAddresses: cfg.Security.AllowedAddresses,
	}
	if cfg.Security.AcceptIssuedTokens {
		policyCfg.TokenVerifier = verifier
	}
	policy, err := auth.NewPolicy(policyCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("building security policy: %w", err)
	}
	return policy, verifier, nil
}

// buildExecutor returns the configured interpreter, or nil when none is set.
func buildExecutor(cfg *config.Config, logger *slog.Logger) (executor.Executor, error) {
	if len(cfg.Executor.Command) == 0 {
		return nil, nil
	}
	sub, err := executor.NewSubprocess(executor.SubprocessConfig{
		Command: cfg.Executor.Command,
		Dir:     cfg.Executor.Dir,
		Timeout: cfg.Executor.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating executor: %w", err)
	}
	return sub, nil
}

// buildDocsLocator defaults to the working directory when nothing is configured.
func buildDocsLocator(cfg *config.Config) *docs.Locator {
	loc := &docs.Locator{Path: cfg.Docs.Path, Dirs: cfg.Docs.Dirs}
	if loc.Path == "" && len(loc.Dirs) == 0 {
		if wd, err := os.Getwd(); err == nil {
			loc.Dirs = []string{wd}
		}
	}
	return loc
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	policy, verifier, err := buildPolicy(cfg)
	if err != nil {
		return nil, err
	}

	registry, err := builtins.NewRegistry(opts.Tools...)
	if err != nil {
		return nil, fmt.Errorf("building tool registry: %w", err)
	}

	runner, err := buildExecutor(cfg, logger.With("component", "executor"))
	if err != nil {
		return nil, err
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	gw := &Gateway{
		config:     cfg,
		logger:     logger.With("component", "gateway"),
		nonces:     auth.NewNonceStore(cfg.Security.NonceSweepInterval),
		correlator: relay.NewCorrelator(logger.With("component", "correlator")),
		registry:   registry,
		store:      s,
		startedAt:  time.Now(),
	}

	gw.gate = auth.NewGate(auth.GateConfig{
		Policy:    policy,
		Nonces:    gw.nonces,
		RelayPath: RelayPath,
		Logger:    logger.With("component", "gate"),
	})

	editorClient := editor.NewClient(editor.ClientConfig{
		CommandURL: cfg.Editor.CommandURL,
		Timeout:    cfg.Editor.SendTimeout,
		Logger:     logger.With("component", "editor"),
	})
	bridge := relay.NewBridge(relay.BridgeConfig{
		Correlator:  gw.correlator,
		Nonces:      gw.nonces,
		Sender:      editorClient,
		ResponseURL: cfg.RelayURL(RelayPath),
		Logger:      logger.With("component", "bridge"),
	})

	locator := buildDocsLocator(cfg)

	// Interface fields stay untyped nil when a collaborator is absent.
	env := &tools.Env{
		ServerAddr:    cfg.Server.HTTPAddr,
		Version:       opts.Version,
		StartedAt:     gw.startedAt,
		Registry:      registry,
		Editor:        bridge,
		EditorTimeout: cfg.Editor.Timeout,
		Docs:          locator,
		Logger:        logger.With("component", "tools"),
	}
	if runner != nil {
		env.Executor = runner
	}
	if opts.Lifecycle != nil {
		env.Lifecycle = opts.Lifecycle
	}

	mcpCfg := mcp.Config{
		Env:     env,
		Logger:  logger.With("component", "mcp"),
		Version: opts.Version,
	}
	relayCfg := relay.HandlerConfig{
		Correlator: gw.correlator,
		Duplicates: dedupe.New(5*time.Minute, 10_000), // TTL 5min, max 10k replies
		Logger:     logger.With("component", "relay"),
	}
	if s != nil {
		mcpCfg.Recorder = s
		relayCfg.Recorder = s
	}

	gw.mcpServer, err = mcp.NewServer(mcpCfg)
	if err != nil {
		gw.closeComponents()
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	mux := http.NewServeMux()

	// Health, docs and OAuth discovery bypass the gate
	mux.HandleFunc("/health", gw.handleHealth)

	docsHandler := docs.NewHandler(locator, logger.With("component", "docs"))
	for _, route := range docs.Routes() {
		mux.Handle(route, docsHandler)
	}

	oauthCfg := oauth.Config{
		Enabled: policy != nil,
		BaseURL: cfg.Server.PublicURL,
		Logger:  logger.With("component", "oauth"),
	}
	if verifier != nil {
		oauthCfg.Issuer = verifier
	}
	if cfg.Security.AcceptIssuedTokens {
		oauthCfg.TokenAuth = gw.gate.Middleware
	}
	oauth.NewHandler(oauthCfg).RegisterRoutes(mux)

	gw.mcpServer.RegisterRoutes(mux, gw.gate.Middleware)
	mux.Handle(RelayPath, gw.gate.Middleware(relay.NewHandler(relayCfg)))

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	gw.logger.Info("gateway configured",
		"mode", gw.gate.Mode(),
		"tools", registry.Len(),
		"editor_url", cfg.Editor.CommandURL,
		"relay_url", cfg.RelayURL(RelayPath),
		"executor", runner != nil,
		"audit", s != nil,
	)
	return gw, nil
}

// Handler returns the gateway's root HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Registry returns the tool registry the gateway serves.
func (g *Gateway) Registry() *tools.Registry {
	return g.registry
}

// setupListener creates the HTTP listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.PublicURL == "" {
			g.logger.Warn("server.public_url is not set; the editor will post replies to the local http_addr",
				"relay_url", g.config.RelayURL(RelayPath),
			)
		}
		return g.setupTailscaleListener(ctx)
	}

	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		_ = g.Shutdown(context.Background())
		return err
	}
	return g.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until the context is canceled.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		if ctx.Err() != nil {
			g.logger.Info("context canceled, initiating shutdown")
		}
		return g.gracefulShutdown()
	})

	return eg.Wait()
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The run context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.config.Server.ShutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// closeComponents releases everything that does not depend on the HTTP server.
func (g *Gateway) closeComponents() []error {
	var errs []error
	if g.correlator != nil {
		g.correlator.Close()
	}
	if g.nonces != nil {
		g.nonces.Close()
	}
	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	if g.store != nil {
		errs = appendCloseError(errs, "store close", g.store.Close())
	}
	return errs
}

// Shutdown gracefully stops the gateway and releases resources. Pending
// editor waits are released first so in-flight tool calls can finish.
// Calling Shutdown more than once returns the first result.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.logger.Info("shutting down gateway", "pending_waits", g.correlator.Pending())

		g.correlator.Close()

		var errs []error
		errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
		errs = append(errs, g.closeComponents()...)

		if len(errs) > 0 {
			g.shutdownErr = fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
		}
	})
	return g.shutdownErr
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
