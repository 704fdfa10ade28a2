// ABOUTME: Helper subcommands: list tools on a running server, show the audit log, hash API keys
// ABOUTME: Each loads the same config file the serve command uses

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/editor-bridge/internal/mcp"
	"github.com/2389/editor-bridge/internal/store"
)

// clientKey returns the API key the CLI presents to a running server.
func clientKey(keys []string) string {
	if key := os.Getenv("EDITOR_BRIDGE_API_KEY"); key != "" {
		return key
	}
	if len(keys) > 0 {
		return keys[0]
	}
	return ""
}

func runTools(ctx context.Context) error {
	cfg, _, err := loadConfig(getConfigPath())
	if err != nil {
		return err
	}

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL()+"/mcp", strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := clientKey(cfg.Security.APIKeys); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("listing tools: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("listing tools: status %d", resp.StatusCode)
	}

	var reply struct {
		Result mcp.MCPListToolsResult `json:"result"`
		Error  *mcp.JSONRPCError      `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if reply.Error != nil {
		return fmt.Errorf("listing tools: %s", reply.Error.Message)
	}

	cyan := color.New(color.FgCyan)
	for _, tool := range reply.Result.Tools {
		cyan.Printf("  %-18s", tool.Name)
		fmt.Printf(" %s\n", tool.Description)
	}
	return nil
}

func runAudit(ctx context.Context, args []string) error {
	limit := 20
	for i := 0; i < len(args); i++ {
		arg := args[i]
		var value string
		switch {
		case arg == "--limit" || arg == "-n":
			if i+1 >= len(args) {
				return fmt.Errorf("%s requires a value", arg)
			}
			value = args[i+1]
			i++
		case strings.HasPrefix(arg, "--limit="):
			value = strings.TrimPrefix(arg, "--limit=")
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid limit %q", value)
		}
		limit = n
	}

	cfg, _, err := loadConfig(getConfigPath())
	if err != nil {
		return err
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("auditing is disabled (database.path is empty)")
	}
	if _, err := os.Stat(cfg.Database.Path); err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer s.Close()

	calls, err := s.ListToolCalls(ctx, store.ToolCallFilter{Limit: limit})
	if err != nil {
		return err
	}
	events, err := s.ListRelayEvents(ctx, limit)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	color.New(color.FgCyan).Println("  Tool calls")
	for _, c := range calls {
		gray.Printf("  %s ", c.CreatedAt.Local().Format(time.DateTime))
		switch c.Status {
		case mcp.CallOK:
			green.Printf("%-9s", c.Status)
		case mcp.CallError:
			red.Printf("%-9s", c.Status)
		default:
			yellow.Printf("%-9s", c.Status)
		}
		fmt.Printf(" %-18s %6dms", c.Tool, c.Duration.Milliseconds())
		if c.Error != "" {
			gray.Printf("  %s", c.Error)
		}
		fmt.Println()
	}

	fmt.Println()
	color.New(color.FgCyan).Println("  Relay deliveries")
	for _, e := range events {
		gray.Printf("  %s ", e.CreatedAt.Local().Format(time.DateTime))
		if e.Delivered {
			green.Print("delivered ")
		} else {
			yellow.Print("dropped   ")
		}
		fmt.Print(e.RequestID)
		if e.Error != "" {
			gray.Printf("  %s", e.Error)
		}
		fmt.Println()
	}
	return nil
}

func runKeyHash(args []string) error {
	var key string
	switch len(args) {
	case 0:
		fmt.Fprint(os.Stderr, "API key: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading key: %w", err)
		}
		key = strings.TrimSpace(line)
	case 1:
		key = args[0]
	default:
		return fmt.Errorf("usage: editor-bridge keyhash [KEY]")
	}
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing key: %w", err)
	}
	fmt.Println(string(hash))
	return nil
}
