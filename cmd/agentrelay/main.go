// ABOUTME: Entry point for the agentrelay daemon.
// ABOUTME: Bridges inbound message lines to per-user CLI agent processes.

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/relayd/agentrelay/internal/agent"
	"github.com/relayd/agentrelay/internal/config"
	"github.com/relayd/agentrelay/internal/dedupe"
	"github.com/relayd/agentrelay/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                          _             _
  __ _  __ _  ___ _ __ | |_ _ __ ___| | __ _ _   _
 / _' |/ _' |/ _ \ '_ \| __| '__/ _ \ |/ _' | | | |
| (_| | (_| |  __/ | | | |_| | |  __/ | (_| | |_| |
 \__,_|\__, |\___|_| |_|\__|_|  \___|_|\__,_|\__, |
       |___/                                 |___/
`

// getConfigPath returns the path to the agentrelay config file.
// Priority: AGENTRELAY_CONFIG env var > XDG_CONFIG_HOME/agentrelay/config.yaml > ~/.config/agentrelay/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("AGENTRELAY_CONFIG"); envPath != "" {
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

	return filepath.Join(configDir, "agentrelay", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: agentrelay <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the relay daemon")
		fmt.Println("  init     Create a starter config file")
		fmt.Println("  check    Validate config and probe provider executables")
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
	case "check":
		err = runCheck()
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

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Default:  %s (failover: %v)\n", cfg.Agents.Default, cfg.Agents.FailoverEnabled)
	fmt.Println()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	adapters, err := buildAdapters(cfg)
	if err != nil {
		return err
	}

	manager := agent.NewManager(agent.ManagerParams{
		Adapters:        adapters,
		Store:           st,
		DefaultProvider: agent.Provider(cfg.Agents.Default),
		FailoverEnabled: cfg.Agents.FailoverEnabled,
		IdleTimeout:     cfg.Agents.IdleTimeout,
		HardTimeout:     cfg.Agents.ResponseTimeout,
		Logger:          logger,
	})

	// Hot-reload timing and failover changes. Provider enablement changes
	// still need a restart since adapters are built once.
	watcher, err := config.NewWatcher(configPath, logger)
	if err == nil {
		watcher.OnChange(func(next *config.Config) {
			manager.SetFailoverEnabled(next.Agents.FailoverEnabled)
			manager.SetSendTimeouts(next.Agents.IdleTimeout, next.Agents.ResponseTimeout)
		})
		if err := watcher.Start(); err != nil {
			logger.Warn("config watcher unavailable", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	logger.Info("agentrelay started",
		"config", configPath,
		"default_provider", cfg.Agents.Default,
		"failover", cfg.Agents.FailoverEnabled,
	)

	err = serveLoop(ctx, manager, logger)

	// Always reap children on the way out, even when the loop errored.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	manager.ShutdownAll(shutdownCtx)

	return err
}

// serveLoop reads inbound messages from stdin, one per line, in the form
// "user_id<TAB>text" (bare lines are attributed to the "local" user). The
// transport that normally feeds this loop is an external collaborator; stdin
// is the reference transport. Lines are deduplicated before they reach the
// manager, and each user's messages are processed strictly sequentially as
// the manager requires.
func serveLoop(ctx context.Context, manager *agent.Manager, logger *slog.Logger) error {
	seen := dedupe.New(time.Minute, 1024)
	defer seen.Close()

	// The reader goroutine may stay blocked in Scan at shutdown; it dies
	// with the process.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	yellow := color.New(color.FgYellow)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if seen.Duplicate(line) {
				logger.Debug("dropping duplicate delivery")
				continue
			}

			userID, text := "local", line
			if before, after, found := strings.Cut(line, "\t"); found {
				userID, text = before, strings.TrimSpace(after)
			}

			reply, err := manager.SendToActive(ctx, userID, text)
			if err != nil {
				logger.Error("send failed", "user_id", userID, "error", err)
				yellow.Printf("[%s] error: %v\n", userID, err)
				continue
			}
			fmt.Printf("[%s] %s\n", userID, reply)
		}
	}
}

// buildAdapters constructs an adapter for every enabled provider.
func buildAdapters(cfg *config.Config) (map[agent.Provider]agent.Adapter, error) {
	eng := agent.EngineConfig{
		SettleTimeout: cfg.Agents.SettleTimeout,
		StopGrace:     cfg.Agents.StopGrace,
	}

	adapters := make(map[agent.Provider]agent.Adapter)
	for _, p := range agent.Providers() {
		pc, _ := cfg.Provider(string(p))
		if !pc.Enabled {
			continue
		}
		a, err := agent.NewAdapter(p, agent.CommandConfig{
			Command:  pc.Command,
			BaseArgs: pc.BaseArgs,
		}, eng)
		if err != nil {
			return nil, fmt.Errorf("building %s adapter: %w", p, err)
		}
		adapters[p] = a
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no providers enabled in config")
	}
	return adapters, nil
}

const starterConfig = `database:
  path: "${HOME}/.local/share/agentrelay/relay.db"

agents:
  default: "claude"
  failover_enabled: true
  response_timeout: "5m"
  idle_timeout: "2s"
  settle_timeout: "1500ms"
  stop_grace: "3s"

providers:
  claude:
    enabled: true
    command: "claude"
    base_args: []
  codex:
    enabled: true
    command: "codex"
    base_args: []

logging:
  level: "info"
  format: "text"
`

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(starterConfig), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Created %s\n", configPath)
	return nil
}

func runCheck() error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	ok := true
	for _, p := range agent.Providers() {
		pc, _ := cfg.Provider(string(p))
		if !pc.Enabled {
			fmt.Printf("  %s: disabled\n", p)
			continue
		}
		if path, err := exec.LookPath(pc.Command); err == nil {
			green.Printf("  ✓ ")
			fmt.Printf("%s: %s\n", p, path)
		} else {
			red.Printf("  ✗ ")
			fmt.Printf("%s: %q not found in PATH\n", p, pc.Command)
			ok = false
		}
	}

	if !ok {
		return fmt.Errorf("some enabled providers are missing executables")
	}
	fmt.Println("config ok")
	return nil
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
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

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

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(os.Stderr, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
