// Reeve is a chat-driven Minecraft agent.
//
// It connects to a mineflayer bridge sidecar for in-game presence,
// forwards player chat to an AWS Bedrock agent, and executes the tool
// calls the agent returns through its returnControl protocol.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	reeve serve              Join the game and start answering chat
//	reeve init [dir]         Write an example config file
//	reeve ask <message>      Process a single message (for testing)
//	reeve actions            List the registered in-game actions
//	reeve version            Print version and build information
//	reeve -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/reeve/examples"
	"github.com/nugget/reeve/internal/actions"
	"github.com/nugget/reeve/internal/agent"
	"github.com/nugget/reeve/internal/bedrock"
	"github.com/nugget/reeve/internal/buildinfo"
	"github.com/nugget/reeve/internal/config"
	"github.com/nugget/reeve/internal/telemetry"
	"github.com/nugget/reeve/internal/transcript"
	"github.com/nugget/reeve/internal/world"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the reeve command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process. Cancelling it triggers
//     graceful shutdown of the bridge connection and background loops.
//   - stdout and stderr receive all program output. Structured logs go
//     to stdout; fatal error messages go to stderr.
//   - args is os.Args[1:] — parsed by hand to avoid the flag package's
//     global state, which interferes with parallel tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: reeve ask <message>")
		}
		return runAsk(ctx, stdout, stderr, configPath, cmdArgs)
	case "actions":
		return runActions(stdout, outputFmt)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// runInit writes an example config file into dir. It refuses to
// overwrite an existing config.
func runInit(w io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	if err := os.WriteFile(path, examples.ConfigYAML, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	fmt.Fprintf(w, "Wrote %s\n", path)
	fmt.Fprintln(w, "Edit it to set your Bedrock agent ID and alias, then run: reeve serve")
	return nil
}

// runActions lists the registered in-game action names. The registry is
// constructed without a world connection; registration is static.
func runActions(w io.Writer, outputFmt string) error {
	reg := actions.NewRegistry(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reg.Names())
	}
	for _, name := range reg.Names() {
		fmt.Fprintln(w, name)
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Reeve - Chat-Driven Minecraft Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: reeve [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Join the game and start answering chat")
	fmt.Fprintln(w, "  init [dir]   Write an example config file (default: .)")
	fmt.Fprintln(w, "  ask          Process a single message (for testing)")
	fmt.Fprintln(w, "  actions      List the registered in-game actions")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/reeve/config.yaml, /etc/reeve/config.yaml")
	return nil
}

// runAsk handles the "reeve ask <message>" subcommand. It boots a
// minimal agent (bridge connection, no transcript, no telemetry) and
// processes a single message as though a player named "Console" had
// typed it, echoing the agent's replies to stdout as well as in-game
// chat. Useful for smoke tests without watching the game.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")

	message := strings.Join(args, " ")

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Info("config loaded", "path", cfgPath)

	if !cfg.Agent.Configured() {
		return fmt.Errorf("agent.id and agent.alias_id are required")
	}

	bridge := world.NewClient(cfg.Bridge.URL, logger)
	if err := bridge.Connect(ctx); err != nil {
		return err
	}
	defer bridge.Close()

	invoker, err := bedrock.NewClient(ctx, cfg.Agent.Region, logger)
	if err != nil {
		return fmt.Errorf("create bedrock client: %w", err)
	}

	registry := actions.NewRegistry(bridge, logger)

	// Echo replies to stdout in addition to in-game chat so the answer
	// is visible from the terminal.
	chat := &teeChatter{bridge: bridge, w: stdout}

	orch := agent.New(logger, invoker, bedrock.NewSession(cfg.Agent.ID, cfg.Agent.AliasID), registry, chat, cfg.Bot.Username)
	orch.SetLimits(cfg.Agent.MaxToolRoundTrips, time.Duration(cfg.Agent.InvokeTimeoutSec)*time.Second, cfg.Agent.RetryAttempts)

	return orch.HandleChat(ctx, "Console", message)
}

// runServe handles the "reeve serve" subcommand. It is the primary
// operating mode: loads config, connects to the mineflayer bridge and
// the Bedrock runtime, opens the transcript store, starts optional
// telemetry, and consumes chat events until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting Reeve", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure logger now that we know the desired level and format.
	{
		level := slog.LevelInfo
		if cfg.LogLevel != "" {
			// Already validated by config.Validate().
			level, _ = config.ParseLogLevel(cfg.LogLevel)
		}
		logger = newLogger(stdout, level, cfg.LogFormat)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"bridge", cfg.Bridge.URL,
		"agent_id", cfg.Agent.ID,
		"region", cfg.Agent.Region,
	)

	if !cfg.Agent.Configured() {
		return fmt.Errorf("agent.id and agent.alias_id are required")
	}

	// --- Signal handling ---
	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Data directory ---
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// --- Transcript store ---
	// SQLite-backed record of every chat message and tool call, keyed by
	// agent session. Survives restarts for later review.
	dbPath := filepath.Join(cfg.DataDir, "transcript.db")
	store, err := transcript.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open transcript database %s: %w", dbPath, err)
	}
	defer store.Close()
	logger.Info("transcript database opened", "path", dbPath)

	// --- Mineflayer bridge ---
	// The bridge owns the Minecraft protocol session. Without it there
	// is no bot, so a failed connection is fatal.
	bridge := world.NewClient(cfg.Bridge.URL, logger)
	if err := bridge.Connect(ctx); err != nil {
		return err
	}
	defer bridge.Close()

	// --- Bedrock agent client ---
	invoker, err := bedrock.NewClient(ctx, cfg.Agent.Region, logger)
	if err != nil {
		return fmt.Errorf("create bedrock client: %w", err)
	}

	// --- Action registry ---
	registry := actions.NewRegistry(bridge, logger)
	logger.Info("action registry initialized", "actions", registry.Names())

	// --- Orchestrator ---
	// A fresh session per process: conversation context lives on the
	// Bedrock side for as long as the session ID is reused.
	session := bedrock.NewSession(cfg.Agent.ID, cfg.Agent.AliasID)
	logger.Info("agent session created", "session_id", session.ID)

	orch := agent.New(logger, invoker, session, registry, bridge, cfg.Bot.Username)
	orch.SetLimits(cfg.Agent.MaxToolRoundTrips, time.Duration(cfg.Agent.InvokeTimeoutSec)*time.Second, cfg.Agent.RetryAttempts)
	orch.SetTranscript(store)

	// --- MQTT telemetry ---
	// Optional: publishes availability, activity events, and counters so
	// the bot can be watched from outside the game.
	var pub *telemetry.Publisher
	if cfg.MQTT.Configured() {
		pub = telemetry.New(cfg.MQTT, cfg.Bot.Username, logger)
		orch.SetTelemetry(pub)
		go func() {
			if err := pub.Start(ctx); err != nil {
				logger.Error("telemetry publisher failed", "error", err)
			}
		}()
		logger.Info("mqtt telemetry enabled", "broker", cfg.MQTT.Broker)
	} else {
		logger.Info("mqtt telemetry disabled (not configured)")
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		if pub != nil {
			offlineCtx, offlineCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer offlineCancel()
			if err := pub.Stop(offlineCtx); err != nil {
				logger.Error("telemetry shutdown failed", "error", err)
			}
		}

		bridge.Close()
	}()

	// Consume chat events until shutdown. This blocks for the life of
	// the process.
	if err := orch.Run(ctx, bridge.Chats()); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("agent loop failed: %w", err)
		}
	}

	logger.Info("Reeve stopped")
	return nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// teeChatter sends agent replies to in-game chat and mirrors them to a
// local writer. Used by the ask subcommand.
type teeChatter struct {
	bridge *world.Client
	w      io.Writer
}

func (t *teeChatter) Chat(ctx context.Context, text string) error {
	fmt.Fprintln(t.w, text)
	return t.bridge.Chat(ctx, text)
}
