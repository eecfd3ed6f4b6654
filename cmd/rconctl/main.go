// Rconctl issues admin commands to the Minecraft server over RCON.
//
// Connection settings come from the reeve config file when one is
// found, falling back to the MINECRAFT_SERVER_ADDRESS,
// MINECRAFT_SERVER_PORT_RCON, and RCON_PASSWORD environment variables.
//
// Usage:
//
//	rconctl daylight           Set the world time to noon
//	rconctl op <player>        Grant operator status to a player
//	rconctl cmd <command...>   Run a raw server command
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/nugget/reeve/internal/config"
	"github.com/nugget/reeve/internal/rcon"
)

func main() {
	if err := run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
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

	if command == "" {
		return printUsage(stdout)
	}

	cfg := loadRCONConfig(configPath)

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	client, err := rcon.Dial(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	var resp string
	switch command {
	case "daylight":
		resp, err = client.SetDaylight()
	case "op":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("usage: rconctl op <player>")
		}
		resp, err = client.Op(cmdArgs[0])
	case "cmd":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: rconctl cmd <command...>")
		}
		resp, err = client.Execute(strings.Join(cmdArgs, " "))
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
	if err != nil {
		return err
	}

	if resp != "" {
		fmt.Fprintln(stdout, resp)
	}
	return nil
}

// loadRCONConfig pulls RCON settings from the reeve config file when one
// exists. A missing or unreadable config is not an error here: the
// environment fallbacks may still provide a complete configuration.
func loadRCONConfig(explicit string) config.RCONConfig {
	if path, err := config.FindConfig(explicit); err == nil {
		if cfg, err := config.Load(path); err == nil {
			return cfg.RCON
		}
	}

	cfg := config.RCONConfig{
		Address:  os.Getenv("MINECRAFT_SERVER_ADDRESS"),
		Password: os.Getenv("RCON_PASSWORD"),
	}
	if p, err := strconv.Atoi(os.Getenv("MINECRAFT_SERVER_PORT_RCON")); err == nil {
		cfg.Port = p
	}
	return cfg
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Rconctl - Minecraft server admin over RCON")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: rconctl [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daylight         Set the world time to noon")
	fmt.Fprintln(w, "  op <player>      Grant operator status to a player")
	fmt.Fprintln(w, "  cmd <command>    Run a raw server command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>   Path to config file (default: auto-discover)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment fallbacks:")
	fmt.Fprintln(w, "  MINECRAFT_SERVER_ADDRESS, MINECRAFT_SERVER_PORT_RCON, RCON_PASSWORD")
	return nil
}
