// Package rcon provides a thin client for Minecraft server
// administration over the RCON protocol.
package rcon

import (
	"fmt"
	"log/slog"

	gorcon "github.com/gorcon/rcon"

	"github.com/nugget/reeve/internal/config"
)

// Client issues admin commands to the Minecraft server.
type Client struct {
	conn   *gorcon.Conn
	logger *slog.Logger
}

// Dial connects and authenticates to the server's RCON port.
func Dial(cfg config.RCONConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Configured() {
		return nil, fmt.Errorf("rcon address, port, and password are required")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Address, cfg.Port)
	conn, err := gorcon.Dial(addr, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("rcon dial %s: %w", addr, err)
	}

	return &Client{
		conn:   conn,
		logger: logger.With("component", "rcon"),
	}, nil
}

// Close closes the RCON connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Execute runs a raw server command and returns its response text.
func (c *Client) Execute(command string) (string, error) {
	c.logger.Debug("rcon execute", "command", command)

	resp, err := c.conn.Execute(command)
	if err != nil {
		return "", fmt.Errorf("rcon execute %q: %w", command, err)
	}
	return resp, nil
}

// SetDaylight sets the world time to noon.
func (c *Client) SetDaylight() (string, error) {
	return c.Execute("time set noon")
}

// Op grants operator status to a player.
func (c *Client) Op(player string) (string, error) {
	if player == "" {
		return "", fmt.Errorf("player name is required")
	}
	return c.Execute("op " + player)
}
