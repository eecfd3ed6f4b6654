// Package config handles Reeve configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/reeve/config.yaml, /etc/reeve/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "reeve", "config.yaml"))
	}

	paths = append(paths, "/etc/reeve/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Reeve configuration.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Bot       BotConfig       `yaml:"bot"`
	Agent     AgentConfig     `yaml:"agent"`
	RCON      RCONConfig      `yaml:"rcon"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"` // text or json
}

// BridgeConfig defines the mineflayer bridge connection settings. The
// bridge is a sidecar process that owns the Minecraft protocol session
// and exposes the bot's capabilities over a websocket.
type BridgeConfig struct {
	URL string `yaml:"url"` // e.g. ws://localhost:3080
}

// Configured reports whether a bridge URL was provided.
func (c BridgeConfig) Configured() bool {
	return c.URL != ""
}

// BotConfig defines the in-game identity of the bot.
type BotConfig struct {
	Username string `yaml:"username"`
}

// AgentConfig defines the Bedrock agent identity and turn policy.
type AgentConfig struct {
	ID      string `yaml:"id"`
	AliasID string `yaml:"alias_id"`
	Region  string `yaml:"region"`

	// MaxToolRoundTrips bounds the number of returnControl round-trips
	// per user turn. Zero means the default (8).
	MaxToolRoundTrips int `yaml:"max_tool_round_trips"`

	// InvokeTimeoutSec is the per-invocation deadline in seconds.
	// Zero means the default (120).
	InvokeTimeoutSec int `yaml:"invoke_timeout_sec"`

	// RetryAttempts is how many times a failed agent invocation is
	// retried before the turn is abandoned. Zero means the default (2).
	RetryAttempts int `yaml:"retry_attempts"`
}

// Configured reports whether the agent identity is fully specified.
func (c AgentConfig) Configured() bool {
	return c.ID != "" && c.AliasID != ""
}

// RCONConfig defines the Minecraft server RCON settings. Address and
// password fall back to the MINECRAFT_SERVER_ADDRESS,
// MINECRAFT_SERVER_PORT_RCON, and RCON_PASSWORD environment variables
// when left empty, matching the server deployment's conventions.
type RCONConfig struct {
	Address  string `yaml:"address"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
}

// Configured reports whether RCON settings are usable.
func (c RCONConfig) Configured() bool {
	return c.Address != "" && c.Port != 0 && c.Password != ""
}

// MQTTConfig defines the optional telemetry broker settings.
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // e.g. mqtt://broker:1883
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"` // default "reeve"
}

// Configured reports whether MQTT telemetry is enabled.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyEnvFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{URL: "ws://localhost:3080"},
		Bot:    BotConfig{Username: "Claude"},
		Agent: AgentConfig{
			Region:            "us-west-2",
			MaxToolRoundTrips: 8,
			InvokeTimeoutSec:  120,
			RetryAttempts:     2,
		},
		MQTT:    MQTTConfig{TopicPrefix: "reeve"},
		DataDir: "./data",
	}
}

// applyEnvFallbacks fills RCON settings from the environment variables
// the server deployment already exports for its admin scripts.
func (c *Config) applyEnvFallbacks() {
	if c.RCON.Address == "" {
		c.RCON.Address = os.Getenv("MINECRAFT_SERVER_ADDRESS")
	}
	if c.RCON.Port == 0 {
		if p, err := strconv.Atoi(os.Getenv("MINECRAFT_SERVER_PORT_RCON")); err == nil {
			c.RCON.Port = p
		}
	}
	if c.RCON.Password == "" {
		c.RCON.Password = os.Getenv("RCON_PASSWORD")
	}
}

// Validate checks the configuration for internally inconsistent or
// unusable values. It does not require optional sections.
func (c *Config) Validate() error {
	if c.Bot.Username == "" {
		return fmt.Errorf("bot.username is required")
	}
	if c.Agent.MaxToolRoundTrips < 0 {
		return fmt.Errorf("agent.max_tool_round_trips must not be negative")
	}
	if c.Agent.RetryAttempts < 0 {
		return fmt.Errorf("agent.retry_attempts must not be negative")
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log_format %q (expected text or json)", c.LogFormat)
	}
	return nil
}
