// Config loading for the CLI shell: engine knobs come from env vars, an
// optional config.yaml, and defaults; provider presets are read from the file
// named by presetFile (see presets.go). The core packages
// never import viper or yaml; those libraries live only here, keeping
// config-file/env parsing out of the services it configures.
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EngineConfig holds the orchestrator/pipeline knobs.
type EngineConfig struct {
	MaxWaves         int    `mapstructure:"maxWaves"`
	ParallelCrafters bool   `mapstructure:"parallelCrafters"`
	MaxParallelism   int    `mapstructure:"maxParallelism"`
	WorkspaceRoot    string `mapstructure:"workspaceRoot"`
}

// LoggingConfig selects log level, format, and destination.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// RelayConfig controls the optional websocket phase/stream relay.
type RelayConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// MCPConfig controls the optional in-process MCP tool-surface server.
type MCPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// AnthropicConfig configures the direct LLM provider used for ROUTA.
type AnthropicConfig struct {
	APIKey      string  `mapstructure:"apiKey"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"maxTokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// Config is the top-level CLI configuration.
type Config struct {
	Engine     EngineConfig    `mapstructure:"engine"`
	Logging    LoggingConfig   `mapstructure:"logging"`
	Relay      RelayConfig     `mapstructure:"relay"`
	MCP        MCPConfig       `mapstructure:"mcp"`
	Anthropic  AnthropicConfig `mapstructure:"anthropic"`
	PresetFile string          `mapstructure:"presetFile"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.maxWaves", 3)
	v.SetDefault("engine.parallelCrafters", false)
	v.SetDefault("engine.maxParallelism", 3)
	v.SetDefault("engine.workspaceRoot", ".")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("relay.enabled", false)
	v.SetDefault("relay.port", 8089)

	v.SetDefault("mcp.enabled", false)
	v.SetDefault("mcp.port", 0)

	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("anthropic.maxTokens", 4096)
	v.SetDefault("anthropic.temperature", 0)

	v.SetDefault("presetFile", "presets.yaml")
}

// loadConfig reads engine configuration from environment variables (ROUTA_
// prefix), an optional config.yaml, and defaults, in that precedence.
func loadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ROUTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("anthropic.apiKey", "ANTHROPIC_API_KEY")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if cfg.Engine.MaxWaves <= 0 {
		cfg.Engine.MaxWaves = 3
	}
	return &cfg, nil
}
