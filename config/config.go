// Package config loads the daemon configuration from the environment and
// an optional TOML file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"inlinecomplete/engine"
	"inlinecomplete/types"

	"github.com/BurntSushi/toml"
)

// EnvConfig holds a JSON object overriding the file configuration
const EnvConfig = "INLINECOMPLETE_CONFIG"

type Config struct {
	Provider           string  `json:"provider" toml:"provider"`
	ProviderURL        string  `json:"provider_url" toml:"provider_url"`
	APIKey             string  `json:"api_key" toml:"api_key"`
	APIKeyEnv          string  `json:"api_key_env" toml:"api_key_env"` // environment variable holding the key
	ProviderModel      string  `json:"provider_model" toml:"provider_model"`
	ProviderTemp       float64 `json:"provider_temperature" toml:"provider_temperature"`
	ProviderMaxTokens  int     `json:"provider_max_tokens" toml:"provider_max_tokens"`
	MultilineMaxTokens int     `json:"multiline_max_tokens" toml:"multiline_max_tokens"`
	CompletionPath     string  `json:"completion_path" toml:"completion_path"`
	FIMPrefix          string  `json:"fim_prefix" toml:"fim_prefix"`
	FIMSuffix          string  `json:"fim_suffix" toml:"fim_suffix"`
	FIMMiddle          string  `json:"fim_middle" toml:"fim_middle"`
	RequestsPerSecond  float64 `json:"requests_per_second" toml:"requests_per_second"`
	CompressRequests   bool    `json:"compress_requests" toml:"compress_requests"`

	N                  int    `json:"n" toml:"n"`
	FirstTokenTimeout  int    `json:"first_token_timeout" toml:"first_token_timeout"` // in milliseconds
	GenerationTimeout  int    `json:"generation_timeout" toml:"generation_timeout"`   // in milliseconds
	MaxPrefixChars     int    `json:"max_prefix_chars" toml:"max_prefix_chars"`
	MaxSuffixChars     int    `json:"max_suffix_chars" toml:"max_suffix_chars"`
	TabSize            int    `json:"tab_size" toml:"tab_size"`
	ExtendedTriggers   bool   `json:"extended_triggers" toml:"extended_triggers"`
	CacheTTL           int    `json:"cache_ttl" toml:"cache_ttl"` // in milliseconds, 0 disables the cache
	CacheCapacity      uint64 `json:"cache_capacity" toml:"cache_capacity"`
	LogLevel           string `json:"log_level" toml:"log_level"`         // trace, debug, info, warn, error
	IdleShutdown       int    `json:"idle_shutdown" toml:"idle_shutdown"` // in seconds
	DebugImmediateExit bool   `json:"debug_immediate_shutdown" toml:"debug_immediate_shutdown"`
}

// Default returns the configuration used for every unset field
func Default() Config {
	ec := engine.DefaultConfig()
	return Config{
		Provider:           string(types.ProviderTypeFIM),
		ProviderURL:        "http://localhost:8000",
		ProviderTemp:       0.2,
		ProviderMaxTokens:  64,
		MultilineMaxTokens: 256,
		FIMPrefix:          "<|fim_prefix|>",
		FIMSuffix:          "<|fim_suffix|>",
		FIMMiddle:          "<|fim_middle|>",
		N:                  ec.N,
		FirstTokenTimeout:  int(ec.FirstTokenTimeout / time.Millisecond),
		GenerationTimeout:  int(ec.GenerationTimeout / time.Millisecond),
		MaxPrefixChars:     ec.MaxPrefixChars,
		MaxSuffixChars:     ec.MaxSuffixChars,
		TabSize:            ec.TabSize,
		CacheTTL:           int(ec.CacheTTL / time.Millisecond),
		CacheCapacity:      ec.CacheCapacity,
		LogLevel:           "info",
		IdleShutdown:       30,
	}
}

// Dir returns the config directory path.
// Resolution order: $INLINECOMPLETE_CONFIG_DIR > $XDG_CONFIG_HOME/inlinecomplete > ~/.config/inlinecomplete
func Dir() string {
	if dir := os.Getenv("INLINECOMPLETE_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "inlinecomplete")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "inlinecomplete-config")
	}
	return filepath.Join(home, ".config", "inlinecomplete")
}

// Path returns the full path to the config file
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// Load layers the file at path and then the JSON in $INLINECOMPLETE_CONFIG
// over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}

	if env := os.Getenv(EnvConfig); env != "" {
		if err := json.Unmarshal([]byte(env), &cfg); err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", EnvConfig, err)
		}
	}

	if cfg.APIKey == "" && cfg.APIKeyEnv != "" {
		cfg.APIKey = os.Getenv(cfg.APIKeyEnv)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the daemon cannot start with
func (c Config) Validate() error {
	switch types.ProviderType(c.Provider) {
	case types.ProviderTypeInline, types.ProviderTypeFIM, types.ProviderTypeGateway:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.ProviderURL == "" {
		return errors.New("provider_url is required")
	}
	if c.N < 1 {
		return fmt.Errorf("n must be at least 1, got %d", c.N)
	}
	if c.FirstTokenTimeout < 0 || c.GenerationTimeout < 0 || c.CacheTTL < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// Engine returns the engine tunables
func (c Config) Engine() engine.Config {
	return engine.Config{
		N:                 c.N,
		FirstTokenTimeout: time.Duration(c.FirstTokenTimeout) * time.Millisecond,
		GenerationTimeout: time.Duration(c.GenerationTimeout) * time.Millisecond,
		MaxPrefixChars:    c.MaxPrefixChars,
		MaxSuffixChars:    c.MaxSuffixChars,
		TabSize:           c.TabSize,
		ExtendedTriggers:  c.ExtendedTriggers,
		CacheTTL:          time.Duration(c.CacheTTL) * time.Millisecond,
		CacheCapacity:     c.CacheCapacity,
	}
}

// ProviderType returns the configured backend kind
func (c Config) ProviderType() types.ProviderType {
	return types.ProviderType(c.Provider)
}

// ProviderConfig returns the settings shared by all provider variants
func (c Config) ProviderConfig() *types.ProviderConfig {
	return &types.ProviderConfig{
		ProviderURL:         c.ProviderURL,
		APIKey:              c.APIKey,
		ProviderModel:       c.ProviderModel,
		ProviderTemperature: c.ProviderTemp,
		ProviderMaxTokens:   c.ProviderMaxTokens,
		MultilineMaxTokens:  c.MultilineMaxTokens,
		CompletionPath:      c.CompletionPath,
		FIMTokens: types.FIMTokenConfig{
			Prefix: c.FIMPrefix,
			Suffix: c.FIMSuffix,
			Middle: c.FIMMiddle,
		},
		RequestsPerSecond: c.RequestsPerSecond,
		CompressRequests:  c.CompressRequests,
	}
}
