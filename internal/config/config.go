// Package config loads service configuration from defaults, an optional
// YAML config file, and HYPEWATCH_* environment variables, in that order.
// The resulting Config value is passed explicitly into constructors; there
// is no process-wide mutable configuration state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DeepSeek  DeepSeekConfig  `yaml:"deepseek"`
	Providers ProvidersConfig `yaml:"providers"`
	Storage   StorageConfig   `yaml:"storage"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DeepSeekConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// ProvidersConfig holds credentials for the evidence providers that need
// them. Missing keys do not fail config loading; the affected collector
// reports failure at collection time instead.
type ProvidersConfig struct {
	PatentsViewAPIKey string `yaml:"patentsview_api_key"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// AnalysisConfig holds the classification pipeline's tunables. The niche
// floors and the quorum are empirically chosen defaults, not law; treat
// them as configuration.
type AnalysisConfig struct {
	CacheTTLHours         int `yaml:"cache_ttl_hours"`
	Quorum                int `yaml:"quorum"`
	CollectTimeoutSeconds int `yaml:"collect_timeout_seconds"`

	// Sparse-signal floors for the primary (social) source.
	NicheMentions30d   float64 `yaml:"niche_mentions_30d"`
	NicheMentionsTotal float64 `yaml:"niche_mentions_total"`

	// Term expansion acceptance bounds and denylist of generic terms.
	ExpansionMinTerms int      `yaml:"expansion_min_terms"`
	ExpansionMaxTerms int      `yaml:"expansion_max_terms"`
	ExpansionDenylist []string `yaml:"expansion_denylist"`

	// Sources re-run with expanded terms. Finance is excluded by default:
	// its ticker discovery already broadens the keyword internally.
	ExpansionSources []string `yaml:"expansion_sources"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// CacheTTL returns the result cache lifetime.
func (a AnalysisConfig) CacheTTL() time.Duration {
	return time.Duration(a.CacheTTLHours) * time.Hour
}

// CollectTimeout returns the shared fan-out deadline.
func (a AnalysisConfig) CollectTimeout() time.Duration {
	return time.Duration(a.CollectTimeoutSeconds) * time.Second
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		DeepSeek: DeepSeekConfig{
			BaseURL: "https://api.deepseek.com/v1",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Analysis: AnalysisConfig{
			CacheTTLHours:         24,
			Quorum:                3,
			CollectTimeoutSeconds: 120,
			NicheMentions30d:      50,
			NicheMentionsTotal:    100,
			ExpansionMinTerms:     3,
			ExpansionMaxTerms:     5,
			ExpansionDenylist: []string{
				"technology", "innovation", "system", "solution",
				"platform", "software", "digital", "science",
			},
			ExpansionSources: []string{"social", "papers", "patents", "news"},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "hypewatch-data"
		}
	}
	return filepath.Join(dir, "hypewatch")
}

// DefaultConfigPath returns the XDG-compatible config file location.
func DefaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "hypewatch", "config.yaml")
}

// Load reads configuration from the default config file path.
func Load() (Config, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom reads configuration from the given YAML file; a missing file is
// fine and leaves the defaults in place. Environment variables override
// file values on all platforms. Loading fails fast when no DeepSeek API
// key is configured anywhere.
func LoadFrom(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults + env only.
	case err != nil:
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.DeepSeek.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: DeepSeek API key. " +
			"Set it via the environment variable HYPEWATCH_DEEPSEEK_API_KEY or deepseek.api_key in the config file")
	}
	if cfg.Analysis.Quorum < 1 || cfg.Analysis.Quorum > 5 {
		return Config{}, fmt.Errorf("analysis.quorum must be between 1 and 5, got %d", cfg.Analysis.Quorum)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HYPEWATCH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("HYPEWATCH_DEEPSEEK_API_KEY"); v != "" {
		cfg.DeepSeek.APIKey = v
	}
	if v := os.Getenv("HYPEWATCH_DEEPSEEK_BASE_URL"); v != "" {
		cfg.DeepSeek.BaseURL = v
	}
	if v := os.Getenv("HYPEWATCH_PATENTSVIEW_API_KEY"); v != "" {
		cfg.Providers.PatentsViewAPIKey = v
	}
	if v := os.Getenv("HYPEWATCH_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("HYPEWATCH_CACHE_TTL_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours > 0 {
			cfg.Analysis.CacheTTLHours = hours
		}
	}
	if v := os.Getenv("HYPEWATCH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
