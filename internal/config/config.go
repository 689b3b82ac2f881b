package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

type Config struct {
	Data     DataConfig     `mapstructure:"data"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Homepage HomepageConfig `mapstructure:"homepage"`
	Log      LogConfig      `mapstructure:"log"`
}

type DataConfig struct {
	Dir             string   `mapstructure:"dir"`
	SnapshotDir     string   `mapstructure:"snapshot_dir"`
	StatePath       string   `mapstructure:"state_path"`
	IndexPath       string   `mapstructure:"index_path"`
	ListingPrefixes []string `mapstructure:"listing_prefixes"`
}

type FetchConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	RequestDelay time.Duration `mapstructure:"request_delay"`
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

type HomepageConfig struct {
	URL        string        `mapstructure:"url"`
	BaseURL    string        `mapstructure:"base_url"`
	FeedURL    string        `mapstructure:"feed_url"`
	TopN       int           `mapstructure:"top_n"`
	PromoLimit int           `mapstructure:"promo_limit"`
	Timeout    time.Duration `mapstructure:"timeout"`
	UserAgent  string        `mapstructure:"user_agent"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	File   string `mapstructure:"file"`
	Pretty bool   `mapstructure:"pretty"`
}

// Listing file prefixes written by the homepage collectors.
const (
	PrefixMostRead        = "bbc_most_read"
	PrefixFrontPagePromos = "bbc_front_page_promos"
	PrefixFeed            = "bbc_rss"
)

func defaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Dir:             "data",
			SnapshotDir:     filepath.Join("data", "article-content"),
			StatePath:       filepath.Join("data", "headlines.db"),
			IndexPath:       filepath.Join("data", "index.bleve"),
			ListingPrefixes: []string{PrefixMostRead, PrefixFrontPagePromos, PrefixFeed},
		},
		Fetch: FetchConfig{
			Concurrency:  10,
			RequestDelay: 100 * time.Millisecond,
			Timeout:      10 * time.Second,
			UserAgent:    "Mozilla/5.0",
			MaxBodyBytes: 10 * 1024 * 1024,
		},
		Homepage: HomepageConfig{
			URL:        "https://www.bbc.co.uk/news",
			BaseURL:    "https://www.bbc.co.uk",
			FeedURL:    "https://feeds.bbci.co.uk/news/rss.xml",
			TopN:       10,
			PromoLimit: 30,
			Timeout:    20 * time.Second,
			UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Default returns the built-in configuration without consulting any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v, defaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		configDir := filepath.Join(homeDir, ".config", "headlines")

		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("HEADLINES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// A data dir override without an explicit snapshot dir keeps the
	// snapshots next to the listings.
	defaults := defaultConfig().Data
	if config.Data.SnapshotDir == "" ||
		(config.Data.SnapshotDir == defaults.SnapshotDir && config.Data.Dir != defaults.Dir) {
		config.Data.SnapshotDir = filepath.Join(config.Data.Dir, "article-content")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	expandPaths(&config)

	return &config, nil
}

// setDefaults registers every leaf key so that partial config files and
// HEADLINES_* environment variables override single values.
func setDefaults(v *viper.Viper, cfg *Config) {
	for section, values := range toMap(cfg) {
		for key, value := range values {
			v.SetDefault(section+"."+key, value)
		}
	}
}

// Validate rejects settings the fetch pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir is required")
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be positive, got %d", c.Fetch.Concurrency)
	}
	if c.Fetch.RequestDelay < 0 {
		return fmt.Errorf("fetch.request_delay must not be negative")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	return nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

func expandPaths(cfg *Config) {
	cfg.Data.Dir = expandPath(cfg.Data.Dir)
	cfg.Data.SnapshotDir = expandPath(cfg.Data.SnapshotDir)
	cfg.Data.StatePath = expandPath(cfg.Data.StatePath)
	cfg.Data.IndexPath = expandPath(cfg.Data.IndexPath)
	cfg.Log.File = expandPath(cfg.Log.File)
}

// toMap converts durations to strings for TOML readability.
func toMap(config *Config) map[string]map[string]interface{} {
	return map[string]map[string]interface{}{
		"data": {
			"dir":              config.Data.Dir,
			"snapshot_dir":     config.Data.SnapshotDir,
			"state_path":       config.Data.StatePath,
			"index_path":       config.Data.IndexPath,
			"listing_prefixes": config.Data.ListingPrefixes,
		},
		"fetch": {
			"concurrency":    config.Fetch.Concurrency,
			"request_delay":  config.Fetch.RequestDelay.String(),
			"timeout":        config.Fetch.Timeout.String(),
			"user_agent":     config.Fetch.UserAgent,
			"max_body_bytes": config.Fetch.MaxBodyBytes,
		},
		"homepage": {
			"url":         config.Homepage.URL,
			"base_url":    config.Homepage.BaseURL,
			"feed_url":    config.Homepage.FeedURL,
			"top_n":       config.Homepage.TopN,
			"promo_limit": config.Homepage.PromoLimit,
			"timeout":     config.Homepage.Timeout.String(),
			"user_agent":  config.Homepage.UserAgent,
		},
		"log": {
			"level":  config.Log.Level,
			"file":   config.Log.File,
			"pretty": config.Log.Pretty,
		},
	}
}

func Save(config *Config, path string) error {
	v := viper.New()

	for section, values := range toMap(config) {
		v.Set(section, values)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}

// Render returns the configuration as a TOML document.
func Render(config *Config) ([]byte, error) {
	out, err := toml.Marshal(toMap(config))
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return out, nil
}
