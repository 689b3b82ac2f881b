package config

import (
	"path/filepath"
	"time"
)

// TestConfig returns a config suitable for testing, rooted at dir.
// The fetch delay is zero so batches run without throttling.
func TestConfig(dir string) *Config {
	return &Config{
		Data: DataConfig{
			Dir:             dir,
			SnapshotDir:     filepath.Join(dir, "article-content"),
			StatePath:       filepath.Join(dir, "state.db"),
			IndexPath:       filepath.Join(dir, "index.bleve"),
			ListingPrefixes: []string{PrefixMostRead, PrefixFrontPagePromos, PrefixFeed},
		},
		Fetch: FetchConfig{
			Concurrency:  4,
			RequestDelay: 0,
			Timeout:      2 * time.Second,
			UserAgent:    "headlines-test/1.0",
			MaxBodyBytes: 1024 * 1024,
		},
		Homepage: HomepageConfig{
			TopN:       10,
			PromoLimit: 30,
			Timeout:    2 * time.Second,
			UserAgent:  "headlines-test/1.0",
		},
		Log: LogConfig{
			Level: "off",
		},
	}
}
