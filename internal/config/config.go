package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RSSConfig describes a single additional RSS/Atom news source.
type RSSConfig struct {
	// URL is the feed endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown next to articles.
	Name string `yaml:"name" json:"name"`
}

// CovidConfig is the locality filter for the coronavirus statistics API.
type CovidConfig struct {
	// AreaName is the locality, e.g. "Exeter".
	AreaName string `yaml:"area_name" json:"area_name"`
	// AreaType is the area granularity, e.g. "ltla" (lower-tier local
	// authority). "overview" selects the nation-wide series.
	AreaType string `yaml:"area_type" json:"area_type"`
}

// NewsConfig holds news API credentials and search configuration.
type NewsConfig struct {
	// APIKey is the newsapi.org key. Without it no API articles load.
	APIKey string `yaml:"api_key" json:"api_key"`
	// CovidTerms is the space-separated search term list.
	CovidTerms string `yaml:"covid_terms" json:"covid_terms"`
	// PageSize is how many articles the dashboard shows.
	PageSize int `yaml:"page_size" json:"page_size"`
	// RSS lists extra feed sources merged into the news column.
	RSS []RSSConfig `yaml:"rss" json:"rss"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the dashboard.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the dashboard.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone scheduled updates are interpreted in
	// (e.g. "Europe/London").
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "0 * * * *")
	// for the background data refresh, independent of user-scheduled
	// updates.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Database is a SQLite file path. When empty nothing is persisted
	// and dismissals last for the session only.
	Database string `yaml:"database" json:"database"`

	// Covid is the statistics API locality filter.
	Covid CovidConfig `yaml:"covid" json:"covid"`

	// News is the news API and source configuration.
	News NewsConfig `yaml:"news" json:"news"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Europe/London",
		RefreshCron: "0 * * * *",
		LogLevel:    "info",
		Database:    "",
		Covid: CovidConfig{
			AreaName: "Exeter",
			AreaType: "ltla",
		},
		News: NewsConfig{
			APIKey:     "",
			CovidTerms: "Covid COVID-19 coronavirus",
			PageSize:   5,
			RSS:        []RSSConfig{},
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/London"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "0 * * * *"
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
		// ok
	default:
		c.LogLevel = "info"
	}
	if c.Covid.AreaName == "" {
		c.Covid.AreaName = "Exeter"
	}
	if c.Covid.AreaType == "" {
		c.Covid.AreaType = "ltla"
	}
	if c.News.CovidTerms == "" {
		c.News.CovidTerms = "Covid COVID-19 coronavirus"
	}
	if c.News.PageSize <= 0 {
		c.News.PageSize = 5
	}
	if c.News.RSS == nil {
		c.News.RSS = []RSSConfig{}
	}
}

// RSSSources returns the configured RSS sources with usable URLs,
// filling missing IDs from the name or URL the way sources are
// identified in logs.
func (c *Config) RSSSources() []RSSConfig {
	out := make([]RSSConfig, 0, len(c.News.RSS))
	for _, src := range c.News.RSS {
		if src.URL == "" {
			continue
		}
		if src.ID == "" {
			if src.Name != "" {
				src.ID = src.Name
			} else {
				src.ID = src.URL
			}
		}
		out = append(out, src)
	}
	return out
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600 (the news API key lives here).
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".covidboard-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the
// package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
