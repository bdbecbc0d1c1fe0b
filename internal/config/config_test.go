package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Covid.AreaName != "Exeter" || cfg.Covid.AreaType != "ltla" {
		t.Errorf("Covid defaults = %+v", cfg.Covid)
	}

	// Default file must have been created with 0600.
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perms = %o, want 600", perm)
	}
}

func TestLoadPartialConfigNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := []byte("listen: 0.0.0.0:9000\nnews:\n  api_key: secret\n  page_size: -1\nlog_level: loud\n")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.News.APIKey != "secret" {
		t.Errorf("APIKey = %q", cfg.News.APIKey)
	}
	if cfg.News.PageSize != 5 {
		t.Errorf("PageSize = %d, want normalized 5", cfg.News.PageSize)
	}
	if cfg.News.CovidTerms != "Covid COVID-19 coronavirus" {
		t.Errorf("CovidTerms = %q", cfg.News.CovidTerms)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want fallback info", cfg.LogLevel)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Covid.AreaName = "Bristol"
	cfg.News.RSS = []RSSConfig{{ID: "bbc", Name: "BBC Health", URL: "https://example.com/rss"}}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Covid.AreaName != "Bristol" {
		t.Errorf("AreaName = %q", got.Covid.AreaName)
	}
	if len(got.RSSSources()) != 1 || got.News.RSS[0].ID != "bbc" {
		t.Errorf("RSS = %+v", got.News.RSS)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("expected error for empty path")
	}
}
