package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestResolveDefaults(t *testing.T) {
	cfg, err := Resolve(New(), "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Concurrency != 20 {
		t.Errorf("Concurrency = %d, want 20", cfg.Concurrency)
	}
	if cfg.Ghost != "github:1" {
		t.Errorf("Ghost = %q, want github:1", cfg.Ghost)
	}
	if cfg.RequestTimeout != time.Minute {
		t.Errorf("RequestTimeout = %v, want 1m", cfg.RequestTimeout)
	}
}

func TestResolveEnvironment(t *testing.T) {
	t.Setenv("REVMIGRATE_STORE_URL", "https://src.example.com")
	t.Setenv("REVMIGRATE_CONCURRENCY", "5")
	t.Setenv("REVMIGRATE_NO_GHOST", "true")

	cfg, err := Resolve(New(), "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.StoreURL != "https://src.example.com" {
		t.Errorf("StoreURL = %q", cfg.StoreURL)
	}
	if cfg.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want 5", cfg.Concurrency)
	}
	if cfg.Ghost != "" {
		t.Errorf("Ghost = %q, want empty with no-ghost", cfg.Ghost)
	}
}

func TestResolveFileAndFlagPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revmigrate.yaml")
	data := "store-url: https://file.example.com\nconcurrency: 7\nuploads-url: https://files.example.com\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int(KeyConcurrency, 20, "")
	if err := flags.Parse([]string{"--concurrency=3"}); err != nil {
		t.Fatal(err)
	}

	v := New()
	if err := BindFlags(v, flags, KeyConcurrency, KeyStoreURL); err != nil {
		t.Fatalf("BindFlags failed: %v", err)
	}
	cfg, err := Resolve(v, path)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.StoreURL != "https://file.example.com" {
		t.Errorf("StoreURL = %q, want value from file", cfg.StoreURL)
	}
	if cfg.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want flag value 3", cfg.Concurrency)
	}
	if cfg.UploadsURL != "https://files.example.com" {
		t.Errorf("UploadsURL = %q", cfg.UploadsURL)
	}
}

func TestResolveMissingFile(t *testing.T) {
	_, err := Resolve(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !Error.Has(err) {
		t.Errorf("got = %v, want configuration error", err)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{StoreURL: "https://db.example.com", Concurrency: 1, Ghost: "github:1", RequestTimeout: time.Second}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "sqlite", mutate: func(c *Config) { c.StoreURL = "sqlite:/tmp/x.db" }},
		{name: "no ghost", mutate: func(c *Config) { c.Ghost = "" }},
		{name: "missing store", mutate: func(c *Config) { c.StoreURL = "" }, wantErr: "store URL is required"},
		{name: "bad scheme", mutate: func(c *Config) { c.StoreURL = "ftp://x" }, wantErr: "http(s) URL"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Concurrency = 0 }, wantErr: "concurrency"},
		{name: "bad ghost", mutate: func(c *Config) { c.Ghost = "nobody" }, wantErr: "ghost"},
		{name: "relative uploads", mutate: func(c *Config) { c.UploadsURL = "/files" }, wantErr: "uploads URL"},
		{name: "negative rate", mutate: func(c *Config) { c.LoadRate = -1 }, wantErr: "load rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
			if !Error.Has(err) {
				t.Errorf("Validate() error is not a configuration error")
			}
		})
	}
}
