package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTHTAP_LOG_CAPACITY", "")
	t.Setenv("AUTHTAP_COOKIE_INTERVAL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogCapacity != 1000 {
		t.Fatalf("LogCapacity = %d; want 1000", cfg.LogCapacity)
	}
	if cfg.CookieInterval != 5*time.Second {
		t.Fatalf("CookieInterval = %v; want 5s", cfg.CookieInterval)
	}
	if cfg.GetCDPURL() == "" {
		t.Fatal("expected CDP URL")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CHROMIUM_CDP_PORT", "9333")
	t.Setenv("AUTHTAP_COOKIE_INTERVAL", "2")
	t.Setenv("AUTHTAP_WARN_BEFORE", "90s")
	t.Setenv("AUTHTAP_LOG_LEVEL", "DEBUG")
	t.Setenv("AUTHTAP_PORT_CANDIDATES", " 127.0.0.1:1 , ,127.0.0.1:2")
	t.Setenv("AUTHTAP_LAUNCH_BROWSER", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CDPPort != 9333 {
		t.Fatalf("CDPPort = %d; want 9333", cfg.CDPPort)
	}
	if cfg.CookieInterval != 2*time.Second {
		t.Fatalf("CookieInterval = %v; want 2s", cfg.CookieInterval)
	}
	if cfg.WarnBefore != 90*time.Second {
		t.Fatalf("WarnBefore = %v; want 90s", cfg.WarnBefore)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("SlogLevel() = %v; want debug", cfg.SlogLevel())
	}
	if len(cfg.PortCandidates) != 2 || cfg.PortCandidates[1] != "127.0.0.1:2" {
		t.Fatalf("PortCandidates = %v", cfg.PortCandidates)
	}
	if !cfg.LaunchBrowser {
		t.Fatal("expected LaunchBrowser=true")
	}
}

func TestValidateClampsNonsense(t *testing.T) {
	cfg := &Config{LogCapacity: 0, TickInterval: time.Millisecond, CookieInterval: -1, TokenMinLength: -5}
	cfg.Validate()
	if cfg.LogCapacity != 1000 || cfg.TickInterval != time.Second || cfg.CookieInterval != 5*time.Second || cfg.TokenMinLength != 50 {
		t.Fatalf("unexpected config after Validate: %+v", cfg)
	}
}

func TestBindFlagsOverride(t *testing.T) {
	cfg := &Config{CDPPort: 9220, BindAddr: "127.0.0.1:8190"}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, cfg)

	if err := fs.Parse([]string{"--cdp-port=9555", "--launch", "--tab-filter", "example.com"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.CDPPort != 9555 || !cfg.LaunchBrowser || cfg.TabURLFilter != "example.com" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.BindAddr != "127.0.0.1:8190" {
		t.Fatalf("BindAddr changed without flag: %q", cfg.BindAddr)
	}
}

func TestLoadWindows(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(dir, "ok.yaml")
		if err := os.WriteFile(path, []byte("windows:\n  - url: https://a.example.com\n  - url: https://b.example.com\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadWindows(path)
		if err != nil {
			t.Fatalf("LoadWindows() error = %v", err)
		}
		if urls := cfg.URLs(); len(urls) != 2 || urls[1] != "https://b.example.com" {
			t.Fatalf("URLs() = %v", urls)
		}
	})

	t.Run("missing_file", func(t *testing.T) {
		_, err := LoadWindows(filepath.Join(dir, "nope.yaml"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("expected ErrNotExist, got %v", err)
		}
	})

	t.Run("missing_url", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		_ = os.WriteFile(path, []byte("windows:\n  - url: \"\"\n"), 0o644)
		if _, err := LoadWindows(path); err == nil {
			t.Fatal("expected error for empty url")
		}
	})

	t.Run("empty_list", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		_ = os.WriteFile(path, []byte("windows: []\n"), 0o644)
		if _, err := LoadWindows(path); err == nil {
			t.Fatal("expected error for empty list")
		}
	})
}
