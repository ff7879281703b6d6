package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// Config holds browser launch configuration.
type Config struct {
	CDPAddress string
	CDPPort    int
	Launch     bool
	Headless   bool
	ProfileDir string
	WindowSize string
}

// Allocator is a chromedp allocator context plus how it was obtained.
type Allocator struct {
	Ctx      context.Context
	Cancel   context.CancelFunc
	Launched bool
}

// NewAllocator attaches to the browser listening on the CDP port. When Launch is set and
// nothing listens there yet, it starts a browser through chromedp's exec allocator instead.
func NewAllocator(parent context.Context, cfg Config) (*Allocator, error) {
	if cfg.WindowSize == "" {
		cfg.WindowSize = "1920,1080"
	}

	if !cfg.Launch || isPortInUse(cfg.CDPAddress, cfg.CDPPort) {
		if cfg.Launch {
			slog.Info("browser already running, skipping launch",
				"address", cfg.CDPAddress, "port", cfg.CDPPort)
		}
		url := fmt.Sprintf("http://%s:%d", cfg.CDPAddress, cfg.CDPPort)
		ctx, cancel := chromedp.NewRemoteAllocator(parent, url)
		return &Allocator{Ctx: ctx, Cancel: cancel}, nil
	}

	opts, err := execOptions(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := chromedp.NewExecAllocator(parent, opts...)
	slog.Info("launching browser", "headless", cfg.Headless, "profile_dir", cfg.ProfileDir)
	return &Allocator{Ctx: ctx, Cancel: cancel, Launched: true}, nil
}

func execOptions(cfg Config) ([]chromedp.ExecAllocatorOption, error) {
	width, height, err := parseWindowSize(cfg.WindowSize)
	if err != nil {
		return nil, err
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("remote-debugging-address", cfg.CDPAddress),
		chromedp.Flag("remote-debugging-port", strconv.Itoa(cfg.CDPPort)),
		chromedp.Flag("disable-breakpad", true),
		chromedp.WindowSize(width, height),
	)
	if cfg.ProfileDir != "" {
		if err := os.MkdirAll(cfg.ProfileDir, 0o755); err != nil {
			return nil, fmt.Errorf("create profile dir: %w", err)
		}
		opts = append(opts, chromedp.UserDataDir(cfg.ProfileDir))
	}
	if path, err := detectBrowser(); err == nil {
		slog.Info("detected browser", "path", path)
		opts = append(opts, chromedp.ExecPath(path))
	}
	return opts, nil
}

func parseWindowSize(s string) (int, int, error) {
	w, h, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("window size %q: want WIDTH,HEIGHT", s)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return 0, 0, fmt.Errorf("window size %q: %w", s, err)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return 0, 0, fmt.Errorf("window size %q: %w", s, err)
	}
	return width, height, nil
}

// detectBrowser finds an available Chrome/Chromium binary.
func detectBrowser() (string, error) {
	candidates := []string{"chromium-browser", "chromium", "google-chrome"}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		macPath := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if _, err := os.Stat(macPath); err == nil {
			return macPath, nil
		}
	}
	return "", fmt.Errorf("no supported browser found (tried chromium-browser, chromium, google-chrome)")
}

// isPortInUse checks whether a TCP port is already listening.
func isPortInUse(address string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(address, strconv.Itoa(port)), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
