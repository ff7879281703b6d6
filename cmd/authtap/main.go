package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/authtap/internal/api"
	"github.com/dgnsrekt/authtap/internal/bus"
	"github.com/dgnsrekt/authtap/internal/capture"
	"github.com/dgnsrekt/authtap/internal/cdp"
	"github.com/dgnsrekt/authtap/internal/config"
	"github.com/dgnsrekt/authtap/internal/intercept"
	"github.com/dgnsrekt/authtap/internal/logstore"
	"github.com/dgnsrekt/authtap/internal/monitor"
	"github.com/dgnsrekt/authtap/internal/netutil"
	"github.com/dgnsrekt/authtap/internal/notify"
	"github.com/dgnsrekt/authtap/internal/proxy"
	"github.com/dgnsrekt/authtap/internal/scanner"
	"github.com/dgnsrekt/authtap/internal/telemetry"
	"github.com/dgnsrekt/authtap/internal/tracker"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	fs := pflag.NewFlagSet("authtap", pflag.ExitOnError)
	config.BindFlags(fs, cfg)
	_ = fs.Parse(os.Args[1:])
	cfg.Validate()

	if err := setupLogger(cfg.SlogLevel(), cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("authtap config loaded",
		"cdp_url", cfg.GetCDPURL(),
		"tab_url_filter", cfg.TabURLFilter,
		"launch_browser", cfg.LaunchBrowser,
		"bind_addr", cfg.BindAddr,
		"proxy_addr", cfg.ProxyAddr,
		"log_capacity", cfg.LogCapacity,
		"token_min_length", cfg.TokenMinLength,
		"warn_before", cfg.WarnBefore,
		"archive_dir", cfg.ArchiveDir,
		"ntfy", cfg.NtfyEndpoint != "",
		"tracing", cfg.Tracing,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing {
		shutdownTracer, err := telemetry.InitTracer("authtap", nil, slog.Default())
		if err != nil {
			slog.Error("failed to initialize tracing", "error", err)
			os.Exit(1)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(sctx); err != nil {
				slog.Warn("Tracer shutdown failed", "error", err)
			}
		}()
	}

	broker := bus.NewBroker()
	notifier := notify.NewNotifier(broker)
	sc := scanner.Scanner{MinLength: cfg.TokenMinLength}

	var archive *logstore.Archive
	if cfg.ArchiveDir != "" {
		archive = logstore.NewArchive(cfg.ArchiveDir, 1024, cfg.ArchiveMaxMB)
		defer func() {
			if err := archive.Close(); err != nil {
				slog.Warn("Archive close failed", "error", err)
			}
		}()
	}

	mon := monitor.New(monitor.Config{
		Broker:       broker,
		Store:        logstore.New(cfg.LogCapacity),
		Archive:      archive,
		Tracker:      tracker.New(tracker.WithWarnBefore(cfg.WarnBefore)),
		TickInterval: cfg.TickInterval,
		NtfyEndpoint: cfg.NtfyEndpoint,
	})
	monDone := mon.Start(ctx)

	var (
		tabs   api.TabLister
		probes []intercept.Probe
	)

	httpCapture := capture.NewHTTPCapture(notifier, capture.HTTPOptions{Scanner: sc, TextLimit: cfg.BodyTextLimit})
	defer httpCapture.Close()
	storageWatcher := capture.NewStorageWatcher(notifier, sc, cfg.CookieInterval)

	cdpClient := cdp.NewClient(cfg, httpCapture, storageWatcher, cdp.NewTabRegistry())
	if err := cdpClient.Connect(ctx); err != nil {
		slog.Warn("Browser capture unavailable", "cdp_url", cfg.GetCDPURL(), "error", err)
		_ = cdpClient.Close()
		if cfg.ProxyAddr == "" {
			slog.Error("Nothing to capture: no browser tabs and no proxy configured")
			slog.Info("Start Chromium with --remote-debugging-port, pass --launch, or set AUTHTAP_PROXY_ADDR")
			os.Exit(1)
		}
	} else {
		tabs = cdpClient
		defer func() {
			if err := cdpClient.Close(); err != nil {
				slog.Warn("CDP close failed", "error", err)
			}
		}()
	}

	var proxySrv *proxy.Server
	if cfg.ProxyAddr != "" {
		var upstream http.RoundTripper = http.DefaultTransport
		if cfg.Tracing {
			upstream = otelhttp.NewTransport(upstream)
		}
		client := proxy.NewClient(upstream, notifier, intercept.WithScanner(sc), intercept.WithTextLimit(cfg.BodyTextLimit))
		probes = append(probes, intercept.TransportProbe("proxy-upstream", client))

		ln, err := net.Listen("tcp", cfg.ProxyAddr)
		if err != nil {
			slog.Error("failed to listen for proxy", "addr", cfg.ProxyAddr, "error", err)
			os.Exit(1)
		}
		proxySrv = proxy.NewServer(client)
		go func() {
			if err := proxySrv.Serve(ln); err != nil {
				slog.Error("proxy server failed", "error", err)
				stop()
			}
		}()
	}

	if len(probes) > 0 {
		go intercept.NewIntegrityWatcher(cfg.IntegrityInterval, probes...).Run(ctx)
	}

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	bindAddr := ln.Addr().String()
	srv := &http.Server{
		Handler:           api.NewServer(mon, api.Options{Broker: broker, Tabs: tabs, Tracing: cfg.Tracing}),
		ReadHeaderTimeout: 10 * time.Second,
		// Event feeds end with the process context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		slog.Info("authtap listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutdown signal received")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		slog.Error("api shutdown failed", "error", err)
	}
	if proxySrv != nil {
		if err := proxySrv.Shutdown(sctx); err != nil {
			slog.Error("proxy shutdown failed", "error", err)
		}
	}
	select {
	case <-monDone:
	case <-sctx.Done():
	}
	slog.Info("authtap stopped")
}

func setupLogger(level slog.Level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}
	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}
	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
	return nil
}
