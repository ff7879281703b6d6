package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/authtap/internal/bus"
	"github.com/dgnsrekt/authtap/internal/monitor"
	"github.com/dgnsrekt/authtap/internal/tracker"
	"github.com/dgnsrekt/authtap/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Service is the monitor surface the API needs.
type Service interface {
	Handle(ctx context.Context, msg monitor.Message) monitor.Response
	Logs() []types.RequestRecord
	ClearLogs()
	Token() (tracker.ActiveToken, bool)
	ClearToken()
	TokenStatus() monitor.TokenView
	Stats() monitor.Stats
}

// TabLister reports the attached browser tabs.
type TabLister interface {
	Tabs() []types.TabInfo
}

// Options configures the optional parts of the server. A nil Broker disables the event
// feeds and a nil Tabs reports the browser as unavailable.
type Options struct {
	Broker  *bus.Broker
	Tabs    TabLister
	Tracing bool
}

func NewServer(svc Service, opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("authtap API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/docs/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(eventsDocsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	if opts.Broker != nil {
		router.Get("/api/v1/events", bus.SSEHandler(opts.Broker))
		router.Get("/api/v1/events/ws", bus.WSHandler(opts.Broker))
	}

	registerMessageHandlers(api, svc)
	registerLogHandlers(api, svc)
	registerTokenHandlers(api, svc)
	registerMiscHandlers(api, svc, opts)

	if opts.Tracing {
		return otelhttp.NewHandler(router, "authtap-api")
	}
	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *monitor.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case monitor.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case monitor.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case monitor.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
