// Package monitor is the single owner of the log store and the active token. It applies
// bus envelopes serially and answers privileged queries.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgnsrekt/authtap/internal/bus"
	"github.com/dgnsrekt/authtap/internal/logstore"
	"github.com/dgnsrekt/authtap/internal/notify"
	"github.com/dgnsrekt/authtap/internal/tracker"
	"github.com/dgnsrekt/authtap/internal/types"
)

const notifyTimeout = 10 * time.Second

// Config wires a Monitor. Archive and NtfyEndpoint are optional.
type Config struct {
	Broker       *bus.Broker
	Store        *logstore.Store
	Archive      *logstore.Archive
	Tracker      *tracker.Tracker
	TickInterval time.Duration
	NtfyEndpoint string
	HTTPClient   *http.Client
}

type Monitor struct {
	broker       *bus.Broker
	store        *logstore.Store
	archive      *logstore.Archive
	tracker      *tracker.Tracker
	tickInterval time.Duration
	ntfyEndpoint string
	httpClient   *http.Client
}

// TokenView is the active token status with its decoded claims for display.
type TokenView struct {
	tracker.Countdown
	Claims      []tracker.Claim      `json:"claims,omitempty"`
	Permissions []tracker.Permission `json:"permissions,omitempty"`
}

func New(cfg Config) *Monitor {
	m := &Monitor{
		broker:       cfg.Broker,
		store:        cfg.Store,
		archive:      cfg.Archive,
		tracker:      cfg.Tracker,
		tickInterval: cfg.TickInterval,
		ntfyEndpoint: cfg.NtfyEndpoint,
		httpClient:   cfg.HTTPClient,
	}
	if m.store == nil {
		m.store = logstore.New(logstore.DefaultCapacity)
	}
	if m.tracker == nil {
		m.tracker = tracker.New()
	}
	if m.tickInterval <= 0 {
		m.tickInterval = time.Second
	}
	return m
}

// Start subscribes to traffic and auth envelopes before it returns, then consumes them in
// the background until ctx is done. The returned channel closes when consumption stops.
func (m *Monitor) Start(ctx context.Context) <-chan struct{} {
	id, events := m.broker.Subscribe(types.SourceTraffic, types.SourceAuth)
	done := make(chan struct{})

	go m.tracker.Run(ctx, m.tickInterval, func(a tracker.Alert) {
		m.onAlert(ctx, a)
	})

	slog.Info("Monitor started", "capacity", m.store.Cap(), "tick_interval", m.tickInterval)
	go func() {
		defer close(done)
		defer m.broker.Unsubscribe(id)
		for {
			select {
			case env, ok := <-events:
				if !ok {
					return
				}
				m.Apply(env)
			case <-ctx.Done():
				slog.Info("Monitor stopped", "records", m.store.Len(), "evicted", m.store.Evicted())
				return
			}
		}
	}()
	return done
}

// Run is Start followed by a wait for consumption to stop.
func (m *Monitor) Run(ctx context.Context) {
	<-m.Start(ctx)
}

// Apply handles one envelope. Unknown sources and malformed payloads are ignored.
func (m *Monitor) Apply(env types.Envelope) {
	switch env.Source {
	case types.SourceTraffic:
		rec, ok := env.Record()
		if !ok {
			slog.Debug("Ignoring traffic envelope with unexpected payload", "payload_type", fmt.Sprintf("%T", env.Payload))
			return
		}
		m.store.Append(rec)
		if m.archive != nil {
			if err := m.archive.Write(rec); err != nil {
				slog.Debug("Archive write skipped", "id", rec.ID, "error", err)
			}
		}
	case types.SourceAuth:
		c, ok := env.Candidate()
		if !ok {
			slog.Debug("Ignoring auth envelope with unexpected payload", "payload_type", fmt.Sprintf("%T", env.Payload))
			return
		}
		if !m.tracker.Observe(c) {
			return
		}
		tok, _ := m.tracker.Current()
		slog.Info("Active token changed", "source", c.Provenance, "token_prefix", tokenPrefix(c.Token), "decodable", tok.Valid)
		m.publishStatus()
	}
}

// ClearToken drops the active token and announces the change.
func (m *Monitor) ClearToken() {
	if m.tracker.Clear() {
		slog.Info("Active token cleared")
		m.publishStatus()
	}
}

// TokenStatus returns the countdown with display claims at the tracker's current time.
func (m *Monitor) TokenStatus() TokenView {
	view := TokenView{Countdown: m.tracker.Status(m.tracker.Now())}
	if view.State == tracker.StateNoToken {
		return view
	}
	if tok, ok := m.tracker.Current(); ok {
		view.Claims = tok.Decoded.Flat()
		view.Permissions = tok.Decoded.Permissions()
	}
	return view
}

// Logs returns the stored records, oldest first.
func (m *Monitor) Logs() []types.RequestRecord {
	return m.store.All()
}

// ClearLogs empties the store.
func (m *Monitor) ClearLogs() {
	m.store.Clear()
}

// Stats summarizes the store for health checks.
type Stats struct {
	Records  int   `json:"records"`
	Capacity int   `json:"capacity"`
	Evicted  int64 `json:"evicted"`
}

func (m *Monitor) Stats() Stats {
	return Stats{Records: m.store.Len(), Capacity: m.store.Cap(), Evicted: m.store.Evicted()}
}

// Token returns the held token, if any.
func (m *Monitor) Token() (tracker.ActiveToken, bool) {
	return m.tracker.Current()
}

func (m *Monitor) publishStatus() {
	m.broker.Publish(types.Envelope{Source: types.SourceTokenStatus, Payload: m.TokenStatus()})
}

func (m *Monitor) onAlert(ctx context.Context, a tracker.Alert) {
	switch a.Kind {
	case tracker.AlertExpiring:
		slog.Warn("Token expiring soon", "remaining", a.Remaining.Round(time.Second), "expires_at", a.ExpiresAt, "source", a.Source)
	case tracker.AlertExpired:
		slog.Warn("Token expired", "expires_at", a.ExpiresAt, "source", a.Source)
	}
	m.publishStatus()

	if m.ntfyEndpoint == "" {
		return
	}
	nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := notify.SendMessage(nctx, m.httpClient, m.ntfyEndpoint, alertMessage(a)); err != nil {
		slog.Warn("Alert notification failed", "kind", a.Kind, "error", err)
	}
}

func alertMessage(a tracker.Alert) notify.Message {
	if a.Kind == tracker.AlertExpired {
		return notify.Message{
			Title:    "Token expired",
			Body:     fmt.Sprintf("Bearer token from %s expired at %s.", a.Source, a.ExpiresAt.Format(time.RFC3339)),
			Priority: "high",
			Tags:     []string{"lock"},
		}
	}
	return notify.Message{
		Title:    "Token expiring soon",
		Body:     fmt.Sprintf("Bearer token from %s expires in %s.", a.Source, a.Remaining.Round(time.Second)),
		Priority: "default",
		Tags:     []string{"hourglass"},
	}
}

func tokenPrefix(raw string) string {
	const n = 12
	if len(raw) <= n {
		return raw
	}
	return raw[:n] + "..."
}
