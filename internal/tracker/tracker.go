package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/dgnsrekt/authtap/internal/types"
)

// State is the display state of the tracker.
type State string

const (
	StateNoToken State = "no_token"
	StateActive  State = "active"
	StateExpired State = "expired"
)

const (
	// DefaultWarnBefore is the remaining lifetime at which the expiry warning fires.
	DefaultWarnBefore = 5 * time.Minute
	// assumedLifetime stands in for a missing iat when computing progress.
	assumedLifetime = time.Hour
)

// ActiveToken is the most recently observed token. Valid is false when the raw string did
// not decode; such a token is held but displayed as no token.
type ActiveToken struct {
	Raw        string           `json:"token"`
	Provenance types.Provenance `json:"source"`
	Valid      bool             `json:"valid"`
	Decoded    Decoded          `json:"-"`
	ObservedAt time.Time        `json:"observedAt"`
}

// Countdown is the expiry view of the active token.
type Countdown struct {
	State            State            `json:"state"`
	Source           types.Provenance `json:"source,omitempty"`
	ExpiresAt        *time.Time       `json:"expiresAt,omitempty"`
	IssuedAt         *time.Time       `json:"issuedAt,omitempty"`
	RemainingSeconds int64            `json:"remainingSeconds"`
	Progress         float64          `json:"progress"`
	Warning          bool             `json:"warning"`
}

// AlertKind distinguishes countdown alerts.
type AlertKind string

const (
	AlertExpiring AlertKind = "expiring"
	AlertExpired  AlertKind = "expired"
)

// Alert is a threshold crossing, fired once per token.
type Alert struct {
	Kind      AlertKind
	Token     string
	Source    types.Provenance
	ExpiresAt time.Time
	Remaining time.Duration
}

type held struct {
	token   ActiveToken
	warned  bool
	expired bool
}

// Tracker owns the single active token slot. Observations are last-write-wins.
type Tracker struct {
	mu         sync.Mutex
	current    *held
	warnBefore time.Duration
	now        func() time.Time
}

type Option func(*Tracker)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithWarnBefore sets the warning threshold.
func WithWarnBefore(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.warnBefore = d
		}
	}
}

func New(opts ...Option) *Tracker {
	t := &Tracker{warnBefore: DefaultWarnBefore, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe replaces the held token when c carries a different raw string. The decoded form
// is recomputed from scratch. Returns whether the held token changed.
func (t *Tracker) Observe(c types.TokenCandidate) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil && t.current.token.Raw == c.Token {
		return false
	}
	decoded, ok := Decode(c.Token)
	t.current = &held{token: ActiveToken{
		Raw:        c.Token,
		Provenance: c.Provenance,
		Valid:      ok,
		Decoded:    decoded,
		ObservedAt: t.now(),
	}}
	return true
}

// Clear drops the held token. Returns whether anything was held.
func (t *Tracker) Clear() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	had := t.current != nil
	t.current = nil
	return had
}

// Current returns the held token, valid or not.
func (t *Tracker) Current() (ActiveToken, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return ActiveToken{}, false
	}
	return t.current.token, true
}

// Status derives the countdown at now.
func (t *Tracker) Status(now time.Time) Countdown {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil || !t.current.token.Valid {
		return Countdown{State: StateNoToken}
	}
	tok := t.current.token
	st := Countdown{
		State:    StateActive,
		Source:   tok.Provenance,
		IssuedAt: tok.Decoded.IssuedAt,
	}
	exp := tok.Decoded.ExpiresAt
	if exp == nil {
		st.Progress = 1
		return st
	}
	st.ExpiresAt = exp

	remaining := exp.Sub(now)
	if remaining <= 0 {
		st.State = StateExpired
		return st
	}
	st.RemainingSeconds = int64(remaining / time.Second)
	st.Warning = remaining <= t.warnBefore

	issued := exp.Add(-assumedLifetime)
	if tok.Decoded.IssuedAt != nil {
		issued = *tok.Decoded.IssuedAt
	}
	if total := exp.Sub(issued); total > 0 {
		st.Progress = clamp(float64(remaining) / float64(total))
	}
	return st
}

// Tick returns the alerts crossed at now. Each kind fires at most once per held token; a
// token first seen already expired only produces AlertExpired.
func (t *Tracker) Tick(now time.Time) []Alert {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil || !t.current.token.Valid || t.current.token.Decoded.ExpiresAt == nil {
		return nil
	}
	h := t.current
	exp := *h.token.Decoded.ExpiresAt
	remaining := exp.Sub(now)

	alert := Alert{Token: h.token.Raw, Source: h.token.Provenance, ExpiresAt: exp, Remaining: remaining}
	switch {
	case remaining <= 0:
		if h.expired {
			return nil
		}
		h.expired = true
		h.warned = true
		alert.Kind = AlertExpired
		alert.Remaining = 0
	case remaining <= t.warnBefore:
		if h.warned {
			return nil
		}
		h.warned = true
		alert.Kind = AlertExpiring
	default:
		return nil
	}
	return []Alert{alert}
}

// Run ticks every interval until ctx is done, passing each alert to onAlert.
func (t *Tracker) Run(ctx context.Context, interval time.Duration, onAlert func(Alert)) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, a := range t.Tick(t.now()) {
				onAlert(a)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Now returns the tracker's clock reading.
func (t *Tracker) Now() time.Time {
	return t.now()
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
