package intercept

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// DefaultIntegrityInterval is how often installed wrappers are re-checked.
const DefaultIntegrityInterval = 10 * time.Second

// Marked is implemented by installed wrappers.
type Marked interface {
	Marker() string
}

// Probe reports whether one installed wrapper is still the active implementation.
type Probe struct {
	Name   string
	Active func() bool
}

// TransportProbe checks that client.Transport is still a Transport.
func TransportProbe(name string, client *http.Client) Probe {
	return Probe{Name: name, Active: func() bool {
		m, ok := client.Transport.(Marked)
		return ok && m.Marker() == TransportMarker
	}}
}

// ConstructorProbe checks that the constructor returned by get still yields wrapped instances.
func ConstructorProbe(name string, get func() AsyncConstructor) Probe {
	return Probe{Name: name, Active: func() bool {
		ctor := get()
		if ctor == nil {
			return false
		}
		m, ok := ctor().(Marked)
		return ok && m.Marker() == AsyncMarker
	}}
}

// IntegrityWatcher logs a warning when a probe stops reporting its wrapper as active.
// It never reinstalls anything.
type IntegrityWatcher struct {
	interval time.Duration
	probes   []Probe

	mu   sync.Mutex
	lost map[string]bool
}

func NewIntegrityWatcher(interval time.Duration, probes ...Probe) *IntegrityWatcher {
	if interval <= 0 {
		interval = DefaultIntegrityInterval
	}
	return &IntegrityWatcher{interval: interval, probes: probes, lost: make(map[string]bool)}
}

// Check runs every probe once and returns the names that were found replaced on this pass.
// A probe that stays replaced is reported only once; it is reported again after recovering.
func (w *IntegrityWatcher) Check() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var newlyLost []string
	for _, p := range w.probes {
		active := p.Active()
		switch {
		case !active && !w.lost[p.Name]:
			w.lost[p.Name] = true
			newlyLost = append(newlyLost, p.Name)
			slog.Warn("Interceptor was replaced by another implementation", "probe", p.Name)
		case active && w.lost[p.Name]:
			delete(w.lost, p.Name)
			slog.Info("Interceptor is active again", "probe", p.Name)
		}
	}
	return newlyLost
}

// Run checks on every tick until ctx is done.
func (w *IntegrityWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Check()
		case <-ctx.Done():
			return
		}
	}
}
