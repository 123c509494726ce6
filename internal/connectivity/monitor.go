// Package connectivity owns the process-wide online/offline flag. The flag
// is initialized from a reachability probe at startup, refreshed on a
// ticker, and read by the sync engine's trigger logic. Operation code never
// probes reachability directly.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Probe reports whether the server is currently reachable.
type Probe func(ctx context.Context) bool

// HTTPProbe builds a probe that GETs the server's health endpoint with a
// short timeout. Any error or non-2xx answer counts as offline.
func HTTPProbe(baseURL string) Probe {
	client := &http.Client{Timeout: 3 * time.Second}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode < 300
	}
}

// Monitor tracks reachability and publishes transitions. Subscribers see
// only edges (offline->online, online->offline), never repeats of the same
// state.
type Monitor struct {
	probe    Probe
	interval time.Duration
	log      *logrus.Entry

	online atomic.Bool

	mu          sync.Mutex
	transitions []chan bool
}

func NewMonitor(probe Probe, interval time.Duration, log *logrus.Logger) *Monitor {
	return &Monitor{
		probe:    probe,
		interval: interval,
		log:      log.WithField("component", "connectivity"),
	}
}

// Online returns the current flag without probing.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// SetOnline forces the flag, publishing a transition if it changed. Used at
// startup with the initial probe result, by tests, and by the sync engine
// when a round trip fails while the flag still says online.
func (m *Monitor) SetOnline(online bool) {
	if m.online.Swap(online) == online {
		return
	}

	m.log.WithField("online", online).Info("connectivity transition")

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.transitions {
		// Non-blocking: a slow subscriber misses intermediate edges but
		// always observes the latest state via Online().
		select {
		case ch <- online:
		default:
		}
	}
}

// Transitions returns a channel receiving each state change.
func (m *Monitor) Transitions() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, ch)
	return ch
}

// Run probes immediately and then on the configured interval until the
// context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.SetOnline(m.probe(ctx))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetOnline(m.probe(ctx))
		}
	}
}
