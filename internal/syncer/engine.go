// Package syncer reconciles the local check-in log with the authoritative
// server: it pushes this device's pending records in causal order, applies
// the server's verdicts, and pulls check-ins made by other devices. A cycle
// runs on reconnect and on a periodic timer; at most one cycle runs at a
// time per event.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/prudhvinik1/doorsync/internal/api"
	"github.com/prudhvinik1/doorsync/internal/connectivity"
	"github.com/prudhvinik1/doorsync/internal/store"
)

// DefaultInterval is how often a cycle runs while the device is online.
const DefaultInterval = 30 * time.Second

// DefaultDegradedThreshold is how many consecutive failed cycles flip the
// degraded flag that the UI shows as a non-blocking warning.
const DefaultDegradedThreshold = 3

// Summary describes what one sync cycle accomplished.
type Summary struct {
	Pushed   int `json:"pushed"`
	Synced   int `json:"synced"`
	Rejected int `json:"rejected"`
	Pulled   int `json:"pulled"`
	// Conflicts lists rejected records so the UI can surface them; a
	// conflict is a real-world discrepancy staff must see.
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// Conflict is one server-refused record.
type Conflict struct {
	Seq        int64  `json:"seq"`
	AttendeeID string `json:"attendee_id"`
	Reason     string `json:"reason"`
}

// Engine drives the push/pull reconciliation for one event.
type Engine struct {
	checkins *store.CheckinStore
	client   api.Client
	monitor  *connectivity.Monitor
	deviceID uuid.UUID

	interval          time.Duration
	degradedThreshold int

	// transitions is subscribed at construction, before the monitor's
	// first probe, so the initial offline->online edge is never lost.
	transitions <-chan bool

	group    singleflight.Group
	failures atomic.Int32
	degraded atomic.Bool
	log      *logrus.Entry
}

type Option func(*Engine)

func WithInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

func WithDegradedThreshold(n int) Option {
	return func(e *Engine) { e.degradedThreshold = n }
}

func NewEngine(checkins *store.CheckinStore, client api.Client, monitor *connectivity.Monitor, deviceID uuid.UUID, log *logrus.Logger, opts ...Option) *Engine {
	e := &Engine{
		checkins:          checkins,
		client:            client,
		monitor:           monitor,
		deviceID:          deviceID,
		transitions:       monitor.Transitions(),
		interval:          DefaultInterval,
		degradedThreshold: DefaultDegradedThreshold,
		log: log.WithFields(logrus.Fields{
			"component": "syncer",
			"event_id":  checkins.EventID(),
			"device_id": deviceID,
		}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Degraded reports whether consecutive sync failures passed the threshold.
// Purely informational: check-ins keep working locally regardless.
func (e *Engine) Degraded() bool {
	return e.degraded.Load()
}

// Run triggers cycles on offline->online transitions and on the periodic
// timer while online. It returns when the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case online := <-e.transitions:
			if online {
				if _, err := e.Sync(ctx); err != nil {
					e.log.WithError(err).Warn("sync after reconnect failed")
				}
			}
		case <-ticker.C:
			if !e.monitor.Online() {
				continue
			}
			if _, err := e.Sync(ctx); err != nil {
				e.log.WithError(err).Warn("periodic sync failed")
			}
		}
	}
}

// Sync runs one cycle, single-flighted per event id: a concurrent call
// while a cycle is in progress joins the running one instead of starting a
// second.
func (e *Engine) Sync(ctx context.Context) (*Summary, error) {
	v, err, _ := e.group.Do(e.checkins.EventID(), func() (any, error) {
		summary, err := e.cycle(ctx)
		if err != nil {
			n := e.failures.Add(1)
			if int(n) >= e.degradedThreshold {
				e.degraded.Store(true)
			}
			if errors.Is(err, api.ErrUnavailable) {
				// The probe will flip us back online when the server returns.
				e.monitor.SetOnline(false)
			}
			return summary, err
		}
		e.failures.Store(0)
		e.degraded.Store(false)
		return summary, nil
	})

	summary, _ := v.(*Summary)
	return summary, err
}

// cycle pushes pending records oldest-first, then pulls everyone else's
// check-ins since the stored cursor. A transient failure aborts the cycle
// and leaves every unacknowledged record pending for the next attempt.
func (e *Engine) cycle(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	for _, rec := range e.checkins.Pending() {
		rec := rec
		result, err := e.client.SubmitCheckin(ctx, &rec)
		if err != nil {
			return summary, fmt.Errorf("push seq %d: %w", rec.Seq, err)
		}
		summary.Pushed++

		switch result.Status {
		case api.SubmitAccepted:
			if err := e.checkins.MarkSynced(ctx, rec.Seq); err != nil {
				return summary, fmt.Errorf("mark synced seq %d: %w", rec.Seq, err)
			}
			summary.Synced++
		case api.SubmitConflict:
			if err := e.checkins.MarkRejected(ctx, rec.Seq, result.Reason); err != nil {
				return summary, fmt.Errorf("mark rejected seq %d: %w", rec.Seq, err)
			}
			summary.Rejected++
			summary.Conflicts = append(summary.Conflicts, Conflict{
				Seq:        rec.Seq,
				AttendeeID: rec.AttendeeID,
				Reason:     result.Reason,
			})
			e.log.WithFields(logrus.Fields{
				"seq":         rec.Seq,
				"attendee_id": rec.AttendeeID,
				"reason":      result.Reason,
			}).Warn("check-in rejected by server")
		default:
			return summary, fmt.Errorf("push seq %d: unexpected status %q", rec.Seq, result.Status)
		}
	}

	pulled, err := e.pull(ctx)
	if err != nil {
		return summary, err
	}
	summary.Pulled = pulled

	if err := e.client.Heartbeat(ctx, e.checkins.EventID()); err != nil {
		// Presence is best-effort; the cycle itself succeeded.
		e.log.WithError(err).Debug("heartbeat failed")
	}

	e.log.WithFields(logrus.Fields{
		"pushed":   summary.Pushed,
		"rejected": summary.Rejected,
		"pulled":   summary.Pulled,
	}).Info("sync cycle complete")
	return summary, nil
}

// pull fetches other devices' check-ins page by page until the server has
// nothing newer than the stored cursor, so a large backlog drains in one
// cycle instead of one page per cycle.
func (e *Engine) pull(ctx context.Context) (int, error) {
	merged := 0
	for {
		since := e.checkins.Cursor()
		remote, cursor, err := e.client.FetchCheckins(ctx, e.checkins.EventID(), since)
		if err != nil {
			return merged, fmt.Errorf("pull since %d: %w", since, err)
		}
		// A non-advancing cursor means the server re-served a page we
		// already hold; merging it again would double-count.
		if len(remote) == 0 || cursor <= since {
			return merged, nil
		}

		if err := e.checkins.MergeRemote(ctx, e.deviceID.String(), remote); err != nil {
			return merged, err
		}
		for _, rc := range remote {
			if rc.DeviceID != e.deviceID {
				merged++
			}
		}
		if err := e.checkins.SetCursor(ctx, cursor); err != nil {
			return merged, err
		}
	}
}
