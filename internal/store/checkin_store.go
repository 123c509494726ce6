// Package store is the durable log of check-in attempts made on this
// device. Records are appended by check-in operations and transitioned by
// the sync engine; nothing is ever rewritten in place, so the log doubles
// as an audit trail.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/prudhvinik1/doorsync/internal/kv"
	"github.com/prudhvinik1/doorsync/internal/models"
)

var (
	// ErrDuplicate is returned when an attendee already has an active
	// (pending or synced) check-in, locally or learned from another device.
	ErrDuplicate = errors.New("attendee already checked in")
	// ErrRecordNotFound is returned by state transitions on an unknown seq.
	ErrRecordNotFound = errors.New("check-in record not found")
)

func recKey(eventID string, seq int64) string {
	return fmt.Sprintf("checkin:%s:rec:%020d", eventID, seq)
}

func seqKey(eventID string) string { return "checkin:" + eventID + ":seq" }

func cursorKey(eventID string) string { return "checkin:" + eventID + ":cursor" }

func remotePrefix(eventID string) string { return "checkin:" + eventID + ":remote:" }

func eventPrefix(eventID string) string { return "checkin:" + eventID + ":" }

// CheckinStore is the per-event check-in log. All reads are answered from
// in-memory mirrors rebuilt at Open, so local operations never scan the KV
// store; every mutation writes through to KV before updating memory.
type CheckinStore struct {
	kv      kv.Store
	eventID string

	mu      sync.RWMutex
	records map[int64]*models.Checkin
	// active maps attendee id -> seq of its pending/synced record.
	active map[string]int64
	// remote holds check-ins learned from other devices via sync pulls.
	remote  map[string]models.RemoteCheckin
	nextSeq int64
	cursor  int64
}

// Open rebuilds the store for an event from the KV layer. A fresh event
// starts empty at seq 0.
func Open(ctx context.Context, store kv.Store, eventID string) (*CheckinStore, error) {
	s := &CheckinStore{
		kv:      store,
		eventID: eventID,
		records: make(map[int64]*models.Checkin),
		active:  make(map[string]int64),
		remote:  make(map[string]models.RemoteCheckin),
	}

	pairs, err := store.List(ctx, eventPrefix(eventID))
	if err != nil {
		return nil, fmt.Errorf("failed to list check-in state: %w", err)
	}

	recPrefix := eventPrefix(eventID) + "rec:"
	remPrefix := remotePrefix(eventID)
	for key, value := range pairs {
		switch {
		case strings.HasPrefix(key, recPrefix):
			var rec models.Checkin
			if err := json.Unmarshal(value, &rec); err != nil {
				return nil, fmt.Errorf("corrupt check-in record %q: %w", key, err)
			}
			s.records[rec.Seq] = &rec
			if rec.Active() && rec.Method != models.MethodOverride {
				s.active[rec.AttendeeID] = rec.Seq
			}
		case strings.HasPrefix(key, remPrefix):
			var rc models.RemoteCheckin
			if err := json.Unmarshal(value, &rc); err != nil {
				return nil, fmt.Errorf("corrupt remote check-in %q: %w", key, err)
			}
			s.remote[rc.AttendeeID] = rc
		case key == seqKey(eventID):
			s.nextSeq, err = strconv.ParseInt(string(value), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("corrupt seq counter: %w", err)
			}
		case key == cursorKey(eventID):
			s.cursor, err = strconv.ParseInt(string(value), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("corrupt sync cursor: %w", err)
			}
		}
	}

	return s, nil
}

func (s *CheckinStore) EventID() string { return s.eventID }

// Append records a new check-in attempt. For scan and manual check-ins the
// duplicate invariant is enforced: at most one active record per attendee,
// counting check-ins learned from other devices. Overrides always append.
// On success the record's Seq and SyncState are populated.
func (s *CheckinStore) Append(ctx context.Context, rec *models.Checkin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Method != models.MethodOverride {
		if _, ok := s.active[rec.AttendeeID]; ok {
			return ErrDuplicate
		}
		if _, ok := s.remote[rec.AttendeeID]; ok {
			return ErrDuplicate
		}
	}

	seq := s.nextSeq + 1
	rec.EventID = s.eventID
	rec.Seq = seq
	rec.SyncState = models.SyncPending

	// Counter first: an allocated seq with no record is just a gap in the
	// log, while a record that outlives a failed counter write would come
	// back as a phantom admission on the next Open.
	if err := s.kv.Set(ctx, seqKey(s.eventID), []byte(strconv.FormatInt(seq, 10))); err != nil {
		return fmt.Errorf("failed to persist seq counter: %w", err)
	}
	if err := s.persistRecord(ctx, rec); err != nil {
		return err
	}

	s.nextSeq = seq
	clone := *rec
	s.records[seq] = &clone
	if rec.Method != models.MethodOverride {
		s.active[rec.AttendeeID] = seq
	}
	return nil
}

// Pending returns unsynced records ordered by seq, oldest first, which
// preserves the causal order of this device's own actions when pushing.
func (s *CheckinStore) Pending() []models.Checkin {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Checkin
	for _, rec := range s.records {
		if rec.SyncState == models.SyncPending {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// MarkSynced transitions a record to synced after server acceptance.
func (s *CheckinStore) MarkSynced(ctx context.Context, seq int64) error {
	return s.transition(ctx, seq, func(rec *models.Checkin) {
		rec.SyncState = models.SyncSynced
	})
}

// MarkRejected transitions a record to rejected and releases the duplicate
// index slot so a later override or legitimate re-admission is possible.
func (s *CheckinStore) MarkRejected(ctx context.Context, seq int64, reason string) error {
	return s.transition(ctx, seq, func(rec *models.Checkin) {
		rec.SyncState = models.SyncRejected
		rec.RejectReason = reason
	})
}

func (s *CheckinStore) transition(ctx context.Context, seq int64, apply func(*models.Checkin)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[seq]
	if !ok {
		return ErrRecordNotFound
	}

	updated := *rec
	apply(&updated)
	if err := s.persistRecord(ctx, &updated); err != nil {
		return err
	}

	*rec = updated
	if !rec.Active() && s.active[rec.AttendeeID] == seq {
		delete(s.active, rec.AttendeeID)
	}
	return nil
}

// MergeRemote folds check-ins pulled from the server into local knowledge.
// They feed statistics and duplicate prevention only; they are never
// re-submitted. Entries originated by this device are skipped.
func (s *CheckinStore) MergeRemote(ctx context.Context, deviceID string, remote []models.RemoteCheckin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rc := range remote {
		if rc.DeviceID.String() == deviceID {
			continue
		}
		data, err := json.Marshal(rc)
		if err != nil {
			return fmt.Errorf("failed to marshal remote check-in: %w", err)
		}
		if err := s.kv.Set(ctx, remotePrefix(s.eventID)+rc.AttendeeID, data); err != nil {
			return fmt.Errorf("failed to persist remote check-in: %w", err)
		}
		s.remote[rc.AttendeeID] = rc
	}
	return nil
}

// Cursor returns the pull high-water mark.
func (s *CheckinStore) Cursor() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// SetCursor persists the pull high-water mark after a successful pull.
func (s *CheckinStore) SetCursor(ctx context.Context, cursor int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Set(ctx, cursorKey(s.eventID), []byte(strconv.FormatInt(cursor, 10))); err != nil {
		return fmt.Errorf("failed to persist cursor: %w", err)
	}
	s.cursor = cursor
	return nil
}

// HasActive reports whether the attendee counts as checked in, either by an
// active local record or by a check-in learned from another device.
func (s *CheckinStore) HasActive(attendeeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.active[attendeeID]; ok {
		return true
	}
	_, ok := s.remote[attendeeID]
	return ok
}

// CheckedInAttendees returns the distinct attendees with a live admission.
func (s *CheckinStore) CheckedInAttendees() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]struct{}, len(s.active)+len(s.remote))
	for id := range s.active {
		out[id] = struct{}{}
	}
	for id := range s.remote {
		out[id] = struct{}{}
	}
	// Overrides admit attendees too, even though they bypass the index.
	for _, rec := range s.records {
		if rec.Method == models.MethodOverride && rec.Active() {
			out[rec.AttendeeID] = struct{}{}
		}
	}
	return out
}

// PendingCount returns the number of records awaiting sync.
func (s *CheckinStore) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.records {
		if rec.SyncState == models.SyncPending {
			n++
		}
	}
	return n
}

// Get returns a copy of the record at seq.
func (s *CheckinStore) Get(seq int64) (*models.Checkin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[seq]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := *rec
	return &clone, nil
}

// Clear destroys all check-in state for the event: records, remote
// knowledge and cursor. Administrative action only. The seq counter
// survives: the server keeps every (device, seq) pair this device ever
// submitted, so a reused seq would make a genuinely new check-in look
// like a replay and be silently dropped.
func (s *CheckinStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.DeletePrefix(ctx, eventPrefix(s.eventID)); err != nil {
		return fmt.Errorf("failed to clear check-in state: %w", err)
	}
	if s.nextSeq > 0 {
		if err := s.kv.Set(ctx, seqKey(s.eventID), []byte(strconv.FormatInt(s.nextSeq, 10))); err != nil {
			return fmt.Errorf("failed to restore seq counter: %w", err)
		}
	}
	s.records = make(map[int64]*models.Checkin)
	s.active = make(map[string]int64)
	s.remote = make(map[string]models.RemoteCheckin)
	s.cursor = 0
	return nil
}

func (s *CheckinStore) persistRecord(ctx context.Context, rec *models.Checkin) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal check-in record: %w", err)
	}
	if err := s.kv.Set(ctx, recKey(s.eventID, rec.Seq), data); err != nil {
		return fmt.Errorf("failed to persist check-in record: %w", err)
	}
	return nil
}
