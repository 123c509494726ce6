package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prudhvinik1/doorsync/internal/kv"
	"github.com/prudhvinik1/doorsync/internal/models"
)

const testEvent = "evt-spring-gala"

func newTestStore(t *testing.T) (*CheckinStore, kv.Store) {
	t.Helper()
	mem := kv.NewMemoryStore()
	s, err := Open(context.Background(), mem, testEvent)
	require.NoError(t, err)
	return s, mem
}

func newCheckin(attendeeID string, method models.CheckinMethod) *models.Checkin {
	return &models.Checkin{
		ID:          uuid.New(),
		AttendeeID:  attendeeID,
		Method:      method,
		DeviceID:    uuid.New(),
		CheckedInAt: time.Now().UTC(),
	}
}

func TestCheckinStore_Append_AssignsSequentialSeqs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first := newCheckin("att-1", models.MethodScan)
	second := newCheckin("att-2", models.MethodManual)

	require.NoError(t, s.Append(ctx, first))
	require.NoError(t, s.Append(ctx, second))

	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, models.SyncPending, first.SyncState)
	assert.Equal(t, testEvent, first.EventID)
}

func TestCheckinStore_Append_RejectsDuplicate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, newCheckin("att-1", models.MethodScan)))

	err := s.Append(ctx, newCheckin("att-1", models.MethodScan))
	assert.ErrorIs(t, err, ErrDuplicate)

	err = s.Append(ctx, newCheckin("att-1", models.MethodManual))
	assert.ErrorIs(t, err, ErrDuplicate)

	// Only one record made it into the log.
	assert.Len(t, s.Pending(), 1)
}

func TestCheckinStore_Append_RejectsDuplicateFromRemote(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// Another device admitted att-9; we learned about it via a pull.
	require.NoError(t, s.MergeRemote(ctx, uuid.New().String(), []models.RemoteCheckin{
		{EventID: testEvent, AttendeeID: "att-9", DeviceID: uuid.New(), Seq: 1, Cursor: 10},
	}))

	err := s.Append(ctx, newCheckin("att-9", models.MethodScan))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestCheckinStore_Append_OverrideBypassesDuplicateCheck(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, newCheckin("att-1", models.MethodScan)))

	override := newCheckin("att-1", models.MethodOverride)
	override.OverrideReason = "lost wristband"
	require.NoError(t, s.Append(ctx, override))

	assert.Equal(t, int64(2), override.Seq)
	assert.Len(t, s.Pending(), 2)

	// The audit trail keeps the reason.
	stored, err := s.Get(override.Seq)
	require.NoError(t, err)
	assert.Equal(t, "lost wristband", stored.OverrideReason)
}

func TestCheckinStore_Pending_OrderedBySeq(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Append(ctx, newCheckin(id, models.MethodScan)))
	}
	require.NoError(t, s.MarkSynced(ctx, 2))

	pending := s.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, int64(1), pending[0].Seq)
	assert.Equal(t, int64(3), pending[1].Seq)
}

func TestCheckinStore_MarkRejected_ReleasesDuplicateSlot(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rec := newCheckin("att-1", models.MethodScan)
	require.NoError(t, s.Append(ctx, rec))
	require.True(t, s.HasActive("att-1"))

	require.NoError(t, s.MarkRejected(ctx, rec.Seq, "already_checked_in"))

	stored, err := s.Get(rec.Seq)
	require.NoError(t, err)
	assert.Equal(t, models.SyncRejected, stored.SyncState)
	assert.Equal(t, "already_checked_in", stored.RejectReason)
	assert.False(t, s.HasActive("att-1"))

	// A fresh attempt for the same attendee is possible again.
	require.NoError(t, s.Append(ctx, newCheckin("att-1", models.MethodManual)))
}

func TestCheckinStore_MarkSynced_UnknownSeq(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.MarkSynced(context.Background(), 42)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestCheckinStore_MergeRemote_SkipsOwnDevice(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	self := uuid.New()
	require.NoError(t, s.MergeRemote(ctx, self.String(), []models.RemoteCheckin{
		{EventID: testEvent, AttendeeID: "att-own", DeviceID: self, Seq: 1},
		{EventID: testEvent, AttendeeID: "att-other", DeviceID: uuid.New(), Seq: 1},
	}))

	assert.False(t, s.HasActive("att-own"))
	assert.True(t, s.HasActive("att-other"))
}

func TestCheckinStore_CursorRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	assert.Equal(t, int64(0), s.Cursor())
	require.NoError(t, s.SetCursor(ctx, 77))
	assert.Equal(t, int64(77), s.Cursor())
}

func TestCheckinStore_Open_RebuildsFromKV(t *testing.T) {
	s, mem := newTestStore(t)
	ctx := context.Background()

	rec := newCheckin("att-1", models.MethodScan)
	require.NoError(t, s.Append(ctx, rec))
	require.NoError(t, s.Append(ctx, newCheckin("att-2", models.MethodManual)))
	require.NoError(t, s.MarkSynced(ctx, rec.Seq))
	require.NoError(t, s.SetCursor(ctx, 5))
	require.NoError(t, s.MergeRemote(ctx, uuid.New().String(), []models.RemoteCheckin{
		{EventID: testEvent, AttendeeID: "att-3", DeviceID: uuid.New(), Seq: 1},
	}))

	// Simulate a process restart.
	reopened, err := Open(ctx, mem, testEvent)
	require.NoError(t, err)

	assert.Equal(t, int64(5), reopened.Cursor())
	assert.True(t, reopened.HasActive("att-1"))
	assert.True(t, reopened.HasActive("att-2"))
	assert.True(t, reopened.HasActive("att-3"))
	require.Len(t, reopened.Pending(), 1)
	assert.Equal(t, "att-2", reopened.Pending()[0].AttendeeID)

	// Seq allocation continues where it left off.
	next := newCheckin("att-4", models.MethodScan)
	require.NoError(t, reopened.Append(ctx, next))
	assert.Equal(t, int64(3), next.Seq)
}

func TestCheckinStore_Clear_DestroysAllEventState(t *testing.T) {
	s, mem := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, newCheckin("att-1", models.MethodScan)))
	require.NoError(t, s.SetCursor(ctx, 9))

	require.NoError(t, s.Clear(ctx))

	assert.Empty(t, s.Pending())
	assert.Equal(t, int64(0), s.Cursor())
	assert.False(t, s.HasActive("att-1"))

	// Only the seq counter survives the wipe.
	leftover, err := mem.List(ctx, "checkin:"+testEvent+":")
	require.NoError(t, err)
	require.Len(t, leftover, 1)
	assert.Contains(t, leftover, "checkin:"+testEvent+":seq")
}

func TestCheckinStore_Clear_NeverReusesSeqs(t *testing.T) {
	s, mem := newTestStore(t)
	ctx := context.Background()

	first := newCheckin("att-1", models.MethodScan)
	require.NoError(t, s.Append(ctx, first))
	require.Equal(t, int64(1), first.Seq)

	require.NoError(t, s.Clear(ctx))

	// The server already holds (device, 1); a reused seq would be taken
	// for a replay and dropped, so allocation must continue past it.
	second := newCheckin("att-2", models.MethodScan)
	require.NoError(t, s.Append(ctx, second))
	assert.Equal(t, int64(2), second.Seq)

	// The counter also survives a restart after the clear.
	require.NoError(t, s.Clear(ctx))
	reopened, err := Open(ctx, mem, testEvent)
	require.NoError(t, err)

	third := newCheckin("att-3", models.MethodScan)
	require.NoError(t, reopened.Append(ctx, third))
	assert.Equal(t, int64(3), third.Seq)
}

// flakyStore fails writes to keys containing failOn.
type flakyStore struct {
	kv.Store
	failOn string
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if f.failOn != "" && strings.Contains(key, f.failOn) {
		return errors.New("kv write failed")
	}
	return f.Store.Set(ctx, key, value)
}

func TestCheckinStore_Append_FailedRecordWriteLeavesNoPhantom(t *testing.T) {
	mem := kv.NewMemoryStore()
	flaky := &flakyStore{Store: mem}
	ctx := context.Background()

	s, err := Open(ctx, flaky, testEvent)
	require.NoError(t, err)

	flaky.failOn = ":rec:"
	require.Error(t, s.Append(ctx, newCheckin("att-1", models.MethodScan)))
	assert.Empty(t, s.Pending())

	// A restart must not resurrect the failed admission.
	reopened, err := Open(ctx, mem, testEvent)
	require.NoError(t, err)
	assert.Empty(t, reopened.Pending())
	assert.False(t, reopened.HasActive("att-1"))

	// Once the KV layer recovers, appends succeed again.
	flaky.failOn = ""
	retry := newCheckin("att-1", models.MethodScan)
	require.NoError(t, s.Append(ctx, retry))
	assert.True(t, s.HasActive("att-1"))
}

func TestCheckinStore_CheckedInAttendees_CountsOverridesAndRemote(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, newCheckin("att-1", models.MethodScan)))

	override := newCheckin("att-2", models.MethodOverride)
	override.OverrideReason = "vip re-entry"
	require.NoError(t, s.Append(ctx, override))

	require.NoError(t, s.MergeRemote(ctx, uuid.New().String(), []models.RemoteCheckin{
		{EventID: testEvent, AttendeeID: "att-3", DeviceID: uuid.New(), Seq: 1},
	}))

	checkedIn := s.CheckedInAttendees()
	assert.Len(t, checkedIn, 3)
}
