package repositories

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prudhvinik1/doorsync/internal/models"
)

// getTestPool connects to the integration database. Set TEST_DATABASE_URL
// and apply schema.sql before running these.
func getTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}
	pool, err := pgxpool.New(context.Background(), databaseURL)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(pool.Close)
	return pool
}

// setupTestEvent creates a device and a small roster under a unique event
// id so tests don't collide.
func setupTestEvent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) (string, uuid.UUID) {
	t.Helper()
	deviceRepo := NewPostgresDeviceRepository(pool)
	attendeeRepo := NewPostgresAttendeeRepository(pool)

	device := &models.Device{
		Name:       "Test Scanner",
		SecretHash: "test-hash",
	}
	err := deviceRepo.Create(ctx, device)
	require.NoError(t, err, "Failed to create test device")

	eventID := "evt-test-" + uuid.New().String()
	for _, id := range []string{"att-1", "att-2"} {
		err := attendeeRepo.Upsert(ctx, &models.Attendee{
			EventID:  eventID,
			ID:       id,
			Name:     "Attendee " + id,
			Category: "general",
		})
		require.NoError(t, err, "Failed to create test attendee")
	}

	t.Cleanup(func() {
		pool.Exec(ctx, `DELETE FROM checkins WHERE event_id = $1`, eventID)
		pool.Exec(ctx, `DELETE FROM attendees WHERE event_id = $1`, eventID)
		pool.Exec(ctx, `DELETE FROM devices WHERE id = $1`, device.ID)
	})

	return eventID, device.ID
}

func testCheckin(eventID string, deviceID uuid.UUID, attendeeID string, seq int64) *models.Checkin {
	return &models.Checkin{
		EventID:     eventID,
		AttendeeID:  attendeeID,
		Method:      models.MethodScan,
		DeviceID:    deviceID,
		Seq:         seq,
		CheckedInAt: time.Now().UTC(),
	}
}

func TestCheckinRepository_Record_Idempotent(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresCheckinRepository(pool)
	ctx := context.Background()

	eventID, deviceID := setupTestEvent(t, ctx, pool)

	// First submission stores the row.
	err := repo.Record(ctx, testCheckin(eventID, deviceID, "att-1", 1))
	require.NoError(t, err)

	// Resubmitting the same (device, seq) is accepted again, no duplicate.
	err = repo.Record(ctx, testCheckin(eventID, deviceID, "att-1", 1))
	require.NoError(t, err)

	checkins, _, err := repo.ListSince(ctx, eventID, 0, 100)
	require.NoError(t, err)
	assert.Len(t, checkins, 1)
}

func TestCheckinRepository_Record_FirstArrivalWins(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresCheckinRepository(pool)
	ctx := context.Background()

	eventID, device1 := setupTestEvent(t, ctx, pool)

	deviceRepo := NewPostgresDeviceRepository(pool)
	device2 := &models.Device{Name: "Second Scanner", SecretHash: "test-hash"}
	require.NoError(t, deviceRepo.Create(ctx, device2))
	t.Cleanup(func() {
		pool.Exec(ctx, `DELETE FROM devices WHERE id = $1`, device2.ID)
	})

	// Device 1 arrives first, even though its device clock reads later:
	// arrival order decides, not the untrusted clock.
	first := testCheckin(eventID, device1, "att-1", 1)
	first.CheckedInAt = time.Now().UTC().Add(time.Hour)
	require.NoError(t, repo.Record(ctx, first))

	err := repo.Record(ctx, testCheckin(eventID, device2.ID, "att-1", 1))
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, device1, conflict.WinnerDeviceID)
}

func TestCheckinRepository_Record_OverrideBypassesConflict(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresCheckinRepository(pool)
	ctx := context.Background()

	eventID, deviceID := setupTestEvent(t, ctx, pool)

	require.NoError(t, repo.Record(ctx, testCheckin(eventID, deviceID, "att-1", 1)))

	override := testCheckin(eventID, deviceID, "att-1", 2)
	override.Method = models.MethodOverride
	override.OverrideReason = "lost wristband"
	require.NoError(t, repo.Record(ctx, override))

	checkins, _, err := repo.ListSince(ctx, eventID, 0, 100)
	require.NoError(t, err)
	assert.Len(t, checkins, 2)
}

func TestCheckinRepository_Record_UnknownAttendee(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresCheckinRepository(pool)
	ctx := context.Background()

	eventID, deviceID := setupTestEvent(t, ctx, pool)

	err := repo.Record(ctx, testCheckin(eventID, deviceID, "not-on-roster", 1))
	assert.True(t, errors.Is(err, ErrUnknownAttendee))
}

func TestCheckinRepository_ListSince_PagesByCursor(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresCheckinRepository(pool)
	ctx := context.Background()

	eventID, deviceID := setupTestEvent(t, ctx, pool)

	require.NoError(t, repo.Record(ctx, testCheckin(eventID, deviceID, "att-1", 1)))
	require.NoError(t, repo.Record(ctx, testCheckin(eventID, deviceID, "att-2", 2)))

	all, cursor, err := repo.ListSince(ctx, eventID, 0, 100)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Greater(t, cursor, int64(0))

	// Nothing new after the cursor.
	rest, next, err := repo.ListSince(ctx, eventID, cursor, 100)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, cursor, next)
}
