package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/doorsync/internal/models"
)

// ErrUnknownAttendee is returned when a check-in references an attendee
// that is not on the event's roster.
var ErrUnknownAttendee = errors.New("attendee not on roster")

// ConflictError is returned when another device already holds the live
// check-in for the attendee. Arrival order at the server decides the
// winner; device clocks are recorded for audit but never trusted for
// tie-breaking.
type ConflictError struct {
	WinnerDeviceID uuid.UUID
	WinnerAt       time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("already checked in by device %s at %s",
		e.WinnerDeviceID, e.WinnerAt.Format(time.RFC3339))
}

const (
	uniqueViolation     = "23505"
	attendeeUniqueIndex = "checkins_one_per_attendee"
)

type PostgresCheckinRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresCheckinRepository(pool *pgxpool.Pool) *PostgresCheckinRepository {
	return &PostgresCheckinRepository{pool: pool}
}

// Record stores one submitted check-in.
//
// Idempotency: (event_id, device_id, device_seq) is unique, and a replay of
// a row the server already holds returns nil without inserting a duplicate,
// so devices can resubmit after a lost response.
//
// First wins: a partial unique index on (event_id, attendee_id) for
// non-override methods makes the first arrival the only live check-in;
// later arrivals get a ConflictError naming the winner.
func (r *PostgresCheckinRepository) Record(ctx context.Context, checkin *models.Checkin) error {
	exists, err := r.attendeeOnRoster(ctx, checkin.EventID, checkin.AttendeeID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrUnknownAttendee
	}

	query := `INSERT INTO checkins
	            (event_id, attendee_id, method, device_id, device_seq,
	             device_checked_in_at, override_reason)
	          VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
	          ON CONFLICT (event_id, device_id, device_seq) DO NOTHING
	          RETURNING id`

	var id int64
	err = r.pool.QueryRow(ctx, query,
		checkin.EventID,
		checkin.AttendeeID,
		string(checkin.Method),
		checkin.DeviceID,
		checkin.Seq,
		checkin.CheckedInAt,
		checkin.OverrideReason,
	).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		// Replay of a record we already hold: idempotent no-op.
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == attendeeUniqueIndex {
		return r.conflictFor(ctx, checkin.EventID, checkin.AttendeeID)
	}
	if err != nil {
		return fmt.Errorf("failed to record check-in: %w", err)
	}
	return nil
}

// conflictFor loads the winning check-in so the losing device can show who
// admitted the attendee first.
func (r *PostgresCheckinRepository) conflictFor(ctx context.Context, eventID, attendeeID string) error {
	query := `SELECT device_id, received_at
	          FROM checkins
	          WHERE event_id = $1 AND attendee_id = $2 AND method <> 'override'
	          ORDER BY id ASC
	          LIMIT 1`

	conflict := &ConflictError{}
	err := r.pool.QueryRow(ctx, query, eventID, attendeeID).Scan(
		&conflict.WinnerDeviceID,
		&conflict.WinnerAt,
	)
	if err != nil {
		return fmt.Errorf("failed to load conflicting check-in: %w", err)
	}
	return conflict
}

func (r *PostgresCheckinRepository) ListSince(ctx context.Context, eventID string, cursor int64, limit int) ([]models.RemoteCheckin, int64, error) {
	query := `SELECT id, event_id, attendee_id, method, device_id, device_seq, received_at
	          FROM checkins
	          WHERE event_id = $1 AND id > $2
	          ORDER BY id ASC
	          LIMIT $3`

	rows, err := r.pool.Query(ctx, query, eventID, cursor, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query check-ins: %w", err)
	}
	defer rows.Close()

	next := cursor
	var checkins []models.RemoteCheckin
	for rows.Next() {
		var rc models.RemoteCheckin
		var method string
		err := rows.Scan(
			&rc.Cursor,
			&rc.EventID,
			&rc.AttendeeID,
			&method,
			&rc.DeviceID,
			&rc.Seq,
			&rc.CheckedInAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan check-in: %w", err)
		}
		rc.Method = models.CheckinMethod(method)
		if rc.Cursor > next {
			next = rc.Cursor
		}
		checkins = append(checkins, rc)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating check-ins: %w", err)
	}

	return checkins, next, nil
}

func (r *PostgresCheckinRepository) attendeeOnRoster(ctx context.Context, eventID, attendeeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM attendees WHERE event_id = $1 AND id = $2)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, eventID, attendeeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check roster: %w", err)
	}
	return exists, nil
}
