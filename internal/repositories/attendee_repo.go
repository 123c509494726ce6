package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/doorsync/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type PostgresAttendeeRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAttendeeRepository(pool *pgxpool.Pool) *PostgresAttendeeRepository {
	return &PostgresAttendeeRepository{pool: pool}
}

func (r *PostgresAttendeeRepository) Upsert(ctx context.Context, attendee *models.Attendee) error {
	query := `INSERT INTO attendees (event_id, id, name, category)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (event_id, id)
	          DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category`

	_, err := r.pool.Exec(ctx, query,
		attendee.EventID,
		attendee.ID,
		attendee.Name,
		attendee.Category,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert attendee: %w", err)
	}
	return nil
}

func (r *PostgresAttendeeRepository) GetByID(ctx context.Context, eventID, attendeeID string) (*models.Attendee, error) {
	query := `SELECT event_id, id, name, category
	          FROM attendees
	          WHERE event_id = $1 AND id = $2`

	var attendee models.Attendee
	err := r.pool.QueryRow(ctx, query, eventID, attendeeID).Scan(
		&attendee.EventID,
		&attendee.ID,
		&attendee.Name,
		&attendee.Category,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attendee: %w", err)
	}
	return &attendee, nil
}

func (r *PostgresAttendeeRepository) ListByEvent(ctx context.Context, eventID string) ([]models.Attendee, error) {
	query := `SELECT event_id, id, name, category
	          FROM attendees
	          WHERE event_id = $1
	          ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendees: %w", err)
	}
	defer rows.Close()

	var attendees []models.Attendee
	for rows.Next() {
		var attendee models.Attendee
		err := rows.Scan(
			&attendee.EventID,
			&attendee.ID,
			&attendee.Name,
			&attendee.Category,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendee: %w", err)
		}
		attendees = append(attendees, attendee)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attendees: %w", err)
	}

	return attendees, nil
}
