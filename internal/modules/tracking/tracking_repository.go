package tracking

import (
	"context"
	"fmt"
	"time"

	"delivery-dispatch/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements RepositoryInterface on top of Postgres.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new tracking repository.
func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

// SnapshotInFlight loads every in-flight order joined with its driver's
// latest position.
func (r *Repository) SnapshotInFlight(ctx context.Context) ([]models.FeedEvent, error) {
	const query = `
		SELECT o.id, o.status, d.id, d.latitude, d.longitude, d.last_location_update
		FROM orders o
		LEFT JOIN drivers d ON d.id = o.driver_id
		WHERE o.status IN ('preparing', 'ready', 'assigned', 'picked_up')
		ORDER BY o.created_at`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository.SnapshotInFlight: %w", err)
	}
	defer rows.Close()

	var events []models.FeedEvent
	for rows.Next() {
		var (
			ev       models.FeedEvent
			driverID *string
			lat, lng *float64
			at       *time.Time
		)
		if err := rows.Scan(&ev.OrderID, &ev.Status, &driverID, &lat, &lng, &at); err != nil {
			return nil, fmt.Errorf("repository.SnapshotInFlight.Scan: %w", err)
		}
		ev.Type = models.FeedSnapshot
		if driverID != nil {
			ev.DriverID = *driverID
		}
		if lat != nil && lng != nil {
			ev.Latitude = *lat
			ev.Longitude = *lng
		}
		if at != nil {
			ev.RecordedAt = *at
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.SnapshotInFlight.rows: %w", err)
	}
	return events, nil
}
