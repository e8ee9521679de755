package drivers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delivery-dispatch/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface defines the contract for the driver registry repository.
type RepositoryInterface interface {
	Register(ctx context.Context, req models.RegisterDriverRequest) (*models.Driver, error)
	FindByID(ctx context.Context, driverID string) (*models.Driver, error)
	List(ctx context.Context, page, limit int) ([]*models.Driver, int, error)
	SetAvailability(ctx context.Context, driverID string, online bool) (*models.Driver, error)
	SetVerification(ctx context.Context, driverID string, verified bool) (*models.Driver, error)
	PlaceHold(ctx context.Context, driverID, reason string, until *time.Time) (*models.Driver, error)
	LiftHold(ctx context.Context, driverID string) (*models.Driver, error)
	// UpdatePosition writes the latest position guarded by recorded_at: a
	// sample older than the stored last_location_update changes nothing and
	// reports updated=false.
	UpdatePosition(ctx context.Context, driverID string, lat, lng float64, recordedAt time.Time) (bool, error)
	InsertSample(ctx context.Context, sample *models.PositionSample) error
	// FindOrderForTracking loads the minimal order fields needed to gate
	// position history: its driver and status.
	FindOrderForTracking(ctx context.Context, orderID string) (*string, models.OrderStatus, error)
}

// Repository implements RepositoryInterface on top of Postgres.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new driver registry repository.
func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

const driverColumns = `id, user_id, name, is_verified, is_online, on_hold,
	hold_reason, hold_start, hold_end, latitude, longitude,
	current_order_id, rating, total_deliveries, last_location_update,
	created_at, updated_at`

func scanDriver(row pgx.Row) (*models.Driver, error) {
	var d models.Driver
	err := row.Scan(
		&d.ID, &d.UserID, &d.Name, &d.IsVerified, &d.IsOnline, &d.OnHold,
		&d.HoldReason, &d.HoldStart, &d.HoldEnd, &d.Latitude, &d.Longitude,
		&d.CurrentOrderID, &d.Rating, &d.TotalDeliveries, &d.LastLocationAt,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan driver: %w", err)
	}
	return &d, nil
}

// Register inserts a new, unverified, offline driver.
func (r *Repository) Register(ctx context.Context, req models.RegisterDriverRequest) (*models.Driver, error) {
	query := `INSERT INTO drivers (user_id, name) VALUES ($1, $2) RETURNING ` + driverColumns
	d, err := scanDriver(r.db.QueryRow(ctx, query, req.UserID, req.Name))
	if err != nil {
		return nil, fmt.Errorf("repository.Register: %w", err)
	}
	return d, nil
}

// FindByID retrieves a single driver.
func (r *Repository) FindByID(ctx context.Context, driverID string) (*models.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE id = $1`
	d, err := scanDriver(r.db.QueryRow(ctx, query, driverID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindByID: %w", err)
	}
	return d, nil
}

// List retrieves drivers with pagination.
func (r *Repository) List(ctx context.Context, page, limit int) ([]*models.Driver, int, error) {
	offset := (page - 1) * limit
	query := `SELECT ` + driverColumns + ` FROM drivers ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.List.Query: %w", err)
	}
	defer rows.Close()

	var out []*models.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repository.List.scanDriver: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repository.List.rows: %w", err)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM drivers`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository.List.Count: %w", err)
	}
	return out, total, nil
}

func (r *Repository) updateReturning(ctx context.Context, set, name, driverID string, args ...interface{}) (*models.Driver, error) {
	query := `UPDATE drivers SET ` + set + `, updated_at = now() WHERE id = $1 RETURNING ` + driverColumns
	d, err := scanDriver(r.db.QueryRow(ctx, query, append([]interface{}{driverID}, args...)...))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.%s: %w", name, err)
	}
	return d, nil
}

// SetAvailability flips the online flag.
func (r *Repository) SetAvailability(ctx context.Context, driverID string, online bool) (*models.Driver, error) {
	return r.updateReturning(ctx, `is_online = $2`, "SetAvailability", driverID, online)
}

// SetVerification flips the verification flag.
func (r *Repository) SetVerification(ctx context.Context, driverID string, verified bool) (*models.Driver, error) {
	return r.updateReturning(ctx, `is_verified = $2`, "SetVerification", driverID, verified)
}

// PlaceHold suspends the driver until lifted (or until the given end time).
func (r *Repository) PlaceHold(ctx context.Context, driverID, reason string, until *time.Time) (*models.Driver, error) {
	return r.updateReturning(ctx,
		`on_hold = TRUE, hold_reason = $2, hold_start = now(), hold_end = $3`,
		"PlaceHold", driverID, reason, until)
}

// LiftHold clears an active hold.
func (r *Repository) LiftHold(ctx context.Context, driverID string) (*models.Driver, error) {
	return r.updateReturning(ctx,
		`on_hold = FALSE, hold_reason = NULL, hold_start = NULL, hold_end = NULL`,
		"LiftHold", driverID)
}

// UpdatePosition writes the latest position if the sample is newer than what
// the row already holds.
func (r *Repository) UpdatePosition(ctx context.Context, driverID string, lat, lng float64, recordedAt time.Time) (bool, error) {
	cmd, err := r.db.Exec(ctx, `
		UPDATE drivers
		SET latitude = $2, longitude = $3, last_location_update = $4, updated_at = now()
		WHERE id = $1
		  AND (last_location_update IS NULL OR last_location_update < $4)`,
		driverID, lat, lng, recordedAt,
	)
	if err != nil {
		return false, fmt.Errorf("repository.UpdatePosition: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

// InsertSample appends one row of the position time series.
func (r *Repository) InsertSample(ctx context.Context, sample *models.PositionSample) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO position_samples (driver_id, order_id, latitude, longitude, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		sample.DriverID, sample.OrderID, sample.Latitude, sample.Longitude, sample.RecordedAt,
	).Scan(&sample.ID)
	if err != nil {
		return fmt.Errorf("repository.InsertSample: %w", err)
	}
	return nil
}

// FindOrderForTracking returns the order's driver reference and status.
func (r *Repository) FindOrderForTracking(ctx context.Context, orderID string) (*string, models.OrderStatus, error) {
	var driverID *string
	var status models.OrderStatus
	err := r.db.QueryRow(ctx, `SELECT driver_id, status FROM orders WHERE id = $1`, orderID).
		Scan(&driverID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", models.ErrNotFound
		}
		return nil, "", fmt.Errorf("repository.FindOrderForTracking: %w", err)
	}
	return driverID, status, nil
}
