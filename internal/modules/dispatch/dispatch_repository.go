package dispatch

import (
	"context"
	"errors"
	"fmt"

	"delivery-dispatch/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface defines the contract for the dispatch repository.
type RepositoryInterface interface {
	FindDriverByID(ctx context.Context, driverID string) (*models.Driver, error)
	// PickBestDriver returns the most suitable assignable driver: highest
	// rating first, then fewest deliveries, then longest-idle position update.
	PickBestDriver(ctx context.Context) (*models.Driver, error)
	// AssignDriverToOrder atomically claims the driver, moves the order to
	// assigned with an optimistic version check, and appends the history
	// entry. A driver already carrying an order fails the claim with
	// ErrDriverUnavailable; a stale order version fails with ErrConflict.
	AssignDriverToOrder(ctx context.Context, orderID string, orderVersion int, driverID string, actor models.Actor) (*models.Order, error)
}

// Repository implements RepositoryInterface on top of Postgres.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new dispatch repository.
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

// FindDriverByID retrieves a single driver.
func (r *Repository) FindDriverByID(ctx context.Context, driverID string) (*models.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE id = $1`
	d, err := scanDriver(r.db.QueryRow(ctx, query, driverID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindDriverByID: %w", err)
	}
	return d, nil
}

// PickBestDriver selects the best currently assignable driver.
func (r *Repository) PickBestDriver(ctx context.Context) (*models.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers
		WHERE is_online AND is_verified AND NOT on_hold AND current_order_id IS NULL
		ORDER BY rating DESC, total_deliveries ASC, last_location_update ASC NULLS LAST
		LIMIT 1`
	d, err := scanDriver(r.db.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNoDriverAvailable
		}
		return nil, fmt.Errorf("repository.PickBestDriver: %w", err)
	}
	return d, nil
}

const orderColumns = `id, customer_id, restaurant_id, driver_id, status,
	subtotal, delivery_fee, discount, tax, total,
	payment_status, payment_ref, delivery_address, latitude, longitude,
	version, created_at, updated_at, estimated_delivery_time, actual_delivery_time`

// AssignDriverToOrder performs the three coupled writes in one transaction.
func (r *Repository) AssignDriverToOrder(ctx context.Context, orderID string, orderVersion int, driverID string, actor models.Actor) (*models.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository.AssignDriverToOrder: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// The claim re-validates availability inside the UPDATE itself, so two
	// concurrent assignments can never both claim the same driver.
	claim, err := tx.Exec(ctx, `
		UPDATE drivers
		SET current_order_id = $1, updated_at = now()
		WHERE id = $2
		  AND current_order_id IS NULL
		  AND is_online AND is_verified AND NOT on_hold`,
		orderID, driverID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// The partial unique index on current_order_id is the backstop.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, models.ErrDriverUnavailable
		}
		return nil, fmt.Errorf("repository.AssignDriverToOrder: claim: %w", err)
	}
	if claim.RowsAffected() == 0 {
		return nil, models.ErrDriverUnavailable
	}

	row := tx.QueryRow(ctx, `
		UPDATE orders
		SET driver_id = $2, status = 'assigned', version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $3
		RETURNING `+orderColumns,
		orderID, driverID, orderVersion,
	)
	var o models.Order
	err = row.Scan(
		&o.ID, &o.CustomerID, &o.RestaurantID, &o.DriverID, &o.Status,
		&o.Subtotal, &o.DeliveryFee, &o.Discount, &o.Tax, &o.Total,
		&o.PaymentStatus, &o.PaymentRef, &o.Address, &o.Latitude, &o.Longitude,
		&o.Version, &o.CreatedAt, &o.UpdatedAt, &o.EstimatedDelivery, &o.ActualDelivery,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Rolling back releases the claim taken above.
			return nil, models.ErrConflict
		}
		return nil, fmt.Errorf("repository.AssignDriverToOrder: order update: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO status_history (order_id, status, actor, note) VALUES ($1, 'assigned', $2, $3)`,
		orderID, actor, "driver "+driverID+" assigned",
	)
	if err != nil {
		return nil, fmt.Errorf("repository.AssignDriverToOrder: history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository.AssignDriverToOrder: commit: %w", err)
	}
	return &o, nil
}
