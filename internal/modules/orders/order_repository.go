package orders

import (
	"context"
	"errors"
	"fmt"

	"delivery-dispatch/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TransitionUpdate describes the atomic write performed for one status
// transition: the compare-and-swap on the order row, the history append, and
// whatever driver bookkeeping the new status requires. All of it commits or
// none of it does.
type TransitionUpdate struct {
	OrderID string
	// Version is the version the caller read; the update fails with
	// ErrConflict if the row has moved on since.
	Version       int
	NewStatus     models.OrderStatus
	Actor         models.Actor
	Note          string
	ReleaseDriver bool // clear drivers.current_order_id pointing at this order
	CountDelivery bool // bump the releasing driver's total_deliveries
	ClearOrderRef bool // also null orders.driver_id (cancellation before pickup completes)
}

// RepositoryInterface defines the contract for the order repository.
type RepositoryInterface interface {
	Create(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error)
	FindByID(ctx context.Context, orderID string) (*models.Order, error)
	List(ctx context.Context, status models.OrderStatus, page, limit int) ([]*models.Order, int, error)
	ListHistory(ctx context.Context, orderID string) ([]*models.StatusHistoryEntry, error)
	ApplyTransition(ctx context.Context, upd TransitionUpdate) (*models.Order, error)
}

// Repository implements RepositoryInterface on top of Postgres.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new order repository.
func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

const orderColumns = `id, customer_id, restaurant_id, driver_id, status,
	subtotal, delivery_fee, discount, tax, total,
	payment_status, payment_ref, delivery_address, latitude, longitude,
	version, created_at, updated_at, estimated_delivery_time, actual_delivery_time`

// scanOrder is a helper to scan a row into an Order model.
func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.RestaurantID, &o.DriverID, &o.Status,
		&o.Subtotal, &o.DeliveryFee, &o.Discount, &o.Tax, &o.Total,
		&o.PaymentStatus, &o.PaymentRef, &o.Address, &o.Latitude, &o.Longitude,
		&o.Version, &o.CreatedAt, &o.UpdatedAt, &o.EstimatedDelivery, &o.ActualDelivery,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	return &o, nil
}

// Create inserts a new pending order and its initial history entry.
func (r *Repository) Create(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository.Create: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	paymentStatus := req.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = models.PaymentPending
	}

	query := `
		INSERT INTO orders (customer_id, restaurant_id, status, subtotal, delivery_fee, discount, tax, total,
			payment_status, payment_ref, delivery_address, latitude, longitude, estimated_delivery_time)
		VALUES ($1, $2, 'pending', $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + orderColumns

	row := tx.QueryRow(ctx, query,
		req.CustomerID, req.RestaurantID,
		req.Subtotal, req.DeliveryFee, req.Discount, req.Tax, req.Total,
		string(paymentStatus), req.PaymentRef,
		req.Address, req.Latitude, req.Longitude, req.EstimatedDelivery,
	)
	order, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("repository.Create: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO status_history (order_id, status, actor, note) VALUES ($1, 'pending', 'system', 'order created')`,
		order.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("repository.Create: history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository.Create: commit: %w", err)
	}
	return order, nil
}

// FindByID retrieves a single order by its ID.
func (r *Repository) FindByID(ctx context.Context, orderID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindByID: %w", err)
	}
	return order, nil
}

// List retrieves orders with an optional status filter and pagination.
func (r *Repository) List(ctx context.Context, status models.OrderStatus, page, limit int) ([]*models.Order, int, error) {
	offset := (page - 1) * limit
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, string(status), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.List.Query: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repository.List.scanOrder: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repository.List.rows: %w", err)
	}

	var total int
	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE ($1 = '' OR status = $1)`, string(status),
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.List.Count: %w", err)
	}

	return orders, total, nil
}

// ListHistory returns the transition ledger of an order in chronological order.
func (r *Repository) ListHistory(ctx context.Context, orderID string) ([]*models.StatusHistoryEntry, error) {
	query := `
		SELECT id, order_id, status, actor, note, created_at
		FROM status_history
		WHERE order_id = $1
		ORDER BY created_at, id`
	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository.ListHistory: %w", err)
	}
	defer rows.Close()

	var entries []*models.StatusHistoryEntry
	for rows.Next() {
		var e models.StatusHistoryEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Status, &e.Actor, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository.ListHistory.Scan: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.ListHistory.rows: %w", err)
	}
	return entries, nil
}

// ApplyTransition performs the status transition atomically: the versioned
// order update, the history append, and any driver release, in one transaction.
func (r *Repository) ApplyTransition(ctx context.Context, upd TransitionUpdate) (*models.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository.ApplyTransition: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	set := `status = $3, version = version + 1, updated_at = now()`
	if upd.NewStatus == models.StatusDelivered {
		set += `, actual_delivery_time = now()`
	}
	if upd.ClearOrderRef {
		set += `, driver_id = NULL`
	}
	query := `UPDATE orders SET ` + set + ` WHERE id = $1 AND version = $2 RETURNING ` + orderColumns

	order, err := scanOrder(tx.QueryRow(ctx, query, upd.OrderID, upd.Version, upd.NewStatus))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Either the order vanished or the version moved; tell them apart.
			var exists bool
			if chk := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, upd.OrderID).Scan(&exists); chk != nil {
				return nil, fmt.Errorf("repository.ApplyTransition: existence check: %w", chk)
			}
			if exists {
				return nil, models.ErrConflict
			}
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.ApplyTransition: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO status_history (order_id, status, actor, note) VALUES ($1, $2, $3, $4)`,
		upd.OrderID, upd.NewStatus, upd.Actor, upd.Note,
	)
	if err != nil {
		return nil, fmt.Errorf("repository.ApplyTransition: history: %w", err)
	}

	if upd.ReleaseDriver {
		release := `UPDATE drivers SET current_order_id = NULL, updated_at = now()`
		if upd.CountDelivery {
			release = `UPDATE drivers SET current_order_id = NULL, total_deliveries = total_deliveries + 1, updated_at = now()`
		}
		if _, err := tx.Exec(ctx, release+` WHERE current_order_id = $1`, upd.OrderID); err != nil {
			return nil, fmt.Errorf("repository.ApplyTransition: release driver: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository.ApplyTransition: commit: %w", err)
	}
	return order, nil
}
