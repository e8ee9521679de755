package orders

import (
	"context"
	"fmt"
	"time"

	"delivery-dispatch/internal/models"

	"github.com/sirupsen/logrus"
)

// NotifierInterface is the contract the fanout service exposes to callers.
// Delivery is fire-and-forget; Notify never blocks on downstream channels.
type NotifierInterface interface {
	Notify(event models.NotificationEvent)
}

// FeedInterface is the contract the live delivery feed exposes to callers.
type FeedInterface interface {
	OrderStatusChanged(order *models.Order, previous models.OrderStatus)
}

// PaymentServiceInterface defines the contract for a payment processing service.
type PaymentServiceInterface interface {
	Refund(ctx context.Context, paymentRef string, amount float64) (string, error)
}

// ServiceInterface defines the contract for the order service.
type ServiceInterface interface {
	Create(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error)
	Get(ctx context.Context, orderID string) (*models.Order, error)
	History(ctx context.Context, orderID string) ([]*models.StatusHistoryEntry, error)
	List(ctx context.Context, status models.OrderStatus, page, limit int) ([]*models.Order, int, error)
	Transition(ctx context.Context, orderID string, newStatus models.OrderStatus, actor models.Actor, note string) (*models.Order, error)
}

// Service implements the order lifecycle logic.
type Service struct {
	repo     RepositoryInterface
	notifier NotifierInterface
	feed     FeedInterface
	payments PaymentServiceInterface
	log      *logrus.Logger
}

// NewService creates a new order service.
func NewService(repo RepositoryInterface, notifier NotifierInterface, feed FeedInterface, payments PaymentServiceInterface, log *logrus.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		feed:     feed,
		payments: payments,
		log:      log,
	}
}

// Create seeds a new pending order into the store.
func (s *Service) Create(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error) {
	if !req.CheckTotals() {
		return nil, models.ErrInvalidTotals
	}
	order, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("service.Create: %w", err)
	}
	s.emit(order, "", models.ActorSystem, "order created")
	return order, nil
}

// Get retrieves a single order.
func (s *Service) Get(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// History returns the transition ledger of an order.
func (s *Service) History(ctx context.Context, orderID string) ([]*models.StatusHistoryEntry, error) {
	if _, err := s.repo.FindByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, orderID)
}

// List retrieves orders with an optional status filter.
func (s *Service) List(ctx context.Context, status models.OrderStatus, page, limit int) ([]*models.Order, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.repo.List(ctx, status, page, limit)
}

// Transition moves an order to a new status through the state machine.
// The order update and the history append are atomic; a concurrent writer
// surfaces as ErrConflict and the caller must re-read and retry.
func (s *Service) Transition(ctx context.Context, orderID string, newStatus models.OrderStatus, actor models.Actor, note string) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status.IsTerminal() {
		return nil, models.ErrInvalidState
	}
	if !CanTransition(order.Status, newStatus) {
		return nil, models.ErrIllegalTransition
	}

	carryingDriver := order.Status == models.StatusAssigned || order.Status == models.StatusPickedUp
	upd := TransitionUpdate{
		OrderID:   orderID,
		Version:   order.Version,
		NewStatus: newStatus,
		Actor:     actor,
		Note:      note,
		// A driver carrying this order is released the moment the order
		// reaches a terminal state.
		ReleaseDriver: carryingDriver && (newStatus == models.StatusCancelled || newStatus == models.StatusDelivered),
		CountDelivery: carryingDriver && newStatus == models.StatusDelivered,
		ClearOrderRef: carryingDriver && newStatus == models.StatusCancelled,
	}

	previous := order.Status
	updated, err := s.repo.ApplyTransition(ctx, upd)
	if err != nil {
		return nil, err
	}

	if newStatus == models.StatusCancelled && order.PaymentStatus == models.PaymentPaid {
		s.refundAsync(updated)
	}

	s.emit(updated, previous, actor, note)
	return updated, nil
}

// refundAsync issues a Stripe refund for a cancelled paid order. The refund
// must not block or fail the cancellation; failures are logged for
// reconciliation.
func (s *Service) refundAsync(order *models.Order) {
	if s.payments == nil || order.PaymentRef == nil {
		return
	}
	ref := *order.PaymentRef
	amount := order.Total
	orderID := order.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		refundID, err := s.payments.Refund(ctx, ref, amount)
		if err != nil {
			s.log.WithFields(logrus.Fields{"order_id": orderID, "payment_ref": ref}).
				WithError(err).Error("refund failed, needs reconciliation")
			return
		}
		s.log.WithFields(logrus.Fields{"order_id": orderID, "refund_id": refundID}).
			Info("refund issued for cancelled order")
	}()
}

// emit publishes the status change to the live feed and the notification
// fanout. Both are fire-and-forget from the transition's point of view.
func (s *Service) emit(order *models.Order, previous models.OrderStatus, actor models.Actor, note string) {
	if s.feed != nil && previous != "" {
		s.feed.OrderStatusChanged(order, previous)
	}
	if s.notifier != nil {
		s.notifier.Notify(models.NotificationEvent{
			OrderID:      order.ID,
			CustomerID:   order.CustomerID,
			RestaurantID: order.RestaurantID,
			DriverID:     order.DriverID,
			Status:       order.Status,
			Actor:        actor,
			Note:         note,
			OccurredAt:   time.Now().UTC(),
		})
	}
}
