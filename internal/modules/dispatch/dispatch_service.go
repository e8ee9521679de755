package dispatch

import (
	"context"
	"time"

	"delivery-dispatch/internal/models"
	"delivery-dispatch/internal/modules/orders"

	"github.com/sirupsen/logrus"
)

// OrderReaderInterface is the slice of the order service dispatch depends on.
type OrderReaderInterface interface {
	Get(ctx context.Context, orderID string) (*models.Order, error)
}

// NotifierInterface is the contract the fanout service exposes to callers.
type NotifierInterface interface {
	Notify(event models.NotificationEvent)
}

// FeedInterface is the contract the live delivery feed exposes to callers.
type FeedInterface interface {
	OrderStatusChanged(order *models.Order, previous models.OrderStatus)
}

// ServiceInterface defines the contract for the dispatch service.
type ServiceInterface interface {
	// Assign matches the order with a driver. A nil driverID auto-picks the
	// best assignable driver; a given driverID is a manual override that is
	// re-validated atomically at claim time.
	Assign(ctx context.Context, orderID string, driverID *string) (*models.Order, error)
}

// Service implements the dispatch assigner.
type Service struct {
	repo     RepositoryInterface
	ordersvc OrderReaderInterface
	notifier NotifierInterface
	feed     FeedInterface
	log      *logrus.Logger
}

// NewService creates a new dispatch service.
func NewService(repo RepositoryInterface, ordersvc OrderReaderInterface, notifier NotifierInterface, feed FeedInterface, log *logrus.Logger) *Service {
	return &Service{
		repo:     repo,
		ordersvc: ordersvc,
		notifier: notifier,
		feed:     feed,
		log:      log,
	}
}

// Assign matches a ready order to a driver.
func (s *Service) Assign(ctx context.Context, orderID string, driverID *string) (*models.Order, error) {
	order, err := s.ordersvc.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, models.ErrInvalidState
	}
	if !orders.CanTransition(order.Status, models.StatusAssigned) {
		return nil, models.ErrIllegalTransition
	}

	var driver *models.Driver
	if driverID != nil {
		driver, err = s.repo.FindDriverByID(ctx, *driverID)
		if err != nil {
			return nil, err
		}
		// Precheck for a friendlier error; the claim re-validates atomically.
		if !driver.Assignable() {
			return nil, models.ErrDriverUnavailable
		}
	} else {
		driver, err = s.repo.PickBestDriver(ctx)
		if err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.AssignDriverToOrder(ctx, orderID, order.Version, driver.ID, models.ActorAdmin)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"order_id": orderID, "driver_id": driver.ID}).
		Info("driver assigned")

	if s.feed != nil {
		s.feed.OrderStatusChanged(updated, order.Status)
	}
	if s.notifier != nil {
		s.notifier.Notify(models.NotificationEvent{
			OrderID:      updated.ID,
			CustomerID:   updated.CustomerID,
			RestaurantID: updated.RestaurantID,
			DriverID:     updated.DriverID,
			Status:       updated.Status,
			Actor:        models.ActorAdmin,
			OccurredAt:   time.Now().UTC(),
		})
	}
	return updated, nil
}
