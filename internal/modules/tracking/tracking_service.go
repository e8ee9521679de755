package tracking

import (
	"context"
	"time"

	"delivery-dispatch/internal/models"

	"github.com/sirupsen/logrus"
)

// RepositoryInterface defines the data the live feed needs from storage.
type RepositoryInterface interface {
	// SnapshotInFlight returns one snapshot event per in-flight order with
	// its driver's latest known position, if any.
	SnapshotInFlight(ctx context.Context) ([]models.FeedEvent, error)
}

// ServiceInterface defines the contract for the live delivery feed.
type ServiceInterface interface {
	Subscribe(ctx context.Context) ([]models.FeedEvent, *Subscriber, error)
	OrderStatusChanged(order *models.Order, previous models.OrderStatus)
	DriverMoved(driverID, orderID string, lat, lng float64, recordedAt time.Time)
}

// Service maintains the live in-flight delivery feed: a snapshot for new
// subscribers followed by an ordered stream of incremental updates.
type Service struct {
	repo RepositoryInterface
	hub  *Hub
	log  *logrus.Logger
}

// NewService creates a new tracking service.
func NewService(repo RepositoryInterface, hub *Hub, log *logrus.Logger) *Service {
	return &Service{
		repo: repo,
		hub:  hub,
		log:  log,
	}
}

// Subscribe registers a consumer and returns the initial snapshot along with
// the live subscription. The subscriber is registered before the snapshot
// read, so no update between the two is lost; the hub's stale-sample guard
// makes any overlap harmless.
func (s *Service) Subscribe(ctx context.Context) ([]models.FeedEvent, *Subscriber, error) {
	sub := s.hub.Subscribe()
	snapshot, err := s.repo.SnapshotInFlight(ctx)
	if err != nil {
		sub.Close()
		return nil, nil, err
	}
	return snapshot, sub, nil
}

// OrderStatusChanged publishes in-flight set membership changes and status
// updates. Transitions entirely outside the in-flight set (for example
// pending to confirmed) are not part of the feed.
func (s *Service) OrderStatusChanged(order *models.Order, previous models.OrderStatus) {
	wasInFlight := previous.InFlight()
	isInFlight := order.Status.InFlight()

	ev := models.FeedEvent{
		OrderID: order.ID,
		Status:  order.Status,
	}
	if order.DriverID != nil {
		ev.DriverID = *order.DriverID
	}

	switch {
	case !wasInFlight && isInFlight:
		ev.Type = models.FeedEntered
	case wasInFlight && !isInFlight:
		ev.Type = models.FeedLeft
	case isInFlight:
		ev.Type = models.FeedStatus
	default:
		return
	}
	s.hub.Publish(ev)
}

// DriverMoved publishes a position update for a driver on an in-flight order.
func (s *Service) DriverMoved(driverID, orderID string, lat, lng float64, recordedAt time.Time) {
	s.hub.Publish(models.FeedEvent{
		Type:       models.FeedPosition,
		OrderID:    orderID,
		DriverID:   driverID,
		Latitude:   lat,
		Longitude:  lng,
		RecordedAt: recordedAt,
	})
}
