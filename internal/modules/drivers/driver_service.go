package drivers

import (
	"context"
	"time"

	"delivery-dispatch/internal/models"

	"github.com/sirupsen/logrus"
)

// Region is the operational bounding box; positions outside it are rejected.
type Region struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Contains reports whether the coordinate falls inside the region.
func (r Region) Contains(lat, lng float64) bool {
	return lat >= r.MinLat && lat <= r.MaxLat && lng >= r.MinLng && lng <= r.MaxLng
}

// FeedInterface is the contract the live delivery feed exposes to callers.
type FeedInterface interface {
	DriverMoved(driverID, orderID string, lat, lng float64, recordedAt time.Time)
}

// ServiceInterface defines the contract for the driver registry service.
type ServiceInterface interface {
	Register(ctx context.Context, req models.RegisterDriverRequest) (*models.Driver, error)
	Get(ctx context.Context, driverID string) (*models.Driver, error)
	List(ctx context.Context, page, limit int) ([]*models.Driver, int, error)
	SetAvailability(ctx context.Context, driverID string, online bool) (*models.Driver, error)
	SetVerification(ctx context.Context, driverID string, verified bool) (*models.Driver, error)
	PlaceHold(ctx context.Context, driverID, reason string, until *time.Time) (*models.Driver, error)
	LiftHold(ctx context.Context, driverID string) (*models.Driver, error)
	ReportPosition(ctx context.Context, driverID string, req models.ReportPositionRequest) error
}

// Service implements the driver registry.
type Service struct {
	repo   RepositoryInterface
	region Region
	feed   FeedInterface
	log    *logrus.Logger
}

// NewService creates a new driver registry service.
func NewService(repo RepositoryInterface, region Region, feed FeedInterface, log *logrus.Logger) *Service {
	return &Service{
		repo:   repo,
		region: region,
		feed:   feed,
		log:    log,
	}
}

// Register enrolls a new driver. Drivers start offline and unverified.
func (s *Service) Register(ctx context.Context, req models.RegisterDriverRequest) (*models.Driver, error) {
	return s.repo.Register(ctx, req)
}

// Get retrieves a single driver.
func (s *Service) Get(ctx context.Context, driverID string) (*models.Driver, error) {
	return s.repo.FindByID(ctx, driverID)
}

// List retrieves drivers with pagination.
func (s *Service) List(ctx context.Context, page, limit int) ([]*models.Driver, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.repo.List(ctx, page, limit)
}

// SetAvailability flips the online flag.
func (s *Service) SetAvailability(ctx context.Context, driverID string, online bool) (*models.Driver, error) {
	return s.repo.SetAvailability(ctx, driverID, online)
}

// SetVerification flips the verification flag.
func (s *Service) SetVerification(ctx context.Context, driverID string, verified bool) (*models.Driver, error) {
	return s.repo.SetVerification(ctx, driverID, verified)
}

// PlaceHold temporarily suspends a driver.
func (s *Service) PlaceHold(ctx context.Context, driverID, reason string, until *time.Time) (*models.Driver, error) {
	return s.repo.PlaceHold(ctx, driverID, reason, until)
}

// LiftHold clears an active hold.
func (s *Service) LiftHold(ctx context.Context, driverID string) (*models.Driver, error) {
	return s.repo.LiftHold(ctx, driverID)
}

// ReportPosition ingests one position update from a driver device.
// Out-of-region coordinates are rejected without any write. Samples older
// than the driver's last known update are dropped, never applied or
// re-broadcast out of order. History is only recorded while the driver is
// actively delivering the referenced in-flight order.
func (s *Service) ReportPosition(ctx context.Context, driverID string, req models.ReportPositionRequest) error {
	if !s.region.Contains(req.Latitude, req.Longitude) {
		return models.ErrOutOfBounds
	}

	driver, err := s.repo.FindByID(ctx, driverID)
	if err != nil {
		return err
	}

	recordedAt := time.Now().UTC()
	if req.RecordedAt != nil {
		recordedAt = req.RecordedAt.UTC()
	}
	if driver.LastLocationAt != nil && !recordedAt.After(*driver.LastLocationAt) {
		// Stale sample; latest position wins.
		return nil
	}

	updated, err := s.repo.UpdatePosition(ctx, driverID, req.Latitude, req.Longitude, recordedAt)
	if err != nil {
		return err
	}
	if !updated {
		// A newer sample won the race between our read and write.
		return nil
	}

	if req.OrderID == nil {
		// Idle drivers don't pollute the history table.
		return nil
	}

	orderDriver, status, err := s.repo.FindOrderForTracking(ctx, *req.OrderID)
	if err != nil {
		s.log.WithFields(logrus.Fields{"driver_id": driverID, "order_id": *req.OrderID}).
			WithError(err).Warn("position referenced unknown order, sample not recorded")
		return nil
	}
	if !status.InFlight() || orderDriver == nil || *orderDriver != driverID {
		return nil
	}

	if err := s.repo.InsertSample(ctx, &models.PositionSample{
		DriverID:   driverID,
		OrderID:    req.OrderID,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		RecordedAt: recordedAt,
	}); err != nil {
		return err
	}

	if s.feed != nil {
		s.feed.DriverMoved(driverID, *req.OrderID, req.Latitude, req.Longitude, recordedAt)
	}
	return nil
}
