package drivers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"delivery-dispatch/internal/models"

	"github.com/sirupsen/logrus"
)

// delhi matches the default operational region.
var delhi = Region{MinLat: 28.4, MaxLat: 28.9, MinLng: 76.8, MaxLng: 77.4}

// ----------------------------------------------------------------------------
// fakeRepo: in-memory registry with the same recorded_at guard as the real one.
// ----------------------------------------------------------------------------
type fakeRepo struct {
	mu      sync.Mutex
	drivers map[string]*models.Driver
	samples []*models.PositionSample
	// orderDriver/orderStatus back FindOrderForTracking.
	orderDriver map[string]*string
	orderStatus map[string]models.OrderStatus
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		drivers:     make(map[string]*models.Driver),
		orderDriver: make(map[string]*string),
		orderStatus: make(map[string]models.OrderStatus),
	}
}

func (f *fakeRepo) Register(ctx context.Context, req models.RegisterDriverRequest) (*models.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := &models.Driver{
		ID:        fmt.Sprintf("driver-%d", len(f.drivers)+1),
		UserID:    req.UserID,
		Name:      req.Name,
		Rating:    5.0,
		CreatedAt: time.Now(),
	}
	f.drivers[d.ID] = d
	cp := *d
	return &cp, nil
}

func (f *fakeRepo) FindByID(ctx context.Context, driverID string) (*models.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drivers[driverID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeRepo) List(ctx context.Context, page, limit int) ([]*models.Driver, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Driver
	for _, d := range f.drivers {
		cp := *d
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (f *fakeRepo) SetAvailability(ctx context.Context, driverID string, online bool) (*models.Driver, error) {
	return f.update(driverID, func(d *models.Driver) { d.IsOnline = online })
}

func (f *fakeRepo) SetVerification(ctx context.Context, driverID string, verified bool) (*models.Driver, error) {
	return f.update(driverID, func(d *models.Driver) { d.IsVerified = verified })
}

func (f *fakeRepo) PlaceHold(ctx context.Context, driverID, reason string, until *time.Time) (*models.Driver, error) {
	now := time.Now()
	return f.update(driverID, func(d *models.Driver) {
		d.OnHold = true
		d.HoldReason = &reason
		d.HoldStart = &now
		d.HoldEnd = until
	})
}

func (f *fakeRepo) LiftHold(ctx context.Context, driverID string) (*models.Driver, error) {
	return f.update(driverID, func(d *models.Driver) {
		d.OnHold = false
		d.HoldReason = nil
		d.HoldStart = nil
		d.HoldEnd = nil
	})
}

func (f *fakeRepo) update(driverID string, fn func(*models.Driver)) (*models.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drivers[driverID]
	if !ok {
		return nil, models.ErrNotFound
	}
	fn(d)
	d.UpdatedAt = time.Now()
	cp := *d
	return &cp, nil
}

func (f *fakeRepo) UpdatePosition(ctx context.Context, driverID string, lat, lng float64, recordedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drivers[driverID]
	if !ok {
		return false, nil
	}
	if d.LastLocationAt != nil && !recordedAt.After(*d.LastLocationAt) {
		return false, nil
	}
	d.Latitude = &lat
	d.Longitude = &lng
	d.LastLocationAt = &recordedAt
	return true, nil
}

func (f *fakeRepo) InsertSample(ctx context.Context, sample *models.PositionSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sample.ID = fmt.Sprintf("sample-%d", len(f.samples)+1)
	f.samples = append(f.samples, sample)
	return nil
}

func (f *fakeRepo) FindOrderForTracking(ctx context.Context, orderID string) (*string, models.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.orderStatus[orderID]
	if !ok {
		return nil, "", models.ErrNotFound
	}
	return f.orderDriver[orderID], status, nil
}

type fakeFeed struct {
	mu     sync.Mutex
	events []models.FeedEvent
}

func (f *fakeFeed) DriverMoved(driverID, orderID string, lat, lng float64, recordedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, models.FeedEvent{
		Type: models.FeedPosition, DriverID: driverID, OrderID: orderID,
		Latitude: lat, Longitude: lng, RecordedAt: recordedAt,
	})
}

func newTestService(fr *fakeRepo) (*Service, *fakeFeed) {
	feed := &fakeFeed{}
	return NewService(fr, delhi, feed, logrus.New()), feed
}

func seedDriver(fr *fakeRepo, id string) *models.Driver {
	d := &models.Driver{ID: id, UserID: "u-" + id, Name: id, IsVerified: true, IsOnline: true, Rating: 5}
	fr.drivers[id] = d
	return d
}

func at(sec int) *time.Time {
	t := time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC)
	return &t
}

// ----------------------------------------------------------------------------
// tests
// ----------------------------------------------------------------------------

func TestReportPositionInsideRegion(t *testing.T) {
	fr := newFakeRepo()
	seedDriver(fr, "d1")
	svc, _ := newTestService(fr)

	err := svc.ReportPosition(context.Background(), "d1", models.ReportPositionRequest{
		Latitude: 28.7, Longitude: 77.1,
	})
	if err != nil {
		t.Fatalf("ReportPosition error: %v", err)
	}
	d := fr.drivers["d1"]
	if d.Latitude == nil || *d.Latitude != 28.7 || *d.Longitude != 77.1 {
		t.Errorf("stored position = (%v,%v); want (28.7,77.1)", d.Latitude, d.Longitude)
	}
	if d.LastLocationAt == nil {
		t.Error("last_location_update not set")
	}
}

func TestReportPositionOutsideRegion(t *testing.T) {
	fr := newFakeRepo()
	d := seedDriver(fr, "d1")
	lat, lng := 28.7, 77.1
	now := time.Now()
	d.Latitude, d.Longitude, d.LastLocationAt = &lat, &lng, &now
	svc, feed := newTestService(fr)

	// Bangalore coordinates, far outside the Delhi box.
	err := svc.ReportPosition(context.Background(), "d1", models.ReportPositionRequest{
		Latitude: 12.9, Longitude: 77.6,
	})
	if !errors.Is(err, models.ErrOutOfBounds) {
		t.Fatalf("err = %v; want ErrOutOfBounds", err)
	}
	if *fr.drivers["d1"].Latitude != 28.7 {
		t.Error("rejected report must not move the stored position")
	}
	if len(feed.events) != 0 {
		t.Error("rejected report must not reach the feed")
	}
}

func TestReportPositionStaleSampleDropped(t *testing.T) {
	fr := newFakeRepo()
	seedDriver(fr, "d1")
	orderID := "o1"
	fr.orderStatus[orderID] = models.StatusPickedUp
	driverRef := "d1"
	fr.orderDriver[orderID] = &driverRef
	svc, feed := newTestService(fr)
	ctx := context.Background()

	if err := svc.ReportPosition(ctx, "d1", models.ReportPositionRequest{
		Latitude: 28.7, Longitude: 77.1, OrderID: &orderID, RecordedAt: at(20),
	}); err != nil {
		t.Fatalf("first report: %v", err)
	}
	// An older sample arrives late; latest wins.
	if err := svc.ReportPosition(ctx, "d1", models.ReportPositionRequest{
		Latitude: 28.5, Longitude: 76.9, OrderID: &orderID, RecordedAt: at(10),
	}); err != nil {
		t.Fatalf("stale report: %v", err)
	}

	d := fr.drivers["d1"]
	if *d.Latitude != 28.7 || !d.LastLocationAt.Equal(*at(20)) {
		t.Errorf("position = (%v at %v); stale sample must not win", *d.Latitude, d.LastLocationAt)
	}
	if len(feed.events) != 1 {
		t.Fatalf("feed got %d events; the stale update must not be emitted", len(feed.events))
	}
	if !feed.events[0].RecordedAt.Equal(*at(20)) {
		t.Error("feed event carries the wrong sample")
	}
}

func TestReportPositionRecordsHistoryOnlyInFlight(t *testing.T) {
	fr := newFakeRepo()
	seedDriver(fr, "d1")
	svc, _ := newTestService(fr)
	ctx := context.Background()

	// No order reference: position updates, no history row.
	if err := svc.ReportPosition(ctx, "d1", models.ReportPositionRequest{
		Latitude: 28.6, Longitude: 77.0, RecordedAt: at(1),
	}); err != nil {
		t.Fatalf("idle report: %v", err)
	}
	if len(fr.samples) != 0 {
		t.Fatalf("idle driver wrote %d history samples; want 0", len(fr.samples))
	}

	// Delivered order: no longer in flight, still no history.
	done := "done-order"
	driverRef := "d1"
	fr.orderStatus[done] = models.StatusDelivered
	fr.orderDriver[done] = &driverRef
	if err := svc.ReportPosition(ctx, "d1", models.ReportPositionRequest{
		Latitude: 28.6, Longitude: 77.0, OrderID: &done, RecordedAt: at(2),
	}); err != nil {
		t.Fatalf("post-delivery report: %v", err)
	}
	if len(fr.samples) != 0 {
		t.Fatalf("delivered order wrote %d history samples; want 0", len(fr.samples))
	}

	// Someone else's order: no history either.
	foreign := "foreign-order"
	otherDriver := "d2"
	fr.orderStatus[foreign] = models.StatusPickedUp
	fr.orderDriver[foreign] = &otherDriver
	if err := svc.ReportPosition(ctx, "d1", models.ReportPositionRequest{
		Latitude: 28.6, Longitude: 77.0, OrderID: &foreign, RecordedAt: at(3),
	}); err != nil {
		t.Fatalf("foreign-order report: %v", err)
	}
	if len(fr.samples) != 0 {
		t.Fatalf("foreign order wrote %d history samples; want 0", len(fr.samples))
	}

	// The driver's own in-flight order records history.
	mine := "my-order"
	fr.orderStatus[mine] = models.StatusPickedUp
	fr.orderDriver[mine] = &driverRef
	if err := svc.ReportPosition(ctx, "d1", models.ReportPositionRequest{
		Latitude: 28.6, Longitude: 77.0, OrderID: &mine, RecordedAt: at(4),
	}); err != nil {
		t.Fatalf("in-flight report: %v", err)
	}
	if len(fr.samples) != 1 {
		t.Fatalf("in-flight order wrote %d history samples; want 1", len(fr.samples))
	}
	if *fr.samples[0].OrderID != mine || fr.samples[0].DriverID != "d1" {
		t.Errorf("sample = %+v; want order %s driver d1", fr.samples[0], mine)
	}
}

func TestReportPositionUnknownDriver(t *testing.T) {
	fr := newFakeRepo()
	svc, _ := newTestService(fr)

	err := svc.ReportPosition(context.Background(), "ghost", models.ReportPositionRequest{
		Latitude: 28.6, Longitude: 77.0,
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v; want ErrNotFound", err)
	}
}

func TestHoldLifecycle(t *testing.T) {
	fr := newFakeRepo()
	seedDriver(fr, "d1")
	svc, _ := newTestService(fr)
	ctx := context.Background()

	until := time.Now().Add(48 * time.Hour)
	d, err := svc.PlaceHold(ctx, "d1", "too many complaints", &until)
	if err != nil {
		t.Fatalf("PlaceHold error: %v", err)
	}
	if !d.OnHold || d.HoldReason == nil || *d.HoldReason != "too many complaints" {
		t.Errorf("hold not applied: %+v", d)
	}
	if d.Assignable() {
		t.Error("driver on hold must not be assignable")
	}

	d, err = svc.LiftHold(ctx, "d1")
	if err != nil {
		t.Fatalf("LiftHold error: %v", err)
	}
	if d.OnHold || d.HoldReason != nil {
		t.Errorf("hold not lifted: %+v", d)
	}
}

func TestRegionContains(t *testing.T) {
	cases := []struct {
		lat, lng float64
		want     bool
	}{
		{28.7, 77.1, true},
		{28.4, 76.8, true}, // inclusive edges
		{28.9, 77.4, true},
		{12.9, 77.6, false}, // Bangalore
		{28.7, 76.5, false},
		{29.1, 77.0, false},
	}
	for _, tc := range cases {
		if got := delhi.Contains(tc.lat, tc.lng); got != tc.want {
			t.Errorf("Contains(%v, %v) = %v; want %v", tc.lat, tc.lng, got, tc.want)
		}
	}
}
