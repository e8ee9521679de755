package orders

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"delivery-dispatch/internal/models"

	"github.com/sirupsen/logrus"
)

// ----------------------------------------------------------------------------
// fakeRepo: in-memory stand-in for the Postgres repository. It honors the
// same contracts: versioned compare-and-swap on ApplyTransition and an
// append-only history list.
// ----------------------------------------------------------------------------
type fakeRepo struct {
	mu      sync.Mutex
	orders  map[string]*models.Order
	history map[string][]*models.StatusHistoryEntry
	// drivers carrying an order, keyed by order id; cleared on release.
	carrying map[string]string
	counted  []string // driver ids credited with a delivery

	// beforeApply, when set, runs between the service's read and its write,
	// standing in for a concurrent admin session.
	beforeApply func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders:   make(map[string]*models.Order),
		history:  make(map[string][]*models.StatusHistoryEntry),
		carrying: make(map[string]string),
	}
}

func (f *fakeRepo) seed(o *models.Order) {
	f.orders[o.ID] = o
	f.history[o.ID] = []*models.StatusHistoryEntry{
		{OrderID: o.ID, Status: models.StatusPending, Actor: models.ActorSystem, CreatedAt: time.Now()},
	}
}

func (f *fakeRepo) Create(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := &models.Order{
		ID:           fmt.Sprintf("order-%d", len(f.orders)+1),
		CustomerID:   req.CustomerID,
		RestaurantID: req.RestaurantID,
		Status:       models.StatusPending,
		Subtotal:     req.Subtotal,
		DeliveryFee:  req.DeliveryFee,
		Discount:     req.Discount,
		Tax:          req.Tax,
		Total:        req.Total,
		Address:      req.Address,
		Version:      1,
		CreatedAt:    time.Now(),
	}
	f.orders[o.ID] = o
	f.history[o.ID] = append(f.history[o.ID], &models.StatusHistoryEntry{
		OrderID: o.ID, Status: models.StatusPending, Actor: models.ActorSystem, CreatedAt: time.Now(),
	})
	cp := *o
	return &cp, nil
}

func (f *fakeRepo) FindByID(ctx context.Context, orderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeRepo) List(ctx context.Context, status models.OrderStatus, page, limit int) ([]*models.Order, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Order
	for _, o := range f.orders {
		if status == "" || o.Status == status {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (f *fakeRepo) ListHistory(ctx context.Context, orderID string) ([]*models.StatusHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.StatusHistoryEntry{}, f.history[orderID]...), nil
}

func (f *fakeRepo) ApplyTransition(ctx context.Context, upd TransitionUpdate) (*models.Order, error) {
	if f.beforeApply != nil {
		f.beforeApply()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[upd.OrderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if o.Version != upd.Version {
		return nil, models.ErrConflict
	}
	o.Status = upd.NewStatus
	o.Version++
	o.UpdatedAt = time.Now()
	if upd.NewStatus == models.StatusDelivered {
		now := time.Now()
		o.ActualDelivery = &now
	}
	if upd.ClearOrderRef {
		o.DriverID = nil
	}
	f.history[upd.OrderID] = append(f.history[upd.OrderID], &models.StatusHistoryEntry{
		OrderID: upd.OrderID, Status: upd.NewStatus, Actor: upd.Actor, Note: upd.Note, CreatedAt: time.Now(),
	})
	if upd.ReleaseDriver {
		driverID := f.carrying[upd.OrderID]
		delete(f.carrying, upd.OrderID)
		if upd.CountDelivery && driverID != "" {
			f.counted = append(f.counted, driverID)
		}
	}
	cp := *o
	return &cp, nil
}

// ----------------------------------------------------------------------------
// event sinks
// ----------------------------------------------------------------------------
type fakeNotifier struct {
	mu     sync.Mutex
	events []models.NotificationEvent
}

func (f *fakeNotifier) Notify(ev models.NotificationEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

type fakeFeed struct {
	mu      sync.Mutex
	changes []string // "prev->new"
}

func (f *fakeFeed) OrderStatusChanged(order *models.Order, previous models.OrderStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, string(previous)+"->"+string(order.Status))
}

type fakePayments struct {
	mu      sync.Mutex
	refunds []string
	err     error
}

func (f *fakePayments) Refund(ctx context.Context, ref string, amount float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.refunds = append(f.refunds, ref)
	return "re_" + ref, nil
}

func newTestService(fr *fakeRepo) (*Service, *fakeNotifier, *fakeFeed, *fakePayments) {
	log := logrus.New()
	notifier := &fakeNotifier{}
	feed := &fakeFeed{}
	payments := &fakePayments{}
	return NewService(fr, notifier, feed, payments, log), notifier, feed, payments
}

func pendingOrder(id string) *models.Order {
	return &models.Order{
		ID:            id,
		CustomerID:    "cust-1",
		RestaurantID:  "rest-1",
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentPending,
		Version:       1,
		CreatedAt:     time.Now(),
	}
}

// ----------------------------------------------------------------------------
// tests
// ----------------------------------------------------------------------------

func TestTransitionForwardStep(t *testing.T) {
	fr := newFakeRepo()
	fr.seed(pendingOrder("o1"))
	svc, notifier, feed, _ := newTestService(fr)

	updated, err := svc.Transition(context.Background(), "o1", models.StatusConfirmed, models.ActorAdmin, "looks good")
	if err != nil {
		t.Fatalf("Transition error: %v", err)
	}
	if updated.Status != models.StatusConfirmed {
		t.Errorf("status = %s; want confirmed", updated.Status)
	}
	if updated.Version != 2 {
		t.Errorf("version = %d; want 2", updated.Version)
	}

	hist, _ := svc.History(context.Background(), "o1")
	if len(hist) != 2 {
		t.Fatalf("history length = %d; want 2", len(hist))
	}
	if hist[1].Status != models.StatusConfirmed || hist[1].Actor != models.ActorAdmin {
		t.Errorf("history tail = %+v; want confirmed by admin", hist[1])
	}

	if len(notifier.events) != 1 || notifier.events[0].Status != models.StatusConfirmed {
		t.Errorf("notifier events = %+v; want one confirmed event", notifier.events)
	}
	if len(feed.changes) != 1 || feed.changes[0] != "pending->confirmed" {
		t.Errorf("feed changes = %v; want [pending->confirmed]", feed.changes)
	}
}

func TestTransitionSkipIsIllegal(t *testing.T) {
	fr := newFakeRepo()
	fr.seed(pendingOrder("o1"))
	svc, _, _, _ := newTestService(fr)

	_, err := svc.Transition(context.Background(), "o1", models.StatusDelivered, models.ActorAdmin, "")
	if err != models.ErrIllegalTransition {
		t.Fatalf("err = %v; want ErrIllegalTransition", err)
	}

	// A failed transition must leave no trace in the ledger.
	hist, _ := svc.History(context.Background(), "o1")
	if len(hist) != 1 {
		t.Errorf("history length = %d; want 1", len(hist))
	}
}

func TestTransitionTerminalOrder(t *testing.T) {
	fr := newFakeRepo()
	o := pendingOrder("o1")
	o.Status = models.StatusCancelled
	fr.seed(o)
	svc, _, _, _ := newTestService(fr)

	_, err := svc.Transition(context.Background(), "o1", models.StatusConfirmed, models.ActorAdmin, "")
	if err != models.ErrInvalidState {
		t.Fatalf("err = %v; want ErrInvalidState", err)
	}
}

func TestTransitionSameStatusIsNotIdempotentWrite(t *testing.T) {
	fr := newFakeRepo()
	o := pendingOrder("o1")
	o.Status = models.StatusConfirmed
	fr.seed(o)
	svc, _, _, _ := newTestService(fr)

	_, err := svc.Transition(context.Background(), "o1", models.StatusConfirmed, models.ActorAdmin, "")
	if err != models.ErrIllegalTransition {
		t.Fatalf("err = %v; want ErrIllegalTransition", err)
	}
	hist, _ := svc.History(context.Background(), "o1")
	if len(hist) != 1 {
		t.Errorf("repeated transition wrote a duplicate history entry: %d entries", len(hist))
	}
}

func TestTransitionUnknownOrder(t *testing.T) {
	fr := newFakeRepo()
	svc, _, _, _ := newTestService(fr)

	_, err := svc.Transition(context.Background(), "missing", models.StatusConfirmed, models.ActorAdmin, "")
	if err != models.ErrNotFound {
		t.Fatalf("err = %v; want ErrNotFound", err)
	}
}

func TestTransitionConcurrentWriterConflicts(t *testing.T) {
	fr := newFakeRepo()
	fr.seed(pendingOrder("o1"))
	svc, _, _, _ := newTestService(fr)

	// Another session commits between our read and our write.
	fr.beforeApply = func() {
		fr.beforeApply = nil
		fr.mu.Lock()
		fr.orders["o1"].Status = models.StatusConfirmed
		fr.orders["o1"].Version++
		fr.mu.Unlock()
	}

	_, err := svc.Transition(context.Background(), "o1", models.StatusConfirmed, models.ActorAdmin, "")
	if err != models.ErrConflict {
		t.Fatalf("err = %v; want ErrConflict", err)
	}
}

func TestCancellationReleasesDriverAndRefunds(t *testing.T) {
	fr := newFakeRepo()
	o := pendingOrder("o1")
	o.Status = models.StatusAssigned
	driverID := "d1"
	ref := "pi_123"
	o.DriverID = &driverID
	o.PaymentStatus = models.PaymentPaid
	o.PaymentRef = &ref
	o.Total = 42.50
	fr.seed(o)
	fr.carrying["o1"] = driverID
	svc, _, _, payments := newTestService(fr)

	updated, err := svc.Transition(context.Background(), "o1", models.StatusCancelled, models.ActorAdmin, "customer no-show")
	if err != nil {
		t.Fatalf("Transition error: %v", err)
	}
	if updated.DriverID != nil {
		t.Errorf("order still references driver %v after cancellation", *updated.DriverID)
	}
	if _, still := fr.carrying["o1"]; still {
		t.Error("driver was not released on cancellation")
	}

	// The refund runs asynchronously; give it a moment.
	deadline := time.Now().Add(time.Second)
	for {
		payments.mu.Lock()
		n := len(payments.refunds)
		payments.mu.Unlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	payments.mu.Lock()
	defer payments.mu.Unlock()
	if len(payments.refunds) != 1 || payments.refunds[0] != "pi_123" {
		t.Errorf("refunds = %v; want [pi_123]", payments.refunds)
	}
}

func TestDeliveryCompletesAndCreditsDriver(t *testing.T) {
	fr := newFakeRepo()
	o := pendingOrder("o1")
	o.Status = models.StatusPickedUp
	driverID := "d1"
	o.DriverID = &driverID
	fr.seed(o)
	fr.carrying["o1"] = driverID
	svc, _, _, _ := newTestService(fr)

	updated, err := svc.Transition(context.Background(), "o1", models.StatusDelivered, models.ActorDriver, "")
	if err != nil {
		t.Fatalf("Transition error: %v", err)
	}
	if updated.ActualDelivery == nil {
		t.Error("actual_delivery_time not set on delivery")
	}
	if len(fr.counted) != 1 || fr.counted[0] != "d1" {
		t.Errorf("delivery count credited to %v; want [d1]", fr.counted)
	}
}

func TestFullLifecycleWritesValidHistoryPath(t *testing.T) {
	fr := newFakeRepo()
	fr.seed(pendingOrder("o1"))
	svc, _, _, _ := newTestService(fr)
	ctx := context.Background()

	steps := []models.OrderStatus{
		models.StatusConfirmed, models.StatusPreparing, models.StatusReady,
	}
	for _, st := range steps {
		if _, err := svc.Transition(ctx, "o1", st, models.ActorAdmin, ""); err != nil {
			t.Fatalf("Transition to %s: %v", st, err)
		}
	}

	hist, _ := svc.History(ctx, "o1")
	path := make([]models.OrderStatus, len(hist))
	for i, e := range hist {
		path[i] = e.Status
	}
	if !ValidPath(path) {
		t.Errorf("history %v is not a valid walk through the state machine", path)
	}
}

func TestCreateRejectsBrokenTotals(t *testing.T) {
	fr := newFakeRepo()
	svc, _, _, _ := newTestService(fr)

	req := models.CreateOrderRequest{
		CustomerID:   "c1",
		RestaurantID: "r1",
		Subtotal:     100,
		DeliveryFee:  10,
		Tax:          5,
		Discount:     0,
		Total:        200, // does not add up
		Address:      "somewhere",
	}
	if _, err := svc.Create(context.Background(), req); err != models.ErrInvalidTotals {
		t.Fatalf("err = %v; want ErrInvalidTotals", err)
	}

	req.Total = 115
	order, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if order.Status != models.StatusPending {
		t.Errorf("new order status = %s; want pending", order.Status)
	}
}
