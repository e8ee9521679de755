package notifications

import (
	"context"
	"sync"
	"time"

	"delivery-dispatch/internal/models"

	"github.com/sirupsen/logrus"
)

// Sender delivers one notification to one audience over some channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, audience models.Audience, event models.NotificationEvent) error
}

type delivery struct {
	sender   Sender
	audience models.Audience
	event    models.NotificationEvent
}

// Service fans status-change and assignment events out to the interested
// parties. Delivery is fire-and-forget for the caller: Notify never blocks
// and never fails; each delivery is retried with doubling backoff up to the
// configured attempt limit, then logged and abandoned.
type Service struct {
	senders     []Sender
	queue       chan delivery
	maxAttempts int
	baseBackoff time.Duration
	wg          sync.WaitGroup
	log         *logrus.Logger
}

// NewService creates a fanout service. Call Start before Notify.
func NewService(senders []Sender, maxAttempts int, log *logrus.Logger) *Service {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &Service{
		senders:     senders,
		queue:       make(chan delivery, 256),
		maxAttempts: maxAttempts,
		baseBackoff: 250 * time.Millisecond,
		log:         log,
	}
}

// Start launches the delivery workers.
func (s *Service) Start(workers int) {
	if workers < 1 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

// Stop drains the queue and waits for in-flight deliveries.
func (s *Service) Stop() {
	close(s.queue)
	s.wg.Wait()
}

// Audiences resolves who hears about a given status: the customer always,
// the restaurant for pending/confirmed/cancelled, the driver for
// assigned/picked_up.
func Audiences(status models.OrderStatus) []models.Audience {
	out := []models.Audience{models.AudienceCustomer}
	switch status {
	case models.StatusPending, models.StatusConfirmed, models.StatusCancelled:
		out = append(out, models.AudienceRestaurant)
	case models.StatusAssigned, models.StatusPickedUp:
		out = append(out, models.AudienceDriver)
	}
	return out
}

// Notify enqueues deliveries for every interested audience on every channel.
// A full queue sheds the delivery with a log line rather than blocking the
// transition that triggered it.
func (s *Service) Notify(event models.NotificationEvent) {
	for _, audience := range Audiences(event.Status) {
		if audience == models.AudienceDriver && event.DriverID == nil {
			continue
		}
		for _, sender := range s.senders {
			d := delivery{sender: sender, audience: audience, event: event}
			select {
			case s.queue <- d:
			default:
				s.log.WithFields(logrus.Fields{
					"order_id": event.OrderID,
					"audience": audience,
					"channel":  sender.Name(),
				}).Warn("notification queue full, delivery dropped")
			}
		}
	}
}

func (s *Service) worker() {
	defer s.wg.Done()
	for d := range s.queue {
		s.deliver(d)
	}
}

func (s *Service) deliver(d delivery) {
	backoff := s.baseBackoff
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = d.sender.Send(ctx, d.audience, d.event)
		cancel()
		if err == nil {
			return
		}
		if attempt < s.maxAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	s.log.WithFields(logrus.Fields{
		"order_id": d.event.OrderID,
		"status":   d.event.Status,
		"audience": d.audience,
		"channel":  d.sender.Name(),
		"attempts": s.maxAttempts,
	}).WithError(err).Error("notification delivery failed permanently")
}

// LogSender records notifications in the service log. It always succeeds and
// doubles as the delivery channel in environments without SES credentials.
type LogSender struct {
	Log *logrus.Logger
}

func (l *LogSender) Name() string { return "log" }

func (l *LogSender) Send(_ context.Context, audience models.Audience, event models.NotificationEvent) error {
	l.Log.WithFields(logrus.Fields{
		"order_id": event.OrderID,
		"status":   event.Status,
		"audience": audience,
		"actor":    event.Actor,
	}).Info("order notification")
	return nil
}
