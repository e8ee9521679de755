package tracking

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"delivery-dispatch/internal/models"

	"github.com/labstack/echo/v4"
)

// Handler serves the live delivery feed over Server-Sent Events.
type Handler struct {
	svc ServiceInterface
}

// NewHandler creates a new tracking handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{svc: svc}
}

const heartbeatInterval = 15 * time.Second

// StreamDeliveries streams the in-flight delivery feed: a snapshot of every
// in-flight order first, then incremental position/status/entered/left
// events until the client disconnects.
func (h *Handler) StreamDeliveries(c echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()

	snapshot, sub, err := h.svc.Subscribe(ctx)
	if err != nil {
		c.Logger().Error("Handler.StreamDeliveries: ", err)
		return err
	}
	defer sub.Close()

	for _, ev := range snapshot {
		if err := writeEvent(c, ev); err != nil {
			return nil
		}
	}
	res.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := writeEvent(c, ev); err != nil {
				return nil
			}
			res.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func writeEvent(c echo.Context, ev models.FeedEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
