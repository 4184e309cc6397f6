package alertwebhook

import (
	"context"

	"github.com/kcenon/dbcore/logging"
	"github.com/kcenon/dbcore/monitor"
)

// Handler adapts a Client into a monitor.AlertHandler, delivering each
// fired alert to the webhook in its own goroutine so a slow or unreachable
// endpoint never blocks the monitor's alert dispatch.
type Handler struct {
	client *Client
	logger *logging.Logger
}

// NewHandler returns a Handler posting through client.
func NewHandler(client *Client, logger *logging.Logger) *Handler {
	return &Handler{client: client, logger: logger}
}

// AlertHandler returns the monitor.AlertHandler function to register via
// Monitor.Subscribe.
func (h *Handler) AlertHandler() monitor.AlertHandler {
	return func(alert monitor.Alert) {
		go func() {
			if err := h.client.Post(context.Background(), alert); err != nil {
				h.logger.Errorw("alertwebhook: failed to deliver alert", "kind", alert.Kind, "error", err)
			}
		}()
	}
}
