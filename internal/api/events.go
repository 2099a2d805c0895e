package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"jobkernel/internal/eventbus"
	"jobkernel/internal/job"
)

const (
	eventStreamBuffer    = 64
	eventStreamKeepalive = 15 * time.Second
)

// StreamEvents handles GET /v1/events. Each job lifecycle event published
// while the client is connected is written as a server-sent event whose data
// is the CloudEvent. Events published before the ": subscribed" comment are
// not replayed; events the client is too slow to read are dropped.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := http.NewResponseController(w)

	sub := eventbus.NewChannelSubscriber[job.Event](eventStreamBuffer)
	if err := h.events.Subscribe(sub); err != nil {
		h.handleError(w, r, err)
		return
	}
	defer func() {
		if err := h.events.Unsubscribe(sub); err != nil {
			slog.Debug("Event stream unsubscribe failed", "error", err)
		}
		if n := sub.Dropped(); n > 0 {
			slog.Warn("Event stream dropped events", "dropped", n)
		}
	}()

	// The stream outlives any server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, ": subscribed\n\n")
	if err := rc.Flush(); err != nil {
		slog.Warn("Event stream not supported by writer", "error", err)
		return
	}

	keepalive := time.NewTicker(eventStreamKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": ping\n\n")
		case e := <-sub.C():
			ce := h.builder.Build(e)
			data, err := json.Marshal(ce)
			if err != nil {
				slog.Error("Failed to encode event", "error", err, "type", ce.Type)
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ce.ID, ce.Type, data)
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
