package docker

import (
	"strings"
	"time"

	"github.com/docker/docker/api/types/events"

	"jobkernel/internal/containerevent"
)

// Convert maps a daemon event message onto a container event.
func Convert(msg events.Message) (containerevent.Event, error) {
	attrs := make(containerevent.Attributes, len(msg.Actor.Attributes))
	for k, v := range msg.Actor.Attributes {
		attrs[k] = v
	}

	ts := time.Unix(0, msg.TimeNano).UTC()
	if msg.TimeNano == 0 {
		ts = time.Unix(msg.Time, 0).UTC()
	}

	return containerevent.Parse(normalizeAction(string(msg.Action)), containerevent.Metadata{
		ContainerID: msg.Actor.ID,
		Time:        ts,
		Attributes:  attrs,
	})
}

// normalizeAction strips the ": <detail>" suffix some actions carry,
// e.g. "exec_start: sh".
func normalizeAction(action string) string {
	if i := strings.IndexByte(action, ':'); i >= 0 {
		return strings.TrimSpace(action[:i])
	}
	return action
}
