package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod  = "method"
	attrRoute   = "route"
	attrStatus  = "status"
	attrSuccess = "success"
	attrBus     = "bus"
	attrCommand = "command"
	attrState   = "state"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

// routeAttr expects a route pattern such as /v1/jobs/{jobId}; unmatched
// requests are grouped together to bound cardinality.
func routeAttr(route string) attribute.KeyValue {
	if route == "" {
		route = "unmatched"
	}
	return attribute.String(attrRoute, route)
}

func statusAttr(code int) attribute.KeyValue {
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

func busAttr(bus string) attribute.KeyValue {
	return attribute.String(attrBus, bus)
}

func commandAttr(command string) attribute.KeyValue {
	return attribute.String(attrCommand, command)
}

func stateAttr(state string) attribute.KeyValue {
	return attribute.String(attrState, state)
}
