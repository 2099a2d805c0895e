// Package containerevent models lifecycle events emitted by the container
// engine. Event is a closed set: Created, Started, Died and Destroyed.
package containerevent

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Action names as reported by the engine.
const (
	ActionCreate  = "create"
	ActionStart   = "start"
	ActionDie     = "die"
	ActionDestroy = "destroy"
)

// Well-known attribute keys.
const (
	AttrName     = "name"
	AttrImage    = "image"
	AttrExitCode = "exitCode"
)

var (
	ErrMissingAttribute   = errors.New("attribute missing")
	ErrMalformedAttribute = errors.New("attribute malformed")
	ErrUnknownAction      = errors.New("unknown container action")
)

// AttributeError reports an attribute that is absent or cannot be parsed.
type AttributeError struct {
	Key   string
	Value string
	Err   error
}

func (e *AttributeError) Error() string {
	if errors.Is(e.Err, ErrMissingAttribute) {
		return fmt.Sprintf("container event attribute %q: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("container event attribute %q=%q: %v", e.Key, e.Value, e.Err)
}

func (e *AttributeError) Unwrap() error { return e.Err }

// Attributes is the loose key/value bag attached to an engine event.
type Attributes map[string]string

// Lookup returns the value for key or an *AttributeError if it is absent.
func (a Attributes) Lookup(key string) (string, error) {
	v, ok := a[key]
	if !ok {
		return "", &AttributeError{Key: key, Err: ErrMissingAttribute}
	}
	return v, nil
}

// Event is one of Created, Started, Died or Destroyed.
type Event interface {
	Action() string
	Meta() Metadata
	isEvent()
}

// Metadata is shared by every variant.
type Metadata struct {
	ContainerID string
	Time        time.Time
	Attributes  Attributes
}

// Meta implements Event.
func (m Metadata) Meta() Metadata { return m }

// Name returns the container name attribute.
func (m Metadata) Name() (string, error) { return m.Attributes.Lookup(AttrName) }

// Image returns the image attribute.
func (m Metadata) Image() (string, error) { return m.Attributes.Lookup(AttrImage) }

type (
	Created   struct{ Metadata }
	Started   struct{ Metadata }
	Died      struct{ Metadata }
	Destroyed struct{ Metadata }
)

func (Created) Action() string   { return ActionCreate }
func (Started) Action() string   { return ActionStart }
func (Died) Action() string      { return ActionDie }
func (Destroyed) Action() string { return ActionDestroy }

func (Created) isEvent()   {}
func (Started) isEvent()   {}
func (Died) isEvent()      {}
func (Destroyed) isEvent() {}

// ExitCode parses the exit code attribute. A missing or non-integer value is
// an error; no default is substituted.
func (d Died) ExitCode() (int, error) {
	raw, err := d.Attributes.Lookup(AttrExitCode)
	if err != nil {
		return 0, err
	}
	code, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &AttributeError{Key: AttrExitCode, Value: raw, Err: ErrMalformedAttribute}
	}
	return code, nil
}

// Parse builds the variant matching action.
func Parse(action string, meta Metadata) (Event, error) {
	if meta.Attributes == nil {
		meta.Attributes = Attributes{}
	}
	switch action {
	case ActionCreate:
		return Created{meta}, nil
	case ActionStart:
		return Started{meta}, nil
	case ActionDie:
		return Died{meta}, nil
	case ActionDestroy:
		return Destroyed{meta}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}
