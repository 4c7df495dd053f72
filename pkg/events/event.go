package events

import (
	"strings"
	"time"
)

// Event defines the contract for everything published on the external bus.
type Event interface {
	// EventType returns the unique code for this event (e.g., "SESSION_MESSAGE_ADDED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

const sessionPrefix = "SESSION_"

// SessionEventType maps a store change kind such as "message_added" to
// the bus event code "SESSION_MESSAGE_ADDED".
func SessionEventType(change string) string {
	return sessionPrefix + strings.ToUpper(change)
}

// ChangeFromEventType reverses SessionEventType. It accepts a bare code or a
// full subject ending in the code.
func ChangeFromEventType(eventType string) (string, bool) {
	if i := strings.LastIndex(eventType, "."); i >= 0 {
		eventType = eventType[i+1:]
	}
	if !strings.HasPrefix(eventType, sessionPrefix) {
		return "", false
	}
	return strings.ToLower(strings.TrimPrefix(eventType, sessionPrefix)), true
}
