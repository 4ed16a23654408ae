package bus

import "time"

// Event represents a domain event delivered to subscribers.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
