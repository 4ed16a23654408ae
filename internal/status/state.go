package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/bus"
)

// State represents the connection lifecycle state of the realtime session.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Reconnecting State = "RECONNECTING"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions. Error is reached on
// socket failure and again, terminally, when the connection manager's retry
// budget runs out; only the manager decides whether a reconnect follows.
var validTransitions = map[State][]State{
	Disconnected: {Connecting, Reconnecting, Error},
	Connecting:   {Connected, Reconnecting, Disconnected, Error},
	Connected:    {Disconnected, Reconnecting, Error},
	Reconnecting: {Connecting, Disconnected, Error},
	Error:        {Connecting, Reconnecting, Disconnected},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Disconnected state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if the
// transition is invalid. A valid transition publishes
// "connection.status" on the bus, after the lock is released so
// subscribers may call Current.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Emit(bus.Event{
			Kind:      "connection.status",
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for connection status events.
type StatusChange struct {
	From State
	To   State
}
