package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/yarsha/chatsync/internal/bus"
)

// State represents a sync stream lifecycle state.
type State string

const (
	Idle       State = "IDLE"
	Connecting State = "CONNECTING"
	Streaming  State = "STREAMING"
	Backoff    State = "BACKOFF"
	Stopped    State = "STOPPED"
)

// validTransitions defines allowed state transitions. Stopped is terminal:
// it is only entered on explicit session teardown.
var validTransitions = map[State][]State{
	Idle:       {Connecting, Stopped},
	Connecting: {Streaming, Backoff, Stopped},
	Streaming:  {Connecting, Backoff, Stopped},
	Backoff:    {Connecting, Stopped},
	Stopped:    {},
}

// Machine tracks and enforces a sync stream's lifecycle transitions.
type Machine struct {
	mu      sync.RWMutex
	name    string
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in Idle. name identifies the
// stream in published state-change events ("chatlist", "chat:<id>").
func NewMachine(name string, b *bus.Bus) *Machine {
	return &Machine{
		name:    name,
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindChatListState,
			Timestamp: time.Now(),
			Payload: StateChange{
				Stream: m.name,
				From:   from,
				To:     to,
			},
		})
	}
	return nil
}

// StateChange is the payload for state change events.
type StateChange struct {
	Stream string
	From   State
	To     State
}
