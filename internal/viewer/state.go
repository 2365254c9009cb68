// Package viewer implements the viewer-side orchestrator: the explicit
// connection state machine, the latest-only frame pipeline, local/
// offload inference dispatch, and telemetry.
package viewer

import "fmt"

// State is one node of the viewer's explicit connection state machine.
// Modeling this as an enum with an explicit transition table, rather
// than scattering booleans across callbacks, avoids nested asynchronous
// callback chains.
type State int

const (
	Idle State = iota
	Connecting
	WaitingForPeer
	Offering
	Negotiating
	Connected
	Detecting
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case WaitingForPeer:
		return "waiting-for-peer"
	case Offering:
		return "offering"
	case Negotiating:
		return "negotiating"
	case Connected:
		return "connected"
	case Detecting:
		return "detecting"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is an input to the state machine.
type Event int

const (
	EventControlOpen Event = iota
	EventJoinAcked
	EventPeerJoined
	EventOfferSent
	EventAnswerReceived
	EventTransportEstablished
	EventDetectToggleOn
	EventDetectToggleOff
	EventPeerLeft
	EventShutdown
)

// transitions is the state machine's transition table. A (state, event)
// pair with no entry is an invalid transition and Apply returns an
// error rather than silently ignoring it.
var transitions = map[State]map[Event]State{
	Idle: {
		EventControlOpen: Connecting,
	},
	Connecting: {
		EventJoinAcked: WaitingForPeer,
		EventShutdown:  Closed,
	},
	WaitingForPeer: {
		EventPeerJoined: Offering,
		EventShutdown:   Closed,
	},
	Offering: {
		EventOfferSent: Negotiating,
		EventShutdown:  Closed,
	},
	Negotiating: {
		EventAnswerReceived:       Negotiating,
		EventTransportEstablished: Connected,
		EventShutdown:             Closed,
	},
	Connected: {
		EventDetectToggleOn: Detecting,
		EventPeerLeft:       WaitingForPeer,
		EventShutdown:       Closed,
	},
	Detecting: {
		EventDetectToggleOff: Connected,
		EventPeerLeft:        WaitingForPeer,
		EventShutdown:        Closed,
	},
}

// Machine is a small, not-concurrency-safe state holder; the
// orchestrator serializes all event delivery through its own single
// goroutine.
type Machine struct {
	state State
}

func NewMachine() *Machine {
	return &Machine{state: Idle}
}

func (m *Machine) State() State {
	return m.state
}

// Apply advances the machine on ev, or returns an error if the
// transition isn't in the table. Shutdown is accepted from any state
// including Closed itself (idempotent shutdown).
func (m *Machine) Apply(ev Event) error {
	if ev == EventShutdown {
		m.state = Closed
		return nil
	}
	next, ok := transitions[m.state][ev]
	if !ok {
		return fmt.Errorf("viewer: invalid transition from %s on event %d", m.state, ev)
	}
	m.state = next
	return nil
}
