package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	RuntimeStarted Type = iota + 1
	ProcessForked
	ProcessReady
	ProcessFailed
	ProcessRemoved
	PrivilegeDropped
	PortAdded
	PortRemoved
	PortConnected
	PortDisconnected
	EngineChanged
	Daemonized
)

var typeNames = [...]string{
	RuntimeStarted:   "RuntimeStarted",
	ProcessForked:    "ProcessForked",
	ProcessReady:     "ProcessReady",
	ProcessFailed:    "ProcessFailed",
	ProcessRemoved:   "ProcessRemoved",
	PrivilegeDropped: "PrivilegeDropped",
	PortAdded:        "PortAdded",
	PortRemoved:      "PortRemoved",
	PortConnected:    "PortConnected",
	PortDisconnected: "PortDisconnected",
	EngineChanged:    "EngineChanged",
	Daemonized:       "Daemonized",
}

func (t Type) String() string {
	if int(t) > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single lifecycle event from the runtime.
type Event struct {
	Type      Type
	Timestamp time.Time
	Role      string // role name of the process the event concerns
	PID       int
	Stream    uint32 // correlation id from the process descriptor
	PortID    uint32 // for Port* events
	Error     error
}

// Sink receives lifecycle events. A nil Sink drops them.
type Sink chan<- Event

// Emit sends ev on the sink without blocking. Events are advisory; a slow
// consumer must not stall process startup.
func (s Sink) Emit(ev Event) {
	if s == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case s <- ev:
	default:
	}
}
