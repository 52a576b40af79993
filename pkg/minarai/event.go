package minarai

// Event is an inbound occurrence listeners can subscribe to.
type Event int

const (
	EventConnect Event = iota
	EventDisconnected
	EventJoined
	EventSync
	EventSyncSystemCommand
	EventSyncCommand
	EventMessage
	EventOperatorCommand
	EventSystemMessage
	EventLogs
	EventError
	eventCount
)

var eventWireNames = [eventCount]string{
	EventConnect:           "connect",
	EventDisconnected:      "disconnected",
	EventJoined:            "joined",
	EventSync:              "sync",
	EventSyncSystemCommand: "sync-system-command",
	EventSyncCommand:       "sync-command",
	EventMessage:           "message",
	EventOperatorCommand:   "operator-command",
	EventSystemMessage:     "system-message",
	EventLogs:              "logs",
	EventError:             "error",
}

// Outbound event names.
const (
	emitJoinAsClient    = "join-as-client"
	emitMessage         = "message"
	emitSystemCommand   = "system-command"
	emitCommand         = "command"
	emitLogs            = "logs"
	emitForceDisconnect = "force-disconnect"
)

// Signals raised by the transport itself.
const (
	signalConnectError = "connect_error"
	signalDisconnect   = "disconnect"
)

// String returns the wire name of the event.
func (e Event) String() string {
	if e < 0 || e >= eventCount {
		return "unknown"
	}
	return eventWireNames[e]
}

// ParseEvent maps a wire name back to its Event.
func ParseEvent(wire string) (Event, bool) {
	for i, name := range eventWireNames {
		if name == wire {
			return Event(i), true
		}
	}
	return 0, false
}

// Events lists every Event in declaration order.
func Events() []Event {
	out := make([]Event, 0, eventCount)
	for e := Event(0); e < eventCount; e++ {
		out = append(out, e)
	}
	return out
}
