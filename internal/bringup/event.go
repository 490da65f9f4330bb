package bringup

import (
	"fmt"
	"net/netip"
)

// EventKind is the closed set of external inputs the Orchestrator reacts to.
type EventKind int

const (
	EventAssociated EventKind = iota + 1
	EventDisassociated
	EventAddressAssigned
	EventSessionEstablished
	EventSessionError
	EventSessionLost
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventAssociated:
		return "associated"
	case EventDisassociated:
		return "disassociated"
	case EventAddressAssigned:
		return "address_assigned"
	case EventSessionEstablished:
		return "session_established"
	case EventSessionError:
		return "session_error"
	case EventSessionLost:
		return "session_lost"
	case eventStart:
		return "start"
	case eventSyncResolved:
		return "sync_resolved"
	case eventRetryDue:
		return "retry_due"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a classified notification.
type Event struct {
	Kind EventKind

	// Address is set for EventAddressAssigned.
	Address netip.Addr

	// Err carries the cause of EventSessionError / EventSessionLost, if known.
	Err error
}

// Target receives classified events. *Orchestrator implements it.
type Target interface {
	Post(Event)
}
