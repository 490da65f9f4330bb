package bringup

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// Source names the collaborator a Notification came from.
type Source string

const (
	SourceWireless Source = "wireless"
	SourceBroker   Source = "broker"
)

// Notification kinds understood by the Bridge.
const (
	KindAssociated         = "associated"
	KindDisassociated      = "disassociated"
	KindAddressAssigned    = "address_assigned"
	KindSessionEstablished = "session_established"
	KindSessionError       = "session_error"
	KindSessionLost        = "session_lost"
)

// Notification is a raw lifecycle notification from the wireless station or
// the broker client.
//
// Payload is only interpreted for address_assigned, where it may be a
// netip.Addr, net.IP, net.IPNet, *net.IPNet, netip.Prefix or a string.
// For session_error and session_lost an error payload is carried through.
type Notification struct {
	Source  Source
	Kind    string
	Payload any
}

// Bridge classifies Notifications into Events for a single Target.
type Bridge struct {
	target  Target
	logger  Logger
	metrics Metrics
}

// NewBridge creates a bridge routing to target. A nil target is allowed;
// every notification is then dropped with a warning.
func NewBridge(target Target) *Bridge {
	return &Bridge{
		target:  target,
		logger:  noopLogger{},
		metrics: noopMetrics{},
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// SetMetrics sets the metrics sink for dropped notifications.
func (b *Bridge) SetMetrics(m Metrics) {
	b.metrics = m
}

// Notify dispatches n and absorbs any error. It has the shape collaborators
// expect for a notification callback.
func (b *Bridge) Notify(n Notification) {
	_ = b.Dispatch(n)
}

// Dispatch classifies n and forwards it. Errors are logged here and returned
// for callers that care; none of them are fatal.
func (b *Bridge) Dispatch(n Notification) error {
	if b.target == nil {
		b.logger.Warn("dropping notification: no orchestrator registered",
			"source", n.Source, "kind", n.Kind)
		b.metrics.NotificationDropped("no_target")
		return ErrNoTarget
	}

	ev, err := classify(n)
	if err != nil {
		b.logger.Warn("dropping notification",
			"source", n.Source, "kind", n.Kind, "error", err)
		reason := "unknown"
		if errors.Is(err, ErrMalformedEvent) {
			reason = "malformed"
		}
		b.metrics.NotificationDropped(reason)
		return err
	}

	b.logger.Debug("notification", "source", n.Source, "event", ev.Kind)
	b.target.Post(ev)
	return nil
}

func classify(n Notification) (Event, error) {
	switch n.Source {
	case SourceWireless:
		switch n.Kind {
		case KindAssociated:
			return Event{Kind: EventAssociated}, nil
		case KindDisassociated:
			return Event{Kind: EventDisassociated}, nil
		case KindAddressAssigned:
			addr, err := addressFromPayload(n.Payload)
			if err != nil {
				return Event{}, err
			}
			return Event{Kind: EventAddressAssigned, Address: addr}, nil
		}
	case SourceBroker:
		cause, _ := n.Payload.(error)
		switch n.Kind {
		case KindSessionEstablished:
			return Event{Kind: EventSessionEstablished}, nil
		case KindSessionError:
			return Event{Kind: EventSessionError, Err: cause}, nil
		case KindSessionLost:
			return Event{Kind: EventSessionLost, Err: cause}, nil
		}
	}
	return Event{}, fmt.Errorf("%w: %s/%s", ErrUnknownNotification, n.Source, n.Kind)
}

func addressFromPayload(p any) (netip.Addr, error) {
	var (
		addr netip.Addr
		ok   bool
	)
	switch v := p.(type) {
	case netip.Addr:
		addr, ok = v, v.IsValid()
	case netip.Prefix:
		addr, ok = v.Addr(), v.IsValid()
	case net.IP:
		addr, ok = netip.AddrFromSlice(v)
	case net.IPNet:
		addr, ok = netip.AddrFromSlice(v.IP)
	case *net.IPNet:
		if v != nil {
			addr, ok = netip.AddrFromSlice(v.IP)
		}
	case string:
		a, err := netip.ParseAddr(v)
		addr, ok = a, err == nil
	}
	if !ok || addr.IsUnspecified() {
		return netip.Addr{}, fmt.Errorf("%w: address_assigned payload %T(%v)", ErrMalformedEvent, p, p)
	}
	return addr.Unmap(), nil
}
