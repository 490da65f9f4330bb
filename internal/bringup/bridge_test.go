package bringup

import (
	"net"
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTarget struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingTarget) Post(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type recordingMetrics struct {
	noopMetrics
	dropped []string
}

func (m *recordingMetrics) NotificationDropped(reason string) {
	m.dropped = append(m.dropped, reason)
}

func TestBridge_Classify(t *testing.T) {
	want := netip.MustParseAddr("192.168.4.23")
	tests := []struct {
		name string
		n    Notification
		want Event
	}{
		{"associated", Notification{Source: SourceWireless, Kind: KindAssociated}, Event{Kind: EventAssociated}},
		{"disassociated", Notification{Source: SourceWireless, Kind: KindDisassociated}, Event{Kind: EventDisassociated}},
		{"address netip", Notification{Source: SourceWireless, Kind: KindAddressAssigned, Payload: want}, Event{Kind: EventAddressAssigned, Address: want}},
		{"address net.IP", Notification{Source: SourceWireless, Kind: KindAddressAssigned, Payload: net.ParseIP("192.168.4.23")}, Event{Kind: EventAddressAssigned, Address: want}},
		{"address *IPNet", Notification{Source: SourceWireless, Kind: KindAddressAssigned, Payload: &net.IPNet{IP: net.ParseIP("192.168.4.23"), Mask: net.CIDRMask(24, 32)}}, Event{Kind: EventAddressAssigned, Address: want}},
		{"address prefix", Notification{Source: SourceWireless, Kind: KindAddressAssigned, Payload: netip.MustParsePrefix("192.168.4.23/24")}, Event{Kind: EventAddressAssigned, Address: want}},
		{"address string", Notification{Source: SourceWireless, Kind: KindAddressAssigned, Payload: "192.168.4.23"}, Event{Kind: EventAddressAssigned, Address: want}},
		{"session established", Notification{Source: SourceBroker, Kind: KindSessionEstablished}, Event{Kind: EventSessionEstablished}},
		{"session error", Notification{Source: SourceBroker, Kind: KindSessionError}, Event{Kind: EventSessionError}},
		{"session lost", Notification{Source: SourceBroker, Kind: KindSessionLost}, Event{Kind: EventSessionLost}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := &recordingTarget{}
			b := NewBridge(target)
			require.NoError(t, b.Dispatch(tt.n))
			require.Len(t, target.events, 1)
			assert.Equal(t, tt.want, target.events[0])
		})
	}
}

func TestBridge_SessionErrorCarriesCause(t *testing.T) {
	target := &recordingTarget{}
	cause := net.UnknownNetworkError("refused")
	require.NoError(t, NewBridge(target).Dispatch(Notification{Source: SourceBroker, Kind: KindSessionError, Payload: cause}))
	assert.Equal(t, cause, target.events[0].Err)
}

func TestBridge_MalformedAddressIsAbsorbed(t *testing.T) {
	payloads := []any{nil, 42, "not-an-ip", net.IP(nil), (*net.IPNet)(nil), netip.Addr{}, "0.0.0.0"}
	for _, p := range payloads {
		target := &recordingTarget{}
		metrics := &recordingMetrics{}
		b := NewBridge(target)
		b.SetMetrics(metrics)

		err := b.Dispatch(Notification{Source: SourceWireless, Kind: KindAddressAssigned, Payload: p})
		assert.ErrorIs(t, err, ErrMalformedEvent, "payload %#v", p)
		assert.Empty(t, target.events, "payload %#v", p)
		assert.Equal(t, []string{"malformed"}, metrics.dropped)
	}
}

func TestBridge_UnknownNotification(t *testing.T) {
	target := &recordingTarget{}
	metrics := &recordingMetrics{}
	b := NewBridge(target)
	b.SetMetrics(metrics)

	assert.ErrorIs(t, b.Dispatch(Notification{Source: SourceWireless, Kind: "scan_done"}), ErrUnknownNotification)
	// Right kind, wrong source.
	assert.ErrorIs(t, b.Dispatch(Notification{Source: SourceBroker, Kind: KindAssociated}), ErrUnknownNotification)
	assert.Empty(t, target.events)
	assert.Equal(t, []string{"unknown", "unknown"}, metrics.dropped)
}

func TestBridge_NoTarget(t *testing.T) {
	metrics := &recordingMetrics{}
	b := NewBridge(nil)
	b.SetMetrics(metrics)

	assert.ErrorIs(t, b.Dispatch(Notification{Source: SourceWireless, Kind: KindAssociated}), ErrNoTarget)
	assert.NotPanics(t, func() { b.Notify(Notification{Source: SourceBroker, Kind: KindSessionLost}) })
	assert.Equal(t, []string{"no_target", "no_target"}, metrics.dropped)
}
