package wireless

import (
	"net/netip"

	"github.com/nerrad567/gray-logic-sensornode/internal/bringup"
)

// linkTracker turns raw link and address updates into lifecycle
// notifications, suppressing repeats.
type linkTracker struct {
	known bool
	up    bool
	addr  netip.Addr
}

func (t *linkTracker) link(up bool) []bringup.Notification {
	if t.known && t.up == up {
		return nil
	}
	t.known, t.up = true, up

	if up {
		return []bringup.Notification{{Source: bringup.SourceWireless, Kind: bringup.KindAssociated}}
	}
	t.addr = netip.Addr{}
	return []bringup.Notification{{Source: bringup.SourceWireless, Kind: bringup.KindDisassociated}}
}

// seed records the link state found at startup. Only an up link is
// reported; a down link is the normal boot state, not a failed attempt.
func (t *linkTracker) seed(up bool) []bringup.Notification {
	if up {
		return t.link(true)
	}
	t.known, t.up = true, false
	t.addr = netip.Addr{}
	return nil
}

// expire marks the link down after an association attempt ran out of time
// and reports it, whether or not the link was already known to be down.
func (t *linkTracker) expire() []bringup.Notification {
	t.known, t.up = true, false
	t.addr = netip.Addr{}
	return []bringup.Notification{{Source: bringup.SourceWireless, Kind: bringup.KindDisassociated}}
}

// address handles an IPv4 address being added or removed. IPv6 and
// link-local addresses are ignored.
func (t *linkTracker) address(addr netip.Addr, added bool) []bringup.Notification {
	addr = addr.Unmap()
	if !usableIPv4(addr) {
		return nil
	}
	if !added {
		if addr == t.addr {
			t.addr = netip.Addr{}
		}
		return nil
	}
	if addr == t.addr {
		return nil
	}
	t.addr = addr
	return []bringup.Notification{{Source: bringup.SourceWireless, Kind: bringup.KindAddressAssigned, Payload: addr}}
}

func usableIPv4(addr netip.Addr) bool {
	return addr.Is4() && !addr.IsLinkLocalUnicast() && !addr.IsLoopback() && !addr.IsUnspecified()
}
