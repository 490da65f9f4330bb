package wireless

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/nerrad567/gray-logic-sensornode/internal/bringup"
)

// AddrLookup returns the addresses configured on an interface.
type AddrLookup func(iface string) ([]net.Addr, error)

func interfaceAddrs(iface string) ([]net.Addr, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, err
	}
	return ifi.Addrs()
}

// Static reports an already-configured interface as associated and
// addressed on every Connect. It is used when wireless.enabled is false.
type Static struct {
	iface  string
	notify Notifier
	lookup AddrLookup
}

// NewStatic creates a static stack for iface.
func NewStatic(iface string, notify Notifier) *Static {
	return &Static{iface: iface, notify: notify, lookup: interfaceAddrs}
}

// SetLookup replaces the address lookup (tests).
func (s *Static) SetLookup(fn AddrLookup) { s.lookup = fn }

// Connect checks the interface has an IPv4 address, then reports
// associated and address_assigned from a separate goroutine so the caller
// (the orchestrator's event loop) is never blocked on its own queue.
func (s *Static) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr, err := s.address()
	if err != nil {
		return err
	}

	go func() {
		s.notify.Notify(bringup.Notification{Source: bringup.SourceWireless, Kind: bringup.KindAssociated})
		s.notify.Notify(bringup.Notification{Source: bringup.SourceWireless, Kind: bringup.KindAddressAssigned, Payload: addr})
	}()
	return nil
}

func (s *Static) address() (netip.Addr, error) {
	addrs, err := s.lookup(s.iface)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %s: %w", ErrNoInterface, s.iface, err)
	}

	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		default:
			continue
		}
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		if addr = addr.Unmap(); usableIPv4(addr) {
			return addr, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("%w: %s", ErrNoAddress, s.iface)
}
