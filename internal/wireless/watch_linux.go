//go:build linux

package wireless

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/nerrad567/gray-logic-sensornode/internal/bringup"
)

const updateBuffer = 16

func (s *Station) watch(ctx context.Context) error {
	link, err := netlink.LinkByName(s.cfg.Interface)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNoInterface, s.cfg.Interface, err)
	}
	index := link.Attrs().Index

	done := make(chan struct{})
	defer close(done)

	onErr := func(err error) {
		s.logger.Warn("netlink subscription error", "interface", s.cfg.Interface, "error", err)
	}

	links := make(chan netlink.LinkUpdate, updateBuffer)
	if err := netlink.LinkSubscribeWithOptions(links, done, netlink.LinkSubscribeOptions{
		ErrorCallback: onErr,
	}); err != nil {
		return fmt.Errorf("subscribing to link updates: %w", err)
	}

	addrs := make(chan netlink.AddrUpdate, updateBuffer)
	if err := netlink.AddrSubscribeWithOptions(addrs, done, netlink.AddrSubscribeOptions{
		ErrorCallback: onErr,
		ListExisting:  true,
	}); err != nil {
		return fmt.Errorf("subscribing to address updates: %w", err)
	}

	initial := linkUp(link.Attrs())
	s.emit(func(t *linkTracker) []bringup.Notification { return t.seed(initial) })

	for {
		select {
		case <-ctx.Done():
			return nil

		case u, ok := <-links:
			if !ok {
				return ErrWatchClosed
			}
			if u.Attrs().Index != index {
				continue
			}
			up := linkUp(u.Attrs())
			s.emit(func(t *linkTracker) []bringup.Notification { return t.link(up) })

		case a, ok := <-addrs:
			if !ok {
				return ErrWatchClosed
			}
			if a.LinkIndex != index {
				continue
			}
			addr, ok := netip.AddrFromSlice(a.LinkAddress.IP)
			if !ok {
				continue
			}
			added := a.NewAddr
			s.emit(func(t *linkTracker) []bringup.Notification { return t.address(addr, added) })
		}
	}
}

// linkUp treats a link as associated when its operational state is up.
// Drivers that leave oper-state unknown fall back to IFF_UP + IFF_LOWER_UP.
func linkUp(a *netlink.LinkAttrs) bool {
	switch a.OperState {
	case netlink.OperUp:
		return true
	case netlink.OperUnknown:
		return a.Flags&net.FlagUp != 0 && a.RawFlags&unix.IFF_LOWER_UP != 0
	default:
		return false
	}
}
