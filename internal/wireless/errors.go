package wireless

import "errors"

var (
	// ErrCommandFailed wraps a wpa_cli invocation that failed or answered FAIL.
	ErrCommandFailed = errors.New("wireless: wpa_cli command failed")

	// ErrNoInterface is returned when the configured interface does not exist.
	ErrNoInterface = errors.New("wireless: interface not found")

	// ErrNoAddress is returned when the interface has no IPv4 address.
	ErrNoAddress = errors.New("wireless: no IPv4 address on interface")

	// ErrUnsupported is returned by Watch on platforms without netlink.
	ErrUnsupported = errors.New("wireless: link watching not supported on this platform")

	// ErrWatchClosed is returned when a netlink subscription ends unexpectedly.
	ErrWatchClosed = errors.New("wireless: netlink subscription closed")
)
