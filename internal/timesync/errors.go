package timesync

import "errors"

var (
	// ErrUnknownSource is returned for an unsupported time_sync.source.
	ErrUnknownSource = errors.New("timesync: unknown source")

	// ErrNoServers is returned when the ntp source has nothing to query.
	ErrNoServers = errors.New("timesync: no ntp servers configured")

	// ErrUnsupported is returned by the kernel source off Linux.
	ErrUnsupported = errors.New("timesync: kernel sync status not supported on this platform")
)
