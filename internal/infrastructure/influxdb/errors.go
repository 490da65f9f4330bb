package influxdb

import "errors"

// Sentinel errors; check with errors.Is.
var (
	// ErrNotConnected is returned after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed wraps errors delivered to the SetOnError callback.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDisabled is returned by New when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
