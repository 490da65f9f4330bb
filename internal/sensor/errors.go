package sensor

import "errors"

var (
	// ErrUnknownDriver is returned by NewDriver for an unsupported driver name.
	ErrUnknownDriver = errors.New("sensor: unknown driver")

	// ErrNoDevice is returned when no DS18B20 is present on the 1-Wire bus.
	ErrNoDevice = errors.New("sensor: no ds18b20 device found")

	// ErrCRC is returned when the probe's scratchpad CRC check failed.
	ErrCRC = errors.New("sensor: crc check failed")

	// ErrInvalidReading is returned for an unparseable w1_slave file.
	ErrInvalidReading = errors.New("sensor: invalid reading")

	ErrNotInitialized = errors.New("sensor: driver not initialized")

	// ErrNotReady is returned by Reporter.Start when the session or the
	// driver is missing.
	ErrNotReady = errors.New("sensor: reporter not ready")

	ErrUnknownFormat  = errors.New("sensor: unknown payload format")
	ErrUnknownCommand = errors.New("sensor: unknown command")
)
