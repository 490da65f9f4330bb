package sensor

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-sensornode/internal/clock"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
)

// Driver names accepted in sensor.driver.
const (
	DriverDS18B20   = "ds18b20"
	DriverSimulated = "simulated"
)

// Driver is a temperature probe.
type Driver interface {
	// Init prepares the probe. It must succeed before Read.
	Init(ctx context.Context) error

	// Read returns the temperature in degrees Celsius.
	Read(ctx context.Context) (float64, error)

	// ID identifies the probe (1-Wire device id or "simulated").
	ID() string
}

// NewDriver builds the driver selected by cfg.Driver.
func NewDriver(cfg config.SensorConfig, clk clock.Clock) (Driver, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverDS18B20, "":
		return NewDS18B20(cfg.W1Path, cfg.DeviceID, cfg.Resolution, cfg.ReadRetries), nil
	case DriverSimulated:
		return NewSimulated(clk), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
