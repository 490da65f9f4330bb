package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementTemperature is the InfluxDB measurement for probe readings.
const measurementTemperature = "temperature"

// Reading is one scheduled temperature measurement.
type Reading struct {
	NodeID       string
	DeviceID     string
	Celsius      float64
	Boundary     time.Time // grid instant the measurement belongs to
	MeasuredAt   time.Time
	ClockTrusted bool
}

// WriteReading queues r for the next batch. The point is stamped with the
// boundary so mirrored series line up on the grid. Dropped after Close.
func (c *Client) WriteReading(r Reading) {
	if c.isClosed() {
		return
	}
	c.writeAPI.WritePoint(readingPoint(r))
}

func readingPoint(r Reading) *write.Point {
	ts := r.Boundary
	if ts.IsZero() {
		ts = r.MeasuredAt
	}

	tags := map[string]string{"node_id": r.NodeID}
	if r.DeviceID != "" {
		tags["device_id"] = r.DeviceID
	}

	return write.NewPoint(
		measurementTemperature,
		tags,
		map[string]any{
			"celsius":       r.Celsius,
			"clock_trusted": r.ClockTrusted,
			"lag_ms":        r.MeasuredAt.Sub(ts).Milliseconds(),
		},
		ts,
	)
}
