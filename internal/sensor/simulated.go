package sensor

import (
	"context"
	"math"

	"github.com/nerrad567/gray-logic-sensornode/internal/clock"
)

// Simulated produces a smooth daily curve for hosts without a probe.
type Simulated struct {
	Base      float64 // mean temperature
	Amplitude float64 // half the day/night swing

	clk clock.Clock
}

// NewSimulated returns a source oscillating 20±3 °C over a day, coldest at
// midnight in clk's time.
func NewSimulated(clk clock.Clock) *Simulated {
	return &Simulated{Base: 20, Amplitude: 3, clk: clk}
}

func (s *Simulated) Init(ctx context.Context) error { return ctx.Err() }

func (s *Simulated) Read(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := s.clk.Now()
	secs := float64(now.Hour()*3600 + now.Minute()*60 + now.Second())
	phase := 2 * math.Pi * secs / 86400
	return math.Round((s.Base-s.Amplitude*math.Cos(phase))*100) / 100, nil
}

func (s *Simulated) ID() string { return DriverSimulated }
