package sensor

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Payload formats accepted in mqtt.payload_format.
const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// Reading is one temperature measurement as published.
type Reading struct {
	ID           string    `json:"id" cbor:"id"`
	NodeID       string    `json:"node_id" cbor:"node_id"`
	DeviceID     string    `json:"device_id" cbor:"device_id"`
	Celsius      float64   `json:"celsius" cbor:"celsius"`
	Boundary     time.Time `json:"boundary,omitzero" cbor:"boundary"`
	MeasuredAt   time.Time `json:"measured_at" cbor:"measured_at"`
	ClockTrusted bool      `json:"clock_trusted" cbor:"clock_trusted"`

	// OnDemand marks readings requested over the command topic rather
	// than fired by the schedule.
	OnDemand bool `json:"on_demand,omitempty" cbor:"on_demand,omitempty"`
}

// Codec encodes readings for the wire.
type Codec struct {
	format string
	cbor   cbor.EncMode
}

// NewCodec returns a codec for format ("json" or "cbor"; empty means json).
func NewCodec(format string) (*Codec, error) {
	format = strings.ToLower(format)
	switch format {
	case "", FormatJSON:
		return &Codec{format: FormatJSON}, nil
	case FormatCBOR:
		opts := cbor.CoreDetEncOptions()
		opts.Time = cbor.TimeRFC3339Nano
		em, err := opts.EncMode()
		if err != nil {
			return nil, fmt.Errorf("building cbor encoder: %w", err)
		}
		return &Codec{format: FormatCBOR, cbor: em}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Format returns the codec's format name.
func (c *Codec) Format() string { return c.format }

// Encode marshals r.
func (c *Codec) Encode(r Reading) ([]byte, error) {
	if c.format == FormatCBOR {
		b, err := c.cbor.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encoding reading as cbor: %w", err)
		}
		return b, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding reading as json: %w", err)
	}
	return b, nil
}

// Decode unmarshals a payload produced by Encode.
func (c *Codec) Decode(b []byte) (Reading, error) {
	var r Reading
	var err error
	if c.format == FormatCBOR {
		err = cbor.Unmarshal(b, &r)
	} else {
		err = json.Unmarshal(b, &r)
	}
	if err != nil {
		return Reading{}, fmt.Errorf("decoding %s reading: %w", c.format, err)
	}
	return r, nil
}
