package sensor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-sensornode/internal/clock"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
)

const (
	goodSlave = "72 01 4b 46 7f ff 0e 10 57 : crc=57 YES\n72 01 4b 46 7f ff 0e 10 57 t=23125\n"
	badCRC    = "72 01 4b 46 7f ff 0e 10 57 : crc=00 NO\n72 01 4b 46 7f ff 0e 10 57 t=23125\n"
)

// fakeBus creates <root>/<id>/w1_slave and resolution files.
func fakeBus(t *testing.T, ids ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, id := range ids {
		dir := filepath.Join(root, id)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		writeFile(t, filepath.Join(dir, "w1_slave"), goodSlave)
		writeFile(t, filepath.Join(dir, "resolution"), "12")
	}
	return root
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestParseW1Slave(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    float64
		wantErr error
	}{
		{"positive", goodSlave, 23.125, nil},
		{"negative", "ff ff : crc=57 YES\nff ff t=-10062\n", -10.062, nil},
		{"zero", "00 : crc=00 YES\n00 t=0", 0, nil},
		{"crc failure", badCRC, 0, ErrCRC},
		{"single line", "72 01 : crc=57 YES", 0, ErrInvalidReading},
		{"missing t field", "72 : crc=57 YES\n72 01 4b\n", 0, ErrInvalidReading},
		{"garbage value", "72 : crc=57 YES\n72 t=abc\n", 0, ErrInvalidReading},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseW1Slave(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestDS18B20Discovery(t *testing.T) {
	root := fakeBus(t, "28-000000000b2c", "28-000000000a1f")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "w1_bus_master1"), 0o755))

	d := NewDS18B20(root, "", 0, 0)
	require.NoError(t, d.Init(context.Background()))
	assert.Equal(t, "28-000000000a1f", d.ID(), "lowest device id wins")

	got, err := d.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 23.125, got, 1e-9)
}

func TestDS18B20NoDevice(t *testing.T) {
	d := NewDS18B20(t.TempDir(), "", 0, 0)
	assert.ErrorIs(t, d.Init(context.Background()), ErrNoDevice)

	d = NewDS18B20(fakeBus(t, "28-aaaa"), "28-bbbb", 0, 0)
	assert.ErrorIs(t, d.Init(context.Background()), ErrNoDevice, "configured id missing")
}

func TestDS18B20ReadBeforeInit(t *testing.T) {
	d := NewDS18B20(fakeBus(t, "28-aaaa"), "28-aaaa", 0, 0)
	_, err := d.Read(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestDS18B20Resolution(t *testing.T) {
	root := fakeBus(t, "28-aaaa")
	require.NoError(t, NewDS18B20(root, "28-aaaa", 10, 0).Init(context.Background()))

	got, err := os.ReadFile(filepath.Join(root, "28-aaaa", "resolution"))
	require.NoError(t, err)
	assert.Equal(t, "10", string(got))

	require.NoError(t, os.Remove(filepath.Join(root, "28-aaaa", "resolution")))
	assert.Error(t, NewDS18B20(root, "28-aaaa", 9, 0).Init(context.Background()),
		"resolution attribute missing")
}

func TestDS18B20CRCRetries(t *testing.T) {
	root := fakeBus(t, "28-aaaa")
	writeFile(t, filepath.Join(root, "28-aaaa", "w1_slave"), badCRC)

	d := NewDS18B20(root, "28-aaaa", 0, 2)
	require.NoError(t, d.Init(context.Background()))
	_, err := d.Read(context.Background())
	assert.ErrorIs(t, err, ErrCRC)
}

func TestSimulated(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	s := NewSimulated(clk)
	require.NoError(t, s.Init(context.Background()))

	midnight, _ := s.Read(context.Background())
	clk.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	noon, _ := s.Read(context.Background())

	assert.InDelta(t, 17.0, midnight, 1e-9)
	assert.InDelta(t, 23.0, noon, 1e-9)
}

func TestNewDriver(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tests := []struct {
		driver  string
		wantErr bool
		want    any
	}{
		{"ds18b20", false, &DS18B20{}},
		{"", false, &DS18B20{}},
		{"Simulated", false, &Simulated{}},
		{"bme280", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := NewDriver(config.SensorConfig{Driver: tt.driver}, clk)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownDriver)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, d)
		})
	}
}
