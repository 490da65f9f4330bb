package sensor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ds18b20Family is the 1-Wire family code prefix of DS18B20 device ids.
const ds18b20Family = "28-"

// DS18B20 reads a probe through the w1_therm sysfs interface:
//
//	<root>/<device>/w1_slave     two lines, CRC verdict then t=<millidegrees>
//	<root>/<device>/resolution   9..12, writable on recent kernels
type DS18B20 struct {
	root       string
	deviceID   string
	resolution int
	retries    int

	mu     sync.Mutex
	device string // resolved directory, set by Init
}

// NewDS18B20 creates a driver. An empty deviceID selects the first DS18B20
// on the bus. resolution 0 leaves the probe's setting alone. retries is how
// many extra reads a CRC failure gets.
func NewDS18B20(root, deviceID string, resolution, retries int) *DS18B20 {
	if retries < 0 {
		retries = 0
	}
	return &DS18B20{root: root, deviceID: deviceID, resolution: resolution, retries: retries}
}

// Init locates the device and applies the configured resolution.
func (d *DS18B20) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id := d.deviceID
	if id == "" {
		found, err := d.discover()
		if err != nil {
			return err
		}
		id = found
	}

	dir := filepath.Join(d.root, id)
	if _, err := os.Stat(filepath.Join(dir, "w1_slave")); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNoDevice, id, err)
	}

	if d.resolution != 0 {
		if err := writeAttr(filepath.Join(dir, "resolution"), strconv.Itoa(d.resolution)); err != nil {
			return fmt.Errorf("setting ds18b20 resolution to %d bits: %w", d.resolution, err)
		}
	}

	d.mu.Lock()
	d.device = dir
	d.deviceID = id
	d.mu.Unlock()
	return nil
}

// writeAttr writes an existing sysfs attribute; it never creates files.
func writeAttr(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(value); err != nil {
		f.Close() //nolint:errcheck // write error wins
		return err
	}
	return f.Close()
}

func (d *DS18B20) discover() (string, error) {
	matches, err := filepath.Glob(filepath.Join(d.root, ds18b20Family+"*"))
	if err != nil {
		return "", fmt.Errorf("scanning %s: %w", d.root, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w under %s", ErrNoDevice, d.root)
	}
	sort.Strings(matches)
	return filepath.Base(matches[0]), nil
}

// Read returns the temperature, retrying CRC failures.
func (d *DS18B20) Read(ctx context.Context) (float64, error) {
	d.mu.Lock()
	dir := d.device
	d.mu.Unlock()
	if dir == "" {
		return 0, ErrNotInitialized
	}

	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		raw, err := os.ReadFile(filepath.Join(dir, "w1_slave"))
		if err != nil {
			return 0, fmt.Errorf("reading %s: %w", d.deviceID, err)
		}
		celsius, err := parseW1Slave(string(raw))
		if err == nil {
			return celsius, nil
		}
		if !errors.Is(err, ErrCRC) {
			return 0, err
		}
		lastErr = err
	}
	return 0, fmt.Errorf("%s after %d attempts: %w", d.deviceID, d.retries+1, lastErr)
}

// ID returns the 1-Wire device id (resolved after Init).
func (d *DS18B20) ID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deviceID
}

// parseW1Slave decodes:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1Slave(raw string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("%w: %d lines", ErrInvalidReading, len(lines))
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, ErrCRC
	}

	idx := strings.LastIndex(lines[1], "t=")
	if idx < 0 {
		return 0, fmt.Errorf("%w: no t= field", ErrInvalidReading)
	}
	milli, err := strconv.Atoi(strings.TrimSpace(lines[1][idx+2:]))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidReading, err)
	}
	return float64(milli) / 1000, nil
}
