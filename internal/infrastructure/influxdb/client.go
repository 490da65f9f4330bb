package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
)

const (
	defaultPingTimeout   = 5 * time.Second
	defaultBatchSize     = 20
	defaultFlushInterval = 10 // seconds
)

// Client mirrors readings into a local InfluxDB v2 bucket.
//
// New does not contact the server: the node usually has no network at
// start-up, and the write API buffers and retries on its own. Use
// HealthCheck for an active probe.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Writes are non-blocking; failures arrive through SetOnError.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig

	closed  bool
	mu      sync.RWMutex
	onError func(err error)

	done chan struct{}
}

// New creates the client. It returns ErrDisabled when cfg.Enabled is false.
func New(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: empty url", ErrConnectionFailed)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}

	// #nosec G115 -- both values are positive
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush) * uint(time.Second/time.Millisecond))

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:      cfg,
		done:     make(chan struct{}),
	}
	// Errors must be obtained before the first write.
	go c.forwardErrors(c.writeAPI.Errors())

	return c, nil
}

func (c *Client) forwardErrors(errs <-chan error) {
	defer close(c.done)
	for err := range errs {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()
		if callback != nil {
			callback(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.isClosed() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	ok, err := c.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("influxdb health check failed: server not ready")
	}
	return nil
}

// Flush blocks until buffered points have been sent. No-op after Close.
func (c *Client) Flush() {
	if c.isClosed() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes pending points and releases the client. Safe to call twice.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
