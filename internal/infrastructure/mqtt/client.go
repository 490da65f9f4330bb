package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
)

// Client is the node's broker session.
//
// Connect starts an asynchronous attempt and returns at once; the outcome
// arrives through the OnConnect / OnConnectError callbacks, and a later drop
// through OnConnectionLost. The client never reconnects by itself.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are restored on every successful Connect.
type Client struct {
	cfg      config.MQTTConfig
	topics   Topics
	clientID string

	// client is the paho client of the current attempt. gen increments on
	// every Connect and Stop so callbacks from an abandoned attempt are
	// ignored.
	client    pahomqtt.Client
	gen       uint64
	connected bool
	connMu    sync.RWMutex

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	onConnect        func()
	onConnectError   func(err error)
	onConnectionLost func(err error)
	callbackMu       sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the paho library and
// should not block for long. A returned error is logged.
type MessageHandler func(topic string, payload []byte) error

// New creates a disconnected client for nodeID.
//
// The MQTT client ID is cfg.Broker.ClientID, or "<nodeID>-<random>" when
// unset.
func New(cfg config.MQTTConfig, nodeID string) *Client {
	clientID := cfg.Broker.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("%s-%s", nodeID, uuid.NewString()[:8])
	}
	return &Client{
		cfg:           cfg,
		topics:        NewTopics(cfg.TopicPrefix, nodeID),
		clientID:      clientID,
		subscriptions: make(map[string]subscription),
	}
}

// Topics returns the topic builder for this node.
func (c *Client) Topics() Topics { return c.topics }

// ClientID returns the MQTT client identifier in use.
func (c *Client) ClientID() string { return c.clientID }

// Connect abandons any previous attempt or session and starts a new one.
//
// The returned error only covers ctx already being done; connection
// failures are reported through OnConnectError.
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	opts := buildClientOptions(c.cfg, c.clientID)
	configureLWT(opts, c.topics.Status(), c.topics.NodeID)

	c.connMu.Lock()
	previous := c.client
	c.gen++
	gen := c.gen
	opts.SetOnConnectHandler(func(pc pahomqtt.Client) {
		c.handleConnect(gen, pc)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(gen, err)
	})
	pc := pahomqtt.NewClient(opts)
	c.client = pc
	c.connected = false
	c.connMu.Unlock()

	if previous != nil && previous.IsConnectionOpen() {
		previous.Disconnect(0)
	}

	token := pc.Connect()
	go func() {
		select {
		case <-token.Done():
		case <-ctx.Done():
			return
		}
		if err := token.Error(); err != nil {
			c.handleConnectError(gen, err)
		}
	}()

	return nil
}

func (c *Client) current(gen uint64) bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return gen == c.gen
}

// handleConnect is called when the connection is established. A session
// that completes after being superseded is closed straight away.
func (c *Client) handleConnect(gen uint64, pc pahomqtt.Client) {
	c.connMu.Lock()
	if gen != c.gen {
		c.connMu.Unlock()
		pc.Disconnect(0)
		return
	}
	c.connected = true
	c.connMu.Unlock()

	c.restoreSubscriptions()
	c.publishStatus("online", "")

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleConnectError is called when a connect attempt fails.
func (c *Client) handleConnectError(gen uint64, err error) {
	if !c.current(gen) {
		return
	}

	c.callbackMu.RLock()
	callback := c.onConnectError
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	}
}

// handleConnectionLost is called when an established connection drops.
func (c *Client) handleConnectionLost(gen uint64, err error) {
	c.connMu.Lock()
	if gen != c.gen {
		c.connMu.Unlock()
		return
	}
	c.connected = false
	c.connMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onConnectionLost
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	pc := c.pahoClient()
	if pc == nil {
		return
	}

	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for _, sub := range c.subscriptions {
		token := pc.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		if !token.WaitTimeout(defaultPublishTimeout) || token.Error() != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT re-subscribe failed", "topic", sub.topic, "error", token.Error())
			}
		}
	}
}

// publishStatus publishes a retained node status message.
func (c *Client) publishStatus(status, reason string) {
	pc := c.pahoClient()
	if pc == nil {
		return
	}
	token := pc.Publish(c.topics.Status(), byte(c.cfg.QoS), true,
		buildStatusPayload(status, c.topics.NodeID, reason))
	token.WaitTimeout(defaultPublishTimeout)
}

func (c *Client) pahoClient() pahomqtt.Client {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.client
}

// Stop ends the current session or attempt. A connected session first
// publishes a retained graceful-offline status. Callbacks from the stopped
// attempt are suppressed. Stop on a stopped client is a no-op.
func (c *Client) Stop() {
	c.connMu.Lock()
	pc := c.client
	wasConnected := c.connected
	c.client = nil
	c.connected = false
	c.gen++
	c.connMu.Unlock()

	if pc == nil {
		return
	}
	if wasConnected && pc.IsConnected() {
		token := pc.Publish(c.topics.Status(), byte(c.cfg.QoS), true,
			buildStatusPayload("offline", c.topics.NodeID, "graceful_shutdown"))
		token.WaitTimeout(defaultPublishTimeout)
	}
	if pc.IsConnectionOpen() {
		pc.Disconnect(defaultDisconnectQuiesce)
	}
}

// Close stops the client. It exists for symmetry with the other
// infrastructure clients and always returns nil.
func (c *Client) Close() error {
	c.Stop()
	return nil
}

// HealthCheck reports ErrNotConnected unless a session is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetOnConnect sets a callback invoked each time a Connect succeeds.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnConnectError sets a callback invoked when a Connect attempt fails.
// The error wraps ErrConnectionFailed.
func (c *Client) SetOnConnectError(callback func(err error)) {
	c.callbackMu.Lock()
	c.onConnectError = callback
	c.callbackMu.Unlock()
}

// SetOnConnectionLost sets a callback invoked when an established
// session drops.
func (c *Client) SetOnConnectionLost(callback func(err error)) {
	c.callbackMu.Lock()
	c.onConnectionLost = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for handler errors and panics.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
