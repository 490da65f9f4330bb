package mqtt

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds a single connect attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 30 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// brokerURL builds the broker address for the configured transport.
//
// tcp and ssl use host:port; ws and wss add the websocket path. TLS=true
// upgrades tcp to ssl and ws to wss.
func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := strings.ToLower(b.Transport)
	switch scheme {
	case "", "tcp":
		scheme = "tcp"
		if b.TLS {
			scheme = "ssl"
		}
	case "ws":
		if b.TLS {
			scheme = "wss"
		}
	}

	if scheme == "ws" || scheme == "wss" {
		path := b.Path
		if path == "" {
			path = "/mqtt"
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return fmt.Sprintf("%s://%s:%d%s", scheme, b.Host, b.Port, path)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

func usesTLS(url string) bool {
	return strings.HasPrefix(url, "ssl://") || strings.HasPrefix(url, "wss://")
}

// buildClientOptions creates paho options for one connect attempt.
//
// Automatic reconnection is disabled: retries are owned by the bring-up
// orchestrator, which counts them against the broker retry budget.
func buildClientOptions(cfg config.MQTTConfig, clientID string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	url := brokerURL(cfg.Broker)
	opts.AddBroker(url)
	opts.SetClientID(clientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if usesTLS(url) {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

// configureLWT makes the broker publish a retained offline status if the
// node drops without a clean disconnect.
func configureLWT(opts *pahomqtt.ClientOptions, topic, nodeID string) {
	opts.SetWill(topic, buildStatusPayload("offline", nodeID, "unexpected_disconnect"), 1, true)
}

// buildStatusPayload creates the JSON payload for the node status topic.
func buildStatusPayload(status, nodeID, reason string) string {
	if reason == "" {
		return fmt.Sprintf(
			`{"status":"%s","node_id":"%s","timestamp":"%s"}`,
			status, nodeID, time.Now().UTC().Format(time.RFC3339),
		)
	}
	return fmt.Sprintf(
		`{"status":"%s","node_id":"%s","reason":"%s","timestamp":"%s"}`,
		status, nodeID, reason, time.Now().UTC().Format(time.RFC3339),
	)
}
