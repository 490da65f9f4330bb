package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the sensor node.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Node     NodeConfig     `yaml:"node"`
	Wireless WirelessConfig `yaml:"wireless"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	TimeSync TimeSyncConfig `yaml:"time_sync"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Sensor   SensorConfig   `yaml:"sensor"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Status   StatusConfig   `yaml:"status"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// NodeConfig identifies the node.
type NodeConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// WirelessConfig contains station association settings.
type WirelessConfig struct {
	// Enabled selects the wpa_supplicant station. When false the node is
	// assumed to sit on an already-configured (wired or host) interface.
	Enabled   bool   `yaml:"enabled"`
	Interface string `yaml:"interface"`
	SSID      string `yaml:"ssid"`
	Password  string `yaml:"password"`
	WPACLI    string `yaml:"wpa_cli"`

	// MaxRetries is the association retry budget. 0 means fail on the first loss.
	MaxRetries int         `yaml:"max_retries"`
	Retry      RetryConfig `yaml:"retry"`

	// AssociationTimeout (seconds) bounds one association attempt. An
	// attempt that has not brought the link up by then counts as failed.
	AssociationTimeout int `yaml:"association_timeout"`

	Supplicant SupplicantConfig `yaml:"supplicant"`
}

// SupplicantConfig controls whether the node runs wpa_supplicant itself.
// When Managed is false an external service (systemd, NetworkManager) is
// expected to own it.
type SupplicantConfig struct {
	Managed      bool   `yaml:"managed"`
	Binary       string `yaml:"binary"`
	ConfigFile   string `yaml:"config_file"`
	Driver       string `yaml:"driver"`
	RestartDelay int    `yaml:"restart_delay"` // seconds
	MaxRestarts  int    `yaml:"max_restarts"`
}

// RetryConfig is the delay applied before a connect command is reissued.
// Both values are in milliseconds; zero reissues immediately.
type RetryConfig struct {
	InitialDelay int `yaml:"initial_delay_ms"`
	MaxDelay     int `yaml:"max_delay_ms"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker        MQTTBrokerConfig    `yaml:"broker"`
	Auth          MQTTAuthConfig      `yaml:"auth"`
	QoS           int                 `yaml:"qos"`
	TopicPrefix   string              `yaml:"topic_prefix"`
	PayloadFormat string              `yaml:"payload_format"`
	Reconnect     MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`

	// Transport is one of tcp, ssl, ws, wss. TLS=true with an empty or tcp
	// transport is treated as ssl.
	Transport string `yaml:"transport"`
	Path      string `yaml:"path"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
// Delays are in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`

	// MaxAttempts is the broker retry budget. 0 means fail on the first error.
	MaxAttempts int `yaml:"max_attempts"`
}

// TimeSyncConfig controls the wait for a trustworthy clock.
type TimeSyncConfig struct {
	// Source is "kernel" (adjtimex status) or "ntp" (query servers directly).
	Source       string   `yaml:"source"`
	Servers      []string `yaml:"servers"`
	PollInterval int      `yaml:"poll_interval"` // seconds
	MaxPolls     int      `yaml:"max_polls"`
	MaxOffset    int      `yaml:"max_offset_ms"`
}

// ScheduleConfig controls the measurement grid.
type ScheduleConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
	PollInterval    int `yaml:"poll_interval_ms"`
}

// SensorConfig selects and configures the temperature probe.
type SensorConfig struct {
	Driver      string `yaml:"driver"` // ds18b20 or simulated
	DeviceID    string `yaml:"device_id"`
	W1Path      string `yaml:"w1_path"`
	Resolution  int    `yaml:"resolution"`
	ReadRetries int    `yaml:"read_retries"`
}

// DatabaseConfig contains SQLite outbox settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// StatusConfig contains the local status/metrics HTTP endpoint settings.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SENSORNODE_SECTION_KEY
// For example: SENSORNODE_MQTT_HOST, SENSORNODE_WIFI_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ID:       "sensor-001",
			Name:     "Gray Logic Sensor",
			Timezone: "UTC",
		},
		Wireless: WirelessConfig{
			Enabled:    true,
			Interface:  "wlan0",
			WPACLI:     "/usr/sbin/wpa_cli",
			MaxRetries: 5,

			AssociationTimeout: 30,
			Supplicant: SupplicantConfig{
				Binary:       "/usr/sbin/wpa_supplicant",
				ConfigFile:   "/etc/wpa_supplicant/wpa_supplicant.conf",
				Driver:       "nl80211",
				RestartDelay: 5,
				MaxRestarts:  10,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:      "localhost",
				Port:      1883,
				Transport: "tcp",
				Path:      "/mqtt",
			},
			QoS:           1,
			TopicPrefix:   "graylogic/sensor",
			PayloadFormat: "json",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  5,
			},
		},
		TimeSync: TimeSyncConfig{
			Source:       "kernel",
			Servers:      []string{"pool.ntp.org"},
			PollInterval: 2,
			MaxPolls:     10,
			MaxOffset:    1000,
		},
		Schedule: ScheduleConfig{
			IntervalMinutes: 5,
			PollInterval:    1000,
		},
		Sensor: SensorConfig{
			Driver:      "ds18b20",
			W1Path:      "/sys/bus/w1/devices",
			Resolution:  12,
			ReadRetries: 3,
		},
		Database: DatabaseConfig{
			Path:        "./data/sensornode.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Status: StatusConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    9100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SENSORNODE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("SENSORNODE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Wireless credentials
	if v := os.Getenv("SENSORNODE_WIFI_SSID"); v != "" {
		cfg.Wireless.SSID = v
	}
	if v := os.Getenv("SENSORNODE_WIFI_PASSWORD"); v != "" {
		cfg.Wireless.Password = v
	}

	// MQTT
	if v := os.Getenv("SENSORNODE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SENSORNODE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SENSORNODE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("SENSORNODE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Node.ID == "" {
		errs = append(errs, "node.id is required")
	}
	if _, err := time.LoadLocation(c.Node.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("node.timezone %q is not a valid IANA zone", c.Node.Timezone))
	}

	// Wireless
	if c.Wireless.Interface == "" {
		errs = append(errs, "wireless.interface is required")
	}
	if c.Wireless.MaxRetries < 0 {
		errs = append(errs, "wireless.max_retries must not be negative")
	}
	if c.Wireless.Enabled && c.Wireless.SSID != "" && !validPassphrase(c.Wireless.Password) {
		errs = append(errs, "wireless.password must be 8..63 printable ASCII characters for WPA2-PSK")
	}
	if c.Wireless.Enabled && c.Wireless.AssociationTimeout <= 0 {
		errs = append(errs, "wireless.association_timeout must be positive")
	}
	if c.Wireless.Enabled && c.Wireless.Supplicant.Managed {
		if c.Wireless.Supplicant.Binary == "" || c.Wireless.Supplicant.ConfigFile == "" {
			errs = append(errs, "wireless.supplicant.binary and config_file are required when managed")
		}
		if c.Wireless.Supplicant.MaxRestarts < 0 {
			errs = append(errs, "wireless.supplicant.max_restarts must not be negative")
		}
	}

	// MQTT
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	switch strings.ToLower(c.MQTT.Broker.Transport) {
	case "", "tcp", "ssl", "ws", "wss":
	default:
		errs = append(errs, "mqtt.broker.transport must be tcp, ssl, ws, or wss")
	}
	switch strings.ToLower(c.MQTT.PayloadFormat) {
	case "json", "cbor":
	default:
		errs = append(errs, "mqtt.payload_format must be json or cbor")
	}
	if c.MQTT.Reconnect.MaxAttempts < 0 {
		errs = append(errs, "mqtt.reconnect.max_attempts must not be negative")
	}

	// Time sync
	switch c.TimeSync.Source {
	case "kernel":
	case "ntp":
		if len(c.TimeSync.Servers) == 0 {
			errs = append(errs, "time_sync.servers is required for the ntp source")
		}
	default:
		errs = append(errs, "time_sync.source must be kernel or ntp")
	}
	if c.TimeSync.PollInterval <= 0 {
		errs = append(errs, "time_sync.poll_interval must be positive")
	}
	if c.TimeSync.MaxPolls <= 0 {
		errs = append(errs, "time_sync.max_polls must be positive")
	}

	// Schedule - boundaries must land on the same minutes every hour
	iv := c.Schedule.IntervalMinutes
	if iv < 1 || iv > 60 || 60%iv != 0 {
		errs = append(errs, "schedule.interval_minutes must divide 60 (1, 2, 3, 4, 5, 6, 10, 12, 15, 20, 30, 60)")
	}
	if c.Schedule.PollInterval <= 0 {
		errs = append(errs, "schedule.poll_interval_ms must be positive")
	}

	// Sensor
	switch c.Sensor.Driver {
	case "ds18b20":
		if c.Sensor.Resolution != 0 && (c.Sensor.Resolution < 9 || c.Sensor.Resolution > 12) {
			errs = append(errs, "sensor.resolution must be between 9 and 12 bits")
		}
	case "simulated":
	default:
		errs = append(errs, "sensor.driver must be ds18b20 or simulated")
	}

	// Database
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// InfluxDB
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Status
	if c.Status.Enabled && (c.Status.Port < 1 || c.Status.Port > 65535) {
		errs = append(errs, "status.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Location returns the node's configured time zone.
// Validate guarantees the name resolves; UTC is returned as a fallback.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Node.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetTimeSyncPollInterval returns the clock-sync poll interval as a Duration.
func (c *Config) GetTimeSyncPollInterval() time.Duration {
	return time.Duration(c.TimeSync.PollInterval) * time.Second
}

// GetTimeSyncMaxOffset returns the accepted NTP clock offset as a Duration.
func (c *Config) GetTimeSyncMaxOffset() time.Duration {
	return time.Duration(c.TimeSync.MaxOffset) * time.Millisecond
}

// GetSchedulePollInterval returns the boundary poll cadence as a Duration.
func (c *Config) GetSchedulePollInterval() time.Duration {
	return time.Duration(c.Schedule.PollInterval) * time.Millisecond
}

// GetWirelessRetryDelays returns the wireless reconnect delay bounds.
func (c *Config) GetWirelessRetryDelays() (initial, maxDelay time.Duration) {
	return time.Duration(c.Wireless.Retry.InitialDelay) * time.Millisecond,
		time.Duration(c.Wireless.Retry.MaxDelay) * time.Millisecond
}

// GetAssociationTimeout returns the per-attempt association deadline.
func (w WirelessConfig) GetAssociationTimeout() time.Duration {
	return time.Duration(w.AssociationTimeout) * time.Second
}

// validPassphrase reports whether p is a WPA2-PSK passphrase: 8..63
// printable ASCII characters.
func validPassphrase(p string) bool {
	if len(p) < 8 || len(p) > 63 {
		return false
	}
	for i := 0; i < len(p); i++ {
		if p[i] < 0x20 || p[i] > 0x7e {
			return false
		}
	}
	return true
}

// GetSupplicantRestartDelay returns the wpa_supplicant restart pause.
func (c *Config) GetSupplicantRestartDelay() time.Duration {
	return time.Duration(c.Wireless.Supplicant.RestartDelay) * time.Second
}

// GetBrokerRetryDelays returns the broker reconnect delay bounds.
func (c *Config) GetBrokerRetryDelays() (initial, maxDelay time.Duration) {
	return time.Duration(c.MQTT.Reconnect.InitialDelay) * time.Second,
		time.Duration(c.MQTT.Reconnect.MaxDelay) * time.Second
}
