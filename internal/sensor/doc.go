// Package sensor reads the temperature probe and reports each scheduled
// measurement.
//
// A Driver wraps the probe (DS18B20 over the Linux 1-Wire sysfs, or a
// simulated source). The Reporter is the scheduler's trigger: it reads
// the driver, stamps the reading with its grid boundary and the clock
// trust flag, publishes it on the node's temperature topic, mirrors it to
// InfluxDB when configured, and parks it in the SQLite outbox when the
// broker session is unavailable. Parked readings are flushed oldest first
// when the session comes back.
package sensor
