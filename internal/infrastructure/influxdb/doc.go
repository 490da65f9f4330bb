// Package influxdb mirrors temperature readings into a local InfluxDB v2
// bucket for on-site history. It is optional (influxdb.enabled) and never
// on the bring-up path: writes are buffered and batched by the client
// library, and failures are only reported, not retried by the caller.
//
//	mirror, err := influxdb.New(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without a mirror
//	}
//	mirror.WriteReading(influxdb.Reading{NodeID: "n1", Celsius: 21.5, ...})
package influxdb
