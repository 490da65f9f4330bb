// Package mqtt is the sensor node's broker session.
//
// A Client owns one paho connection at a time. Connect is asynchronous and
// never retried internally: success, failure and later loss are reported
// through callbacks so the bring-up orchestrator can apply its own retry
// budget. Each attempt is tagged with a generation number, and callbacks
// from an attempt that was superseded by Connect or Stop are dropped.
//
// # Topics
//
//	<prefix>/<node>/status        retained online/offline, also the LWT
//	<prefix>/<node>/temperature   one message per measurement
//	<prefix>/<node>/command/<op>  inbound commands (e.g. "measure")
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT, cfg.Node.ID)
//	client.SetOnConnect(func() { ... })
//	client.SetOnConnectError(func(err error) { ... })
//	client.SetOnConnectionLost(func(err error) { ... })
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Transports: tcp, ssl, ws and wss (cfg.Broker.Transport). Setting
// cfg.Broker.TLS upgrades tcp to ssl and ws to wss.
package mqtt
