// Package bringup drives the node from power-on to a usable broker session.
//
// The Orchestrator is a single-writer state machine:
//
//	Idle → AssociatingWireless → WaitingForAddress → SyncingTime → ConnectingBroker → Ready
//
// with Failed as the terminal sink. Wireless association and the broker
// session are separate failure domains, each with its own RetryBudget, so a
// broker outage never spends the wireless budget and vice versa.
//
// Every input (wireless and broker notifications, the time-sync gate result,
// delayed retries) is serialised onto one channel and applied by the Run
// loop one at a time. Events that have no transition in the current state
// are dropped without side effects.
//
// The Bridge sits in front of the Orchestrator and turns loosely typed
// notifications from the wireless station and the MQTT client into the
// closed Event set. It holds exactly one target, injected at construction.
//
// Once Ready is first reached the Orchestrator invokes the ready callback
// with the broker Session and closes the channel returned by Begin, which is
// the only thing that arms the measurement scheduler.
package bringup
