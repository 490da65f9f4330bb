package bringup

import "fmt"

// State is the connectivity state of the node.
type State int

const (
	StateIdle State = iota
	StateAssociatingWireless
	StateWaitingForAddress
	StateSyncingTime
	StateConnectingBroker
	StateReady
	StateFailed
)

var stateNames = [...]string{
	StateIdle:                "idle",
	StateAssociatingWireless: "associating_wireless",
	StateWaitingForAddress:   "waiting_for_address",
	StateSyncingTime:         "syncing_time",
	StateConnectingBroker:    "connecting_broker",
	StateReady:               "ready",
	StateFailed:              "failed",
}

// String returns the snake_case state name used in logs and the status API.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateFailed
}

// MarshalText lets State render by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Stage identifies a retried bring-up stage.
type Stage string

const (
	StageWireless Stage = "wireless"
	StageBroker   Stage = "broker"
)
