package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when mqtt.topic_prefix is empty.
const DefaultTopicPrefix = "graylogic/sensor"

// Topics builds the topics owned by one node:
//
//	{prefix}/{node_id}/status           retained online/offline, LWT
//	{prefix}/{node_id}/temperature      measurements
//	{prefix}/{node_id}/command/{name}   inbound commands
type Topics struct {
	Prefix string
	NodeID string
}

// NewTopics returns the topic builder for a node.
func NewTopics(prefix, nodeID string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix, NodeID: nodeID}
}

func (t Topics) base() string {
	return fmt.Sprintf("%s/%s", t.Prefix, t.NodeID)
}

// Status returns the node status topic.
//
// Example: graylogic/sensor/greenhouse-03/status
func (t Topics) Status() string {
	return t.base() + "/status"
}

// Temperature returns the measurement topic.
//
// Example: graylogic/sensor/greenhouse-03/temperature
func (t Topics) Temperature() string {
	return t.base() + "/temperature"
}

// Command returns the topic for a named command.
//
// Example: graylogic/sensor/greenhouse-03/command/measure
func (t Topics) Command(name string) string {
	return fmt.Sprintf("%s/command/%s", t.base(), name)
}

// AllCommands returns a pattern matching every command for the node.
//
// Pattern: graylogic/sensor/greenhouse-03/command/+
func (t Topics) AllCommands() string {
	return t.base() + "/command/+"
}

// AllNodes returns a pattern matching every node's measurements.
//
// Pattern: graylogic/sensor/+/temperature
func (t Topics) AllNodes() string {
	return t.Prefix + "/+/temperature"
}
