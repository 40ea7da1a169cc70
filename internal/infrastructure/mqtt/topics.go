package mqtt

import "fmt"

// Topic prefixes for the Pulsewire namespace.
//
// All topics share the flat scheme: pulsewire/{category}/{...}
// Topic names are policy, not protocol: the wire contract is carried by the
// JSON envelopes, and these helpers only keep naming consistent.
const (
	// TopicPrefix is the base for all Pulsewire topics.
	TopicPrefix = "pulsewire"

	// TopicPrefixPresence is the base for presence announcements.
	TopicPrefixPresence = "pulsewire/presence"

	// TopicPrefixProbe is the base for latency probe topics.
	TopicPrefixProbe = "pulsewire/probe"

	// TopicPrefixControl is the base for flow control topics.
	TopicPrefixControl = "pulsewire/control"
)

// Topics provides builders for Pulsewire MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	respTopic := topics.Response("core-01", "b2f1...")
//	// Returns: "pulsewire/response/core-01/b2f1..."
type Topics struct{}

// Presence returns the retained presence topic for a client.
//
// Each client announces on its own topic so retained online/offline values
// never overwrite another client's status.
//
// Example: pulsewire/presence/core-01
func (Topics) Presence(clientID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixPresence, clientID)
}

// AllPresence returns a pattern matching every client's presence topic.
//
// Pattern: pulsewire/presence/+
func (Topics) AllPresence() string {
	return fmt.Sprintf("%s/+", TopicPrefixPresence)
}

// Control returns the flow control command topic.
//
// Example: pulsewire/control
func (Topics) Control() string {
	return TopicPrefixControl
}

// ControlAck returns the flow control acknowledgment topic.
//
// Example: pulsewire/control/ack
func (Topics) ControlAck() string {
	return fmt.Sprintf("%s/ack", TopicPrefixControl)
}

// Ping returns the shared latency probe request topic.
//
// Example: pulsewire/probe/ping
func (Topics) Ping() string {
	return fmt.Sprintf("%s/ping", TopicPrefixProbe)
}

// Pong returns the shared latency probe response topic.
//
// Example: pulsewire/probe/pong
func (Topics) Pong() string {
	return fmt.Sprintf("%s/pong", TopicPrefixProbe)
}

// Request returns the topic for a named application request.
//
// Example: pulsewire/request/reading
func (Topics) Request(name string) string {
	return fmt.Sprintf("%s/request/%s", TopicPrefix, name)
}

// Response returns the per-request response topic, scoped by the requesting
// client's identity and the request's correlation id. The subscription is
// ephemeral: created when the request is issued and released when it
// resolves or times out.
//
// Example: pulsewire/response/core-01/9f0c2a...
func (Topics) Response(clientID, correlationID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, clientID, correlationID)
}

// AllResponses returns a pattern matching all response topics for a client.
//
// Pattern: pulsewire/response/{clientID}/+
func (Topics) AllResponses(clientID string) string {
	return fmt.Sprintf("%s/response/%s/+", TopicPrefix, clientID)
}

// SensorReading returns the retained reading topic for a simulated sensor.
//
// Example: pulsewire/sensor/temperature/reading
func (Topics) SensorReading(sensorID string) string {
	return fmt.Sprintf("%s/sensor/%s/reading", TopicPrefix, sensorID)
}

// AllSensorReadings returns a pattern matching all sensor reading topics.
//
// Pattern: pulsewire/sensor/+/reading
func (Topics) AllSensorReadings() string {
	return fmt.Sprintf("%s/sensor/+/reading", TopicPrefix)
}

// AllTopics returns a pattern matching all Pulsewire topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: pulsewire/#
func (Topics) AllTopics() string {
	return "pulsewire/#"
}
