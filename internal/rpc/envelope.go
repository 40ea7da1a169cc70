package rpc

import (
	"encoding/json"
	"time"
)

// Envelope is the JSON wrapper carried in every request and response
// payload. The transport protocol has no native metadata fields, so
// correlation id and response topic travel inside the payload itself.
type Envelope struct {
	CorrelationID string          `json:"correlation_id"`
	ResponseTopic string          `json:"response_topic,omitempty"`
	ClientID      string          `json:"client_id"`
	Timestamp     string          `json:"timestamp"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// newEnvelope builds an envelope stamped with the current time.
func newEnvelope(correlationID, responseTopic, clientID string, payload []byte) Envelope {
	return Envelope{
		CorrelationID: correlationID,
		ResponseTopic: responseTopic,
		ClientID:      clientID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Payload:       payload,
	}
}

// decodeEnvelope parses and validates an incoming envelope.
// A missing correlation id makes the message unroutable.
func decodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, ErrInvalidEnvelope
	}
	if env.CorrelationID == "" {
		return Envelope{}, ErrInvalidEnvelope
	}
	return env, nil
}
