// Package probe measures broker round-trip latency with application
// level ping/pong messages.
//
// This package manages:
//   - Sending pings with correlation ids on the shared ping topic
//   - Answering other clients' pings on the shared pong topic
//   - Matching pongs to in-flight pings and reporting round-trip time
//   - Timeout events for pings that never come back
//
// All participants share one ping topic and one pong topic, so every
// probe also serves as a responder. A client ignores its own pings;
// answering them would measure the loop to itself rather than the path
// to a peer.
//
// Outcomes are delivered as Event values on the Events() channel, which
// the metrics writer and the HTTP API consume.
package probe
