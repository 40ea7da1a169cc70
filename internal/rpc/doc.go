// Package rpc layers request/response semantics over the pub/sub
// transport.
//
// This package manages:
//   - Outbound requests with generated correlation ids and per-request
//     response topics (subscribe for the call, unsubscribe after)
//   - Request handler registration, one handler per request name
//   - Error propagation: handler failures travel back inside the
//     response envelope instead of vanishing
//   - Timeouts: a request with no response resolves to ErrRequestTimeout
//
// # Envelope
//
// The transport carries opaque byte payloads with no metadata fields,
// so every request and response is wrapped in a small JSON envelope
// holding the correlation id, response topic, sender id and timestamp.
// See Envelope.
//
// # Usage
//
//	broker := rpc.New(client, q, 5*time.Second)
//
//	// Serving
//	broker.OnRequest("reading", func(payload []byte) ([]byte, error) {
//	    return json.Marshal(currentReading())
//	})
//
//	// Calling
//	result, err := broker.Request(ctx, "reading", nil, 0)
//
// Responses that arrive after the caller timed out are dropped; the
// first response wins and duplicates are ignored.
package rpc
