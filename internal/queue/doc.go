// Package queue provides the flow-controlled outbound publish queue.
//
// This package manages:
//   - Bounded FIFO buffering of outbound messages (reject-when-full)
//   - Rate-limited draining: up to N publishes per window, strict order
//   - Pause/resume and runtime rate changes (driven by flow control
//     commands on the control channel)
//   - Default expiry stamping for messages enqueued without one
//
// # Architecture
//
// Every component publishes by handing messages to the queue; only the
// queue's single drain goroutine calls the transport. This serializes
// all outbound traffic, preserves enqueue order on the wire, and gives
// one place to throttle.
//
// # Usage
//
//	q := queue.New(mqttClient, queue.Config{
//	    Capacity:   1024,
//	    RateLimit:  10,
//	    RateWindow: time.Second,
//	})
//	q.SetLogger(logger)
//	q.Start(ctx)
//	defer q.Close()
//
//	err := q.Enqueue(queue.Message{Topic: topic, Payload: payload, QoS: 1})
//
// Publish failures are logged and the message dropped; there is no
// automatic retry (a retry without dedup support would break FIFO order
// for at-least-once delivery).
package queue
