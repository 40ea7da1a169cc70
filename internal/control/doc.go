// Package control applies remote flow control commands to the outbound
// queue.
//
// This package manages:
//   - Listening on the shared control topic for pause, resume and
//     setRate commands
//   - Driving the queue accordingly
//   - Acknowledging each applied command on the ack topic
//
// Acks are published on the transport directly rather than through the
// queue. A paused queue stops draining, and an ack waiting behind the
// pause it confirms would never arrive.
package control
