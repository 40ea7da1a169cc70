// Package retained simulates time-to-live for retained messages.
//
// The broker holds a retained message until it is overwritten or
// cleared; the protocol offers no expiry. This package watches the
// outbound queue for retained publishes and clears each one after its
// expiry by publishing an empty retained payload on the same topic.
//
// A re-publish on a tracked topic re-arms the timer, so live values
// never expire. Empty payloads are the clears themselves and are never
// tracked.
//
// Wiring is one line on the queue:
//
//	q.SetOnPublish(expirer.Observe)
package retained
