// Package sensor fabricates periodic sensor readings for exercising
// the messaging pipeline.
//
// Readings are published retained through the outbound queue, so they
// flow through rate limiting and the retained expiry simulator like any
// real traffic. The simulator also serves the "reading" request so
// remote clients can pull a value on demand instead of waiting for the
// next round.
package sensor
