// Package msglog keeps a bounded in-memory record of message traffic.
//
// Outbound entries come from the queue's publish callback, inbound
// entries from a wildcard subscription. The log backs the HTTP recent
// messages endpoint and feeds the WebSocket stream through its append
// callback. Oldest entries are evicted when the buffer is full; there
// is no persistence.
package msglog
