package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteLatency records one completed latency probe round trip.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - responder: Client id that answered the ping
//   - rtt: Measured round-trip time
func (c *Client) WriteLatency(responder string, rtt time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"latency",
		map[string]string{
			"responder": responder,
		},
		map[string]interface{}{
			"rtt_ms": float64(rtt.Microseconds()) / 1000.0,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteProbeTimeout records a latency probe that got no answer.
func (c *Client) WriteProbeTimeout() {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"latency_timeouts",
		nil,
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteQueueDepth records the outbound queue state, sampled periodically
// so throttling and backlogs show up on dashboards.
//
// Parameters:
//   - depth: Messages waiting in the queue
//   - rate: Current per-window publish limit
//   - paused: Whether the drain loop is halted
func (c *Client) WriteQueueDepth(depth int, rate int, paused bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"queue",
		nil,
		map[string]interface{}{
			"depth":  depth,
			"rate":   rate,
			"paused": paused,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSensorReading records a simulated sensor value.
//
// Parameters:
//   - sensorID: Sensor identifier (e.g. "temperature")
//   - value: The reading value
//   - unit: Reading unit (e.g. "celsius")
func (c *Client) WriteSensorReading(sensorID string, value float64, unit string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor_readings",
		map[string]string{
			"sensor_id": sensorID,
			"unit":      unit,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
