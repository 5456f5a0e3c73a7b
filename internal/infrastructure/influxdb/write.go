package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// SessionEventsMeasurement is the measurement session events are counted in.
const SessionEventsMeasurement = "session_events"

// WriteSessionEvent records one session event occurrence.
//
// The point is tagged with action and outcome and carries count=1, so
// rates are a sum over a window. Identities are never written: they are
// high-cardinality and personal data. The write is non-blocking.
//
// Example:
//
//	client.WriteSessionEvent("login", "failure", time.Now())
func (c *Client) WriteSessionEvent(action, outcome string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(newSessionEventPoint(action, outcome, at))
}

func newSessionEventPoint(action, outcome string, at time.Time) *write.Point {
	return write.NewPoint(
		SessionEventsMeasurement,
		map[string]string{
			"action":  action,
			"outcome": outcome,
		},
		map[string]any{
			"count": 1,
		},
		at,
	)
}
