package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementConfirmation holds one point per confirmation attempt.
const MeasurementConfirmation = "ptl_confirmation"

// Tag keys shared by the PTL measurements.
const (
	TagSite     = "site"
	TagLocation = "location"
	TagOutcome  = "outcome"
)

// WritePoint writes a point stamped with the current time.
//
// Parameters:
//   - measurement: The measurement name (e.g., "ptl_key")
//   - tags: Low-cardinality index values (endpoint, node, type)
//   - fields: The data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp, used for
// telegrams stamped on receipt.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

// WriteConfirmation records one attempt to confirm a movement.
//
// Parameters:
//   - location: Location code of the movement
//   - externalID: Movement id in the external system
//   - quantity: Confirmed quantity
//   - outcome: "ok", "retry" or "rejected"
//   - code: Result code returned by the external system
//   - took: Duration of the request
func (c *Client) WriteConfirmation(location string, externalID int64, quantity int, outcome, code string, took time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(confirmationPoint(location, externalID, quantity, outcome, code, took, time.Now()))
}

func confirmationPoint(location string, externalID int64, quantity int, outcome, code string, took time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementConfirmation,
		map[string]string{
			TagLocation: location,
			TagOutcome:  outcome,
		},
		map[string]interface{}{
			"external_id": strconv.FormatInt(externalID, 10),
			"quantity":    quantity,
			"code":        code,
			"duration_ms": took.Milliseconds(),
		},
		ts,
	)
}
