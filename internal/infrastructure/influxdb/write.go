package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementAppliance holds the numeric fields of appliance snapshots.
const MeasurementAppliance = "appliance_metrics"

// WriteApplianceMetrics queues one appliance_metrics point tagged with the
// device and appliance type, e.g. remaining_seconds and progress_percent
// for a dryer or fan_level for a hood. An empty field set writes nothing.
//
// Parameters:
//   - deviceID: Bridge device ID, stored as the device_id tag
//   - applianceType: "dryer" or "hood", stored as the appliance_type tag
//   - fields: Numeric attribute values keyed by attribute name
func (c *Client) WriteApplianceMetrics(deviceID, applianceType string, fields map[string]int) {
	if len(fields) == 0 {
		return
	}
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = int64(v)
	}
	c.WritePoint(MeasurementAppliance, map[string]string{
		"device_id":      deviceID,
		"appliance_type": applianceType,
	}, values)
}

// WritePoint queues a point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime queues a point with an explicit timestamp. Points
// written after Close are dropped.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
