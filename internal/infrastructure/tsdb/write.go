package tsdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/hearth-home/hearth/internal/control"
)

// WriteDeviceMetric writes a single device measurement.
//
// The write is non-blocking; points are batched and sent asynchronously.
//
// Example:
//
//	client.WriteDeviceMetric("thermostat", "target_temp", 72)
//	client.WriteDeviceMetric("bedroom_light", "brightness", 60)
func (c *Client) WriteDeviceMetric(deviceID string, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_metrics",
		map[string]string{
			"device_id":   deviceID,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// MetricWriter is the telemetry surface the recorder needs.
type MetricWriter interface {
	WriteDeviceMetric(deviceID, measurement string, value float64)
}

// Recorder turns control change signals into telemetry points. It
// implements the control surface's signal sink: every numeric property
// on a changed device becomes a device_metrics point, booleans are
// recorded as 0/1. Non-scalar properties are skipped.
type Recorder struct {
	w MetricWriter
}

// NewRecorder creates a Recorder writing through w.
func NewRecorder(w MetricWriter) *Recorder {
	return &Recorder{w: w}
}

// DeviceChanged records the scalar properties of a changed device.
// Never blocks; the underlying write API batches internally.
func (r *Recorder) DeviceChanged(sig control.Signal) {
	for field, val := range sig.Properties {
		switch v := val.(type) {
		case float64:
			r.w.WriteDeviceMetric(sig.DeviceID, field, v)
		case int:
			r.w.WriteDeviceMetric(sig.DeviceID, field, float64(v))
		case bool:
			boolVal := 0.0
			if v {
				boolVal = 1.0
			}
			r.w.WriteDeviceMetric(sig.DeviceID, field, boolVal)
		}
	}
}
