// Package tsdb writes device telemetry to InfluxDB.
//
// Every confirmed device change carries its scalar properties
// (brightness, position, speed, target_temp, battery_level, charging)
// into the device_metrics measurement, tagged by device and property.
// Writes are batched and non-blocking; async failures surface through
// the SetOnError callback, which the bootstrap wires to the logger.
//
// The whole feed is optional: when disabled in config no client is
// created and no recorder is registered with the control surface.
//
//	client, err := tsdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    // ErrDisabled or broker unreachable
//	}
//	defer client.Close()
//	recorder := tsdb.NewRecorder(client)
//	// wire recorder as a control signal sink
package tsdb
