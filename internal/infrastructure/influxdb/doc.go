// Package influxdb provides InfluxDB connectivity for the appliance bridge.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, metric writing, and health monitoring. The bridge records
// the numeric parts of each appliance snapshot (remaining time, program
// progress, hood fan level) so cycles can be graphed over time.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteApplianceMetrics("dryer-1", "dryer",
//	    map[string]int{"remaining_seconds": 1800})
//
// # Error Handling
//
// Writes are non-blocking; batch errors are delivered to the SetOnError
// callback. Connection and health check errors are returned directly.
//
// Writes are batched according to influxdb.batch_size and
// influxdb.flush_interval.
package influxdb
