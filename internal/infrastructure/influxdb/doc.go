// Package influxdb records session event counts in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring.
//
// Each event becomes one point in the session_events measurement, tagged
// by action and outcome with a count field of 1.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSessionEvent("login", "success", time.Now())
//
// # Error Handling
//
// Write failures surface asynchronously through SetOnError.
// Connection and health check errors are returned directly.
package influxdb
