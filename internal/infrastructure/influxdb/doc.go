// Package influxdb writes tank levels to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every reading the
// bridge records becomes one point in the tank_level measurement, tagged by
// hwid and unit and stamped with the sensor's metering time, so repeated
// polls of the same measurement overwrite the same point.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTankLevel(level)
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Write errors arrive through SetOnError; connection and
// health check errors are returned directly.
package influxdb
