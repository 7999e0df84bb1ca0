// Package influxdb mirrors numeric sensor readings into InfluxDB v2.
//
// SQLite's sensor_readings table is the system of record. When the
// influxdb section of config.yaml is enabled, every numeric reading is also
// written here, batched and non-blocking, for Grafana-style dashboards.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	switch {
//	case errors.Is(err, influxdb.ErrDisabled):
//	    // run without the mirror
//	case err != nil:
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSensorReading(influxdb.SensorPoint{
//	    DeviceID: dev.ID, SensorID: "temp1", Metric: "temperature", Value: 21.5,
//	})
package influxdb
