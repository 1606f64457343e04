// Package influxdb records PTL telemetry in InfluxDB v2.
//
// The integration is optional and write-only. Points are batched by the
// official client and sent asynchronously; failures reach the SetOnError
// callback instead of the caller.
//
// Measurements:
//
//	ptl_key           one point per key telegram (endpoint, node, channel, key)
//	ptl_ack           one point per display acknowledgement
//	ptl_confirmation  one point per confirmation sent to the external system
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) {
//	    logger.Warn("influxdb write failed", "error", err)
//	})
package influxdb
