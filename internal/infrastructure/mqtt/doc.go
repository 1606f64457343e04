// Package mqtt connects the PTL core to an MQTT broker.
//
// The broker is optional. When enabled, the core publishes every telegram
// received from the controllers and a retained health status, and accepts
// commands from other services:
//
//	PTL controllers ↔ ptl-core ↔ MQTT broker ↔ WMS, dashboards
//
// # Topics
//
// All topics live under ptl/{site}/; see Topics. The last will is set on
// the health topic so subscribers see "offline" when the process dies.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Site.ID, mqtt.Will{})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.SubscribeCommands(func(name string, payload []byte) error {
//	    log.Printf("command %s: %s", name, payload)
//	    return nil
//	})
package mqtt
