// Package mqtt connects oilfoxd to the local MQTT broker.
//
// The bridge publishes tank state, availability and discovery events on
// the broker and listens there for refresh commands. This package owns the
// connection itself:
//
//   - auto-reconnect with subscriptions restored afterwards
//   - a retained status on oilfox/system/status with a matching Last Will
//   - panic recovery around every message handler
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllStates(), 1,
//	    func(topic string, payload []byte) error {
//	        hub.Broadcast(topic, payload)
//	        return nil
//	    })
package mqtt
