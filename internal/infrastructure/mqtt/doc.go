// Package mqtt provides MQTT client connectivity for the appliance bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The bridge sits between two MQTT peers: the cloud connector process,
// which relays raw appliance traffic under homeconnect/..., and the hub,
// which consumes normalized state under graylogic/....
//
//	Cloud connector ↔ MQTT Broker ↔ Appliance bridge ↔ MQTT Broker ↔ Hub
//
// # Security Considerations
//
//   - TLS should be enabled for production deployments (cfg.Broker.TLS=true)
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, &mqtt.Will{Topic: topic, Payload: lwt})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCloudEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("event %s: %s", topic, payload)
//	        return nil
//	    })
package mqtt
