// Package mqtt provides MQTT client connectivity for Pulsewire Core.
//
// This package manages:
//   - The single persistent connection to the external broker
//   - Auto-reconnect with exponential backoff (unlimited attempts)
//   - Presence announcement: retained online/offline status plus a
//     broker-side last-will for ungraceful disconnects
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support and restore-on-reconnect
//   - Connection health monitoring
//
// # Architecture
//
// The Client is the only component allowed to touch the wire. Every other
// component hands outbound messages to the flow-controlled publish queue,
// which drains through Client.Publish; inbound messages fan out to the
// correlation broker, latency probe, and control dispatcher by topic.
//
//	Pulsewire Core ↔ MQTT Broker ↔ peer clients
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against the broker's ACL; authentication
//     and authorization are the broker's concern, not Pulsewire's
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.Control(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
