// Package mqtt provides the MQTT transport used by the bridge manager.
//
// It wraps paho.mqtt.golang with:
//   - single-shot connects that separate broker refusals
//     (ErrConnectionRejected) from transport failures (ErrConnectionFailed)
//   - a lost-connection callback instead of paho's automatic reconnect, so
//     the bridge manager owns the reconnect and back-off policy
//   - context-aware publish and subscribe with input validation
//   - panic recovery around message handlers
//   - an optional retained status topic with a Last Will
//
// Usage:
//
//	client, err := mqtt.Connect(ctx, mqtt.Options{Host: "localhost", Port: 1883, ClientID: "imperium"},
//	    func(err error) { log.Warn("connection lost", "error", err) })
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(ctx, mqtt.CatchAll, 0, func(topic string, payload []byte) error {
//	    return route(topic, payload)
//	})
package mqtt
