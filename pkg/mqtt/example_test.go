package mqtt_test

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/seatlink/pkg/log"
	"github.com/autopeer-io/seatlink/pkg/mqtt"
	"github.com/autopeer-io/seatlink/pkg/mqtt/topic"
)

// ExampleClient shows the lifecycle used by the agent: create, start,
// subscribe to operator input, publish telemetry, disconnect.
func ExampleClient() {
	topics := topic.NewTopicBuilder("seatlink/v1")

	cfg := &mqtt.ClientConfig{
		BrokerURL:      "tcp://localhost:1883",
		ClientID:       "seatlink-agent-example",
		KeepAlive:      30,
		ConnectTimeout: 5 * time.Second,
		// announce the agent as gone if it drops off without disconnecting
		WillTopic:   topics.Agent("seatlink-agent-example"),
		WillPayload: []byte(`{"online":false}`),
		WillQoS:     1,
		WillRetain:  true,
	}

	client, err := mqtt.NewClient(cfg)
	if err != nil {
		log.Error(err, "Failed to create MQTT client")
		return
	}

	// Start returns immediately; autopaho connects and reconnects in the background.
	ctx := context.Background()
	if err := client.Start(ctx); err != nil {
		log.Error(err, "Failed to start MQTT client")
		return
	}

	onInput := func(ctx context.Context, t string, payload []byte) {
		fmt.Printf("input on %s: %s\n", t, payload)
	}
	if err := client.Subscribe(ctx, topics.InputWildcard(), 1, onInput); err != nil {
		log.Error(err, "Failed to subscribe", "topic", topics.InputWildcard())
	}

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.AwaitConnection(waitCtx); err != nil {
		log.Error(err, "Broker not reachable")
		return
	}

	payload := []byte(`{"seat":1,"voltage":12.4,"soc":81}`)
	if err := client.Publish(ctx, topics.Battery(1), 0, false, payload); err != nil {
		log.Error(err, "Failed to publish", "topic", topics.Battery(1))
	}

	client.Disconnect(ctx)
}
