package mqtt_test

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/voicepeer/pkg/log"
	"github.com/autopeer-io/voicepeer/pkg/mqtt"
	"github.com/autopeer-io/voicepeer/pkg/mqtt/topic"
)

// ExampleClient shows how the device mirrors its status to a broker and
// listens for capability commands.
func ExampleClient() {
	topics := topic.NewBuilder("voicepeer/v1")
	deviceID := "0c8b95a1b2c3"

	cfg := &mqtt.ClientConfig{
		BrokerURL:      "tcp://localhost:1883",
		ClientID:       "cpeer-voice-" + deviceID,
		KeepAlive:      60,
		ConnectTimeout: 5 * time.Second,
		CleanStart:     true,
		// The broker flips the retained online flag when the device vanishes.
		WillTopic:   topics.Build("online", deviceID),
		WillPayload: []byte(`{"online":false}`),
		WillQoS:     1,
		WillRetain:  true,
	}

	client, err := mqtt.NewClient(cfg)
	if err != nil {
		log.Error(err, "Failed to create MQTT client")
		return
	}

	// Start returns immediately; connecting and reconnecting happen in the background.
	ctx := context.Background()
	if err := client.Start(ctx); err != nil {
		log.Error(err, "Failed to start MQTT client")
		return
	}

	onCommand := func(ctx context.Context, topic string, payload []byte) {
		fmt.Printf("command on %s: %s\n", topic, payload)
	}
	if err := client.Subscribe(ctx, topics.Build("command", deviceID), 1, onCommand); err != nil {
		log.Error(err, "Failed to subscribe")
	}

	if err := client.AwaitConnection(ctx); err != nil {
		log.Error(err, "Connection timed out")
		return
	}

	if err := client.Publish(ctx, topics.Build("state", deviceID), 1, true, []byte(`{"state":"idle"}`)); err != nil {
		log.Error(err, "Failed to publish state")
	}

	client.Disconnect(ctx)
}
