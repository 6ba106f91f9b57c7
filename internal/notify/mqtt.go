package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/maintenance-tracker/internal/models"
)

// MQTTNotifier publishes stage events as JSON on an MQTT topic so host
// applications (boards, mailers, dashboards) can react without polling.
type MQTTNotifier struct {
	client MQTT.Client
	topic  string
}

// NewMQTTNotifier connects to the broker and returns a notifier
// publishing on topic.
func NewMQTTNotifier(broker, clientID, username, password, topic string) (*MQTTNotifier, error) {
	opts := MQTT.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	if username != "" {
		opts.SetUsername(username)
	}
	if password != "" {
		opts.SetPassword(password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(MQTT.Client) {
		log.WithField("broker", broker).Info("connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ MQTT.Client, err error) {
		log.WithError(err).Warn("MQTT connection lost")
	})

	client := MQTT.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("MQTT connect timed out")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT connect: %w", err)
	}
	return &MQTTNotifier{client: client, topic: topic}, nil
}

// StageChanged publishes the stage-change event.
func (n *MQTTNotifier) StageChanged(_ context.Context, request *models.Request, stage *models.Stage) error {
	event := StageEvent{
		RequestID:   request.ID.Hex(),
		RequestCode: request.Code,
		RequestName: request.Name,
		AssetID:     request.AssetID,
		StageID:     stage.ID.Hex(),
		StageName:   stage.Name,
		Terminal:    stage.IsTerminal(),
		OccurredAt:  time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	token := n.client.Publish(n.topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("MQTT publish timed out")
	}
	return token.Error()
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close() {
	n.client.Disconnect(250)
}
