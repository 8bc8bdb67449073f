package app

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/motionsense/internal/config"
	"github.com/relabs-tech/motionsense/internal/imu"
	"github.com/relabs-tech/motionsense/internal/stream"
)

// publishFunc sends one encoded payload to the sensor topic.
type publishFunc func(payload []byte) error

// connectPublisher dials the broker for a producer binary. Producers only
// publish, so paho's reconnect logic is left on.
func connectPublisher(cfg *config.Config, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID).
		SetAutoReconnect(true)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect to %s: %w", cfg.MQTTBroker, token.Error())
	}
	return client, nil
}

func topicPublisher(client mqtt.Client, topic string, qos byte) publishFunc {
	return func(payload []byte) error {
		token := client.Publish(topic, qos, false, payload)
		token.Wait()
		return token.Error()
	}
}

// encodeSample renders s in the flat wire shape the device uses.
func encodeSample(s imu.Sample) ([]byte, error) {
	return json.Marshal(s.Flat())
}

// streamConfig builds the subscription settings for a subscriber binary.
func streamConfig(cfg *config.Config, clientID string) stream.Config {
	return stream.Config{
		Broker:   cfg.MQTTBroker,
		ClientID: clientID,
		Topic:    cfg.TopicSensor,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
		QoS:      cfg.MQTTQoS,
	}
}

// keepWindow trims a long-running subscriber's buffer down to the window
// so it does not grow without bound.
func keepWindow(s *stream.Session, size int) {
	if n := s.Len() - size; n > 0 {
		s.Truncate(n)
	}
}
