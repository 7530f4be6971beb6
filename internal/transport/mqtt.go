// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ctcss/internal/log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 2 * time.Second
)

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	Topic    string
	ClientID string // Derived from the session when empty.
	Username string
	Password string
}

// MQTTTransport publishes every tone map as a JSON Envelope to one topic.
type MQTTTransport struct {
	client  mqtt.Client
	topic   string
	session string
	source  string
}

// NewMQTTTransport connects to the broker. The client reconnects on its own
// after the first successful connection.
func NewMQTTTransport(cfg MQTTConfig, session, source string) (*MQTTTransport, error) {
	if cfg.Broker == "" || cfg.Topic == "" {
		return nil, errors.New("mqtt: broker and topic are required")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "ctcss_" + session
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Infof("MQTTTransport: connected to %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("MQTTTransport: connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}

	return newMQTTTransport(client, cfg.Topic, session, source), nil
}

func newMQTTTransport(client mqtt.Client, topic, session, source string) *MQTTTransport {
	return &MQTTTransport{
		client:  client,
		topic:   topic,
		session: session,
		source:  source,
	}
}

// Send publishes the tone map with QoS 0. While the client is reconnecting
// the map is skipped.
func (t *MQTTTransport) Send(data any) error {
	tm, err := toneMap(data)
	if err != nil {
		return err
	}
	if !t.client.IsConnectionOpen() {
		return nil
	}

	payload, err := json.Marshal(Envelope{Session: t.session, Source: t.source, ToneMap: tm})
	if err != nil {
		return fmt.Errorf("mqtt: encode: %w", err)
	}

	token := t.client.Publish(t.topic, 0, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("mqtt: publish block %d: timed out", tm.Sequence)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish block %d: %w", tm.Sequence, err)
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight publishes 250ms.
func (t *MQTTTransport) Close() error {
	t.client.Disconnect(250)
	return nil
}

var _ Transport = (*MQTTTransport)(nil)
