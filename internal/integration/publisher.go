// Package integration forwards realtime events to message brokers so that
// clients can follow them without a websocket connection.
package integration

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/unitlink/unitlink/internal/config"
)

// Subject returns the NATS subject an event is published on
func Subject(prefix, event string) string {
	return strings.TrimSuffix(prefix, ".") + "." + event
}

// Topic returns the MQTT topic an event is published on
func Topic(prefix, event string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + event
}

// NATSPublisher publishes events on <prefix>.<event>
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher connects to NATS
func NewNATSPublisher(cfg config.NATSConfig, prefix string) (*NATSPublisher, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(url,
		nats.Name("unitlink-devserver"),
		nats.UserInfo(cfg.Username, cfg.Password),
		nats.ReconnectWait(cfg.ReconnectInterval),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Msg("Reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	log.Info().Str("url", url).Str("subject", Subject(prefix, ">")).Msg("NATS publisher connected")
	return &NATSPublisher{nc: nc, prefix: prefix}, nil
}

// Publish implements devserver.Publisher
func (p *NATSPublisher) Publish(event string, payload []byte) error {
	subject := Subject(p.prefix, event)
	if err := p.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}

// MQTTPublisher publishes events on <prefix>/<event>
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	qos    byte
}

// NewMQTTPublisher connects to the broker
func NewMQTTPublisher(cfg config.MQTTConfig, prefix string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID + "-devserver")

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("MQTT publisher connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Error().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect mqtt %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w", cfg.Broker, err)
	}

	return &MQTTPublisher{client: client, prefix: prefix, qos: cfg.QoS}, nil
}

// Publish implements devserver.Publisher
func (p *MQTTPublisher) Publish(event string, payload []byte) error {
	topic := Topic(p.prefix, event)
	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
