package realtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// MQTTTransport receives events published on <prefix>/<event>
type MQTTTransport struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Prefix   string
	QoS      byte
}

// Run implements Transport
func (t *MQTTTransport) Run(ctx context.Context, deliver func(Event)) error {
	filter := t.Prefix + "/#"

	opts := mqtt.NewClientOptions()
	opts.AddBroker(t.Broker)
	opts.SetClientID(t.ClientID)
	if t.Username != "" {
		opts.SetUsername(t.Username)
		opts.SetPassword(t.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetOrderMatters(true)
	opts.SetCleanSession(true)

	onMessage := func(_ mqtt.Client, msg mqtt.Message) {
		name, ok := eventFromTopic(t.Prefix, msg.Topic())
		if !ok {
			return
		}
		deliver(Event{Name: name, Data: msg.Payload()})
	}

	// subscriptions do not survive a clean session, so subscribe on every connect
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Info().Str("broker", t.Broker).Msg("MQTT client connected")
		if token := c.Subscribe(filter, t.QoS, onMessage); token.Wait() && token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", filter).Msg("MQTT subscribe failed")
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", t.Broker).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("connect mqtt: %w", err)
		}
	case <-ctx.Done():
		client.Disconnect(0)
		return ctx.Err()
	}

	<-ctx.Done()

	client.Unsubscribe(filter).WaitTimeout(time.Second)
	client.Disconnect(250)
	return ctx.Err()
}

func eventFromTopic(prefix, topic string) (string, bool) {
	name := strings.TrimPrefix(topic, prefix+"/")
	if name == topic || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
