package agent

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/unitlink/unitlink/internal/config"
	"github.com/unitlink/unitlink/internal/realtime"
)

// NewTransport builds the realtime transport selected in cfg. The
// websocket transport authenticates with the current access token and
// calls renew when the server rejects it.
func NewTransport(cfg *config.Config, token realtime.TokenFunc, renew realtime.RenewFunc) (realtime.Transport, error) {
	switch cfg.Realtime.Transport {
	case "websocket":
		url := cfg.Realtime.URL
		if url == "" {
			derived, err := realtime.WebSocketURL(cfg.API.BaseURL)
			if err != nil {
				return nil, fmt.Errorf("derive websocket url: %w", err)
			}
			url = derived
		}
		ws := realtime.NewWebSocketTransport(url, token)
		ws.Renew = renew
		return ws, nil

	case "nats":
		url := cfg.Realtime.URL
		if url == "" {
			url = cfg.NATS.URL
		}
		if url == "" {
			url = nats.DefaultURL
		}
		var opts []nats.Option
		if cfg.NATS.Username != "" {
			opts = append(opts, nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password))
		}
		if cfg.NATS.ReconnectInterval > 0 {
			opts = append(opts, nats.ReconnectWait(cfg.NATS.ReconnectInterval))
		}
		return realtime.NewNATSTransport(url, cfg.Realtime.Prefix, opts...), nil

	case "mqtt":
		broker := cfg.Realtime.URL
		if broker == "" {
			broker = cfg.MQTT.Broker
		}
		if broker == "" {
			return nil, fmt.Errorf("mqtt transport requires a broker")
		}
		return &realtime.MQTTTransport{
			Broker:   broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Prefix:   cfg.Realtime.Prefix,
			QoS:      cfg.MQTT.QoS,
		}, nil

	default:
		return nil, fmt.Errorf("unknown realtime transport: %s", cfg.Realtime.Transport)
	}
}
