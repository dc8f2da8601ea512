package realtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSTransport receives events published on <prefix>.<event>
type NATSTransport struct {
	URL     string
	Prefix  string
	Options []nats.Option
}

// NewNATSTransport creates a NATS transport
func NewNATSTransport(url, prefix string, opts ...nats.Option) *NATSTransport {
	return &NATSTransport{URL: url, Prefix: prefix, Options: opts}
}

// Run implements Transport
func (t *NATSTransport) Run(ctx context.Context, deliver func(Event)) error {
	opts := append([]nats.Option{
		nats.Name("unitlink-realtime"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
	}, t.Options...)

	nc, err := nats.Connect(t.URL, opts...)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	// a synchronous handler keeps per-subject ordering
	sub, err := nc.Subscribe(t.Prefix+".>", func(msg *nats.Msg) {
		name, ok := eventFromSubject(t.Prefix, msg.Subject)
		if !ok {
			return
		}
		deliver(Event{Name: name, Data: msg.Data})
	})
	if err != nil {
		return fmt.Errorf("subscribe %s.>: %w", t.Prefix, err)
	}

	log.Info().Str("url", t.URL).Str("subject", t.Prefix+".>").Msg("NATS realtime subscriber started")

	<-ctx.Done()

	sub.Unsubscribe()
	return ctx.Err()
}

func eventFromSubject(prefix, subject string) (string, bool) {
	name := strings.TrimPrefix(subject, prefix+".")
	if name == subject || name == "" {
		return "", false
	}
	return name, true
}
