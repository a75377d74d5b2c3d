package events

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"
)

var _ Bus = NATSBus{}

type NATSBus struct {
	nats *nats.Conn
	js   nats.JetStreamContext
	log  *slog.Logger
}

func NewNATSBus(addr string, logger *slog.Logger) (*NATSBus, error) {
	opts := []nats.Option{
		// Identification on the NATS dashboard
		nats.Name("takeoffs-service"),

		// Never give up reconnecting, but don't spam the server either.
		nats.MaxReconnects(-1),
		nats.ReconnectWait(3 * time.Second),

		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected, buffering messages", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),

		// A permanently dead connection (e.g. auth failure) kills the app so
		// the orchestrator restarts it with fresh config.
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Error("NATS connection closed permanently. Exiting process.")
			os.Exit(1)
		}),
	}
	nc, err := nats.Connect(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create nats client: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}

	return &NATSBus{nats: nc, js: js, log: logger}, nil
}

func (b NATSBus) Publish(subject string, data []byte, msgId string) error {
	b.log.Info("Publishing event", "subject", subject, "data_size", len(data))

	_, err := b.js.Publish(subject, data, nats.MsgId(msgId))
	return err
}

// Drain lets in-flight messages finish before closing.
func (b NATSBus) Drain() error {
	b.log.Info("Draining events")
	return b.nats.Drain()
}
