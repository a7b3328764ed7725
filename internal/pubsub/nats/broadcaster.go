// Package nats publishes accepted alerts to a NATS subject for downstream
// consumers (dashboards, bots). Optional: wired only when pubsub.nats.url
// is configured.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"pmwatch/internal/config"
)

type Client struct {
	log zerolog.Logger
	nc  *nats.Conn
}

func New(log zerolog.Logger, cfg config.NATSConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}

	opts := []nats.Option{
		nats.Name("pmwatch"),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &Client{log: log, nc: nc}, nil
}

func (c *Client) Publish(_ context.Context, subject string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := c.nc.Publish(subject, b); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

func (c *Client) Close() error {
	if c.nc == nil || c.nc.Status() == nats.CLOSED {
		return nil
	}

	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	c.nc.Close()
	c.log.Info().Msg("nats connection closed")
	return nil
}
