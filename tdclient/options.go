package tdclient

import (
	"log/slog"

	"github.com/ammarfaizi2/green-tea-bot/metric"
)

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client) error

// WithLogger sets a custom structured logger for the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithCallback registers the update handlers.
func WithCallback(cb *Callback) ClientOption {
	return func(c *Client) error {
		c.callback = cb
		return nil
	}
}

// WithMetrics enables query and update metrics on the given registry.
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		if registry == nil {
			return nil
		}
		m, err := newClientMetrics(registry)
		if err != nil {
			return err
		}
		c.metrics = m
		return nil
	}
}
