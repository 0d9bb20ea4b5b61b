package publish

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"trafficmon/internal/config"
)

// Sink is the generic best-effort publish side consumed by the ledger
// and the monitor loop.
type Sink interface {
	Publish(topic string, payload any)
}

// Publisher pushes state snapshots and alarms to NATS subjects under a
// configured prefix. Delivery is best-effort: a failed publish is
// logged and dropped, never surfaced to the producing component.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

func NewPublisher(cfg config.PublishConfig, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("connected to nats", "url", cfg.URL, "prefix", cfg.SubjectPrefix)
	}
	return &Publisher{nc: nc, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

func (p *Publisher) Publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("publish encode error", "topic", topic, "err", err)
		}
		return
	}
	subject := p.prefix + "." + topic
	if err := p.nc.Publish(subject, data); err != nil && p.logger != nil {
		p.logger.Warn("publish failed", "subject", subject, "err", err)
	}
}

// Close drains the connection so queued messages flush before shutdown.
func (p *Publisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}

// Noop discards everything. Used when publishing is disabled.
type Noop struct{}

func (Noop) Publish(string, any) {}
