package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"trafficmon/internal/config"
	"trafficmon/internal/model"
)

// Source supplies one batch of per-class increments per monitor tick.
// An empty batch is a valid no-op tick, not an error.
type Source interface {
	Pull(ctx context.Context) (model.ObservationBatch, error)
}

// NewSource builds the configured observation source.
func NewSource(ctx context.Context, cfg config.IngestConfig, logger *slog.Logger) (Source, error) {
	switch strings.ToLower(cfg.Source) {
	case "simulator":
		return NewSimulator(cfg.Simulator.Seed), nil
	case "kafka":
		return StartKafka(ctx, cfg.Kafka, logger), nil
	default:
		return nil, errors.New("unsupported ingest source")
	}
}
