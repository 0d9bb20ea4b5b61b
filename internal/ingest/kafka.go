package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"

	"trafficmon/internal/config"
	"trafficmon/internal/model"
)

// KafkaSource consumes detector observation batches from a Kafka topic.
// Messages arrive at the detector's pace; increments are accumulated
// and drained as one batch when the monitor pulls.
type KafkaSource struct {
	mu      sync.Mutex
	pending model.ObservationBatch
}

// StartKafka begins consuming in the background until ctx is cancelled.
func StartKafka(ctx context.Context, cfg config.KafkaConfig, logger *slog.Logger) *KafkaSource {
	s := &KafkaSource{pending: emptyBatch()}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", cfg.Brokers, "topic", cfg.Topic, "group_id", cfg.GroupID)
	}
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				continue
			}
			var batch model.ObservationBatch
			if err := json.Unmarshal(m.Value, &batch); err != nil {
				if logger != nil {
					logger.Warn("kafka message decode error", "err", err)
				}
				continue
			}
			s.accumulate(batch)
		}
	}()
	return s
}

// Pull drains everything accumulated since the previous pull.
func (s *KafkaSource) Pull(_ context.Context) (model.ObservationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.pending
	s.pending = emptyBatch()
	return batch, nil
}

func (s *KafkaSource) accumulate(batch model.ObservationBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for class, n := range batch.In {
		if n > 0 {
			s.pending.In[class] += n
		}
	}
	for class, n := range batch.Out {
		if n > 0 {
			s.pending.Out[class] += n
		}
	}
}

func emptyBatch() model.ObservationBatch {
	return model.ObservationBatch{
		In:  make(model.ClassCounts),
		Out: make(model.ClassCounts),
	}
}
