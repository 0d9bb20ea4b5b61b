package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"trafficmon/internal/config"
	"trafficmon/internal/model"
	"trafficmon/internal/policy"
)

// Store is the durable sink behind the alarm ledger and the policy
// holder. Alarms are persisted as the whole collection on every
// mutation; acceptable for bounded volumes, revisit with an append-only
// log if alarm rates grow.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveAlarms(ctx context.Context, alarms []model.Alarm) error
	LoadAlarms(ctx context.Context) ([]model.Alarm, error)
	SavePolicy(ctx context.Context, spec policy.Spec) error
	LoadPolicy(ctx context.Context) (policy.Spec, bool, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}
