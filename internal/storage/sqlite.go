package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"trafficmon/internal/model"
	"trafficmon/internal/policy"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:trafficmon.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alarms (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			ts TEXT NOT NULL,
			status TEXT NOT NULL,
			body_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alarms_status ON alarms(status)`,
		`CREATE TABLE IF NOT EXISTS threshold_policy (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			spec_json TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveAlarms(ctx context.Context, alarms []model.Alarm) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM alarms`); err != nil {
		_ = tx.Rollback()
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO alarms (id, ts, status, body_json) VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, alarm := range alarms {
		if _, err := stmt.ExecContext(ctx,
			alarm.ID,
			alarm.CreatedAt.UTC().Format(time.RFC3339Nano),
			string(alarm.Status),
			encodeJSON(alarm),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) LoadAlarms(ctx context.Context) ([]model.Alarm, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT body_json FROM alarms ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var alarms []model.Alarm
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var alarm model.Alarm
		if err := json.Unmarshal([]byte(body), &alarm); err != nil {
			return nil, err
		}
		alarms = append(alarms, alarm)
	}
	return alarms, rows.Err()
}

func (s *sqliteStore) SavePolicy(ctx context.Context, spec policy.Spec) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threshold_policy (id, spec_json) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET spec_json = excluded.spec_json`,
		encodeJSON(spec),
	)
	return err
}

func (s *sqliteStore) LoadPolicy(ctx context.Context) (policy.Spec, bool, error) {
	var spec policy.Spec
	if s.db == nil {
		return spec, false, nil
	}
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT spec_json FROM threshold_policy WHERE id = 1`).Scan(&body)
	if err == sql.ErrNoRows {
		return spec, false, nil
	}
	if err != nil {
		return spec, false, err
	}
	if err := json.Unmarshal([]byte(body), &spec); err != nil {
		return spec, false, err
	}
	return spec, true, nil
}
