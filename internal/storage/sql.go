// internal/storage/sql.go
//
// MySQL implementation of KV, MetaStore, GroupRegistrar, and the throttle
// counter.
//
// Schema
// ------
//
//	options        (name VARCHAR PK, value JSON)
//	entity_meta    (entity_id BIGINT, meta_key VARCHAR, meta_value JSON,
//	                PRIMARY KEY (entity_id, meta_key))
//	settings_group (group_name VARCHAR, option_name VARCHAR,
//	                PRIMARY KEY (group_name, option_name))
//	transients     (name VARCHAR PK, value BIGINT, expires_at DATETIME)
//
// Writes are single-row upserts.  There is no cross-key transaction; the
// adapters attempt every key and report the joined failures.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQL is safe for concurrent use.
type SQL struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQL wraps an open sqlx handle.
func NewSQL(db *sqlx.DB) *SQL {
	return &SQL{db: db, now: time.Now}
}

// Schema creates the tables SQL reads and writes, plus form_submission for
// the store action.  Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS options (
  name  VARCHAR(191) NOT NULL PRIMARY KEY,
  value JSON         NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS entity_meta (
  entity_id  BIGINT       NOT NULL,
  meta_key   VARCHAR(191) NOT NULL,
  meta_value JSON         NOT NULL,
  PRIMARY KEY (entity_id, meta_key)
)`,
	`CREATE TABLE IF NOT EXISTS settings_group (
  group_name  VARCHAR(191) NOT NULL,
  option_name VARCHAR(191) NOT NULL,
  PRIMARY KEY (group_name, option_name)
)`,
	`CREATE TABLE IF NOT EXISTS transients (
  name       VARCHAR(191) NOT NULL PRIMARY KEY,
  value      BIGINT       NOT NULL,
  expires_at DATETIME     NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS form_submission (
  id           BIGINT AUTO_INCREMENT PRIMARY KEY,
  form_id      VARCHAR(191) NOT NULL,
  submitted_at DATETIME     NOT NULL,
  data         JSON         NOT NULL,
  KEY form_submitted (form_id, submitted_at)
)`,
}

type kvRow struct {
	Key   string `db:"k"`
	Value string `db:"v"`
}

/*────────────────────────────────── KV ──────────────────────────────────*/

// GetOptions implements KV.
func (s *SQL) GetOptions(ctx context.Context, names []string) (map[string]any, error) {
	if len(names) == 0 {
		return map[string]any{}, nil
	}
	q, args, err := sqlx.In(`SELECT name AS k, value AS v FROM options WHERE name IN (?)`, names)
	if err != nil {
		return nil, err
	}
	var rows []kvRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("options select: %w", err)
	}
	return decodeRows(rows)
}

// SetOption implements KV.
func (s *SQL) SetOption(ctx context.Context, name string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("option %s: %w", name, err)
	}
	const q = `INSERT INTO options (name, value) VALUES (?, ?)
               ON DUPLICATE KEY UPDATE value = VALUES(value)`
	if _, err := s.db.ExecContext(ctx, q, name, string(b)); err != nil {
		return fmt.Errorf("option %s: %w", name, err)
	}
	return nil
}

/*─────────────────────────────── MetaStore ───────────────────────────────*/

// GetMetas implements MetaStore.
func (s *SQL) GetMetas(ctx context.Context, entityID int64, keys []string) (map[string]any, error) {
	if len(keys) == 0 {
		return map[string]any{}, nil
	}
	q, args, err := sqlx.In(
		`SELECT meta_key AS k, meta_value AS v FROM entity_meta WHERE entity_id = ? AND meta_key IN (?)`,
		entityID, keys)
	if err != nil {
		return nil, err
	}
	var rows []kvRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("meta select: %w", err)
	}
	return decodeRows(rows)
}

// SetMeta implements MetaStore.
func (s *SQL) SetMeta(ctx context.Context, entityID int64, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("meta %d/%s: %w", entityID, key, err)
	}
	const q = `INSERT INTO entity_meta (entity_id, meta_key, meta_value) VALUES (?, ?, ?)
               ON DUPLICATE KEY UPDATE meta_value = VALUES(meta_value)`
	if _, err := s.db.ExecContext(ctx, q, entityID, key, string(b)); err != nil {
		return fmt.Errorf("meta %d/%s: %w", entityID, key, err)
	}
	return nil
}

/*──────────────────────────── GroupRegistrar ────────────────────────────*/

// RegisterGroup implements GroupRegistrar.  Existing memberships are kept.
func (s *SQL) RegisterGroup(ctx context.Context, group string, names []string) error {
	const q = `INSERT IGNORE INTO settings_group (group_name, option_name) VALUES (?, ?)`
	for _, n := range names {
		if _, err := s.db.ExecContext(ctx, q, group, n); err != nil {
			return fmt.Errorf("settings group %s: %w", group, err)
		}
	}
	return nil
}

/*──────────────────────────── throttle.Counter ───────────────────────────*/

// Incr implements throttle.Counter with a transient row per key.  An
// expired row restarts at 1 with a fresh expiry.
func (s *SQL) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := s.now().UTC()
	const up = `INSERT INTO transients (name, value, expires_at) VALUES (?, 1, ?)
                ON DUPLICATE KEY UPDATE
                    value      = IF(expires_at <= ?, 1, value + 1),
                    expires_at = IF(expires_at <= ?, VALUES(expires_at), expires_at)`
	if _, err := s.db.ExecContext(ctx, up, key, now.Add(window), now, now); err != nil {
		return 0, fmt.Errorf("transient %s: %w", key, err)
	}
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT value FROM transients WHERE name = ?`, key); err != nil {
		return 0, fmt.Errorf("transient %s: %w", key, err)
	}
	return n, nil
}

/*──────────────────────────────── helpers ────────────────────────────────*/

func decodeRows(rows []kvRow) (map[string]any, error) {
	out := make(map[string]any, len(rows))
	for _, r := range rows {
		var v any
		if err := json.Unmarshal([]byte(r.Value), &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", r.Key, err)
		}
		out[r.Key] = v
	}
	return out, nil
}
