package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
)

// prefStore backs the notifications form.  Values are JSON encoded so
// booleans survive the round trip.  Without a database it keeps them in
// process memory.
type prefStore struct {
	db *sqlx.DB

	mu  sync.Mutex
	mem map[string]string
}

type prefRow struct {
	Name  string `db:"name"`
	Value string `db:"value"`
}

func (p *prefStore) load(ctx context.Context, ids []string) (map[string]any, error) {
	rows, err := p.rows(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(rows))
	for _, row := range rows {
		var v any
		if err := json.Unmarshal([]byte(row.Value), &v); err != nil {
			return nil, fmt.Errorf("notification_pref %s: %w", row.Name, err)
		}
		out[row.Name] = v
	}
	return out, nil
}

func (p *prefStore) rows(ctx context.Context, ids []string) ([]prefRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if p.db == nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		return lo.FilterMap(ids, func(id string, _ int) (prefRow, bool) {
			v, ok := p.mem[id]
			return prefRow{Name: id, Value: v}, ok
		}), nil
	}
	q, args, err := sqlx.In(`SELECT name, value FROM notification_pref WHERE name IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []prefRow
	if err := p.db.SelectContext(ctx, &rows, p.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("load notification_pref: %w", err)
	}
	return rows, nil
}

func (p *prefStore) save(ctx context.Context, values map[string]any) error {
	encoded := make(map[string]string, len(values))
	for k, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("notification_pref %s: %w", k, err)
		}
		encoded[k] = string(b)
	}
	if p.db == nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		for k, v := range encoded {
			p.mem[k] = v
		}
		return nil
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	keys := lo.Keys(encoded)
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO notification_pref (name, value) VALUES (?, ?)
			 ON DUPLICATE KEY UPDATE value = VALUES(value)`, k, encoded[k]); err != nil {
			return fmt.Errorf("save notification_pref %s: %w", k, err)
		}
	}
	return tx.Commit()
}
