package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/pixelboard/internal/repository"
)

var _ repository.ConfigRepository = (*DB)(nil)

const upsertConfigSQL = `INSERT INTO config (key, value, public) VALUES (?, ?, ?)
	ON CONFLICT (key) DO UPDATE SET value = excluded.value, public = excluded.public`

// AllConfig returns every config row.
func (db *DB) AllConfig(ctx context.Context) ([]repository.ConfigRow, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT key, value, public FROM config`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing config: %w", err)
	}
	defer rows.Close()

	var out []repository.ConfigRow
	for rows.Next() {
		var (
			r     repository.ConfigRow
			value string
		)
		if err := rows.Scan(&r.Key, &value, &r.Public); err != nil {
			return nil, fmt.Errorf("sqlstore: scanning config row: %w", err)
		}
		r.Value = []byte(value)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating config: %w", err)
	}
	return out, nil
}

// SetConfig upserts a single key.
func (db *DB) SetConfig(ctx context.Context, row repository.ConfigRow) error {
	return db.setConfig(ctx, db.conn, row)
}

// SetConfigMany upserts every row in one transaction: either all keys change or none do.
func (db *DB) SetConfigMany(ctx context.Context, rows []repository.ConfigRow) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		for _, row := range rows {
			if err := db.setConfig(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
}

// SeedConfig inserts the rows whose keys are missing and reports how many were added.
func (db *DB) SeedConfig(ctx context.Context, rows []repository.ConfigRow) (int, error) {
	added := 0
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for _, row := range rows {
			res, err := tx.ExecContext(ctx,
				db.rebind(`INSERT INTO config (key, value, public) VALUES (?, ?, ?) ON CONFLICT (key) DO NOTHING`),
				row.Key, string(row.Value), row.Public,
			)
			if err != nil {
				return fmt.Errorf("sqlstore: seeding config %s: %w", row.Key, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				added += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func (db *DB) setConfig(ctx context.Context, ex execer, row repository.ConfigRow) error {
	if _, err := ex.ExecContext(ctx, db.rebind(upsertConfigSQL), row.Key, string(row.Value), row.Public); err != nil {
		return fmt.Errorf("sqlstore: setting config %s: %w", row.Key, err)
	}
	return nil
}
