package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/pixelboard/internal/apperror"
	"github.com/sakif/pixelboard/internal/repository"
)

var _ repository.StatsRepository = (*DB)(nil)

func (db *DB) AllStats(ctx context.Context) ([]repository.StatRow, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT key, value, manual FROM stats`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing stats: %w", err)
	}
	defer rows.Close()

	var out []repository.StatRow
	for rows.Next() {
		var r repository.StatRow
		if err := rows.Scan(&r.Key, &r.Value, &r.Manual); err != nil {
			return nil, fmt.Errorf("sqlstore: scanning stat row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating stats: %w", err)
	}
	return out, nil
}

func (db *DB) SetStat(ctx context.Context, row repository.StatRow) error {
	_, err := db.conn.ExecContext(ctx, db.rebind(
		`INSERT INTO stats (key, value, manual) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`),
		row.Key, row.Value, row.Manual,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: setting stat %s: %w", row.Key, err)
	}
	return nil
}

func (db *DB) IncrementStat(ctx context.Context, key string, delta int64, create bool) (int64, error) {
	return db.incrementStat(ctx, db.conn, key, delta, create)
}

// incrementStat is shared with CommitPixel so the pixel row and the counter
// can move inside one transaction. Rows it creates are never manual.
func (db *DB) incrementStat(ctx context.Context, ex execer, key string, delta int64, create bool) (int64, error) {
	var (
		value int64
		err   error
	)
	if create {
		err = ex.QueryRowContext(ctx, db.rebind(
			`INSERT INTO stats (key, value, manual) VALUES (?, ?, ?)
			 ON CONFLICT (key) DO UPDATE SET value = stats.value + excluded.value
			 RETURNING value`),
			key, delta, false,
		).Scan(&value)
	} else {
		err = ex.QueryRowContext(ctx, db.rebind(
			`UPDATE stats SET value = value + ? WHERE key = ? RETURNING value`),
			delta, key,
		).Scan(&value)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperror.NotFound("stat", key)
		}
		return 0, fmt.Errorf("sqlstore: incrementing stat %s: %w", key, err)
	}
	return value, nil
}

func (db *DB) DeleteStat(ctx context.Context, key string) error {
	res, err := db.conn.ExecContext(ctx, db.rebind(`DELETE FROM stats WHERE key = ?`), key)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting stat %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("stat", key)
	}
	return nil
}
