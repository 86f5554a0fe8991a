package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/pixelboard/internal/model"
	"github.com/sakif/pixelboard/internal/repository"
)

var _ repository.BanRepository = (*DB)(nil)

func (db *DB) AllBans(ctx context.Context) ([]model.BanEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT user_id, username_at_ban FROM banned_user_ids`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing bans: %w", err)
	}
	defer rows.Close()

	var out []model.BanEntry
	for rows.Next() {
		var (
			e    model.BanEntry
			name sql.NullString
		)
		if err := rows.Scan(&e.UserID, &name); err != nil {
			return nil, fmt.Errorf("sqlstore: scanning ban row: %w", err)
		}
		e.UsernameAtBan = stringPtr(name)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating bans: %w", err)
	}
	return out, nil
}

// AddBan is idempotent; banning twice refreshes the cached username.
func (db *DB) AddBan(ctx context.Context, entry model.BanEntry) error {
	_, err := db.conn.ExecContext(ctx, db.rebind(
		`INSERT INTO banned_user_ids (user_id, username_at_ban, banned_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET username_at_ban = excluded.username_at_ban`),
		entry.UserID, nullString(entry.UsernameAtBan), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: banning %s: %w", entry.UserID, err)
	}
	return nil
}

// RemoveBan does not report a missing row; unbanning twice is harmless.
func (db *DB) RemoveBan(ctx context.Context, userID string) error {
	if _, err := db.conn.ExecContext(ctx, db.rebind(`DELETE FROM banned_user_ids WHERE user_id = ?`), userID); err != nil {
		return fmt.Errorf("sqlstore: unbanning %s: %w", userID, err)
	}
	return nil
}
