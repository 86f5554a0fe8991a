package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/pixelboard/internal/model"
	"github.com/sakif/pixelboard/internal/repository"
)

var _ repository.PixelRepository = (*DB)(nil)

// AllPixels returns every stored cell with its author's current display
// details. Rows outside the current grid are returned too; the grid store
// decides what to skip.
func (db *DB) AllPixels(ctx context.Context) ([]model.PixelRow, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT p.x, p.y, p.color, p.author_id, u.username, u.avatar_url
		 FROM pixels p
		 LEFT JOIN user_details u ON u.user_id = p.author_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing pixels: %w", err)
	}
	defer rows.Close()

	var out []model.PixelRow
	for rows.Next() {
		var (
			p        model.PixelRow
			authorID sql.NullString
			username sql.NullString
			avatar   sql.NullString
		)
		if err := rows.Scan(&p.X, &p.Y, &p.Color, &authorID, &username, &avatar); err != nil {
			return nil, fmt.Errorf("sqlstore: scanning pixel row: %w", err)
		}
		if authorID.Valid {
			p.Author = &model.Author{
				UserID:    authorID.String,
				Name:      username.String,
				AvatarURL: stringPtr(avatar),
			}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating pixels: %w", err)
	}
	return out, nil
}

// CommitPixel writes the cell and bumps total_pixels_placed atomically.
// The returned value is the counter as the database sees it after this
// transaction, never a value computed in memory.
func (db *DB) CommitPixel(ctx context.Context, p repository.PixelCommit) (int64, error) {
	var total int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, db.rebind(
			`INSERT INTO pixels (x, y, color, author_id, placed_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (x, y) DO UPDATE
			 SET color = excluded.color, author_id = excluded.author_id, placed_at = excluded.placed_at`),
			p.X, p.Y, p.Color, p.AuthorID, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("sqlstore: upserting pixel (%d,%d): %w", p.X, p.Y, err)
		}

		total, err = db.incrementStat(ctx, tx, model.StatTotalPixelsPlaced, 1, true)
		return err
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
