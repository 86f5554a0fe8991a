package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/pixelboard/internal/apperror"
	"github.com/sakif/pixelboard/internal/model"
	"github.com/sakif/pixelboard/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

// UpsertDetails inserts or refreshes a display profile keyed by user_id.
func (db *DB) UpsertDetails(ctx context.Context, details *model.UserDetails) error {
	details.UpdatedAt = time.Now().UTC()
	_, err := db.conn.ExecContext(ctx, db.rebind(
		`INSERT INTO user_details (user_id, username, avatar_url, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE
		 SET username = excluded.username, avatar_url = excluded.avatar_url, updated_at = excluded.updated_at`),
		details.UserID,
		details.Username,
		nullString(details.AvatarURL),
		details.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: upserting user details %s: %w", details.UserID, err)
	}
	return nil
}

// GetDetails returns apperror.ErrNotFound if the user has never logged in.
func (db *DB) GetDetails(ctx context.Context, userID string) (*model.UserDetails, error) {
	var (
		d      model.UserDetails
		avatar sql.NullString
	)
	err := db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT user_id, username, avatar_url, updated_at FROM user_details WHERE user_id = ?`),
		userID,
	).Scan(&d.UserID, &d.Username, &avatar, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", userID)
		}
		return nil, fmt.Errorf("sqlstore: getting user details %s: %w", userID, err)
	}
	d.AvatarURL = stringPtr(avatar)
	return &d, nil
}
