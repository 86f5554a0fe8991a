// Package repository declares the durable-storage contracts the in-memory
// stores and protocols depend on. internal/repository/sqlstore implements
// them; tests substitute in-memory fakes.
package repository

import (
	"context"

	"github.com/sakif/pixelboard/internal/model"
)

// ConfigRow is a config table row with its value still JSON-encoded.
type ConfigRow struct {
	Key    string
	Value  []byte
	Public bool
}

type ConfigRepository interface {
	AllConfig(ctx context.Context) ([]ConfigRow, error)
	SetConfig(ctx context.Context, row ConfigRow) error
	// SetConfigMany writes every row in one transaction.
	SetConfigMany(ctx context.Context, rows []ConfigRow) error
	// SeedConfig inserts rows whose keys are absent and leaves existing keys alone.
	SeedConfig(ctx context.Context, rows []ConfigRow) (int, error)
}

// PixelCommit is the durable half of an accepted pixel update.
type PixelCommit struct {
	X        int
	Y        int
	Color    string
	AuthorID string
}

type PixelRepository interface {
	// AllPixels returns every stored cell joined with its author's details.
	AllPixels(ctx context.Context) ([]model.PixelRow, error)
	// CommitPixel upserts the cell and increments total_pixels_placed in one
	// transaction, returning the counter's post-increment value.
	CommitPixel(ctx context.Context, p PixelCommit) (int64, error)
}

type UserRepository interface {
	UpsertDetails(ctx context.Context, details *model.UserDetails) error
	GetDetails(ctx context.Context, userID string) (*model.UserDetails, error)
}

type BanRepository interface {
	AllBans(ctx context.Context) ([]model.BanEntry, error)
	AddBan(ctx context.Context, entry model.BanEntry) error
	RemoveBan(ctx context.Context, userID string) error
}

// StatRow is a stats table row.
type StatRow struct {
	Key    string
	Value  int64
	Manual bool
}

type StatsRepository interface {
	AllStats(ctx context.Context) ([]StatRow, error)
	SetStat(ctx context.Context, row StatRow) error
	// IncrementStat atomically adds delta and returns the new value. When
	// create is false and the key is absent it returns apperror.ErrNotFound.
	IncrementStat(ctx context.Context, key string, delta int64, create bool) (int64, error)
	DeleteStat(ctx context.Context, key string) error
}

// Store is everything the canvas needs from durable storage.
type Store interface {
	ConfigRepository
	PixelRepository
	UserRepository
	BanRepository
	StatsRepository
}
