package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/sakif/pixelboard/internal/apperror"
	"github.com/sakif/pixelboard/internal/model"
	"github.com/sakif/pixelboard/internal/repository"
)

// Bans is the denylist. Membership is authoritative; the cached username is
// only there so the admin panel has something readable to show.
type Bans struct {
	mu    sync.RWMutex
	names map[string]*string // subject id → username at ban

	repo   repository.BanRepository
	logger *slog.Logger
}

// BanSnapshot is an immutable copy of the denylist.
type BanSnapshot struct {
	names map[string]*string
}

// Len is the number of banned identities in the snapshot.
func (s BanSnapshot) Len() int { return len(s.names) }

func NewBans(repo repository.BanRepository, logger *slog.Logger) *Bans {
	return &Bans{
		names:  make(map[string]*string),
		repo:   repo,
		logger: logger,
	}
}

// Load replaces the denylist with the durable one. The swap happens only
// after the whole query succeeded.
func (b *Bans) Load(ctx context.Context) (int, error) {
	entries, err := b.repo.AllBans(ctx)
	if err != nil {
		return 0, fmt.Errorf("store/bans: loading: %w", err)
	}

	names := make(map[string]*string, len(entries))
	for _, e := range entries {
		names[e.UserID] = e.UsernameAtBan
	}

	b.mu.Lock()
	b.names = names
	b.mu.Unlock()

	return len(names), nil
}

func (b *Bans) IsBanned(subjectID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.names[subjectID]
	return ok
}

// Ban adds the identity in memory, then persists best-effort.
func (b *Bans) Ban(ctx context.Context, subjectID string, usernameAtBan *string) error {
	if subjectID == "" {
		return apperror.ValidationFailed("user_id", "user id is required")
	}

	b.mu.Lock()
	b.names[subjectID] = usernameAtBan
	b.mu.Unlock()

	entry := model.BanEntry{UserID: subjectID, UsernameAtBan: usernameAtBan}
	if err := b.repo.AddBan(ctx, entry); err != nil {
		b.logger.Warn("ban not persisted; in effect until restart",
			slog.String("user_id", subjectID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Unban removes the identity in memory, then persists best-effort.
func (b *Bans) Unban(ctx context.Context, subjectID string) error {
	if subjectID == "" {
		return apperror.ValidationFailed("user_id", "user id is required")
	}

	b.mu.Lock()
	delete(b.names, subjectID)
	b.mu.Unlock()

	if err := b.repo.RemoveBan(ctx, subjectID); err != nil {
		b.logger.Warn("unban not persisted; ban returns after restart",
			slog.String("user_id", subjectID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// List returns every ban sorted by subject id.
func (b *Bans) List() []model.BanEntry {
	b.mu.RLock()
	out := make([]model.BanEntry, 0, len(b.names))
	for id, name := range b.names {
		out = append(out, model.BanEntry{UserID: id, UsernameAtBan: name})
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (b *Bans) Snapshot() BanSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make(map[string]*string, len(b.names))
	for id, name := range b.names {
		names[id] = name
	}
	return BanSnapshot{names: names}
}

func (b *Bans) Restore(s BanSnapshot) {
	names := make(map[string]*string, len(s.names))
	for id, name := range s.names {
		names[id] = name
	}
	b.mu.Lock()
	b.names = names
	b.mu.Unlock()
}
