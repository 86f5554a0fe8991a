// Package canvas owns the five in-memory stores and brings them up at boot.
//
// BOOT ORDER:
//  1. Seed default config keys that are absent from durable storage.
//  2. Load config (the grid's size comes from it).
//  3. Load grid, bans and stats concurrently.
//  4. Create the server's own counters durably if they are missing.
//  5. Register the virtual connected_users stat.
//
// Any failure is returned to the caller, which exits: the process never
// serves traffic from a state source it could not verify.
package canvas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/pixelboard/internal/apperror"
	"github.com/sakif/pixelboard/internal/model"
	"github.com/sakif/pixelboard/internal/repository"
	"github.com/sakif/pixelboard/internal/store"
)

// Canvas bundles the stores with the repositories protocols write through directly.
type Canvas struct {
	Config   *store.Config
	Grid     *store.Grid
	Bans     *store.Bans
	Timeouts *store.Timeouts
	Stats    *store.Stats

	Repo repository.Store

	logger *slog.Logger
}

// Options tunes New.
type Options struct {
	// Now overrides the cooldown clock.
	Now func() time.Time
}

func New(repo repository.Store, logger *slog.Logger, opts Options) *Canvas {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Canvas{
		Config:   store.NewConfig(repo, logger.With(slog.String("store", "config"))),
		Grid:     store.NewGrid(repo, logger.With(slog.String("store", "grid"))),
		Bans:     store.NewBans(repo, logger.With(slog.String("store", "bans"))),
		Timeouts: store.NewTimeoutsWithClock(logger.With(slog.String("store", "timeouts")), now),
		Stats:    store.NewStats(repo, logger.With(slog.String("store", "stats"))),
		Repo:     repo,
		logger:   logger,
	}
}

// Default is a config key seeded at boot when absent.
type Default struct {
	Key    string
	Value  any
	Public bool
}

// BuiltinDefaults are the live settings every canvas starts with.
func BuiltinDefaults() []Default {
	return []Default{
		{Key: model.KeyGridWidth, Value: store.DefaultGridWidth, Public: true},
		{Key: model.KeyGridHeight, Value: store.DefaultGridHeight, Public: true},
		{Key: model.KeyReadonly, Value: false, Public: true},
		{Key: model.KeyPixelTimeoutMS, Value: 30000, Public: true},
		{Key: model.KeyCommentTimeoutMS, Value: 10000, Public: true},
		{Key: model.KeyCommentMaxLength, Value: 100, Public: true},
		{Key: model.KeyCommentsEnabled, Value: true, Public: true},
		{Key: model.KeyAutomodEnabled, Value: false},
		{Key: model.KeyAutomodStrict, Value: false},
	}
}

// MergeDefaults overlays extra on base by key, keeping base's order.
func MergeDefaults(base, extra []Default) []Default {
	idx := make(map[string]int, len(base))
	out := append([]Default(nil), base...)
	for i, d := range out {
		idx[d.Key] = i
	}
	for _, d := range extra {
		if i, ok := idx[d.Key]; ok {
			out[i] = d
			continue
		}
		idx[d.Key] = len(out)
		out = append(out, d)
	}
	return out
}

// Seed inserts defaults whose keys are not stored yet.
func (c *Canvas) Seed(ctx context.Context, defaults []Default) (int, error) {
	rows := make([]repository.ConfigRow, 0, len(defaults))
	for _, d := range defaults {
		vis := model.VisibilityOf(d.Public)
		row, err := c.Config.Row(d.Key, d.Value, &vis)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}
	n, err := c.Repo.SeedConfig(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("canvas: seeding defaults: %w", err)
	}
	return n, nil
}

// Boot seeds, then hydrates every store.
func (c *Canvas) Boot(ctx context.Context, defaults []Default) error {
	start := time.Now()

	seeded, err := c.Seed(ctx, defaults)
	if err != nil {
		return err
	}

	nConfig, err := c.Config.Load(ctx)
	if err != nil {
		return fmt.Errorf("canvas: %w", err)
	}

	size := c.Config.GridSize()
	var nCells, nBans, nStats int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := c.Grid.Load(gctx, size)
		nCells = n
		return err
	})
	g.Go(func() error {
		n, err := c.Bans.Load(gctx)
		nBans = n
		return err
	})
	g.Go(func() error {
		n, err := c.Stats.Load(gctx)
		nStats = n
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("canvas: hydrating stores: %w", err)
	}

	if err := c.ensureCounters(ctx); err != nil {
		return err
	}

	if err := c.Stats.InitVirtual(model.StatConnectedUsers, 0); err != nil && !errors.Is(err, apperror.ErrExists) {
		return fmt.Errorf("canvas: %w", err)
	}

	c.logger.Info("canvas booted",
		slog.Int("config_seeded", seeded),
		slog.Int("config_keys", nConfig),
		slog.Int("width", size.Width),
		slog.Int("height", size.Height),
		slog.Int("cells", nCells),
		slog.Int("bans", nBans),
		slog.Int("stats", nStats),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

// ensureCounters creates each server counter as a Managed row at zero. A
// counter that already exists is left as it is.
func (c *Canvas) ensureCounters(ctx context.Context) error {
	for _, key := range model.ServerCounters {
		st, ok := c.Stats.Stat(key)
		if ok {
			if st.Kind != model.Managed {
				c.logger.Warn("server counter is not managed", slog.String("key", key), slog.String("kind", st.Kind.String()))
			}
			continue
		}
		if _, err := c.Stats.IncrementDurable(ctx, key, 0, true); err != nil {
			return fmt.Errorf("canvas: creating counter %s: %w", key, err)
		}
	}
	return nil
}
