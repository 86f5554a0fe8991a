// Package store holds the authoritative in-memory state of the canvas.
//
// OWNERSHIP:
// There is exactly one of each store per process, built at boot by
// internal/canvas and passed by pointer to every protocol. Nothing else
// mutates them.
//
// LOCKING:
// Each store guards its own maps with its own mutex. A lock is held only for
// the synchronous read or write of memory and is never held across a call to
// durable storage. Two requests can therefore interleave at any durable call,
// and an optimistic write is visible process-wide the moment it is applied.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/sakif/pixelboard/internal/apperror"
	"github.com/sakif/pixelboard/internal/model"
	"github.com/sakif/pixelboard/internal/repository"
)

// Strategy selects how Config.Set orders the memory write and the durable write.
type Strategy int

const (
	// Strict writes durably first. On failure memory is untouched and the error is returned.
	Strict Strategy = iota
	// BestEffort writes memory first, then tries durably and only logs a failure.
	BestEffort
	// InMemoryOnly never touches durable storage; the caller already persisted.
	InMemoryOnly
)

func (s Strategy) String() string {
	switch s {
	case Strict:
		return "strict"
	case BestEffort:
		return "best_effort"
	case InMemoryOnly:
		return "in_memory_only"
	default:
		return "unknown"
	}
}

// Config is the live key/value configuration cache.
//
// A value and its visibility are stored together in one ConfigEntry and
// replaced together, so a reader never sees a new value with an old visibility.
type Config struct {
	mu      sync.RWMutex
	entries map[string]model.ConfigEntry
	repo    repository.ConfigRepository
	logger  *slog.Logger
}

func NewConfig(repo repository.ConfigRepository, logger *slog.Logger) *Config {
	return &Config{
		entries: make(map[string]model.ConfigEntry),
		repo:    repo,
		logger:  logger,
	}
}

// Load replaces the cache with every durable row and returns how many were loaded.
// A row with an undecodable value fails the whole load and leaves the cache as it was.
func (c *Config) Load(ctx context.Context) (int, error) {
	rows, err := c.repo.AllConfig(ctx)
	if err != nil {
		return 0, fmt.Errorf("store/config: loading: %w", err)
	}

	entries := make(map[string]model.ConfigEntry, len(rows))
	for _, r := range rows {
		var v any
		if err := json.Unmarshal(r.Value, &v); err != nil {
			return 0, fmt.Errorf("store/config: decoding %s: %w", r.Key, err)
		}
		entries[r.Key] = model.ConfigEntry{Key: r.Key, Value: v, Visibility: model.VisibilityOf(r.Public)}
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	return len(entries), nil
}

// Get returns the value for key, or def when the key is absent.
func (c *Config) Get(key string, def any) any {
	if v, ok := c.GetRaw(key); ok {
		return v
	}
	return def
}

// GetRaw returns the value and whether the key exists at all.
func (c *Config) GetRaw(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.Value, ok
}

// Entry returns value and visibility as one snapshot.
func (c *Config) Entry(key string) (model.ConfigEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// IsPublic is false for absent keys.
func (c *Config) IsPublic(key string) bool {
	e, ok := c.Entry(key)
	return ok && e.Visibility == model.Public
}

// All returns every entry sorted by key.
func (c *Config) All() []model.ConfigEntry {
	c.mu.RLock()
	out := make([]model.ConfigEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Set changes a key according to strategy. A nil visibility keeps the key's
// current visibility, or private for a new key.
func (c *Config) Set(ctx context.Context, key string, value any, visibility *model.Visibility, strategy Strategy) error {
	if key == "" {
		return apperror.ValidationFailed("key", "config key is required")
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return apperror.ValidationFailed("value", fmt.Sprintf("config value for %s is not JSON-encodable", key))
	}
	// Normalize through JSON so memory holds the same representation Load produces.
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return fmt.Errorf("store/config: normalizing %s: %w", key, err)
	}

	vis := c.resolveVisibility(key, visibility)
	entry := model.ConfigEntry{Key: key, Value: normalized, Visibility: vis}
	row := repository.ConfigRow{Key: key, Value: raw, Public: vis == model.Public}

	switch strategy {
	case Strict:
		if err := c.repo.SetConfig(ctx, row); err != nil {
			c.logger.Error("config write failed; value unchanged",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			return apperror.Persistence("config set "+key, err)
		}
		c.put(entry)

	case BestEffort:
		c.put(entry)
		if err := c.repo.SetConfig(ctx, row); err != nil {
			c.logger.Warn("config write failed; memory already updated",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}

	case InMemoryOnly:
		c.put(entry)

	default:
		return fmt.Errorf("store/config: unknown strategy %d", strategy)
	}

	c.logger.Debug("config set",
		slog.String("key", key),
		slog.String("visibility", vis.String()),
		slog.String("strategy", strategy.String()),
	)
	return nil
}

// Row encodes a value the way Set would persist it, for callers that write
// several keys in one durable transaction and then use InMemoryOnly.
func (c *Config) Row(key string, value any, visibility *model.Visibility) (repository.ConfigRow, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return repository.ConfigRow{}, apperror.ValidationFailed("value", fmt.Sprintf("config value for %s is not JSON-encodable", key))
	}
	vis := c.resolveVisibility(key, visibility)
	return repository.ConfigRow{Key: key, Value: raw, Public: vis == model.Public}, nil
}

func (c *Config) resolveVisibility(key string, visibility *model.Visibility) model.Visibility {
	if visibility != nil {
		return *visibility
	}
	if e, ok := c.Entry(key); ok {
		return e.Visibility
	}
	return model.Private
}

func (c *Config) put(e model.ConfigEntry) {
	c.mu.Lock()
	c.entries[e.Key] = e
	c.mu.Unlock()
}

// Int reads a numeric key. Non-numeric or absent values yield def.
func (c *Config) Int(key string, def int) int {
	v, ok := c.GetRaw(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return def
		}
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

// Bool reads a boolean key, accepting "true"/"false" strings and numbers.
func (c *Config) Bool(key string, def bool) bool {
	v, ok := c.GetRaw(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	case float64:
		return b != 0
	}
	return def
}

// Default grid dimensions used when the keys are absent.
const (
	DefaultGridWidth  = 100
	DefaultGridHeight = 100
)

// GridSize reads grid_width and grid_height.
func (c *Config) GridSize() model.Size {
	return model.Size{
		Width:  c.Int(model.KeyGridWidth, DefaultGridWidth),
		Height: c.Int(model.KeyGridHeight, DefaultGridHeight),
	}
}

// Readonly reports whether mutations are currently blocked.
func (c *Config) Readonly() bool {
	return c.Bool(model.KeyReadonly, false)
}
