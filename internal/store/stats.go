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

// Stats holds every counter with its classification.
//
// CLASSIFICATION:
//   - Managed: durable, written only by server code (e.g. total_pixels_placed)
//   - Manual:  durable, created/edited/deleted by the admin
//   - Virtual: memory only, never written durably (e.g. connected_users)
//
// A key keeps its kind for life. Calling an operation meant for another
// kind returns an apperror.ErrTypeViolation and changes nothing.
type Stats struct {
	mu    sync.RWMutex
	stats map[string]model.Stat

	repo   repository.StatsRepository
	logger *slog.Logger
}

// SetOptions tunes SetDurable.
type SetOptions struct {
	// BestEffort updates memory first and only logs a durable failure.
	BestEffort bool
	// Create allows the key to be absent.
	Create bool
	// Manual classifies a newly created key as Manual instead of Managed.
	Manual bool
}

func NewStats(repo repository.StatsRepository, logger *slog.Logger) *Stats {
	return &Stats{
		stats:  make(map[string]model.Stat),
		repo:   repo,
		logger: logger,
	}
}

// Load replaces every durable stat with the stored rows. Virtual stats are
// kept as they are; a stored row that collides with a virtual key is ignored.
func (s *Stats) Load(ctx context.Context) (int, error) {
	rows, err := s.repo.AllStats(ctx)
	if err != nil {
		return 0, fmt.Errorf("store/stats: loading: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]model.Stat, len(rows)+len(s.stats))
	for k, st := range s.stats {
		if st.Kind == model.Virtual {
			next[k] = st
		}
	}

	loaded := 0
	for _, r := range rows {
		if existing, ok := next[r.Key]; ok && existing.Kind == model.Virtual {
			s.logger.Warn("stored stat shadows a virtual key; ignoring row", slog.String("key", r.Key))
			continue
		}
		kind := model.Managed
		if r.Manual {
			kind = model.Manual
		}
		next[r.Key] = model.Stat{Key: r.Key, Value: r.Value, Kind: kind}
		loaded++
	}
	s.stats = next
	return loaded, nil
}

// Get returns the current value of key.
func (s *Stats) Get(key string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[key]
	return st.Value, ok
}

// Stat returns key's value together with its kind.
func (s *Stats) Stat(key string) (model.Stat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[key]
	return st, ok
}

// All returns every stat sorted by key.
func (s *Stats) All() []model.Stat {
	s.mu.RLock()
	out := make([]model.Stat, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, st)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Values returns key → value for every stat; this is the stats broadcast payload.
func (s *Stats) Values() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.stats))
	for k, st := range s.stats {
		out[k] = st.Value
	}
	return out
}

// InitManual creates a Manual stat durably. It fails if the key exists.
func (s *Stats) InitManual(ctx context.Context, key string, initial int64) error {
	if _, ok := s.Stat(key); ok {
		return apperror.AlreadyExists("stat", key)
	}
	if err := s.repo.SetStat(ctx, repository.StatRow{Key: key, Value: initial, Manual: true}); err != nil {
		return apperror.Persistence("stat init "+key, err)
	}
	s.put(model.Stat{Key: key, Value: initial, Kind: model.Manual})
	return nil
}

// InitVirtual creates a Virtual stat. It fails if the key exists.
func (s *Stats) InitVirtual(key string, initial int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stats[key]; ok {
		return apperror.AlreadyExists("stat", key)
	}
	s.stats[key] = model.Stat{Key: key, Value: initial, Kind: model.Virtual}
	return nil
}

// SetDurable writes a Managed or Manual stat.
func (s *Stats) SetDurable(ctx context.Context, key string, value int64, opts SetOptions) error {
	existing, exists := s.Stat(key)
	if exists && existing.Kind == model.Virtual {
		return apperror.TypeViolation(key, model.Virtual.String(), "durable set")
	}
	if !exists && !opts.Create {
		return apperror.NotFound("stat", key)
	}

	kind := existing.Kind
	if !exists {
		kind = model.Managed
		if opts.Manual {
			kind = model.Manual
		}
	}

	st := model.Stat{Key: key, Value: value, Kind: kind}
	row := repository.StatRow{Key: key, Value: value, Manual: kind == model.Manual}

	if opts.BestEffort {
		s.put(st)
		if err := s.repo.SetStat(ctx, row); err != nil {
			s.logger.Warn("stat write failed; memory already updated",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	if err := s.repo.SetStat(ctx, row); err != nil {
		return apperror.Persistence("stat set "+key, err)
	}
	s.put(st)
	return nil
}

// IncrementDurable adds delta durably and mirrors the exact post-increment
// value the store returned.
func (s *Stats) IncrementDurable(ctx context.Context, key string, delta int64, create bool) (int64, error) {
	existing, exists := s.Stat(key)
	if exists && existing.Kind == model.Virtual {
		return 0, apperror.TypeViolation(key, model.Virtual.String(), "durable increment")
	}
	if !exists && !create {
		return 0, apperror.NotFound("stat", key)
	}

	value, err := s.repo.IncrementStat(ctx, key, delta, create)
	if err != nil {
		return 0, apperror.Persistence("stat increment "+key, err)
	}
	if err := s.Record(key, value); err != nil {
		return 0, err
	}
	return value, nil
}

// Record mirrors a value that was already committed durably by another path,
// such as the pixel transaction bumping total_pixels_placed.
//
// Managed counters only grow, so a Managed value lower than the one in memory
// is a commit that finished out of order and is ignored.
func (s *Stats) Record(key string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.stats[key]
	if exists && existing.Kind == model.Virtual {
		return apperror.TypeViolation(key, model.Virtual.String(), "durable record")
	}
	kind := model.Managed
	if exists {
		kind = existing.Kind
	}
	if exists && kind == model.Managed && value < existing.Value {
		return nil
	}
	s.stats[key] = model.Stat{Key: key, Value: value, Kind: kind}
	return nil
}

// SetVirtual writes a Virtual stat.
func (s *Stats) SetVirtual(key string, value int64, create bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.stats[key]
	if exists && existing.Kind != model.Virtual {
		return apperror.TypeViolation(key, existing.Kind.String(), "virtual set")
	}
	if !exists && !create {
		return apperror.NotFound("stat", key)
	}
	s.stats[key] = model.Stat{Key: key, Value: value, Kind: model.Virtual}
	return nil
}

// IncrementVirtual adds delta to a Virtual stat and returns the new value.
func (s *Stats) IncrementVirtual(key string, delta int64, create bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.stats[key]
	if exists && existing.Kind != model.Virtual {
		return 0, apperror.TypeViolation(key, existing.Kind.String(), "virtual increment")
	}
	if !exists && !create {
		return 0, apperror.NotFound("stat", key)
	}
	value := existing.Value + delta
	s.stats[key] = model.Stat{Key: key, Value: value, Kind: model.Virtual}
	return value, nil
}

// DeleteManual removes a Manual stat durably, then from memory.
func (s *Stats) DeleteManual(ctx context.Context, key string) error {
	existing, exists := s.Stat(key)
	if !exists {
		return apperror.NotFound("stat", key)
	}
	if existing.Kind != model.Manual {
		return apperror.TypeViolation(key, existing.Kind.String(), "manual delete")
	}
	if err := s.repo.DeleteStat(ctx, key); err != nil {
		return apperror.Persistence("stat delete "+key, err)
	}
	s.mu.Lock()
	delete(s.stats, key)
	s.mu.Unlock()
	return nil
}

// DeleteVirtual removes a Virtual stat.
func (s *Stats) DeleteVirtual(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.stats[key]
	if !exists {
		return apperror.NotFound("stat", key)
	}
	if existing.Kind != model.Virtual {
		return apperror.TypeViolation(key, existing.Kind.String(), "virtual delete")
	}
	delete(s.stats, key)
	return nil
}

func (s *Stats) put(st model.Stat) {
	s.mu.Lock()
	s.stats[st.Key] = st
	s.mu.Unlock()
}
