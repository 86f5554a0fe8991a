// Package repotest provides an in-memory repository.Store for tests.
//
// Every method can be made to fail by setting the matching Err* field, and
// CommitPixel can be paused with CommitGate to observe what happens before
// durable confirmation.
package repotest

import (
	"context"
	"sort"
	"sync"

	"github.com/sakif/pixelboard/internal/apperror"
	"github.com/sakif/pixelboard/internal/model"
	"github.com/sakif/pixelboard/internal/repository"
)

var _ repository.Store = (*Fake)(nil)

type pixelKey struct{ x, y int }

type Fake struct {
	mu sync.Mutex

	Config  map[string]repository.ConfigRow
	Pixels  map[pixelKey]repository.PixelCommit
	Users   map[string]model.UserDetails
	BanRows map[string]model.BanEntry
	Stats   map[string]repository.StatRow

	ErrAllConfig   error
	ErrSetConfig   error
	ErrAllPixels   error
	ErrCommitPixel error
	ErrUpsertUser  error
	ErrAllBans     error
	ErrAddBan      error
	ErrRemoveBan   error
	ErrAllStats    error
	ErrSetStat     error
	ErrIncrement   error
	ErrDeleteStat  error

	// CommitGate, when set, is received from before CommitPixel does anything.
	CommitGate chan struct{}
	// CommitStarted, when set, is sent to as CommitPixel starts waiting on CommitGate.
	CommitStarted chan struct{}

	Commits int
}

func New() *Fake {
	return &Fake{
		Config:  make(map[string]repository.ConfigRow),
		Pixels:  make(map[pixelKey]repository.PixelCommit),
		Users:   make(map[string]model.UserDetails),
		BanRows: make(map[string]model.BanEntry),
		Stats:   make(map[string]repository.StatRow),
	}
}

// SetErr changes a failure field under the lock.
func (f *Fake) SetErr(field *error, err error) {
	f.mu.Lock()
	*field = err
	f.mu.Unlock()
}

// Pixel returns the stored pixel at (x, y).
func (f *Fake) Pixel(x, y int) (repository.PixelCommit, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Pixels[pixelKey{x, y}]
	return p, ok
}

// PutPixel seeds a stored pixel.
func (f *Fake) PutPixel(p repository.PixelCommit) {
	f.mu.Lock()
	f.Pixels[pixelKey{p.X, p.Y}] = p
	f.mu.Unlock()
}

// ---- config ----

func (f *Fake) AllConfig(_ context.Context) ([]repository.ConfigRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrAllConfig != nil {
		return nil, f.ErrAllConfig
	}
	out := make([]repository.ConfigRow, 0, len(f.Config))
	for _, r := range f.Config {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *Fake) SetConfig(_ context.Context, row repository.ConfigRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrSetConfig != nil {
		return f.ErrSetConfig
	}
	f.Config[row.Key] = row
	return nil
}

func (f *Fake) SetConfigMany(_ context.Context, rows []repository.ConfigRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrSetConfig != nil {
		return f.ErrSetConfig
	}
	for _, r := range rows {
		f.Config[r.Key] = r
	}
	return nil
}

func (f *Fake) SeedConfig(_ context.Context, rows []repository.ConfigRow) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrSetConfig != nil {
		return 0, f.ErrSetConfig
	}
	n := 0
	for _, r := range rows {
		if _, ok := f.Config[r.Key]; ok {
			continue
		}
		f.Config[r.Key] = r
		n++
	}
	return n, nil
}

// ---- pixels ----

func (f *Fake) AllPixels(_ context.Context) ([]model.PixelRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrAllPixels != nil {
		return nil, f.ErrAllPixels
	}
	out := make([]model.PixelRow, 0, len(f.Pixels))
	for _, p := range f.Pixels {
		row := model.PixelRow{X: p.X, Y: p.Y, Color: p.Color}
		if u, ok := f.Users[p.AuthorID]; ok {
			row.Author = &model.Author{UserID: u.UserID, Name: u.Username, AvatarURL: u.AvatarURL}
		}
		out = append(out, row)
	}
	return out, nil
}

func (f *Fake) CommitPixel(ctx context.Context, p repository.PixelCommit) (int64, error) {
	if f.CommitGate != nil {
		if f.CommitStarted != nil {
			f.CommitStarted <- struct{}{}
		}
		select {
		case <-f.CommitGate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrCommitPixel != nil {
		return 0, f.ErrCommitPixel
	}
	f.Pixels[pixelKey{p.X, p.Y}] = p
	row := f.Stats[model.StatTotalPixelsPlaced]
	row.Key = model.StatTotalPixelsPlaced
	row.Value++
	f.Stats[row.Key] = row
	f.Commits++
	return row.Value, nil
}

// ---- users ----

func (f *Fake) UpsertDetails(_ context.Context, d *model.UserDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrUpsertUser != nil {
		return f.ErrUpsertUser
	}
	f.Users[d.UserID] = *d
	return nil
}

func (f *Fake) GetDetails(_ context.Context, userID string) (*model.UserDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.Users[userID]
	if !ok {
		return nil, apperror.NotFound("user", userID)
	}
	return &d, nil
}

// ---- bans ----

func (f *Fake) AllBans(_ context.Context) ([]model.BanEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrAllBans != nil {
		return nil, f.ErrAllBans
	}
	out := make([]model.BanEntry, 0, len(f.BanRows))
	for _, b := range f.BanRows {
		out = append(out, b)
	}
	return out, nil
}

func (f *Fake) AddBan(_ context.Context, e model.BanEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrAddBan != nil {
		return f.ErrAddBan
	}
	f.BanRows[e.UserID] = e
	return nil
}

func (f *Fake) RemoveBan(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrRemoveBan != nil {
		return f.ErrRemoveBan
	}
	delete(f.BanRows, userID)
	return nil
}

// ---- stats ----

func (f *Fake) AllStats(_ context.Context) ([]repository.StatRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrAllStats != nil {
		return nil, f.ErrAllStats
	}
	out := make([]repository.StatRow, 0, len(f.Stats))
	for _, r := range f.Stats {
		out = append(out, r)
	}
	return out, nil
}

func (f *Fake) SetStat(_ context.Context, row repository.StatRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrSetStat != nil {
		return f.ErrSetStat
	}
	if existing, ok := f.Stats[row.Key]; ok {
		row.Manual = existing.Manual
	}
	f.Stats[row.Key] = row
	return nil
}

func (f *Fake) IncrementStat(_ context.Context, key string, delta int64, create bool) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrIncrement != nil {
		return 0, f.ErrIncrement
	}
	row, ok := f.Stats[key]
	if !ok && !create {
		return 0, apperror.NotFound("stat", key)
	}
	row.Key = key
	row.Value += delta
	f.Stats[key] = row
	return row.Value, nil
}

func (f *Fake) DeleteStat(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrDeleteStat != nil {
		return f.ErrDeleteStat
	}
	if _, ok := f.Stats[key]; !ok {
		return apperror.NotFound("stat", key)
	}
	delete(f.Stats, key)
	return nil
}
