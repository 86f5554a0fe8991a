package sqlstore

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/pixelboard/internal/apperror"
	"github.com/sakif/pixelboard/internal/model"
	"github.com/sakif/pixelboard/internal/repository"
)

// newTestDB opens a fresh in-memory SQLite database for one test.
// t.Cleanup closes it, which also destroys the data.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), DriverSQLite, ":memory:", Options{})
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "whatever", Options{})
	if err == nil {
		t.Fatal("Open() should reject unsupported drivers")
	}
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.migrate(context.Background()); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		driver string
		in     string
		want   string
	}{
		{DriverSQLite, "SELECT ? , ?", "SELECT ? , ?"},
		{DriverPostgres, "SELECT ? , ?", "SELECT $1 , $2"},
		{DriverPostgres, "UPDATE stats SET value = value + ? WHERE key = ?", "UPDATE stats SET value = value + $1 WHERE key = $2"},
		{DriverPostgres, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.driver+"/"+tt.in, func(t *testing.T) {
			db := &DB{driver: tt.driver}
			if got := db.rebind(tt.in); got != tt.want {
				t.Errorf("rebind(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// =========================================================================
// CONFIG
// =========================================================================

func TestConfig_SetAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.SetConfig(ctx, repository.ConfigRow{Key: "readonly", Value: []byte("false"), Public: true}); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}
	if err := db.SetConfig(ctx, repository.ConfigRow{Key: "readonly", Value: []byte("true"), Public: true}); err != nil {
		t.Fatalf("SetConfig() overwrite error = %v", err)
	}

	rows, err := db.AllConfig(ctx)
	if err != nil {
		t.Fatalf("AllConfig() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("AllConfig() returned %d rows, want 1", len(rows))
	}
	if string(rows[0].Value) != "true" || !rows[0].Public {
		t.Errorf("row = %+v, want value true and public", rows[0])
	}
}

func TestConfig_SeedKeepsExistingValues(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.SetConfig(ctx, repository.ConfigRow{Key: "grid_width", Value: []byte("64")}); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}

	added, err := db.SeedConfig(ctx, []repository.ConfigRow{
		{Key: "grid_width", Value: []byte("100")},
		{Key: "grid_height", Value: []byte("100")},
	})
	if err != nil {
		t.Fatalf("SeedConfig() error = %v", err)
	}
	if added != 1 {
		t.Errorf("SeedConfig() added = %d, want 1", added)
	}

	rows, _ := db.AllConfig(ctx)
	for _, r := range rows {
		if r.Key == "grid_width" && string(r.Value) != "64" {
			t.Errorf("grid_width = %s, seeding must not overwrite", r.Value)
		}
	}
}

func TestConfig_SetManyIsAtomic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.SetConfigMany(ctx, []repository.ConfigRow{
		{Key: "grid_width", Value: []byte("50")},
		{Key: "grid_height", Value: []byte("50")},
	})
	if err != nil {
		t.Fatalf("SetConfigMany() error = %v", err)
	}

	rows, _ := db.AllConfig(ctx)
	if len(rows) != 2 {
		t.Fatalf("AllConfig() returned %d rows, want 2", len(rows))
	}

	// A cancelled context fails the transaction before anything commits.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = db.SetConfigMany(cancelled, []repository.ConfigRow{
		{Key: "grid_width", Value: []byte("10")},
		{Key: "grid_height", Value: []byte("10")},
	})
	if err == nil {
		t.Fatal("SetConfigMany() with cancelled context should fail")
	}
	rows, _ = db.AllConfig(ctx)
	for _, r := range rows {
		if string(r.Value) != "50" {
			t.Errorf("%s = %s after failed SetConfigMany, want 50", r.Key, r.Value)
		}
	}
}

// =========================================================================
// PIXELS
// =========================================================================

func TestCommitPixel_IncrementsCounter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i, want := range []int64{1, 2, 3} {
		got, err := db.CommitPixel(ctx, repository.PixelCommit{X: i, Y: 0, Color: "#FF00FF", AuthorID: "u1"})
		if err != nil {
			t.Fatalf("CommitPixel() error = %v", err)
		}
		if got != want {
			t.Errorf("CommitPixel() total = %d, want %d", got, want)
		}
	}
}

func TestCommitPixel_UpsertsSameCell(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.CommitPixel(ctx, repository.PixelCommit{X: 5, Y: 10, Color: "#000000", AuthorID: "u1"}); err != nil {
		t.Fatalf("CommitPixel() error = %v", err)
	}
	if _, err := db.CommitPixel(ctx, repository.PixelCommit{X: 5, Y: 10, Color: "#FF00FF", AuthorID: "u2"}); err != nil {
		t.Fatalf("CommitPixel() error = %v", err)
	}

	pixels, err := db.AllPixels(ctx)
	if err != nil {
		t.Fatalf("AllPixels() error = %v", err)
	}
	if len(pixels) != 1 {
		t.Fatalf("AllPixels() returned %d rows, want 1", len(pixels))
	}
	if pixels[0].Color != "#FF00FF" {
		t.Errorf("Color = %q, want #FF00FF", pixels[0].Color)
	}
}

func TestAllPixels_JoinsAuthorDetails(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	avatar := "https://cdn.example/a.png"
	if err := db.UpsertDetails(ctx, &model.UserDetails{UserID: "u1", Username: "alice", AvatarURL: &avatar}); err != nil {
		t.Fatalf("UpsertDetails() error = %v", err)
	}
	if _, err := db.CommitPixel(ctx, repository.PixelCommit{X: 1, Y: 2, Color: "#123456", AuthorID: "u1"}); err != nil {
		t.Fatalf("CommitPixel() error = %v", err)
	}

	pixels, err := db.AllPixels(ctx)
	if err != nil {
		t.Fatalf("AllPixels() error = %v", err)
	}
	if len(pixels) != 1 || pixels[0].Author == nil {
		t.Fatalf("AllPixels() = %+v, want one row with an author", pixels)
	}
	a := pixels[0].Author
	if a.UserID != "u1" || a.Name != "alice" || a.AvatarURL == nil || *a.AvatarURL != avatar {
		t.Errorf("Author = %+v, want alice with avatar", a)
	}
}

// =========================================================================
// BANS
// =========================================================================

func TestBans_AddRemove(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	name := "mallory"
	if err := db.AddBan(ctx, model.BanEntry{UserID: "bad", UsernameAtBan: &name}); err != nil {
		t.Fatalf("AddBan() error = %v", err)
	}
	if err := db.AddBan(ctx, model.BanEntry{UserID: "bad"}); err != nil {
		t.Fatalf("AddBan() twice error = %v", err)
	}

	bans, err := db.AllBans(ctx)
	if err != nil {
		t.Fatalf("AllBans() error = %v", err)
	}
	if len(bans) != 1 {
		t.Fatalf("AllBans() returned %d rows, want 1", len(bans))
	}

	if err := db.RemoveBan(ctx, "bad"); err != nil {
		t.Fatalf("RemoveBan() error = %v", err)
	}
	if err := db.RemoveBan(ctx, "bad"); err != nil {
		t.Fatalf("RemoveBan() twice error = %v", err)
	}
	bans, _ = db.AllBans(ctx)
	if len(bans) != 0 {
		t.Errorf("AllBans() after unban returned %d rows, want 0", len(bans))
	}
}

// =========================================================================
// STATS
// =========================================================================

func TestIncrementStat_WithoutCreate(t *testing.T) {
	db := newTestDB(t)

	_, err := db.IncrementStat(context.Background(), "missing", 1, false)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("IncrementStat() error = %v, want ErrNotFound", err)
	}
}

func TestStats_SetIncrementDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.SetStat(ctx, repository.StatRow{Key: "visits", Value: 10, Manual: true}); err != nil {
		t.Fatalf("SetStat() error = %v", err)
	}
	got, err := db.IncrementStat(ctx, "visits", 5, false)
	if err != nil {
		t.Fatalf("IncrementStat() error = %v", err)
	}
	if got != 15 {
		t.Errorf("IncrementStat() = %d, want 15", got)
	}

	rows, err := db.AllStats(ctx)
	if err != nil {
		t.Fatalf("AllStats() error = %v", err)
	}
	if len(rows) != 1 || !rows[0].Manual || rows[0].Value != 15 {
		t.Errorf("AllStats() = %+v, want one manual row at 15", rows)
	}

	if err := db.DeleteStat(ctx, "visits"); err != nil {
		t.Fatalf("DeleteStat() error = %v", err)
	}
	if err := db.DeleteStat(ctx, "visits"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("DeleteStat() twice error = %v, want ErrNotFound", err)
	}
}
