package sqlstore

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/pixelboard/internal/apperror"
	"github.com/sakif/pixelboard/internal/model"
)

func TestUpsertDetails_NewUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	d := &model.UserDetails{UserID: "1234", Username: "alice"}
	if err := db.UpsertDetails(ctx, d); err != nil {
		t.Fatalf("UpsertDetails() error = %v", err)
	}
	if d.UpdatedAt.IsZero() {
		t.Error("UpsertDetails() did not set UpdatedAt")
	}

	found, err := db.GetDetails(ctx, "1234")
	if err != nil {
		t.Fatalf("GetDetails() error = %v", err)
	}
	if found.Username != "alice" {
		t.Errorf("Username = %q, want %q", found.Username, "alice")
	}
	if found.AvatarURL != nil {
		t.Errorf("AvatarURL = %v, want nil", *found.AvatarURL)
	}
}

func TestUpsertDetails_ExistingUserUpdatesProfile(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.UpsertDetails(ctx, &model.UserDetails{UserID: "1234", Username: "original"}); err != nil {
		t.Fatalf("UpsertDetails() first: %v", err)
	}
	avatar := "https://cdn.example/new.png"
	if err := db.UpsertDetails(ctx, &model.UserDetails{UserID: "1234", Username: "renamed", AvatarURL: &avatar}); err != nil {
		t.Fatalf("UpsertDetails() second: %v", err)
	}

	found, err := db.GetDetails(ctx, "1234")
	if err != nil {
		t.Fatalf("GetDetails() error = %v", err)
	}
	if found.Username != "renamed" {
		t.Errorf("Username after upsert = %q, want %q", found.Username, "renamed")
	}
	if found.AvatarURL == nil || *found.AvatarURL != avatar {
		t.Errorf("AvatarURL after upsert = %v, want %q", found.AvatarURL, avatar)
	}
}

func TestGetDetails_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetDetails(context.Background(), "nobody")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetDetails() error = %v, want ErrNotFound", err)
	}
}
