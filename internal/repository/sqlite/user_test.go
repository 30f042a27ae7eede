package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/garden-companion/internal/apperror"
	"github.com/sakif/garden-companion/internal/model"
)

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestUserCreate(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{Email: "rose@example.com", PasswordHash: "hash", DisplayName: "Rose"}
	if err := db.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Create fills in the generated fields in place.
	if user.ID == "" {
		t.Error("Create() did not set user.ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("Create() did not set user.CreatedAt")
	}
	if user.ExperienceLevel != model.ExperienceBeginner {
		t.Errorf("ExperienceLevel = %q, want %q", user.ExperienceLevel, model.ExperienceBeginner)
	}
}

func TestUserCreate_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "dup@example.com")

	err := db.Users().Create(context.Background(), &model.User{Email: "dup@example.com"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Create() error = %v, want ErrConflict", err)
	}
}

func TestUserCreate_EmptyEmailsDoNotCollide(t *testing.T) {
	db := newTestDB(t)

	// GitHub-only accounts may have no email. The unique index skips ''.
	for i := int64(1); i <= 2; i++ {
		id := i
		u := &model.User{GitHubID: &id}
		if err := db.Users().Create(context.Background(), u); err != nil {
			t.Fatalf("Create() #%d error = %v", i, err)
		}
	}
}

// =========================================================================
// READ TESTS
// =========================================================================

func TestUserGetByID(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "fern@example.com")

	got, err := db.Users().GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Email != "fern@example.com" {
		t.Errorf("Email = %q, want %q", got.Email, "fern@example.com")
	}
	if got.GitHubID != nil {
		t.Errorf("GitHubID = %v, want nil", *got.GitHubID)
	}
}

func TestUserGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Users().GetByID(context.Background(), "nope")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestUserGetByEmail(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "ivy@example.com")

	got, err := db.Users().GetByEmail(context.Background(), "ivy@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ID = %q, want %q", got.ID, created.ID)
	}

	_, err = db.Users().GetByEmail(context.Background(), "")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByEmail(\"\") error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// GITHUB UPSERT TESTS
// =========================================================================

func TestUserUpsertGitHub_KeepsIDOnSecondLogin(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ghID := int64(4242)

	first := &model.User{GitHubID: &ghID, DisplayName: "octo", ProfileImage: "a.png"}
	if err := db.Users().UpsertGitHub(ctx, first); err != nil {
		t.Fatalf("first UpsertGitHub() error = %v", err)
	}

	second := &model.User{GitHubID: &ghID, DisplayName: "octocat", ProfileImage: "b.png"}
	if err := db.Users().UpsertGitHub(ctx, second); err != nil {
		t.Fatalf("second UpsertGitHub() error = %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("second login got ID %q, want existing %q", second.ID, first.ID)
	}
	if second.DisplayName != "octocat" || second.ProfileImage != "b.png" {
		t.Errorf("profile not refreshed: %+v", second)
	}
}

func TestUserUpsertGitHub_RequiresGitHubID(t *testing.T) {
	db := newTestDB(t)

	err := db.Users().UpsertGitHub(context.Background(), &model.User{})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("UpsertGitHub() error = %v, want ErrValidation", err)
	}
}

func TestUserTouchLastActive(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "moss@example.com")
	later := u.LastActiveAt.Add(2 * time.Hour)

	if err := db.Users().TouchLastActive(context.Background(), u.ID, later); err != nil {
		t.Fatalf("TouchLastActive() error = %v", err)
	}
	got, err := db.Users().GetByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.LastActiveAt.Equal(later) {
		t.Errorf("LastActiveAt = %v, want %v", got.LastActiveAt, later)
	}

	err = db.Users().TouchLastActive(context.Background(), "ghost", later)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("TouchLastActive(unknown) error = %v, want ErrNotFound", err)
	}
}
