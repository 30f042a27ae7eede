package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/garden-companion/internal/apperror"
	"github.com/sakif/garden-companion/internal/model"
	"github.com/sakif/garden-companion/internal/repository"
)

// UserDB stores gardener accounts.
type UserDB struct {
	db *DB
}

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

const userColumns = `id, email, password_hash, github_id, display_name, profile_image,
	experience_level, garden_count, plant_count, follower_count, following_count,
	notifications_enabled, created_at, last_active_at`

func scanUser(s rowScanner) (*model.User, error) {
	var (
		u        model.User
		githubID sql.NullInt64
	)
	if err := s.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &githubID, &u.DisplayName, &u.ProfileImage,
		&u.ExperienceLevel, &u.GardenCount, &u.PlantCount, &u.FollowerCount,
		&u.FollowingCount, &u.NotificationsEnabled, &u.CreatedAt, &u.LastActiveAt,
	); err != nil {
		return nil, err
	}
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}
	return &u, nil
}

// Create inserts a new account and fills in ID and the timestamps.
// A taken email (or GitHub ID) comes back as apperror.ErrConflict.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.LastActiveAt = now
	if user.ExperienceLevel == "" {
		user.ExperienceLevel = model.ExperienceBeginner
	}

	_, err := u.db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, githubParam(user.GitHubID), user.DisplayName,
		user.ProfileImage, user.ExperienceLevel, user.GardenCount, user.PlantCount,
		user.FollowerCount, user.FollowingCount, user.NotificationsEnabled,
		user.CreatedAt, user.LastActiveAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Email, err)
	}
	return nil
}

// GetByID returns apperror.ErrNotFound if no user exists with that ID.
func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(u.db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	if email == "" {
		return nil, apperror.NotFound("user", email)
	}
	user, err := scanUser(u.db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return user, nil
}

// UpsertGitHub creates or refreshes the account linked to user.GitHubID.
//
// An account that already exists keeps its internal ID, counters and
// password; only the profile fields GitHub owns are refreshed. The stored row
// is read back into user so the caller holds the canonical record.
func (u *UserDB) UpsertGitHub(ctx context.Context, user *model.User) error {
	if user.GitHubID == nil {
		return apperror.ValidationFailed("githubId", "is required")
	}
	ghID := *user.GitHubID

	var existingID string
	err := u.db.conn.QueryRowContext(ctx,
		`SELECT id FROM users WHERE github_id = ?`, ghID,
	).Scan(&existingID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", ghID, err)
	}

	if existingID == "" {
		if err := u.Create(ctx, user); err != nil {
			return err
		}
		return nil
	}

	_, err = u.db.conn.ExecContext(ctx,
		`UPDATE users SET display_name = ?, profile_image = ?, last_active_at = ?,
			email = CASE WHEN ? <> '' THEN ? ELSE email END
		 WHERE id = ?`,
		user.DisplayName, user.ProfileImage, time.Now().UTC(),
		user.Email, user.Email, existingID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: updating user %s: %w", existingID, err)
	}

	stored, err := u.GetByID(ctx, existingID)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

// TouchLastActive records activity for id. An unknown id is reported as
// apperror.ErrNotFound.
func (u *UserDB) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	res, err := u.db.conn.ExecContext(ctx,
		`UPDATE users SET last_active_at = ? WHERE id = ?`, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: touching user %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func githubParam(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
