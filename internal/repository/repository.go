package repository

import (
	"context"
	"time"

	"github.com/sakif/garden-companion/internal/model"
)

// WeatherRepository stores immutable weather snapshots.
type WeatherRepository interface {
	Insert(ctx context.Context, s *model.WeatherSnapshot) error
	// Latest returns the most recently captured snapshot for query, or
	// apperror.ErrNotFound when none exists.
	Latest(ctx context.Context, query string) (*model.WeatherSnapshot, error)
	DeleteBefore(ctx context.Context, t time.Time) (int64, error)
}

// PlantRepository caches catalog records.
type PlantRepository interface {
	Upsert(ctx context.Context, p *model.Plant) error
	GetByID(ctx context.Context, id int64) (*model.Plant, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// UserPlantRepository stores garden associations. Every method that changes a
// row notifies the owning user's garden topic after the write.
type UserPlantRepository interface {
	Create(ctx context.Context, up *model.UserPlant) error
	GetByID(ctx context.Context, userID, id string) (*model.UserPlant, error)
	GetByUserAndPlant(ctx context.Context, userID string, plantID int64) (*model.UserPlant, error)
	// ListByUser orders by date added, newest first.
	ListByUser(ctx context.Context, userID string) ([]model.UserPlant, error)
	SetLastWatered(ctx context.Context, userID, id string, at time.Time) error
	SetLastFertilized(ctx context.Context, userID, id string, at time.Time) error
	UpdateDetails(ctx context.Context, up *model.UserPlant) error
	// Delete succeeds whether or not a row matched.
	Delete(ctx context.Context, userID, id string) error
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpsertGitHub(ctx context.Context, user *model.User) error
	TouchLastActive(ctx context.Context, id string, at time.Time) error
}
