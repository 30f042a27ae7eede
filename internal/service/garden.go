package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/garden-companion/internal/apperror"
	"github.com/sakif/garden-companion/internal/care"
	"github.com/sakif/garden-companion/internal/events"
	"github.com/sakif/garden-companion/internal/model"
	"github.com/sakif/garden-companion/internal/repository"
)

const (
	MaxNicknameLength = 60
	MaxNotesLength    = 2000
	MaxPhotoURLLength = 2048
)

// PlantDetailer resolves catalog records. *PlantService satisfies it.
type PlantDetailer interface {
	GetPlantDetail(ctx context.Context, id int64) (*model.Plant, error)
}

// AddPlantInput carries the optional fields a gardener can fill in when
// adding a plant. A zero PlantingDate means "today".
type AddPlantInput struct {
	Nickname     string
	PlantingDate time.Time
	PhotoURL     string
	Notes        string
}

// UpdateInput edits an association. Nil fields are left unchanged.
type UpdateInput struct {
	Nickname     *string
	Notes        *string
	PhotoURL     *string
	PlantingDate *time.Time
}

// GardenService manages a user's garden: which plants they grow, when they
// last cared for them, and what needs doing next.
//
// CHANGE NOTIFICATIONS:
// The store publishes on events.GardenTopic(userID) after every committed
// write. Watch subscribes to that topic and re-reads the garden on each
// notification, so this service never publishes anything itself.
type GardenService struct {
	repo   repository.UserPlantRepository
	plants PlantDetailer
	broker events.Broker
	now    Clock
	logger *slog.Logger
}

func NewGardenService(
	repo repository.UserPlantRepository,
	plants PlantDetailer,
	broker events.Broker,
	now Clock,
	logger *slog.Logger,
) *GardenService {
	return &GardenService{
		repo:   repo,
		plants: plants,
		broker: broker,
		now:    orNow(now),
		logger: orDiscard(logger),
	}
}

// AddPlant puts plantID into userID's garden.
//
// The catalog record is resolved first so the plant row the association
// points at exists locally. Adding a plant that is already in the garden is
// not an error: the existing association is returned with created=false.
func (s *GardenService) AddPlant(ctx context.Context, userID string, plantID int64, in AddPlantInput) (*model.GardenEntry, bool, error) {
	if userID == "" {
		return nil, false, apperror.Unauthorized("sign in to manage a garden")
	}
	if err := validateDetails(&in.Nickname, &in.Notes, &in.PhotoURL); err != nil {
		return nil, false, err
	}

	plant, err := s.plants.GetPlantDetail(ctx, plantID)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.repo.GetByUserAndPlant(ctx, userID, plantID)
	switch {
	case err == nil:
		return &model.GardenEntry{UserPlant: *existing, Plant: *plant}, false, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, false, fmt.Errorf("checking garden for plant %d: %w", plantID, err)
	}

	up := &model.UserPlant{
		UserID:       userID,
		PlantID:      plantID,
		Nickname:     in.Nickname,
		PlantingDate: in.PlantingDate,
		PhotoURL:     in.PhotoURL,
		Notes:        in.Notes,
		DateAdded:    s.now(),
	}
	if err := s.repo.Create(ctx, up); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			return nil, false, fmt.Errorf("adding plant %d: %w", plantID, err)
		}
		// Lost a race with a concurrent add of the same plant.
		existing, getErr := s.repo.GetByUserAndPlant(ctx, userID, plantID)
		if getErr != nil {
			return nil, false, fmt.Errorf("adding plant %d: %w", plantID, getErr)
		}
		return &model.GardenEntry{UserPlant: *existing, Plant: *plant}, false, nil
	}

	s.logger.Info("plant added to garden",
		slog.String("userID", userID),
		slog.Int64("plantID", plantID),
		slog.String("id", up.ID),
	)
	return &model.GardenEntry{UserPlant: *up, Plant: *plant}, true, nil
}

// List returns the garden joined with catalog records, newest first.
func (s *GardenService) List(ctx context.Context, userID string) ([]model.GardenEntry, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing garden: %w", err)
	}

	entries := make([]model.GardenEntry, 0, len(rows))
	for _, up := range rows {
		plant, err := s.plants.GetPlantDetail(ctx, up.PlantID)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				// The plant vanished between the two reads (catalog clear);
				// its association is gone too by now.
				continue
			}
			return nil, fmt.Errorf("joining plant %d: %w", up.PlantID, err)
		}
		entries = append(entries, model.GardenEntry{UserPlant: up, Plant: *plant})
	}
	return entries, nil
}

// Watch streams the user's garden. The current contents are sent first, then
// a fresh copy after every change. The channel is closed, and the broker
// subscription released, when ctx ends.
//
// Slow readers never block the store: notifications that pile up while a
// snapshot is being read or delivered collapse into one re-read.
func (s *GardenService) Watch(ctx context.Context, userID string) (<-chan []model.GardenEntry, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to watch a garden")
	}

	// Subscribe before the first read so no change can slip in between.
	sub, err := s.broker.Subscribe(ctx, events.GardenTopic(userID))
	if err != nil {
		return nil, fmt.Errorf("subscribing to garden changes: %w", err)
	}

	initial, err := s.List(ctx, userID)
	if err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan []model.GardenEntry, 1)
	out <- initial

	go func() {
		defer close(out)
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C:
				if !ok {
					return
				}
			}
			drain(sub.C)

			entries, err := s.List(ctx, userID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("failed to reload garden",
					slog.String("userID", userID),
					slog.String("error", err.Error()),
				)
				continue
			}

			select {
			case out <- entries:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// drain discards notifications already queued on c.
func drain(c <-chan []byte) {
	for {
		select {
		case _, ok := <-c:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// RecordWatering marks the plant as watered now. An association the user
// does not have is apperror.ErrNotFound.
func (s *GardenService) RecordWatering(ctx context.Context, userID, id string) error {
	if err := s.repo.SetLastWatered(ctx, userID, id, s.now()); err != nil {
		return fmt.Errorf("recording watering: %w", err)
	}
	return nil
}

func (s *GardenService) RecordFertilizing(ctx context.Context, userID, id string) error {
	if err := s.repo.SetLastFertilized(ctx, userID, id, s.now()); err != nil {
		return fmt.Errorf("recording fertilizing: %w", err)
	}
	return nil
}

// UpdateDetails edits the gardener-owned fields of an association and returns
// the updated row.
func (s *GardenService) UpdateDetails(ctx context.Context, userID, id string, in UpdateInput) (*model.UserPlant, error) {
	up, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if in.Nickname != nil {
		up.Nickname = *in.Nickname
	}
	if in.Notes != nil {
		up.Notes = *in.Notes
	}
	if in.PhotoURL != nil {
		up.PhotoURL = *in.PhotoURL
	}
	if in.PlantingDate != nil {
		if in.PlantingDate.After(s.now()) {
			return nil, apperror.ValidationFailed("plantingDate", "cannot be in the future")
		}
		up.PlantingDate = *in.PlantingDate
	}
	if err := validateDetails(&up.Nickname, &up.Notes, &up.PhotoURL); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateDetails(ctx, up); err != nil {
		return nil, fmt.Errorf("updating garden plant %s: %w", id, err)
	}
	return up, nil
}

// RemovePlant deletes the association. Removing something that is already
// gone succeeds.
func (s *GardenService) RemovePlant(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return fmt.Errorf("removing garden plant %s: %w", id, err)
	}
	s.logger.Info("plant removed from garden",
		slog.String("userID", userID),
		slog.String("id", id),
	)
	return nil
}

// Tasks derives the current care tasks for the garden, most urgent first.
// limit ≤ 0 returns all of them.
func (s *GardenService) Tasks(ctx context.Context, userID string, limit int) ([]model.Task, error) {
	entries, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	tasks := care.Derive(entries, s.now())
	if limit > 0 {
		tasks = care.Top(tasks, limit)
	}
	return tasks, nil
}

func validateDetails(nickname, notes, photo *string) error {
	*nickname = strings.TrimSpace(*nickname)
	*notes = strings.TrimSpace(*notes)
	*photo = strings.TrimSpace(*photo)

	if len(*nickname) > MaxNicknameLength {
		return apperror.ValidationFailed("nickname",
			fmt.Sprintf("nickname must be %d characters or less", MaxNicknameLength))
	}
	if len(*notes) > MaxNotesLength {
		return apperror.ValidationFailed("notes",
			fmt.Sprintf("notes must be %d characters or less", MaxNotesLength))
	}
	if len(*photo) > MaxPhotoURLLength {
		return apperror.ValidationFailed("photoUrl", "photo reference is too long")
	}
	return nil
}
