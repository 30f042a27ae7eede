package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sakif/garden-companion/internal/apperror"
	"github.com/sakif/garden-companion/internal/cache"
	"github.com/sakif/garden-companion/internal/model"
	"github.com/sakif/garden-companion/internal/repository"
)

const MaxSearchQueryLength = 100

// PlantOptions tunes a PlantService.
type PlantOptions struct {
	Now     Clock
	Logger  *slog.Logger
	Metrics *cache.Metrics
}

// PlantService serves catalog records.
//
// Details are cached permanently: once a plant is in the local store it is
// returned from there and the catalog is never asked again. The only way to
// refresh the cache is ClearCatalog. Searches always go to the catalog.
type PlantService struct {
	repo     repository.PlantRepository
	catalog  PlantCatalog
	resolver *cache.Resolver[int64, *model.Plant]
	logger   *slog.Logger
}

func NewPlantService(repo repository.PlantRepository, catalog PlantCatalog, opts PlantOptions) *PlantService {
	now := orNow(opts.Now)
	logger := orDiscard(opts.Logger)

	return &PlantService{
		repo:    repo,
		catalog: catalog,
		logger:  logger,
		resolver: cache.New(cache.Config[int64, *model.Plant]{
			Name: "plant",
			Load: func(ctx context.Context, id int64) (*model.Plant, bool, error) {
				p, err := repo.GetByID(ctx, id)
				if errors.Is(err, apperror.ErrNotFound) {
					return nil, false, nil
				}
				if err != nil {
					return nil, false, err
				}
				return p, true, nil
			},
			Fetch: func(ctx context.Context, id int64) (*model.Plant, bool, error) {
				p, err := catalog.Detail(ctx, id)
				if err != nil || p == nil {
					return nil, false, err
				}
				p.CapturedAt = now()
				return p, true, nil
			},
			Store:   repo.Upsert,
			Now:     now,
			Logger:  logger,
			Metrics: opts.Metrics,
		}),
	}
}

// GetPlantDetail returns the catalog record for id. An id the catalog does
// not know is apperror.ErrNotFound.
func (s *PlantService) GetPlantDetail(ctx context.Context, id int64) (*model.Plant, error) {
	if id <= 0 {
		return nil, apperror.ValidationFailed("id", "plant ID must be positive")
	}

	p, found, err := s.resolver.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting plant %d: %w", id, err)
	}
	if !found {
		return nil, apperror.NotFound("plant", strconv.FormatInt(id, 10))
	}
	return p, nil
}

// Search passes a text search through to the catalog. Page numbers start
// at 1; anything lower is treated as 1.
func (s *PlantService) Search(ctx context.Context, query string, page int) (*model.PlantPage, error) {
	query = strings.TrimSpace(query)
	if len(query) > MaxSearchQueryLength {
		return nil, apperror.ValidationFailed("q",
			fmt.Sprintf("search query must be %d characters or less", MaxSearchQueryLength))
	}
	if page < 1 {
		page = 1
	}

	result, err := s.catalog.Search(ctx, query, page)
	if err != nil {
		return nil, fmt.Errorf("searching plants for %q: %w", query, err)
	}
	return result, nil
}

// ClearCatalog drops every cached plant. Garden rows referencing them go
// too, and their owners are notified by the store.
func (s *PlantService) ClearCatalog(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("clearing plant catalog: %w", err)
	}
	s.logger.Info("plant catalog cleared", slog.Int64("deleted", n))
	return n, nil
}
