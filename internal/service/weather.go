package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/garden-companion/internal/apperror"
	"github.com/sakif/garden-companion/internal/cache"
	"github.com/sakif/garden-companion/internal/model"
	"github.com/sakif/garden-companion/internal/repository"
)

const (
	DefaultFallbackLocation = "London"
	DefaultWeatherTTL       = time.Hour
)

// WeatherOptions tunes a WeatherService. Zero values pick the defaults.
type WeatherOptions struct {
	// FallbackLocation is queried when the device location is unknown.
	FallbackLocation string
	// TTL is how long a stored snapshot counts as fresh. The boundary itself
	// is still fresh.
	TTL     time.Duration
	Now     Clock
	Logger  *slog.Logger
	Metrics *cache.Metrics
}

// WeatherService answers "what is the weather here" from the local store when
// it can and from the provider when it must.
//
// FRESHNESS:
// A snapshot is fresh while now − capturedAt ≤ TTL, compared in whole
// milliseconds. Stale snapshots trigger a fetch. If that fetch fails because
// the provider is unreachable, the stale snapshot is returned anyway; any
// other failure (bad key, unparseable payload) is reported.
type WeatherService struct {
	repo     repository.WeatherRepository
	resolver *cache.Resolver[string, *model.WeatherSnapshot]
	fallback string
	now      Clock
	logger   *slog.Logger
}

func NewWeatherService(repo repository.WeatherRepository, provider WeatherProvider, opts WeatherOptions) *WeatherService {
	if opts.FallbackLocation == "" {
		opts.FallbackLocation = DefaultFallbackLocation
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultWeatherTTL
	}
	now := orNow(opts.Now)
	logger := orDiscard(opts.Logger)
	ttlMs := opts.TTL.Milliseconds()

	s := &WeatherService{
		repo:     repo,
		fallback: opts.FallbackLocation,
		now:      now,
		logger:   logger,
	}
	s.resolver = cache.New(cache.Config[string, *model.WeatherSnapshot]{
		Name: "weather",
		Load: func(ctx context.Context, query string) (*model.WeatherSnapshot, bool, error) {
			snap, err := repo.Latest(ctx, query)
			if errors.Is(err, apperror.ErrNotFound) {
				return nil, false, nil
			}
			if err != nil {
				return nil, false, err
			}
			return snap, true, nil
		},
		Fetch: func(ctx context.Context, query string) (*model.WeatherSnapshot, bool, error) {
			snap, err := provider.Current(ctx, query)
			if err != nil {
				return nil, false, err
			}
			if snap == nil {
				return nil, false, nil
			}
			snap.Query = query
			snap.CapturedAt = now()
			return snap, true, nil
		},
		Store: repo.Insert,
		Fresh: func(snap *model.WeatherSnapshot, at time.Time) bool {
			return at.UnixMilli()-snap.CapturedAt.UnixMilli() <= ttlMs
		},
		ServeStale: func(err error) bool {
			return errors.Is(err, apperror.ErrUnavailable)
		},
		Now:     now,
		Logger:  logger,
		Metrics: opts.Metrics,
	})
	return s
}

// GetWeather returns current conditions for coords, or for the fallback
// location when coords is nil.
func (s *WeatherService) GetWeather(ctx context.Context, coords *model.Coordinates) (*model.WeatherSnapshot, error) {
	query := s.fallback
	if coords != nil {
		if coords.Lat < -90 || coords.Lat > 90 {
			return nil, apperror.ValidationFailed("lat", "must be between -90 and 90")
		}
		if coords.Lon < -180 || coords.Lon > 180 {
			return nil, apperror.ValidationFailed("lon", "must be between -180 and 180")
		}
		query = coords.Query()
	}

	snap, found, err := s.resolver.Get(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("getting weather for %q: %w", query, err)
	}
	if !found {
		return nil, apperror.NotFound("weather", query)
	}
	return snap, nil
}

// Prune deletes snapshots captured more than olderThan ago and reports how
// many went.
func (s *WeatherService) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, apperror.ValidationFailed("olderThan", "must be positive")
	}

	n, err := s.repo.DeleteBefore(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("pruning weather snapshots: %w", err)
	}

	s.logger.Info("weather snapshots pruned",
		slog.Int64("deleted", n),
		slog.Duration("olderThan", olderThan),
	)
	return n, nil
}
