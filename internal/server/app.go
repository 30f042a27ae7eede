package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/garden-companion/internal/auth"
	"github.com/sakif/garden-companion/internal/cache"
	"github.com/sakif/garden-companion/internal/config"
	"github.com/sakif/garden-companion/internal/events"
	"github.com/sakif/garden-companion/internal/remote/perenual"
	"github.com/sakif/garden-companion/internal/remote/weatherapi"
	sqliteRepo "github.com/sakif/garden-companion/internal/repository/sqlite"
	"github.com/sakif/garden-companion/internal/service"
)

// redisPrefix namespaces the broker's channels inside a shared Redis.
const redisPrefix = "garden-companion:"

// App is the dependency graph shared by the HTTP server and the CLI.
//
// COMPOSITION ROOT:
// Every concrete type (SQLite store, REST clients, broker, token service) is
// created here and nowhere else. Everything below receives interfaces.
//
//	config ─┬─ sqlite.DB ──────────┬─ WeatherService ← weatherapi.Client
//	        ├─ Broker (mem/redis) ─┤─ PlantService   ← perenual.Client
//	        └─ prometheus registry ┤─ GardenService
//	                               └─ AuthService    ← TokenService, PasswordService
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *sqliteRepo.DB
	Broker   events.Broker
	Registry *prometheus.Registry

	Weather *service.WeatherService
	Plants  *service.PlantService
	Garden  *service.GardenService

	// Auth, Tokens and Sessions are nil when JWT_SECRET is not set.
	Auth     *service.AuthService
	Tokens   *auth.TokenService
	Sessions *service.SessionTracker
	// GitHub is nil unless GitHub sign-in is configured.
	GitHub *auth.GitHubProvider
}

// NewApp opens the store, connects the broker and wires the services.
// The caller owns the App and must Close it.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if dir := filepath.Dir(cfg.DBPath); cfg.DBPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	broker, err := newBroker(ctx, cfg, logger, reg)
	if err != nil {
		return nil, err
	}

	db, err := sqliteRepo.New(cfg.DBPath, sqliteRepo.WithNotifier(broker), sqliteRepo.WithLogger(logger))
	if err != nil {
		broker.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	metrics := cache.NewMetrics(reg)
	weather := service.NewWeatherService(
		db.Weather(),
		weatherapi.New(cfg.WeatherBaseURL, cfg.WeatherAPIKey, cfg.HTTPTimeout),
		service.WeatherOptions{
			FallbackLocation: cfg.FallbackLocation,
			TTL:              cfg.WeatherTTL,
			Logger:           logger,
			Metrics:          metrics,
		},
	)
	plants := service.NewPlantService(
		db.Plants(),
		perenual.New(cfg.PlantBaseURL, cfg.PlantAPIKey, cfg.HTTPTimeout),
		service.PlantOptions{Logger: logger, Metrics: metrics},
	)

	app := &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Broker:   broker,
		Registry: reg,
		Weather:  weather,
		Plants:   plants,
		Garden:   service.NewGardenService(db.Garden(), plants, broker, nil, logger),
	}

	if cfg.AuthEnabled() {
		tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("creating token service: %w", err)
		}
		app.Tokens = tokens
		app.Auth = service.NewAuthService(
			db.Users(),
			tokens,
			auth.NewPasswordService(),
			service.NewSessionPublisher(broker, nil, logger),
			logger,
		)
		app.Sessions = service.NewSessionTracker(broker, db.Users(), logger)

		if cfg.GitHubEnabled() {
			app.GitHub = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
		}
	}

	return app, nil
}

// newBroker picks Redis when REDIS_ADDR is set and the in-process broker
// otherwise.
func newBroker(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (events.Broker, error) {
	if cfg.RedisAddr == "" {
		return events.NewMemoryBroker(events.DefaultBufferSize, logger, reg), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("event broker: redis", slog.String("addr", cfg.RedisAddr))
	return events.NewRedisBroker(client, redisPrefix, logger), nil
}

// Close releases the broker and the database. Subscriptions end first so
// nothing reads from a closed store.
func (a *App) Close() error {
	var errs []error
	if a.Broker != nil {
		errs = append(errs, a.Broker.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
