// Package service contains the business logic layer of the application.
//
// THE LAYERS:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes the local store
//	Remote clients           → talk to the weather and plant providers
//
// Services accept interfaces and never import the sqlite package or the
// concrete provider clients. The CLI (cmd/garden) calls the same services as
// the HTTP handlers, which is the main reason this layer knows nothing about
// HTTP.
//
// DEPENDENCY INJECTION:
// Every service is built by the composition root (internal/server) with its
// repositories, remote clients, broker and clock passed in. Tests pass
// hand-written fakes instead; see the *_test.go files.
package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/sakif/garden-companion/internal/model"
)

// WeatherProvider is the remote source of current conditions.
// weatherapi.Client satisfies it.
type WeatherProvider interface {
	Current(ctx context.Context, query string) (*model.WeatherSnapshot, error)
}

// PlantCatalog is the remote plant catalog. perenual.Client satisfies it.
//
// Detail returns (nil, nil) when the catalog has no record for id.
type PlantCatalog interface {
	Detail(ctx context.Context, id int64) (*model.Plant, error)
	Search(ctx context.Context, query string, page int) (*model.PlantPage, error)
}

// Clock returns the current time. Services take one so tests can pin "now".
type Clock func() time.Time

func orNow(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

func orDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l
}
