// Package cache implements the cache-aside lookup used for every entity that
// is owned by a remote provider but mirrored in the local store.
//
// THE SHAPE:
//
//	load from store ──fresh?──► return
//	      │ miss / stale
//	      ▼
//	fetch from remote ──► store ──► return
//	      │ error
//	      ▼
//	serve the stale copy if the error allows it, otherwise fail
//
// Weather and plant details only differ in their freshness policy and in
// which errors a stale copy may hide, so both are a Resolver with different
// Config funcs.
package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

// Lookup outcomes recorded in garden_cache_lookups_total.
const (
	ResultHit      = "hit"
	ResultMiss     = "miss"
	ResultStale    = "stale"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Metrics is shared by every resolver registered on the same registry.
type Metrics struct {
	lookups *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		lookups: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "garden_cache_lookups_total",
			Help: "Cache-aside lookups by cache and outcome.",
		}, []string{"cache", "result"}),
	}
}

// Config describes one cached entity kind.
type Config[K comparable, V any] struct {
	// Name labels metrics and logs ("weather", "plant").
	Name string

	// Load reads the local store. found=false is a miss, not an error.
	Load func(ctx context.Context, key K) (v V, found bool, err error)
	// Fetch calls the remote. found=false means the remote has no such
	// record.
	Fetch func(ctx context.Context, key K) (v V, found bool, err error)
	// Store persists a fetched value before it is returned.
	Store func(ctx context.Context, v V) error

	// Fresh decides whether a stored value can be returned without a fetch.
	// nil means stored values never go stale.
	Fresh func(v V, now time.Time) bool
	// ServeStale decides whether a fetch error may be hidden by returning
	// the stored value. nil means never.
	ServeStale func(err error) bool

	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *Metrics
}

type Resolver[K comparable, V any] struct {
	cfg   Config[K, V]
	group singleflight.Group
}

func New[K comparable, V any](cfg Config[K, V]) *Resolver[K, V] {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver[K, V]{cfg: cfg}
}

// fetched is what the shared singleflight call hands to every waiter.
type fetched[V any] struct {
	v     V
	found bool
}

// Get returns the value for key, going to the remote only when the store has
// nothing fresh. found=false with a nil error means neither the store nor the
// remote knows the key.
//
// Concurrent misses for one key share a single fetch and a single store
// write. That shared call does not inherit any one caller's cancellation; a
// caller whose ctx ends just stops waiting for it.
func (r *Resolver[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var zero V

	cached, found, err := r.cfg.Load(ctx, key)
	if err != nil {
		r.observe(ResultError)
		return zero, false, fmt.Errorf("%s cache: loading %v: %w", r.cfg.Name, key, err)
	}
	if found && r.isFresh(cached) {
		r.observe(ResultHit)
		return cached, true, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(fmt.Sprint(key), func() (any, error) {
		v, ok, err := r.cfg.Fetch(detached, key)
		if err != nil || !ok {
			return fetched[V]{}, err
		}
		if err := r.cfg.Store(detached, v); err != nil {
			return fetched[V]{}, fmt.Errorf("%s cache: storing %v: %w", r.cfg.Name, key, err)
		}
		return fetched[V]{v: v, found: true}, nil
	})

	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if found && r.cfg.ServeStale != nil && r.cfg.ServeStale(res.Err) {
				r.observe(ResultStale)
				r.cfg.Logger.Warn("serving stale cache entry",
					slog.String("cache", r.cfg.Name),
					slog.Any("key", key),
					slog.String("error", res.Err.Error()),
				)
				return cached, true, nil
			}
			r.observe(ResultError)
			return zero, false, res.Err
		}

		f := res.Val.(fetched[V])
		if !f.found {
			r.observe(ResultNotFound)
			return zero, false, nil
		}
		r.observe(ResultMiss)
		return f.v, true, nil
	}
}

func (r *Resolver[K, V]) isFresh(v V) bool {
	if r.cfg.Fresh == nil {
		return true
	}
	return r.cfg.Fresh(v, r.cfg.Now())
}

func (r *Resolver[K, V]) observe(result string) {
	if r.cfg.Metrics == nil {
		return
	}
	r.cfg.Metrics.lookups.WithLabelValues(r.cfg.Name, result).Inc()
}
