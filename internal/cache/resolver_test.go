package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// entry is the value type used by these tests: a payload plus the time it
// was captured, the same shape as a weather snapshot.
type entry struct {
	key   string
	value string
	at    time.Time
}

// fakeStore is an in-memory Load/Store pair.
type fakeStore struct {
	mu     sync.Mutex
	rows   map[string]entry
	writes int
}

func newFakeStore() *fakeStore { return &fakeStore{rows: map[string]entry{}} }

func (s *fakeStore) load(_ context.Context, key string) (entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[key]
	return e, ok, nil
}

func (s *fakeStore) store(_ context.Context, e entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[e.key] = e
	s.writes++
	return nil
}

var errOffline = errors.New("offline")

type harness struct {
	store   *fakeStore
	now     time.Time
	fetches atomic.Int32
	fetch   func(ctx context.Context, key string) (entry, bool, error)
	metrics *Metrics
	reg     *prometheus.Registry
}

func newHarness() *harness {
	reg := prometheus.NewRegistry()
	h := &harness{
		store:   newFakeStore(),
		now:     time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC),
		metrics: NewMetrics(reg),
		reg:     reg,
	}
	h.fetch = func(_ context.Context, key string) (entry, bool, error) {
		return entry{key: key, value: "remote", at: h.now}, true, nil
	}
	return h
}

func (h *harness) resolver() *Resolver[string, entry] {
	return New(Config[string, entry]{
		Name:  "test",
		Load:  h.store.load,
		Store: h.store.store,
		Fetch: func(ctx context.Context, key string) (entry, bool, error) {
			h.fetches.Add(1)
			return h.fetch(ctx, key)
		},
		Fresh: func(e entry, now time.Time) bool {
			return now.Sub(e.at) <= time.Hour
		},
		ServeStale: func(err error) bool { return errors.Is(err, errOffline) },
		Now:        func() time.Time { return h.now },
		Metrics:    h.metrics,
	})
}

func (h *harness) count(result string) float64 {
	return testutil.ToFloat64(h.metrics.lookups.WithLabelValues("test", result))
}

func TestGet_FreshHitSkipsFetch(t *testing.T) {
	h := newHarness()
	h.store.rows["a"] = entry{key: "a", value: "cached", at: h.now.Add(-time.Hour)}

	got, found, err := h.resolver().Get(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "cached", got.value)
	assert.Zero(t, h.fetches.Load())
	assert.Equal(t, 1.0, h.count(ResultHit))
}

func TestGet_MissFetchesAndStores(t *testing.T) {
	h := newHarness()

	got, found, err := h.resolver().Get(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "remote", got.value)
	assert.Equal(t, int32(1), h.fetches.Load())

	// Read-your-writes: the value is in the store before Get returns.
	stored, ok, _ := h.store.load(context.Background(), "a")
	assert.True(t, ok)
	assert.Equal(t, "remote", stored.value)
	assert.Equal(t, 1.0, h.count(ResultMiss))
}

func TestGet_StaleRefetches(t *testing.T) {
	h := newHarness()
	h.store.rows["a"] = entry{key: "a", value: "old", at: h.now.Add(-time.Hour - time.Millisecond)}

	got, _, err := h.resolver().Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "remote", got.value)
	assert.Equal(t, int32(1), h.fetches.Load())
}

func TestGet_ServesStaleOnAllowedError(t *testing.T) {
	h := newHarness()
	h.store.rows["a"] = entry{key: "a", value: "old", at: h.now.Add(-2 * time.Hour)}
	h.fetch = func(context.Context, string) (entry, bool, error) {
		return entry{}, false, errOffline
	}

	got, found, err := h.resolver().Get(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "old", got.value)
	assert.Equal(t, 0, h.store.writes)
	assert.Equal(t, 1.0, h.count(ResultStale))
}

func TestGet_OtherErrorsPropagateEvenWithCachedValue(t *testing.T) {
	h := newHarness()
	h.store.rows["a"] = entry{key: "a", value: "old", at: h.now.Add(-2 * time.Hour)}
	malformed := errors.New("malformed payload")
	h.fetch = func(context.Context, string) (entry, bool, error) {
		return entry{}, false, malformed
	}

	_, found, err := h.resolver().Get(context.Background(), "a")
	assert.ErrorIs(t, err, malformed)
	assert.False(t, found)
	assert.Equal(t, 1.0, h.count(ResultError))
}

func TestGet_FailureWithEmptyStore(t *testing.T) {
	h := newHarness()
	h.fetch = func(context.Context, string) (entry, bool, error) {
		return entry{}, false, errOffline
	}

	_, found, err := h.resolver().Get(context.Background(), "a")
	assert.ErrorIs(t, err, errOffline)
	assert.False(t, found)
}

func TestGet_RemoteNotFound(t *testing.T) {
	h := newHarness()
	h.fetch = func(context.Context, string) (entry, bool, error) {
		return entry{}, false, nil
	}

	_, found, err := h.resolver().Get(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, h.store.writes)
	assert.Equal(t, 1.0, h.count(ResultNotFound))
}

func TestGet_NilFreshNeverExpires(t *testing.T) {
	h := newHarness()
	h.store.rows["a"] = entry{key: "a", value: "ancient", at: h.now.AddDate(-5, 0, 0)}

	r := New(Config[string, entry]{
		Name:  "test",
		Load:  h.store.load,
		Store: h.store.store,
		Fetch: func(context.Context, string) (entry, bool, error) {
			h.fetches.Add(1)
			return entry{}, false, nil
		},
	})

	got, found, err := r.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ancient", got.value)
	assert.Zero(t, h.fetches.Load())
}

func TestGet_ConcurrentMissesShareOneFetch(t *testing.T) {
	h := newHarness()
	release := make(chan struct{})
	h.fetch = func(_ context.Context, key string) (entry, bool, error) {
		<-release
		return entry{key: key, value: "remote", at: h.now}, true, nil
	}
	r := h.resolver()

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan string, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := r.Get(context.Background(), "a")
			if err == nil {
				results <- v.value
			}
		}()
	}

	// Let every goroutine reach the in-flight call before it completes.
	require.Eventually(t, func() bool { return h.fetches.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	n := 0
	for v := range results {
		assert.Equal(t, "remote", v)
		n++
	}
	assert.Equal(t, callers, n)
	assert.Equal(t, int32(1), h.fetches.Load())
	assert.Equal(t, 1, h.store.writes)
}

func TestGet_CallerCancelDoesNotAbortSharedFetch(t *testing.T) {
	h := newHarness()
	release := make(chan struct{})
	h.fetch = func(ctx context.Context, key string) (entry, bool, error) {
		<-release
		if ctx.Err() != nil {
			return entry{}, false, ctx.Err()
		}
		return entry{key: key, value: "remote", at: h.now}, true, nil
	}
	r := h.resolver()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := r.Get(ctx, "a")
		done <- err
	}()

	require.Eventually(t, func() bool { return h.fetches.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		_, ok, _ := h.store.load(context.Background(), "a")
		return ok
	}, time.Second, time.Millisecond)
}
