package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sakif/garden-companion/internal/apperror"
	"github.com/sakif/garden-companion/internal/model"
)

// =========================================================================
// HAND-WRITTEN FAKES
// =========================================================================
//
// Each fake is an in-memory implementation of one interface the services
// depend on. They record how often they were called so tests can assert
// "the provider was not contacted", and they take an injectable error to
// simulate failures that are hard to trigger against the real thing.

// --- weather -------------------------------------------------------------

type fakeWeatherRepo struct {
	mu      sync.Mutex
	rows    []model.WeatherSnapshot
	inserts int
}

func (f *fakeWeatherRepo) Insert(_ context.Context, s *model.WeatherSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	s.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, *s)
	return nil
}

func (f *fakeWeatherRepo) Latest(_ context.Context, query string) (*model.WeatherSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].Query == query {
			s := f.rows[i]
			return &s, nil
		}
	}
	return nil, apperror.NotFound("weather snapshot", query)
}

func (f *fakeWeatherRepo) DeleteBefore(_ context.Context, t time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.rows[:0]
	var n int64
	for _, r := range f.rows {
		if r.CapturedAt.Before(t) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	return n, nil
}

type fakeWeatherProvider struct {
	mu      sync.Mutex
	calls   int
	queries []string
	tempC   float64
	err     error
}

func (f *fakeWeatherProvider) Current(_ context.Context, query string) (*model.WeatherSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return &model.WeatherSnapshot{LocationName: query, TempC: f.tempC, ConditionText: "Sunny"}, nil
}

// --- plants --------------------------------------------------------------

type fakePlantRepo struct {
	mu     sync.Mutex
	plants map[int64]model.Plant
}

func newFakePlantRepo() *fakePlantRepo {
	return &fakePlantRepo{plants: map[int64]model.Plant{}}
}

func (f *fakePlantRepo) Upsert(_ context.Context, p *model.Plant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plants[p.ID] = *p
	return nil
}

func (f *fakePlantRepo) GetByID(_ context.Context, id int64) (*model.Plant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plants[id]
	if !ok {
		return nil, apperror.NotFound("plant", strconv.FormatInt(id, 10))
	}
	return &p, nil
}

func (f *fakePlantRepo) DeleteAll(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.plants))
	f.plants = map[int64]model.Plant{}
	return n, nil
}

// fakeCatalog knows the plants in its map. Any other id comes back as
// (nil, nil), the provider's "no such record".
type fakeCatalog struct {
	mu         sync.Mutex
	plants     map[int64]model.Plant
	detailHits int
	searches   []string
	pages      []int
	err        error
}

func newFakeCatalog(plants ...model.Plant) *fakeCatalog {
	c := &fakeCatalog{plants: map[int64]model.Plant{}}
	for _, p := range plants {
		c.plants[p.ID] = p
	}
	return c
}

func (f *fakeCatalog) Detail(_ context.Context, id int64) (*model.Plant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailHits++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.plants[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeCatalog) Search(_ context.Context, query string, page int) (*model.PlantPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, query)
	f.pages = append(f.pages, page)
	if f.err != nil {
		return nil, f.err
	}
	out := &model.PlantPage{CurrentPage: page, LastPage: 3, PerPage: 30, Total: 90}
	for _, p := range f.plants {
		out.Items = append(out.Items, model.PlantSummary{ID: p.ID, CommonName: p.CommonName})
	}
	return out, nil
}

// --- users ---------------------------------------------------------------

type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[string]*model.User
	nextID  int
	touched map[string]time.Time

	createErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*model.User{}, touched: map[string]time.Time{}}
}

func (f *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.users {
		if u.Email != "" && existing.Email == u.Email {
			return apperror.Conflict("user", u.Email)
		}
	}
	f.nextID++
	u.ID = fmt.Sprintf("user-%d", f.nextID)
	u.CreatedAt = time.Now()
	u.LastActiveAt = u.CreatedAt
	stored := *u
	f.users[u.ID] = &stored
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	out := *u
	return &out, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) UpsertGitHub(ctx context.Context, u *model.User) error {
	f.mu.Lock()
	for _, existing := range f.users {
		if existing.GitHubID != nil && *existing.GitHubID == *u.GitHubID {
			existing.DisplayName = u.DisplayName
			existing.ProfileImage = u.ProfileImage
			*u = *existing
			f.mu.Unlock()
			return nil
		}
	}
	f.mu.Unlock()
	return f.Create(ctx, u)
}

func (f *fakeUserRepo) TouchLastActive(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.LastActiveAt = at
	f.touched[id] = at
	return nil
}

func (f *fakeUserRepo) touchedAt(id string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.touched[id]
	return t, ok
}
