package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/garden-companion/internal/apperror"
	"github.com/sakif/garden-companion/internal/model"
)

func insertSnapshot(t *testing.T, db *DB, query string, at time.Time, tempC float64) *model.WeatherSnapshot {
	t.Helper()
	s := &model.WeatherSnapshot{Query: query, LocationName: query, TempC: tempC, CapturedAt: at}
	if err := db.Weather().Insert(context.Background(), s); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	return s
}

func TestWeatherLatest(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	insertSnapshot(t, db, "London", base, 15)
	insertSnapshot(t, db, "London", base.Add(time.Hour), 17)
	insertSnapshot(t, db, "Paris", base.Add(2*time.Hour), 25)

	got, err := db.Weather().Latest(context.Background(), "London")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got.TempC != 17 {
		t.Errorf("TempC = %v, want 17 (the newest London row)", got.TempC)
	}
}

func TestWeatherLatest_TieGoesToLastInsert(t *testing.T) {
	db := newTestDB(t)
	at := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	insertSnapshot(t, db, "London", at, 10)
	insertSnapshot(t, db, "London", at, 11)

	got, err := db.Weather().Latest(context.Background(), "London")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got.TempC != 11 {
		t.Errorf("TempC = %v, want 11", got.TempC)
	}
}

func TestWeatherLatest_MillisecondPrecision(t *testing.T) {
	db := newTestDB(t)
	at := time.Date(2024, 7, 1, 12, 0, 0, 123_456_789, time.UTC)

	insertSnapshot(t, db, "London", at, 10)

	got, err := db.Weather().Latest(context.Background(), "London")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	want := at.Truncate(time.Millisecond)
	if !got.CapturedAt.Equal(want) {
		t.Errorf("CapturedAt = %v, want %v", got.CapturedAt, want)
	}
}

func TestWeatherLatest_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Weather().Latest(context.Background(), "Atlantis")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Latest() error = %v, want ErrNotFound", err)
	}
}

func TestWeatherDeleteBefore(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	insertSnapshot(t, db, "London", base, 1)
	insertSnapshot(t, db, "London", base.Add(time.Hour), 2)
	insertSnapshot(t, db, "London", base.Add(2*time.Hour), 3)

	// The cutoff itself is kept: only rows strictly before it go.
	n, err := db.Weather().DeleteBefore(context.Background(), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteBefore() = %d, want 1", n)
	}
}
