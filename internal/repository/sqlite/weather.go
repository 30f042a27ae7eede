package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/garden-companion/internal/apperror"
	"github.com/sakif/garden-companion/internal/model"
	"github.com/sakif/garden-companion/internal/repository"
)

// WeatherDB stores weather snapshots. Rows are only ever inserted or pruned.
type WeatherDB struct {
	db *DB
}

var _ repository.WeatherRepository = (*WeatherDB)(nil)

const weatherColumns = `id, query, location_name, region, country, temp_c, temp_f,
	condition_text, condition_code, humidity, is_day, wind_kph, wind_dir,
	precip_mm, last_updated, captured_at`

// Insert stores a new snapshot and sets its ID. A zero CapturedAt is filled
// with the current time.
func (w *WeatherDB) Insert(ctx context.Context, s *model.WeatherSnapshot) error {
	if s.CapturedAt.IsZero() {
		s.CapturedAt = time.Now()
	}
	s.CapturedAt = s.CapturedAt.UTC().Truncate(time.Millisecond)

	res, err := w.db.conn.ExecContext(ctx,
		`INSERT INTO weather_snapshots (query, location_name, region, country, temp_c, temp_f,
			condition_text, condition_code, humidity, is_day, wind_kph, wind_dir,
			precip_mm, last_updated, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Query, s.LocationName, s.Region, s.Country, s.TempC, s.TempF,
		s.ConditionText, s.ConditionCode, s.Humidity, s.IsDay, s.WindKph, s.WindDir,
		s.PrecipMM, s.LastUpdated, s.CapturedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting weather snapshot for %q: %w", s.Query, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading weather snapshot id: %w", err)
	}
	s.ID = id
	return nil
}

// Latest returns the newest snapshot captured for query. Ties on captured_at
// go to the row inserted last.
func (w *WeatherDB) Latest(ctx context.Context, query string) (*model.WeatherSnapshot, error) {
	var (
		s          model.WeatherSnapshot
		capturedMs int64
	)
	err := w.db.conn.QueryRowContext(ctx,
		`SELECT `+weatherColumns+`
		 FROM weather_snapshots
		 WHERE query = ?
		 ORDER BY captured_at DESC, id DESC
		 LIMIT 1`,
		query,
	).Scan(
		&s.ID, &s.Query, &s.LocationName, &s.Region, &s.Country, &s.TempC, &s.TempF,
		&s.ConditionText, &s.ConditionCode, &s.Humidity, &s.IsDay, &s.WindKph, &s.WindDir,
		&s.PrecipMM, &s.LastUpdated, &capturedMs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("weather snapshot", query)
		}
		return nil, fmt.Errorf("sqlite: reading latest weather for %q: %w", query, err)
	}

	s.CapturedAt = time.UnixMilli(capturedMs).UTC()
	return &s, nil
}

// DeleteBefore prunes snapshots captured strictly before t.
func (w *WeatherDB) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := w.db.conn.ExecContext(ctx,
		`DELETE FROM weather_snapshots WHERE captured_at < ?`,
		t.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: pruning weather snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}
