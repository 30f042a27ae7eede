package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/garden-companion/internal/apperror"
	"github.com/sakif/garden-companion/internal/model"
	"github.com/sakif/garden-companion/internal/repository"
)

// GardenDB stores user ↔ plant associations.
type GardenDB struct {
	db *DB
}

var _ repository.UserPlantRepository = (*GardenDB)(nil)

const userPlantColumns = `id, user_id, plant_id, nickname, planting_date, photo_url, notes,
	last_watered, last_fertilized, date_added`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserPlant(s rowScanner) (*model.UserPlant, error) {
	var (
		up                  model.UserPlant
		watered, fertilized sql.NullTime
	)
	if err := s.Scan(
		&up.ID, &up.UserID, &up.PlantID, &up.Nickname, &up.PlantingDate, &up.PhotoURL,
		&up.Notes, &watered, &fertilized, &up.DateAdded,
	); err != nil {
		return nil, err
	}
	if watered.Valid {
		t := watered.Time
		up.LastWatered = &t
	}
	if fertilized.Valid {
		t := fertilized.Time
		up.LastFertilized = &t
	}
	return &up, nil
}

// Create inserts a new association and fills in ID and DateAdded.
//
// A second association for the same (user, plant) pair violates the UNIQUE
// constraint and comes back as apperror.ErrConflict; a missing user or plant
// row comes back as apperror.ErrNotFound.
func (g *GardenDB) Create(ctx context.Context, up *model.UserPlant) error {
	up.ID = xid.New().String()
	if up.DateAdded.IsZero() {
		up.DateAdded = time.Now()
	}
	up.DateAdded = up.DateAdded.UTC()
	if up.PlantingDate.IsZero() {
		up.PlantingDate = up.DateAdded
	}
	up.PlantingDate = up.PlantingDate.UTC()

	_, err := g.db.conn.ExecContext(ctx,
		`INSERT INTO user_plants (`+userPlantColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		up.ID, up.UserID, up.PlantID, up.Nickname, up.PlantingDate, up.PhotoURL, up.Notes,
		nullTime(up.LastWatered), nullTime(up.LastFertilized), up.DateAdded,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return apperror.Conflict("garden plant", fmt.Sprintf("%s/%d", up.UserID, up.PlantID))
		case isForeignKeyViolation(err):
			return apperror.NotFound("user or plant", fmt.Sprintf("%s/%d", up.UserID, up.PlantID))
		}
		return fmt.Errorf("sqlite: creating garden plant: %w", err)
	}

	g.db.notifyGarden(ctx, up.UserID, "added")
	return nil
}

// GetByID returns the association only if it belongs to userID.
func (g *GardenDB) GetByID(ctx context.Context, userID, id string) (*model.UserPlant, error) {
	up, err := scanUserPlant(g.db.conn.QueryRowContext(ctx,
		`SELECT `+userPlantColumns+` FROM user_plants WHERE id = ? AND user_id = ?`,
		id, userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("garden plant", id)
		}
		return nil, fmt.Errorf("sqlite: getting garden plant %s: %w", id, err)
	}
	return up, nil
}

func (g *GardenDB) GetByUserAndPlant(ctx context.Context, userID string, plantID int64) (*model.UserPlant, error) {
	up, err := scanUserPlant(g.db.conn.QueryRowContext(ctx,
		`SELECT `+userPlantColumns+` FROM user_plants WHERE user_id = ? AND plant_id = ?`,
		userID, plantID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("garden plant", strconv.FormatInt(plantID, 10))
		}
		return nil, fmt.Errorf("sqlite: getting garden plant %s/%d: %w", userID, plantID, err)
	}
	return up, nil
}

// ListByUser returns the user's garden, most recently added first. xids sort
// by creation time, so id DESC breaks ties on identical timestamps.
func (g *GardenDB) ListByUser(ctx context.Context, userID string) ([]model.UserPlant, error) {
	rows, err := g.db.conn.QueryContext(ctx,
		`SELECT `+userPlantColumns+`
		 FROM user_plants
		 WHERE user_id = ?
		 ORDER BY date_added DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing garden for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []model.UserPlant
	for rows.Next() {
		up, err := scanUserPlant(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning garden row: %w", err)
		}
		out = append(out, *up)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating garden rows: %w", err)
	}
	return out, nil
}

func (g *GardenDB) SetLastWatered(ctx context.Context, userID, id string, at time.Time) error {
	return g.setTimestamp(ctx, "last_watered", "watered", userID, id, at)
}

func (g *GardenDB) SetLastFertilized(ctx context.Context, userID, id string, at time.Time) error {
	return g.setTimestamp(ctx, "last_fertilized", "fertilized", userID, id, at)
}

// setTimestamp updates one of the care timestamp columns. column is always a
// constant from this file, never user input.
func (g *GardenDB) setTimestamp(ctx context.Context, column, op, userID, id string, at time.Time) error {
	res, err := g.db.conn.ExecContext(ctx,
		`UPDATE user_plants SET `+column+` = ? WHERE id = ? AND user_id = ?`,
		at.UTC(), id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting %s on %s: %w", column, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("garden plant", id)
	}

	g.db.notifyGarden(ctx, userID, op)
	return nil
}

// UpdateDetails saves the editable fields: nickname, notes, photo and
// planting date.
func (g *GardenDB) UpdateDetails(ctx context.Context, up *model.UserPlant) error {
	res, err := g.db.conn.ExecContext(ctx,
		`UPDATE user_plants
		 SET nickname = ?, notes = ?, photo_url = ?, planting_date = ?
		 WHERE id = ? AND user_id = ?`,
		up.Nickname, up.Notes, up.PhotoURL, up.PlantingDate.UTC(), up.ID, up.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating garden plant %s: %w", up.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("garden plant", up.ID)
	}

	g.db.notifyGarden(ctx, up.UserID, "updated")
	return nil
}

// Delete removes the association. It reports success whenever the statement
// executes, whether or not a row matched.
func (g *GardenDB) Delete(ctx context.Context, userID, id string) error {
	res, err := g.db.conn.ExecContext(ctx,
		`DELETE FROM user_plants WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting garden plant %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		g.db.notifyGarden(ctx, userID, "removed")
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
