package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/garden-companion/internal/apperror"
	"github.com/sakif/garden-companion/internal/model"
	"github.com/sakif/garden-companion/internal/repository"
)

// listSeparator joins ordered string lists (scientific names, sunlight) into a
// single TEXT column.
const listSeparator = ", "

// PlantDB caches catalog records. Cached rows have no expiry.
type PlantDB struct {
	db *DB
}

var _ repository.PlantRepository = (*PlantDB)(nil)

// Upsert inserts the record or overwrites every column of an existing one.
//
// ON CONFLICT DO UPDATE rather than INSERT OR REPLACE: REPLACE deletes the old
// row first, which would cascade-delete every garden association that points
// at this plant.
func (p *PlantDB) Upsert(ctx context.Context, plant *model.Plant) error {
	if plant.CapturedAt.IsZero() {
		plant.CapturedAt = time.Now()
	}
	plant.CapturedAt = plant.CapturedAt.UTC()

	_, err := p.db.conn.ExecContext(ctx,
		`INSERT INTO plants (id, common_name, scientific_name, family, genus, image_url,
			description, cycle, watering, sunlight, growth_rate, drought_tolerant,
			salt_tolerant, indoor, flowers, cones, fruits, leaf, care_level, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			common_name = excluded.common_name,
			scientific_name = excluded.scientific_name,
			family = excluded.family,
			genus = excluded.genus,
			image_url = excluded.image_url,
			description = excluded.description,
			cycle = excluded.cycle,
			watering = excluded.watering,
			sunlight = excluded.sunlight,
			growth_rate = excluded.growth_rate,
			drought_tolerant = excluded.drought_tolerant,
			salt_tolerant = excluded.salt_tolerant,
			indoor = excluded.indoor,
			flowers = excluded.flowers,
			cones = excluded.cones,
			fruits = excluded.fruits,
			leaf = excluded.leaf,
			care_level = excluded.care_level,
			captured_at = excluded.captured_at`,
		plant.ID, plant.CommonName, joinList(plant.ScientificName), plant.Family, plant.Genus,
		plant.ImageURL, plant.Description, plant.Cycle, plant.Watering, joinList(plant.Sunlight),
		plant.GrowthRate, plant.DroughtTolerant, plant.SaltTolerant, plant.Indoor,
		plant.Flowers, plant.Cones, plant.Fruits, plant.Leaf, plant.CareLevel, plant.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting plant %d: %w", plant.ID, err)
	}
	return nil
}

// GetByID returns apperror.ErrNotFound when the plant has not been cached.
func (p *PlantDB) GetByID(ctx context.Context, id int64) (*model.Plant, error) {
	var (
		plant              model.Plant
		scientific, sunlit string
	)
	err := p.db.conn.QueryRowContext(ctx,
		`SELECT id, common_name, scientific_name, family, genus, image_url, description,
			cycle, watering, sunlight, growth_rate, drought_tolerant, salt_tolerant, indoor,
			flowers, cones, fruits, leaf, care_level, captured_at
		 FROM plants WHERE id = ?`,
		id,
	).Scan(
		&plant.ID, &plant.CommonName, &scientific, &plant.Family, &plant.Genus,
		&plant.ImageURL, &plant.Description, &plant.Cycle, &plant.Watering, &sunlit,
		&plant.GrowthRate, &plant.DroughtTolerant, &plant.SaltTolerant, &plant.Indoor,
		&plant.Flowers, &plant.Cones, &plant.Fruits, &plant.Leaf, &plant.CareLevel,
		&plant.CapturedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("plant", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting plant %d: %w", id, err)
	}

	plant.ScientificName = splitList(scientific)
	plant.Sunlight = splitList(sunlit)
	return &plant, nil
}

// DeleteAll clears the catalog cache. Garden associations cascade with it, so
// the owners of those associations are notified once the delete commits.
func (p *PlantDB) DeleteAll(ctx context.Context) (int64, error) {
	tx, err := p.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: beginning catalog clear: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT user_id FROM user_plants`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: listing garden owners: %w", err)
	}
	var owners []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("sqlite: scanning garden owner: %w", err)
		}
		owners = append(owners, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("sqlite: iterating garden owners: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM plants`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: clearing plants: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: committing catalog clear: %w", err)
	}

	for _, owner := range owners {
		p.db.notifyGarden(ctx, owner, "cleared")
	}
	return n, nil
}

func joinList(items []string) string {
	return strings.Join(items, listSeparator)
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, listSeparator)
}
