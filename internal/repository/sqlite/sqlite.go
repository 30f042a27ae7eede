// Package sqlite implements the repository interfaces on SQLite.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary builds
// without cgo and the store is a single file next to the server (or ":memory:"
// in tests).
//
// The DB type owns the connection pool and hands out one small accessor per
// entity kind: Weather(), Plants(), Garden(), Users(). They share the pool and
// the change notifier.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	driver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/garden-companion/internal/events"
)

// Notifier receives a payload after a garden row has changed. events.Broker
// satisfies it.
type Notifier interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// DB wraps a sql.DB connection pool and provides repository accessors.
type DB struct {
	conn     *sql.DB
	notifier Notifier
	logger   *slog.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithNotifier publishes garden changes to n.
func WithNotifier(n Notifier) Option {
	return func(db *DB) { db.notifier = n }
}

// WithLogger sets the logger used for non-fatal failures (e.g. a notification
// that could not be published after a committed write).
func WithLogger(l *slog.Logger) Option {
	return func(db *DB) { db.logger = l }
}

// New opens the database at dbPath and runs migrations.
//
// Pragmas go into the DSN rather than a one-off Exec: database/sql may open
// several connections and foreign_keys is a per-connection setting.
//
// ":memory:" databases are private to a connection, so the pool is pinned to a
// single connection for them; otherwise each new connection would see an
// empty schema.
func New(dbPath string, opts ...Option) (*DB, error) {
	memory := dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")

	pragmas := []string{"foreign_keys(1)", "busy_timeout(5000)"}
	if !memory {
		pragmas = append(pragmas, "journal_mode(WAL)")
	}
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	dsn := dbPath + sep + "_pragma=" + strings.Join(pragmas, "&_pragma=")

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	if memory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{
		conn:   conn,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping is used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Weather() *WeatherDB { return &WeatherDB{db: db} }
func (db *DB) Plants() *PlantDB    { return &PlantDB{db: db} }
func (db *DB) Garden() *GardenDB   { return &GardenDB{db: db} }
func (db *DB) Users() *UserDB      { return &UserDB{db: db} }

// notifyGarden tells subscribers that userID's garden changed. The write has
// already committed, so a publish failure is logged, not returned.
func (db *DB) notifyGarden(ctx context.Context, userID, op string) {
	if db.notifier == nil || userID == "" {
		return
	}
	if err := db.notifier.Publish(ctx, events.GardenTopic(userID), []byte(op)); err != nil {
		db.logger.Error("failed to publish garden change",
			slog.String("userID", userID),
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
	}
}

// migrate creates the schema. Every statement is idempotent.
func (db *DB) migrate() error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id                    TEXT PRIMARY KEY,
				email                 TEXT NOT NULL DEFAULT '',
				password_hash         TEXT NOT NULL DEFAULT '',
				github_id             INTEGER UNIQUE,
				display_name          TEXT NOT NULL DEFAULT '',
				profile_image         TEXT NOT NULL DEFAULT '',
				experience_level      TEXT NOT NULL DEFAULT 'beginner',
				garden_count          INTEGER NOT NULL DEFAULT 0,
				plant_count           INTEGER NOT NULL DEFAULT 0,
				follower_count        INTEGER NOT NULL DEFAULT 0,
				following_count       INTEGER NOT NULL DEFAULT 0,
				notifications_enabled INTEGER NOT NULL DEFAULT 1,
				created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				last_active_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email) WHERE email <> '';
		`},
		{"plants", `
			CREATE TABLE IF NOT EXISTS plants (
				id               INTEGER PRIMARY KEY,
				common_name      TEXT NOT NULL DEFAULT '',
				scientific_name  TEXT NOT NULL DEFAULT '',
				family           TEXT NOT NULL DEFAULT '',
				genus            TEXT NOT NULL DEFAULT '',
				image_url        TEXT NOT NULL DEFAULT '',
				description      TEXT NOT NULL DEFAULT '',
				cycle            TEXT NOT NULL DEFAULT '',
				watering         TEXT NOT NULL DEFAULT '',
				sunlight         TEXT NOT NULL DEFAULT '',
				growth_rate      TEXT NOT NULL DEFAULT '',
				drought_tolerant INTEGER NOT NULL DEFAULT 0,
				salt_tolerant    INTEGER NOT NULL DEFAULT 0,
				indoor           INTEGER NOT NULL DEFAULT 0,
				flowers          INTEGER NOT NULL DEFAULT 0,
				cones            INTEGER NOT NULL DEFAULT 0,
				fruits           INTEGER NOT NULL DEFAULT 0,
				leaf             INTEGER NOT NULL DEFAULT 0,
				care_level       TEXT NOT NULL DEFAULT '',
				captured_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`},
		{"user_plants", `
			CREATE TABLE IF NOT EXISTS user_plants (
				id              TEXT PRIMARY KEY,
				user_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				plant_id        INTEGER NOT NULL REFERENCES plants(id) ON DELETE CASCADE,
				nickname        TEXT NOT NULL DEFAULT '',
				planting_date   DATETIME NOT NULL,
				photo_url       TEXT NOT NULL DEFAULT '',
				notes           TEXT NOT NULL DEFAULT '',
				last_watered    DATETIME,
				last_fertilized DATETIME,
				date_added      DATETIME NOT NULL,
				UNIQUE (user_id, plant_id)
			);
			CREATE INDEX IF NOT EXISTS idx_user_plants_user_added ON user_plants(user_id, date_added);
			CREATE INDEX IF NOT EXISTS idx_user_plants_plant ON user_plants(plant_id);
		`},
		// captured_at is unix milliseconds: freshness is decided to the
		// millisecond and must not depend on text time formats.
		{"weather_snapshots", `
			CREATE TABLE IF NOT EXISTS weather_snapshots (
				id             INTEGER PRIMARY KEY AUTOINCREMENT,
				query          TEXT NOT NULL,
				location_name  TEXT NOT NULL DEFAULT '',
				region         TEXT NOT NULL DEFAULT '',
				country        TEXT NOT NULL DEFAULT '',
				temp_c         REAL NOT NULL DEFAULT 0,
				temp_f         REAL NOT NULL DEFAULT 0,
				condition_text TEXT NOT NULL DEFAULT '',
				condition_code INTEGER NOT NULL DEFAULT 0,
				humidity       INTEGER NOT NULL DEFAULT 0,
				is_day         INTEGER NOT NULL DEFAULT 0,
				wind_kph       REAL NOT NULL DEFAULT 0,
				wind_dir       TEXT NOT NULL DEFAULT '',
				precip_mm      REAL NOT NULL DEFAULT 0,
				last_updated   TEXT NOT NULL DEFAULT '',
				captured_at    INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_weather_query_captured ON weather_snapshots(query, captured_at);
		`},
	}

	for _, s := range stmts {
		if _, err := db.conn.Exec(s.sql); err != nil {
			return fmt.Errorf("creating %s table: %w", s.name, err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY failure.
func isUniqueViolation(err error) bool {
	var se *driver.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// isForeignKeyViolation reports whether err is a FOREIGN KEY failure.
func isForeignKeyViolation(err error) bool {
	var se *driver.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}
