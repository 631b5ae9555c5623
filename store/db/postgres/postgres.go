package postgres

import (
	"context"
	"database/sql"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/apexgrid/pitwall/internal/profile"
)

const slotKey = "pitwall/conversations"

// DB persists the conversation slot in a PostgreSQL kv table.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the database at profile.DSN and ensures the kv table exists.
func NewDB(profile *profile.Profile) (*DB, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	pgDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}
	if err := pgDB.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping db")
	}

	driver := &DB{db: pgDB, profile: profile}
	if err := driver.migrate(context.Background()); err != nil {
		return nil, err
	}
	return driver, nil
}

func (d *DB) migrate(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "failed to create kv table")
	}
	return nil
}

func (d *DB) Load(ctx context.Context) (string, bool, error) {
	var value string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = $1`, slotKey).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "failed to load kv slot")
	}
	return value, true, nil
}

func (d *DB) Save(ctx context.Context, value string) error {
	stmt := `INSERT INTO kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	if _, err := d.db.ExecContext(ctx, stmt, slotKey, value); err != nil {
		return errors.Wrap(err, "failed to save kv slot")
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
