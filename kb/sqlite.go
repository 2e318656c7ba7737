package kb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/orbit-visualizer/core"
	"github.com/signalsfoundry/orbit-visualizer/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS satellites (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	type          TEXT NOT NULL,
	altitude      REAL NOT NULL,
	inclination   REAL NOT NULL,
	eccentricity  REAL NOT NULL,
	period        REAL NOT NULL,
	color         TEXT NOT NULL,
	description   TEXT NOT NULL,
	active        INTEGER NOT NULL,
	created_at    INTEGER NOT NULL,
	custom_params TEXT
);

CREATE TABLE IF NOT EXISTS configurations (
	id                    TEXT PRIMARY KEY,
	name                  TEXT NOT NULL,
	description           TEXT NOT NULL,
	satellite_params      TEXT,
	time_speed            REAL NOT NULL,
	selected_satellite_id TEXT NOT NULL,
	saved_at              INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	id              TEXT PRIMARY KEY,
	satellite_id    TEXT NOT NULL,
	timestamp       INTEGER NOT NULL,
	elapsed_seconds REAL NOT NULL,
	x REAL NOT NULL,
	y REAL NOT NULL,
	z REAL NOT NULL,
	vx REAL,
	vy REAL,
	vz REAL,
	altitude  REAL NOT NULL,
	latitude  REAL NOT NULL,
	longitude REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS positions_by_satellite
	ON positions (satellite_id, timestamp);

CREATE TABLE IF NOT EXISTS preferences (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	pref_id       TEXT NOT NULL,
	theme         TEXT NOT NULL,
	default_speed REAL NOT NULL,
	show_orbits   INTEGER NOT NULL,
	camera_mode   TEXT NOT NULL,
	updated_at    INTEGER NOT NULL
);
`

const satelliteColumns = `id, name, type, altitude, inclination, eccentricity, period,
	color, description, active, created_at, custom_params`

// SQLiteStore is a Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens a SQLite database and runs migrations. Use
// ":memory:" for a throwaway database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) CountSatellites(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM satellites`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count satellites: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) ListSatellites(ctx context.Context, limit int) ([]model.Satellite, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+satelliteColumns+` FROM satellites ORDER BY seq LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list satellites: %w", err)
	}
	defer rows.Close()

	res := []model.Satellite{}
	for rows.Next() {
		sat, err := scanSatellite(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, sat)
	}
	return res, rows.Err()
}

func (s *SQLiteStore) GetSatellite(ctx context.Context, id string) (model.Satellite, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+satelliteColumns+` FROM satellites WHERE id = ?`, id)
	sat, err := scanSatellite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Satellite{}, fmt.Errorf("%w: %q", ErrSatelliteNotFound, id)
	}
	return sat, err
}

func (s *SQLiteStore) InsertSatellite(ctx context.Context, sat model.Satellite) error {
	params, err := marshalParams(sat.CustomParams)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO satellites (`+satelliteColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		sat.ID, sat.Name, sat.Type, sat.Altitude, sat.Inclination, sat.Eccentricity,
		sat.Period, sat.Color, sat.Description, sat.Active, sat.CreatedAt.UnixNano(), params,
	)
	if err != nil {
		return fmt.Errorf("insert satellite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", ErrSatelliteExists, sat.ID)
	}
	return nil
}

func (s *SQLiteStore) ReplaceSatellite(ctx context.Context, sat model.Satellite) error {
	params, err := marshalParams(sat.CustomParams)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE satellites SET name = ?, type = ?, altitude = ?, inclination = ?,
		 eccentricity = ?, period = ?, color = ?, description = ?, active = ?,
		 created_at = ?, custom_params = ?
		 WHERE id = ?`,
		sat.Name, sat.Type, sat.Altitude, sat.Inclination, sat.Eccentricity, sat.Period,
		sat.Color, sat.Description, sat.Active, sat.CreatedAt.UnixNano(), params, sat.ID,
	)
	if err != nil {
		return fmt.Errorf("update satellite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", ErrSatelliteNotFound, sat.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteSatellite(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM satellites WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete satellite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", ErrSatelliteNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) CountConfigurations(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM configurations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count configurations: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) ListConfigurations(ctx context.Context, limit int) ([]model.Configuration, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, satellite_params, time_speed, selected_satellite_id, saved_at
		 FROM configurations ORDER BY saved_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list configurations: %w", err)
	}
	defer rows.Close()

	res := []model.Configuration{}
	for rows.Next() {
		var (
			c       model.Configuration
			params  sql.NullString
			savedAt int64
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &params, &c.TimeSpeed,
			&c.SelectedSatelliteID, &savedAt); err != nil {
			return nil, fmt.Errorf("scan configuration: %w", err)
		}
		if c.SatelliteParams, err = unmarshalParams(params); err != nil {
			return nil, err
		}
		c.SavedAt = time.Unix(0, savedAt).UTC()
		res = append(res, c)
	}
	return res, rows.Err()
}

func (s *SQLiteStore) InsertConfiguration(ctx context.Context, c model.Configuration) error {
	params, err := marshalParams(c.SatelliteParams)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO configurations
		 (id, name, description, satellite_params, time_speed, selected_satellite_id, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		c.ID, c.Name, c.Description, params, c.TimeSpeed, c.SelectedSatelliteID, c.SavedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert configuration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", ErrConfigurationExists, c.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteConfiguration(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM configurations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete configuration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", ErrConfigurationNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) AddPositions(ctx context.Context, positions []model.SatellitePosition) error {
	if len(positions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO positions (id, satellite_id, timestamp, elapsed_seconds,
		 x, y, z, vx, vy, vz, altitude, latitude, longitude)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert position: %w", err)
	}
	defer stmt.Close()

	for _, p := range positions {
		id := p.ID
		if id == "" {
			id = uuid.NewString()
		}
		var vx, vy, vz sql.NullFloat64
		if p.Velocity != nil {
			vx = sql.NullFloat64{Float64: p.Velocity.X, Valid: true}
			vy = sql.NullFloat64{Float64: p.Velocity.Y, Valid: true}
			vz = sql.NullFloat64{Float64: p.Velocity.Z, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, id, p.SatelliteID, p.Timestamp.UnixNano(), p.ElapsedSeconds,
			p.Position.X, p.Position.Y, p.Position.Z, vx, vy, vz,
			p.Altitude, p.Latitude, p.Longitude); err != nil {
			return fmt.Errorf("insert position: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListPositions(ctx context.Context, q model.PositionQuery) ([]model.SatellitePosition, error) {
	query := `SELECT id, satellite_id, timestamp, elapsed_seconds, x, y, z, vx, vy, vz,
		altitude, latitude, longitude
		FROM positions WHERE satellite_id = ?`
	args := []any{q.SatelliteID}
	if q.Start != nil {
		query += ` AND timestamp >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if q.End != nil {
		query += ` AND timestamp <= ?`
		args = append(args, q.End.UnixNano())
	}
	query += ` ORDER BY timestamp DESC, rowid LIMIT ?`
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	res := []model.SatellitePosition{}
	for rows.Next() {
		var (
			p          model.SatellitePosition
			ts         int64
			vx, vy, vz sql.NullFloat64
		)
		if err := rows.Scan(&p.ID, &p.SatelliteID, &ts, &p.ElapsedSeconds,
			&p.Position.X, &p.Position.Y, &p.Position.Z, &vx, &vy, &vz,
			&p.Altitude, &p.Latitude, &p.Longitude); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.Timestamp = time.Unix(0, ts).UTC()
		if vx.Valid && vy.Valid && vz.Valid {
			p.Velocity = &core.Vec3{X: vx.Float64, Y: vy.Float64, Z: vz.Float64}
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *SQLiteStore) DeletePositions(ctx context.Context, satelliteID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE satellite_id = ?`, satelliteID); err != nil {
		return fmt.Errorf("delete positions: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPreferences(ctx context.Context) (model.Preferences, bool, error) {
	var (
		p         model.Preferences
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT pref_id, theme, default_speed, show_orbits, camera_mode, updated_at
		 FROM preferences WHERE id = 1`,
	).Scan(&p.ID, &p.Theme, &p.DefaultSpeed, &p.ShowOrbits, &p.CameraMode, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Preferences{}, false, nil
	}
	if err != nil {
		return model.Preferences{}, false, fmt.Errorf("get preferences: %w", err)
	}
	p.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return p, true, nil
}

func (s *SQLiteStore) PutPreferences(ctx context.Context, p model.Preferences) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO preferences (id, pref_id, theme, default_speed, show_orbits, camera_mode, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   pref_id = excluded.pref_id,
		   theme = excluded.theme,
		   default_speed = excluded.default_speed,
		   show_orbits = excluded.show_orbits,
		   camera_mode = excluded.camera_mode,
		   updated_at = excluded.updated_at`,
		p.ID, p.Theme, p.DefaultSpeed, p.ShowOrbits, p.CameraMode, p.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("put preferences: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSatellite(row rowScanner) (model.Satellite, error) {
	var (
		sat       model.Satellite
		createdAt int64
		params    sql.NullString
	)
	err := row.Scan(&sat.ID, &sat.Name, &sat.Type, &sat.Altitude, &sat.Inclination,
		&sat.Eccentricity, &sat.Period, &sat.Color, &sat.Description, &sat.Active,
		&createdAt, &params)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Satellite{}, err
	}
	if err != nil {
		return model.Satellite{}, fmt.Errorf("scan satellite: %w", err)
	}
	sat.CreatedAt = time.Unix(0, createdAt).UTC()
	if sat.CustomParams, err = unmarshalParams(params); err != nil {
		return model.Satellite{}, err
	}
	return sat, nil
}

func marshalParams(params map[string]any) (sql.NullString, error) {
	if params == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal params: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalParams(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid {
		return nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw.String), &params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return params, nil
}
