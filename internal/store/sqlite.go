package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/recap/devmon/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// Fixed-width UTC timestamps so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite is a heartbeat source and state store backed by SQLite.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLite{db: db, path: path}
	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InsertHeartbeat appends a heartbeat row. Devices normally write these
// through the ingestion path; the monitor itself only reads them.
func (s *SQLite) InsertHeartbeat(ctx context.Context, hb types.DeviceHeartbeat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO device_heartbeats (
            device_key, ts, camera_ok, buffer_ok, button_ok,
            last_segment_age_sec, disk_free_gb, cpu_temp_c, notes
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hb.DeviceKey,
		formatTime(hb.Timestamp),
		nullableFlag(hb.CameraOK),
		nullableFlag(hb.BufferOK),
		nullableFlag(hb.ButtonOK),
		nullableInt(hb.LastSegmentAgeSec),
		nullableFloat(hb.DiskFreeGB),
		nullableFloat(hb.CPUTempC),
		nullableString(hb.Notes),
	)
	if err != nil {
		return fmt.Errorf("insert heartbeat: %w", err)
	}
	return nil
}

// LatestHeartbeats returns one row per device from the latest_device_heartbeat view.
func (s *SQLite) LatestHeartbeats(ctx context.Context) ([]types.DeviceHeartbeat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_key, ts, camera_ok, buffer_ok, button_ok,
                last_segment_age_sec, disk_free_gb, cpu_temp_c, notes
         FROM latest_device_heartbeat
         ORDER BY device_key`)
	if err != nil {
		return nil, fmt.Errorf("query latest heartbeats: %w", err)
	}
	defer rows.Close()

	var out []types.DeviceHeartbeat
	for rows.Next() {
		var (
			hb      types.DeviceHeartbeat
			ts      string
			segment sql.NullInt64
			disk    sql.NullFloat64
			cpu     sql.NullFloat64
			notes   sql.NullString
		)
		if err := rows.Scan(&hb.DeviceKey, &ts, &hb.CameraOK, &hb.BufferOK, &hb.ButtonOK,
			&segment, &disk, &cpu, &notes); err != nil {
			return nil, fmt.Errorf("scan heartbeat: %w", err)
		}
		if hb.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("heartbeat %s: %w", hb.DeviceKey, err)
		}
		if segment.Valid {
			hb.LastSegmentAgeSec = &segment.Int64
		}
		if disk.Valid {
			hb.DiskFreeGB = &disk.Float64
		}
		if cpu.Valid {
			hb.CPUTempC = &cpu.Float64
		}
		hb.Notes = notes.String
		out = append(out, hb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate heartbeats: %w", err)
	}
	return out, nil
}

// Get returns the persisted state for deviceKey, or nil if none exists.
func (s *SQLite) Get(ctx context.Context, deviceKey string) (*types.DeviceStatusState, error) {
	var (
		st        types.DeviceStatusState
		lastSeen  string
		alertedAt sql.NullString
		alerted   string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT device_key, last_seen_ts, last_is_offline, last_alerted_at, last_alerted_state, updated_at
         FROM device_status_state WHERE device_key = ?`, deviceKey,
	).Scan(&st.DeviceKey, &lastSeen, &st.LastIsOffline, &alertedAt, &alerted, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}

	if st.LastSeenTS, err = parseTime(lastSeen); err != nil {
		return nil, err
	}
	if st.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if alertedAt.Valid {
		at, err := parseTime(alertedAt.String)
		if err != nil {
			return nil, err
		}
		st.LastAlertedAt = &at
	}
	st.LastAlertedState = types.AlertedState(alerted)
	return &st, nil
}

// Upsert writes next only if the stored classification still equals prior's.
func (s *SQLite) Upsert(ctx context.Context, next types.DeviceStatusState, prior *types.DeviceStatusState) error {
	var alertedAt any
	if next.LastAlertedAt != nil {
		alertedAt = formatTime(*next.LastAlertedAt)
	}
	alerted := next.LastAlertedState
	if alerted == "" {
		alerted = types.AlertedNone
	}

	var (
		res sql.Result
		err error
	)
	if prior == nil {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO device_status_state (
                device_key, last_seen_ts, last_is_offline, last_alerted_at, last_alerted_state, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?)
            ON CONFLICT(device_key) DO NOTHING`,
			next.DeviceKey, formatTime(next.LastSeenTS), next.LastIsOffline, alertedAt, string(alerted), formatTime(next.UpdatedAt),
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE device_status_state SET
                last_seen_ts = ?, last_is_offline = ?, last_alerted_at = ?, last_alerted_state = ?, updated_at = ?
            WHERE device_key = ? AND last_is_offline = ?`,
			formatTime(next.LastSeenTS), next.LastIsOffline, alertedAt, string(alerted), formatTime(next.UpdatedAt),
			next.DeviceKey, prior.LastIsOffline,
		)
	}
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Layouts SQLite itself produces (CURRENT_TIMESTAMP, datetime()); they carry no offset and are UTC.
var sqliteLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t.UTC(), nil
	}
	for _, layout := range sqliteLayouts {
		if t, lerr := time.ParseInLocation(layout, s, time.UTC); lerr == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
}

func nullableFlag(f types.Flag) any {
	if p := f.Ptr(); p != nil {
		return *p
	}
	return nil
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
