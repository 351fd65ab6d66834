package tank

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/oilfox-bridge/internal/oilfox"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// timestampLayout is fixed width in UTC, so stored values sort as text.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// SQLiteRepository stores readings, adopted devices and the poll log.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordReading stores a reading unless one already exists for the same
// hwid and metering time. The ID and RecordedAt are generated if empty.
//
// Returns:
//   - bool: true if a new row was written
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) RecordReading(ctx context.Context, reading *Reading) (bool, error) {
	if reading.HWID == "" {
		return false, ErrHWIDRequired
	}
	if reading.MeteredAt.IsZero() {
		return false, fmt.Errorf("metering time is required")
	}
	if reading.ID == "" {
		reading.ID = "rdg-" + uuid.NewString()
	}
	if reading.RecordedAt.IsZero() {
		reading.RecordedAt = time.Now().UTC()
	}

	var next any
	if reading.NextMeteringAt != nil {
		next = formatTimestamp(*reading.NextMeteringAt)
	}
	var daysReach any
	if reading.DaysReach != nil {
		daysReach = *reading.DaysReach
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO readings
		 (id, hwid, metered_at, next_metering_at, fill_level_percent, fill_level_quantity,
		  quantity_unit, days_reach, battery_level, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reading.ID, reading.HWID, formatTimestamp(reading.MeteredAt), next,
		reading.FillLevelPercent, reading.FillLevelQuantity, reading.QuantityUnit,
		daysReach, nullableString(reading.BatteryLevel), formatTimestamp(reading.RecordedAt),
	)
	if err != nil {
		return false, fmt.Errorf("inserting reading: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n == 1, nil
}

const readingColumns = `id, hwid, metered_at, next_metering_at, fill_level_percent,
	fill_level_quantity, quantity_unit, days_reach, battery_level, recorded_at`

// LatestReading returns the most recent reading of a device.
func (r *SQLiteRepository) LatestReading(ctx context.Context, hwid string) (*Reading, error) {
	if hwid == "" {
		return nil, ErrHWIDRequired
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT `+readingColumns+`
		 FROM readings WHERE hwid = ?
		 ORDER BY metered_at DESC LIMIT 1`,
		hwid,
	)
	reading, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return reading, nil
}

// History returns readings of a device ordered newest first.
//
// Parameters:
//   - limit: Maximum entries to return (default 50, max 200)
func (r *SQLiteRepository) History(ctx context.Context, hwid string, limit int) ([]Reading, error) {
	if hwid == "" {
		return nil, ErrHWIDRequired
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+readingColumns+`
		 FROM readings WHERE hwid = ?
		 ORDER BY metered_at DESC LIMIT ?`,
		hwid, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	readings := make([]Reading, 0, limit)
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, *reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return readings, nil
}

// PruneReadings deletes readings metered before now-olderThan.
func (r *SQLiteRepository) PruneReadings(ctx context.Context, olderThan time.Duration) (int64, error) {
	return r.prune(ctx, "DELETE FROM readings WHERE metered_at < ?", olderThan)
}

// SaveDevice stores an adopted device, replacing any earlier entry for
// the same hwid.
func (r *SQLiteRepository) SaveDevice(ctx context.Context, dev oilfox.DeviceConfig) error {
	if dev.HWID == "" {
		return ErrHWIDRequired
	}
	if dev.ID == "" {
		return fmt.Errorf("thing id is required")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (hwid, thing_id, name, adopted_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(hwid) DO UPDATE SET thing_id = excluded.thing_id, name = excluded.name`,
		dev.HWID, dev.ID, dev.Name, formatTimestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("saving device: %w", err)
	}
	return nil
}

// ListDevices returns every adopted device ordered by adoption time.
func (r *SQLiteRepository) ListDevices(ctx context.Context) ([]AdoptedDevice, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT hwid, thing_id, name, adopted_at FROM devices ORDER BY adopted_at, hwid",
	)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []AdoptedDevice
	for rows.Next() {
		var d AdoptedDevice
		var adoptedAt string
		if err := rows.Scan(&d.HWID, &d.ThingID, &d.Name, &adoptedAt); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		if d.AdoptedAt, err = parseTimestamp(adoptedAt); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// DeleteDevice removes an adopted device. Its readings are kept.
func (r *SQLiteRepository) DeleteDevice(ctx context.Context, hwid string) error {
	if hwid == "" {
		return ErrHWIDRequired
	}

	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE hwid = ?", hwid)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordPoll appends an entry to the poll log.
func (r *SQLiteRepository) RecordPoll(ctx context.Context, rec *PollRecord) error {
	if rec.ID == "" {
		rec.ID = "pol-" + uuid.NewString()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO poll_log (id, triggered_by, started_at, duration_ms, outcome, device_count, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Trigger, formatTimestamp(rec.StartedAt), rec.DurationMS,
		rec.Outcome, rec.DeviceCount, nullableString(rec.Error),
	)
	if err != nil {
		return fmt.Errorf("inserting poll record: %w", err)
	}
	return nil
}

// RecentPolls returns poll log entries ordered newest first.
//
// Parameters:
//   - limit: Maximum entries to return (default 50, max 200)
func (r *SQLiteRepository) RecentPolls(ctx context.Context, limit int) ([]PollRecord, error) {
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, triggered_by, started_at, duration_ms, outcome, device_count, error
		 FROM poll_log ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying poll log: %w", err)
	}
	defer rows.Close()

	records := make([]PollRecord, 0, limit)
	for rows.Next() {
		var rec PollRecord
		var startedAt string
		var errText sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Trigger, &startedAt, &rec.DurationMS,
			&rec.Outcome, &rec.DeviceCount, &errText); err != nil {
			return nil, fmt.Errorf("scanning poll record: %w", err)
		}
		if rec.StartedAt, err = parseTimestamp(startedAt); err != nil {
			return nil, err
		}
		rec.Error = errText.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating poll log: %w", err)
	}
	return records, nil
}

// PrunePolls deletes poll log entries started before now-olderThan.
func (r *SQLiteRepository) PrunePolls(ctx context.Context, olderThan time.Duration) (int64, error) {
	return r.prune(ctx, "DELETE FROM poll_log WHERE started_at < ?", olderThan)
}

func (r *SQLiteRepository) prune(ctx context.Context, query string, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := formatTimestamp(time.Now().Add(-olderThan))
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(row rowScanner) (*Reading, error) {
	var reading Reading
	var meteredAt, recordedAt string
	var next, battery sql.NullString
	var daysReach sql.NullInt64

	err := row.Scan(&reading.ID, &reading.HWID, &meteredAt, &next,
		&reading.FillLevelPercent, &reading.FillLevelQuantity, &reading.QuantityUnit,
		&daysReach, &battery, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning reading: %w", err)
	}

	if reading.MeteredAt, err = parseTimestamp(meteredAt); err != nil {
		return nil, err
	}
	if reading.RecordedAt, err = parseTimestamp(recordedAt); err != nil {
		return nil, err
	}
	if next.Valid {
		t, err := parseTimestamp(next.String)
		if err != nil {
			return nil, err
		}
		reading.NextMeteringAt = &t
	}
	if daysReach.Valid {
		v := daysReach.Int64
		reading.DaysReach = &v
	}
	reading.BatteryLevel = battery.String

	return &reading, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, value)
	if err == nil {
		return t, nil
	}
	fallback, fallbackErr := time.Parse(time.RFC3339, value)
	if fallbackErr == nil {
		return fallback, nil
	}
	return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
}

// nullableString maps "" to NULL for nullable TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
