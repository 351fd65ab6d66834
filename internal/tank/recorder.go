package tank

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/oilfox-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/oilfox-bridge/internal/oilfox"
)

// LevelWriter receives new readings for the time-series store.
// *influxdb.Client satisfies it.
type LevelWriter interface {
	WriteTankLevel(level influxdb.TankLevel)
}

// Logger interface for optional logging.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
}

// Recorder stores what the oilfox bridge fetches. It implements
// oilfox.ReadingRecorder and oilfox.PollRecorder.
type Recorder struct {
	repo   *SQLiteRepository
	levels LevelWriter

	logger   Logger
	loggerMu sync.RWMutex
}

// NewRecorder creates a recorder. levels may be nil when no time-series
// store is configured.
func NewRecorder(repo *SQLiteRepository, levels LevelWriter) *Recorder {
	return &Recorder{repo: repo, levels: levels}
}

// SetLogger sets the logger for poll log failures.
func (r *Recorder) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// RecordReading stores the device record. A record whose metering time is
// already stored is skipped and not forwarded to the time-series store.
func (r *Recorder) RecordReading(ctx context.Context, device oilfox.Device) error {
	reading, err := ReadingFromDevice(device)
	if err != nil {
		return err
	}

	inserted, err := r.repo.RecordReading(ctx, reading)
	if err != nil {
		return err
	}
	if inserted && r.levels != nil {
		r.levels.WriteTankLevel(reading.TankLevel())
	}
	return nil
}

// RecordPoll appends the cycle to the poll log. Failures are logged.
func (r *Recorder) RecordPoll(ctx context.Context, result oilfox.PollResult) {
	rec := &PollRecord{
		Trigger:     string(result.Trigger),
		StartedAt:   result.StartedAt,
		DurationMS:  result.Duration.Milliseconds(),
		Outcome:     string(result.Outcome),
		DeviceCount: result.DeviceCount,
	}
	if result.Err != nil {
		rec.Error = result.Err.Error()
	}

	if err := r.repo.RecordPoll(ctx, rec); err != nil {
		r.loggerMu.RLock()
		logger := r.logger
		r.loggerMu.RUnlock()
		if logger != nil {
			logger.Warn("failed to record poll", "trigger", rec.Trigger, "error", err)
		}
	}
}

// ReadingFromDevice converts a device record from the customer API.
func ReadingFromDevice(device oilfox.Device) (*Reading, error) {
	meteredAt, err := oilfox.ParseMeteringTime(device.CurrentMeteringAt, nil)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", device.HWID, err)
	}

	reading := &Reading{
		HWID:              device.HWID,
		MeteredAt:         meteredAt.UTC(),
		FillLevelPercent:  device.FillLevelPercent,
		FillLevelQuantity: device.FillLevelQuantity,
		QuantityUnit:      device.QuantityUnit,
		DaysReach:         device.DaysReach,
		BatteryLevel:      device.BatteryLevel,
	}
	if device.NextMeteringAt != "" {
		if next, err := oilfox.ParseMeteringTime(device.NextMeteringAt, nil); err == nil {
			next = next.UTC()
			reading.NextMeteringAt = &next
		}
	}
	return reading, nil
}

// TankLevel returns the reading as a time-series point.
func (r Reading) TankLevel() influxdb.TankLevel {
	q := r.Quantity()
	return influxdb.TankLevel{
		HWID:      r.HWID,
		Unit:      string(q.Unit),
		Percent:   r.FillLevelPercent,
		Quantity:  q.Value,
		DaysReach: r.DaysReach,
		Battery:   r.BatteryLevel,
		MeteredAt: r.MeteredAt,
	}
}
