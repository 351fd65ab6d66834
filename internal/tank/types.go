package tank

import (
	"time"

	"github.com/nerrad567/oilfox-bridge/internal/oilfox"
)

// Reading is one stored measurement of a tank.
type Reading struct {
	ID                string     `json:"id"`
	HWID              string     `json:"hwid"`
	MeteredAt         time.Time  `json:"metered_at"`
	NextMeteringAt    *time.Time `json:"next_metering_at,omitempty"`
	FillLevelPercent  int64      `json:"fill_level_percent"`
	FillLevelQuantity int64      `json:"fill_level_quantity"`
	QuantityUnit      string     `json:"quantity_unit"`
	DaysReach         *int64     `json:"days_reach,omitempty"`
	BatteryLevel      string     `json:"battery_level,omitempty"`
	RecordedAt        time.Time  `json:"recorded_at"`
}

// Quantity returns the fill level tagged with its unit.
func (r Reading) Quantity() oilfox.Quantity {
	return oilfox.Quantity{
		Value: float64(r.FillLevelQuantity),
		Unit:  oilfox.UnitFor(r.QuantityUnit),
	}
}

// AdoptedDevice is a device approved through the discovery inbox.
type AdoptedDevice struct {
	HWID      string    `json:"hwid"`
	ThingID   string    `json:"thing_id"`
	Name      string    `json:"name,omitempty"`
	AdoptedAt time.Time `json:"adopted_at"`
}

// Config returns the bridge configuration entry for the device.
func (d AdoptedDevice) Config() oilfox.DeviceConfig {
	return oilfox.DeviceConfig{ID: d.ThingID, HWID: d.HWID, Name: d.Name}
}

// PollRecord is one entry of the poll log.
type PollRecord struct {
	ID          string    `json:"id"`
	Trigger     string    `json:"trigger"`
	StartedAt   time.Time `json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
	Outcome     string    `json:"outcome"`
	DeviceCount int       `json:"device_count"`
	Error       string    `json:"error,omitempty"`
}
