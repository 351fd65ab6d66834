package oilfox

import (
	"fmt"
	"time"
)

// Channel identifiers published for every device.
const (
	ChannelCurrentMeteringAt = "currentMeteringAt"
	ChannelNextMeteringAt    = "nextMeteringAt"
	ChannelDaysReach         = "daysReach"
	ChannelBatteryLevel      = "batteryLevel"
	ChannelFillLevelPercent  = "fillLevelPercent"
	ChannelFillLevelQuantity = "fillLevelQuantity"
	ChannelQuantityUnit      = "quantityUnit"
)

// Channels lists every channel in publication order.
var Channels = []string{
	ChannelCurrentMeteringAt,
	ChannelNextMeteringAt,
	ChannelDaysReach,
	ChannelBatteryLevel,
	ChannelFillLevelPercent,
	ChannelFillLevelQuantity,
	ChannelQuantityUnit,
}

// IsChannel reports whether name is a device channel.
func IsChannel(name string) bool {
	for _, c := range Channels {
		if c == name {
			return true
		}
	}
	return false
}

// PropertyHWID is the discovery property carrying the device hwid.
const PropertyHWID = "hwid"

// MeteringTimeLayout is the timestamp layout used by the customer API,
// always in UTC with a literal Z suffix.
const MeteringTimeLayout = "2006-01-02T15:04:05.000Z"

// Device is one sensor record from the device list endpoint.
type Device struct {
	HWID              string `json:"hwid"`
	CurrentMeteringAt string `json:"currentMeteringAt"`
	NextMeteringAt    string `json:"nextMeteringAt"`

	// DaysReach is absent for devices that have not collected enough
	// measurements yet.
	DaysReach *int64 `json:"daysReach,omitempty"`

	BatteryLevel      string `json:"batteryLevel"`
	FillLevelPercent  int64  `json:"fillLevelPercent"`
	FillLevelQuantity int64  `json:"fillLevelQuantity"`
	QuantityUnit      string `json:"quantityUnit"`
}

// QuantityUnit is the unit a fill quantity is tagged with.
type QuantityUnit string

const (
	UnitLiters    QuantityUnit = "liters"
	UnitKilograms QuantityUnit = "kilograms"
)

// Quantity is a unit-tagged fill level.
type Quantity struct {
	Value float64      `json:"value"`
	Unit  QuantityUnit `json:"unit"`
}

func (q Quantity) String() string {
	switch q.Unit {
	case UnitLiters:
		return fmt.Sprintf("%g L", q.Value)
	default:
		return fmt.Sprintf("%g kg", q.Value)
	}
}

// UnitFor converts the API's quantityUnit. "L" is liters; every other value,
// including "Kg", is treated as kilograms.
func UnitFor(quantityUnit string) QuantityUnit {
	if quantityUnit == "L" {
		return UnitLiters
	}
	return UnitKilograms
}

// Quantity returns the fill level tagged with its unit.
func (d Device) Quantity() Quantity {
	return Quantity{
		Value: float64(d.FillLevelQuantity),
		Unit:  UnitFor(d.QuantityUnit),
	}
}

// ParseMeteringTime parses a timestamp from the customer API and converts it
// to loc. A nil loc means time.Local. RFC 3339 is accepted as a fallback for
// records that omit the milliseconds.
func ParseMeteringTime(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.Parse(MeteringTimeLayout, value)
	if err != nil {
		fallback, fallbackErr := time.Parse(time.RFC3339Nano, value)
		if fallbackErr != nil {
			return time.Time{}, fmt.Errorf("parsing metering time %q: %w", value, err)
		}
		t = fallback
	}
	return t.In(loc), nil
}

// findDevice returns the record with exactly the given hwid.
func findDevice(devices []Device, hwid string) (Device, bool) {
	for _, d := range devices {
		if d.HWID == hwid {
			return d, true
		}
	}
	return Device{}, false
}
