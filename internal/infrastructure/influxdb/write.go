package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementTankLevel is the measurement tank readings are written to.
const MeasurementTankLevel = "tank_level"

// TankLevel is one sensor measurement.
type TankLevel struct {
	HWID      string
	Unit      string
	Percent   int64
	Quantity  float64
	DaysReach *int64
	Battery   string
	MeteredAt time.Time
}

// WriteTankLevel queues a tank level point stamped with the metering time.
// The write is non-blocking; failures reach the SetOnError callback.
//
// Example:
//
//	client.WriteTankLevel(influxdb.TankLevel{
//	    HWID: "0A1B2C", Unit: "liters", Percent: 64, Quantity: 1920,
//	    MeteredAt: meteredAt,
//	})
func (c *Client) WriteTankLevel(level TankLevel) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(tankLevelPoint(level))
}

func tankLevelPoint(level TankLevel) *write.Point {
	fields := map[string]any{
		"percent":  level.Percent,
		"quantity": level.Quantity,
	}
	if level.DaysReach != nil {
		fields["days_reach"] = *level.DaysReach
	}
	if level.Battery != "" {
		fields["battery"] = level.Battery
	}

	at := level.MeteredAt
	if at.IsZero() {
		at = time.Now()
	}

	return write.NewPoint(
		MeasurementTankLevel,
		map[string]string{
			"hwid": level.HWID,
			"unit": level.Unit,
		},
		fields,
		at,
	)
}
