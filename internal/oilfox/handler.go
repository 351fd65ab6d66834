package oilfox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DeviceHandler publishes the channels of one sensor and schedules a
// refresh shortly after the sensor's next measurement.
//
// OnRefresh is only called from the bridge's poll cycle. The follow-up
// timer is guarded separately because Dispose may race a firing timer.
type DeviceHandler struct {
	thingID string
	hwid    string
	name    string

	refresher refresher
	state     StateSink
	status    StatusSink
	readings  ReadingRecorder
	scheduler Scheduler
	metrics   *Metrics
	loc       *time.Location
	now       func() time.Time
	logger    Logger

	ctx    context.Context
	cancel context.CancelFunc

	// Pending follow-up refresh
	mu          sync.Mutex
	followUp    Timer
	followUpFor time.Time
	disposed    bool

	// Last observed values
	infoMu     sync.RWMutex
	lastStatus Status
	last       *Device
	updatedAt  time.Time
}

type deviceHandlerOptions struct {
	ThingID   string
	HWID      string
	Name      string
	Refresher refresher
	State     StateSink
	Status    StatusSink
	Readings  ReadingRecorder
	Scheduler Scheduler
	Metrics   *Metrics
	Location  *time.Location
	Clock     func() time.Time
	Logger    Logger
}

func newDeviceHandler(parent context.Context, opts deviceHandlerOptions) *DeviceHandler {
	ctx, cancel := context.WithCancel(parent)

	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = SystemScheduler{}
	}

	return &DeviceHandler{
		thingID:    opts.ThingID,
		hwid:       opts.HWID,
		name:       opts.Name,
		refresher:  opts.Refresher,
		state:      opts.State,
		status:     opts.Status,
		readings:   opts.Readings,
		scheduler:  scheduler,
		metrics:    opts.Metrics,
		loc:        loc,
		now:        now,
		logger:     opts.Logger,
		ctx:        ctx,
		cancel:     cancel,
		lastStatus: Status{State: StateUnknown, Detail: DetailNone},
	}
}

// HWID returns the sensor's hardware id.
func (h *DeviceHandler) HWID() string { return h.hwid }

// ThingID returns the device thing identifier.
func (h *DeviceHandler) ThingID() string { return h.thingID }

// Name returns the configured display name.
func (h *DeviceHandler) Name() string { return h.name }

// OnAdded is a no-op; device handlers only follow their own hwid.
func (h *DeviceHandler) OnAdded(string, string) error { return nil }

// OnRemoved is a no-op; device handlers only follow their own hwid.
func (h *DeviceHandler) OnRemoved(string, string) error { return nil }

// OnRefresh publishes the record matching this handler's hwid. A device
// missing from the list is marked offline.
func (h *DeviceHandler) OnRefresh(ctx context.Context, devices []Device) error {
	d, ok := findDevice(devices, h.hwid)
	if !ok {
		h.setStatus(Offline(DetailNone, "device not reported by the account"))
		return nil
	}

	h.publish(d)
	h.setStatus(Online())

	h.infoMu.Lock()
	h.last = &d
	h.updatedAt = h.now()
	h.infoMu.Unlock()

	h.metrics.RecordDevice(d)
	h.scheduleFollowUp(d.NextMeteringAt)

	if h.readings != nil {
		if err := h.readings.RecordReading(ctx, d); err != nil {
			return fmt.Errorf("recording reading for %s: %w", h.hwid, err)
		}
	}
	return nil
}

// publish sends every channel of d to the state sink. daysReach is only
// sent when the cloud reports it.
func (h *DeviceHandler) publish(d Device) {
	if h.state == nil {
		return
	}

	h.state.UpdateState(h.hwid, ChannelCurrentMeteringAt, h.meteringValue(d.CurrentMeteringAt))
	h.state.UpdateState(h.hwid, ChannelNextMeteringAt, h.meteringValue(d.NextMeteringAt))
	if d.DaysReach != nil {
		h.state.UpdateState(h.hwid, ChannelDaysReach, *d.DaysReach)
	}
	h.state.UpdateState(h.hwid, ChannelBatteryLevel, d.BatteryLevel)
	h.state.UpdateState(h.hwid, ChannelFillLevelPercent, d.FillLevelPercent)
	h.state.UpdateState(h.hwid, ChannelFillLevelQuantity, d.Quantity())
	h.state.UpdateState(h.hwid, ChannelQuantityUnit, d.QuantityUnit)
}

// meteringValue converts an API timestamp to the handler's zone, keeping
// the raw string when it does not parse.
func (h *DeviceHandler) meteringValue(raw string) any {
	t, err := ParseMeteringTime(raw, h.loc)
	if err != nil {
		return raw
	}
	return t
}

// scheduleFollowUp arranges a refresh five minutes after next. A pending
// follow-up for the same instant is kept; any other is replaced.
func (h *DeviceHandler) scheduleFollowUp(next string) {
	t, err := ParseMeteringTime(next, h.loc)
	if err != nil {
		h.logDebug("no follow-up scheduled", "hwid", h.hwid, "error", err)
		return
	}
	target := t.Add(followUpDelay)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.disposed {
		return
	}
	if h.followUp != nil && h.followUpFor.Equal(target) {
		return
	}
	if h.followUp != nil {
		h.followUp.Stop()
	}

	delay := target.Sub(h.now())
	if delay < 0 {
		delay = 0
	}
	h.followUp = h.scheduler.AfterFunc(delay, func() { h.fireFollowUp(target) })
	h.followUpFor = target

	h.logDebug("follow-up scheduled", "hwid", h.hwid, "at", target.Format(time.RFC3339))
}

// fireFollowUp runs the follow-up refresh. It goes through the fair-use
// gate like any unscheduled refresh.
func (h *DeviceHandler) fireFollowUp(target time.Time) {
	h.mu.Lock()
	stale := h.disposed || !h.followUpFor.Equal(target)
	h.mu.Unlock()
	if stale || h.refresher == nil {
		return
	}

	err := h.refresher.refresh(h.ctx, "", TriggerFollowUp)
	switch {
	case err == nil:
	case errors.Is(err, ErrRefreshDeferred), errors.Is(err, ErrBridgeStopped), errors.Is(err, context.Canceled):
		h.logDebug("follow-up refresh skipped", "hwid", h.hwid, "reason", err.Error())
	default:
		h.logError("follow-up refresh failed", err)
	}
}

// NextFollowUp returns the pending follow-up time, if any.
func (h *DeviceHandler) NextFollowUp() (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.followUp == nil || h.disposed || h.followUpFor.Before(h.now()) {
		return time.Time{}, false
	}
	return h.followUpFor, true
}

// RequestRefresh refreshes one channel. Channel refreshes bypass the
// fair-use window.
func (h *DeviceHandler) RequestRefresh(ctx context.Context, channel string) error {
	if !IsChannel(channel) {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	if h.refresher == nil {
		return ErrBridgeStopped
	}
	return h.refresher.refresh(ctx, channel, TriggerCommand)
}

// Dispose cancels the pending follow-up and the handler context.
func (h *DeviceHandler) Dispose() {
	h.mu.Lock()
	h.disposed = true
	if h.followUp != nil {
		h.followUp.Stop()
		h.followUp = nil
	}
	h.mu.Unlock()

	h.cancel()
}

// Status returns the device availability.
func (h *DeviceHandler) Status() Status {
	h.infoMu.RLock()
	defer h.infoMu.RUnlock()
	return h.lastStatus
}

func (h *DeviceHandler) setStatus(s Status) {
	h.infoMu.Lock()
	h.lastStatus = s
	h.infoMu.Unlock()

	if h.status != nil {
		h.status.UpdateStatus(h.thingID, s)
	}
}

// DeviceInfo is a snapshot of a device handler for the API.
type DeviceInfo struct {
	ThingID     string     `json:"thing_id"`
	HWID        string     `json:"hwid"`
	Name        string     `json:"name,omitempty"`
	Status      Status     `json:"status"`
	Reading     *Device    `json:"reading,omitempty"`
	Quantity    *Quantity  `json:"quantity,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	NextRefresh *time.Time `json:"next_refresh,omitempty"`
}

// Info returns a snapshot of the handler.
func (h *DeviceHandler) Info() DeviceInfo {
	info := DeviceInfo{
		ThingID: h.thingID,
		HWID:    h.hwid,
		Name:    h.name,
	}

	h.infoMu.RLock()
	info.Status = h.lastStatus
	if h.last != nil {
		d := *h.last
		q := d.Quantity()
		updated := h.updatedAt.UTC()
		info.Reading = &d
		info.Quantity = &q
		info.UpdatedAt = &updated
	}
	h.infoMu.RUnlock()

	if next, ok := h.NextFollowUp(); ok {
		info.NextRefresh = &next
	}
	return info
}

func (h *DeviceHandler) logDebug(msg string, keysAndValues ...any) {
	if h.logger != nil {
		h.logger.Debug(msg, keysAndValues...)
	}
}

func (h *DeviceHandler) logError(msg string, err error) {
	if h.logger != nil {
		h.logger.Error(msg, "error", err, "hwid", h.hwid)
	}
}
