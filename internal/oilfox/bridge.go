package oilfox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Bridge operation constants.
const (
	// followUpDelay is added to a device's next metering time before the
	// follow-up refresh, giving the cloud time to ingest the measurement.
	followUpDelay = 5 * time.Minute

	// commandTimeout bounds a poll started by an MQTT command.
	commandTimeout = 2 * time.Minute

	// recordTimeout bounds writes to the poll log.
	recordTimeout = 5 * time.Second
)

// Refresh command results, used as metric labels.
const (
	refreshAccepted = "accepted"
	refreshDeferred = "deferred"
	refreshTargeted = "targeted"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the subset of the MQTT client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	IsConnected() bool
}

// CloudAPI is the customer API as seen by the bridge.
type CloudAPI interface {
	TokenAPI
	Devices(ctx context.Context, session *Session) ([]Device, error)
}

// refresher is what device handlers call back into.
type refresher interface {
	refresh(ctx context.Context, target string, trigger PollTrigger) error
}

// Bridge owns the account session and polls the cloud for every device.
// It handles:
//   - Scheduled polls at a fixed delay and unscheduled refresh commands
//     spaced by the fair-use window
//   - Detecting devices no handler claims and announcing them to listeners
//   - Fanning the device list out to every listener
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use. Only one poll
// cycle runs at a time; concurrent callers wait.
type Bridge struct {
	cfg       *Config
	api       CloudAPI
	auth      *Authenticator
	registry  *Registry
	mqtt      MQTTClient
	health    *HealthReporter
	state     StateSink
	status    StatusSink
	readings  ReadingRecorder
	polls     PollRecorder
	scheduler Scheduler
	metrics   *Metrics
	loc       *time.Location
	now       func() time.Time

	// pollMu serialises poll cycles.
	pollMu sync.Mutex

	// Fair-use gate for unscheduled refreshes
	lastRefresh time.Time
	gateMu      sync.Mutex

	// hwids announced through OnAdded
	announced map[string]bool
	annMu     sync.Mutex

	handlers   map[string]*DeviceHandler
	handlersMu sync.RWMutex

	// Last observed state, for health and the API
	bridgeStatus Status
	lastPoll     *PollResult
	lastDevices  []Device
	stateMu      sync.RWMutex

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Config is the loaded bridge configuration.
	Config *Config

	// API is the customer API client.
	API CloudAPI

	// MQTTClient publishes health and receives refresh commands. Optional.
	MQTTClient MQTTClient

	// State receives channel values. Defaults to an MQTT sink when
	// MQTTClient is set.
	State StateSink

	// Status receives bridge and device availability. Defaults to an MQTT
	// sink when MQTTClient is set.
	Status StatusSink

	// Readings persists device records. Optional.
	Readings ReadingRecorder

	// Polls keeps the poll log. Optional.
	Polls PollRecorder

	// Scheduler runs device follow-up refreshes. Default: SystemScheduler.
	Scheduler Scheduler

	// Metrics is optional.
	Metrics *Metrics

	// Location is the zone metering times are converted to. Default: time.Local.
	Location *time.Location

	// Version is reported in health messages.
	Version string

	// Logger is optional structured logger.
	Logger Logger

	// Clock overrides time.Now. Tests only.
	Clock func() time.Time
}

// NewBridge creates a new bridge instance.
// The fair-use window starts now, so an unscheduled refresh right after
// startup is deferred. Call Start() to begin polling.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.API == nil {
		return nil, fmt.Errorf("API client is required")
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = SystemScheduler{}
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	state, status := opts.State, opts.Status
	if opts.MQTTClient != nil {
		sink := NewMQTTSink(opts.MQTTClient, opts.Logger)
		if state == nil {
			state = sink
		}
		if status == nil {
			status = sink
		}
	}

	auth := NewAuthenticator(opts.API, opts.Config.Account.Email, opts.Config.Account.Password)
	auth.now = now

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:          opts.Config,
		api:          opts.API,
		auth:         auth,
		registry:     NewRegistry(),
		mqtt:         opts.MQTTClient,
		state:        state,
		status:       status,
		readings:     opts.Readings,
		polls:        opts.Polls,
		scheduler:    scheduler,
		metrics:      opts.Metrics,
		loc:          loc,
		now:          now,
		lastRefresh:  now(),
		announced:    make(map[string]bool),
		handlers:     make(map[string]*DeviceHandler),
		bridgeStatus: Status{State: StateUnknown, Detail: DetailNone},
		done:         make(chan struct{}),
		ctx:          ctx,
		ctxCancel:    ctxCancel,
		logger:       opts.Logger,
	}

	if opts.MQTTClient != nil {
		b.health = NewHealthReporter(HealthReporterConfig{
			BridgeID:  opts.Config.Bridge.ID,
			Version:   opts.Version,
			Interval:  opts.Config.GetHealthInterval(),
			Publisher: opts.MQTTClient,
			Cloud:     b,
		})
		if opts.Logger != nil {
			b.health.SetLogger(opts.Logger)
		}
	}

	return b, nil
}

// ID returns the bridge identifier.
func (b *Bridge) ID() string {
	return b.cfg.Bridge.ID
}

// Start begins bridge operation.
// It marks the bridge online, subscribes to refresh commands, starts health
// reporting and the poll loop. The first poll runs immediately.
func (b *Bridge) Start(ctx context.Context) error {
	if b.isStopped() {
		return ErrBridgeStopped
	}

	if b.health != nil {
		if err := b.health.PublishStarting(); err != nil {
			b.logError("failed to publish starting status", err)
		}
	}

	b.setStatus(Online())

	if b.mqtt != nil {
		topic := RefreshCommandTopic()
		if err := b.mqtt.Subscribe(topic, 1, b.handleRefreshMessage); err != nil {
			return fmt.Errorf("subscribe to refresh commands: %w", err)
		}
		b.logInfo("subscribed to refresh commands", "topic", topic)
	}

	if b.health != nil {
		b.health.Start(ctx)
	}

	b.wg.Add(1)
	go b.pollLoop()

	b.logInfo("bridge started",
		"bridge_id", b.cfg.Bridge.ID,
		"devices", b.DeviceCount(),
		"refresh_interval", b.cfg.GetRefreshInterval().String())

	return nil
}

// Stop gracefully shuts down the bridge. Device handlers are disposed,
// cancelling their pending follow-ups.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()

		b.handlersMu.Lock()
		for _, h := range b.handlers {
			h.Dispose()
		}
		b.handlersMu.Unlock()

		if b.health != nil {
			b.health.Stop()
		}

		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

func (b *Bridge) isStopped() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// pollLoop polls immediately and then waits the refresh interval after
// each cycle ends.
func (b *Bridge) pollLoop() {
	defer b.wg.Done()

	interval := b.cfg.GetRefreshInterval()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-timer.C:
			//nolint:errcheck // Failures are reflected in status and the poll log
			b.poll(b.ctx, TriggerScheduled, true)
			timer.Reset(interval)
		}
	}
}

// HandleRefreshCommand starts a poll on demand.
//
// An empty target is an unscheduled refresh of the whole bridge. It is
// dropped with ErrRefreshDeferred unless the fair-use window has passed
// since the last accepted one. A non-empty target (a channel) always polls.
//
// Parameters:
//   - ctx: Context for the poll
//   - target: "" for the whole bridge, or a channel name
//
// Returns:
//   - error: ErrRefreshDeferred, ErrBridgeStopped, or the poll failure
func (b *Bridge) HandleRefreshCommand(ctx context.Context, target string) error {
	return b.refresh(ctx, target, TriggerCommand)
}

func (b *Bridge) refresh(ctx context.Context, target string, trigger PollTrigger) error {
	if b.isStopped() {
		return ErrBridgeStopped
	}

	if target == "" {
		if !b.admitRefresh() {
			b.metrics.RecordRefreshCommand(refreshDeferred)
			b.logDebug("refresh deferred by fair-use window", "trigger", string(trigger))
			return ErrRefreshDeferred
		}
		b.metrics.RecordRefreshCommand(refreshAccepted)
	} else {
		b.metrics.RecordRefreshCommand(refreshTargeted)
	}

	_, err := b.poll(ctx, trigger, true)
	return err
}

// admitRefresh applies the fair-use gate and records the refresh time
// when it passes.
func (b *Bridge) admitRefresh() bool {
	b.gateMu.Lock()
	defer b.gateMu.Unlock()

	now := b.now()
	if now.Sub(b.lastRefresh) < b.cfg.GetFairUseWindow() {
		return false
	}
	b.lastRefresh = now
	return true
}

// NextAllowedRefresh returns when an unscheduled refresh will next be admitted.
func (b *Bridge) NextAllowedRefresh() time.Time {
	b.gateMu.Lock()
	defer b.gateMu.Unlock()
	return b.lastRefresh.Add(b.cfg.GetFairUseWindow())
}

// GetAllDevices authenticates, fetches the device list and announces
// unclaimed devices, without dispatching a refresh to the handlers.
func (b *Bridge) GetAllDevices(ctx context.Context) ([]Device, error) {
	if b.isStopped() {
		return nil, ErrBridgeStopped
	}
	return b.poll(ctx, TriggerScan, false)
}

// poll runs one cycle: authenticate, fetch, detect new devices, and when
// dispatch is set, hand the list to every listener.
func (b *Bridge) poll(ctx context.Context, trigger PollTrigger, dispatch bool) ([]Device, error) {
	b.pollMu.Lock()
	defer b.pollMu.Unlock()

	result := PollResult{Trigger: trigger, StartedAt: b.now()}
	defer func() {
		result.Duration = b.now().Sub(result.StartedAt)
		b.finishPoll(ctx, result)
	}()

	authResult, err := b.auth.EnsureAuthenticated(ctx)
	b.metrics.RecordAuth(authResult)
	if err != nil {
		b.logError("authentication failed", err)
		b.setStatus(Offline(DetailCommunicationError, describeAuthError(err, b.cfg.Account.Email)))
		result.Outcome = OutcomeAuthFailed
		result.Err = err
		return nil, err
	}
	if authResult != AuthReused {
		b.logDebug("authenticated", "result", string(authResult))
	}

	var devices []Device
	err = b.auth.Use(func(s *Session) error {
		var fetchErr error
		devices, fetchErr = b.api.Devices(ctx, s)
		return fetchErr
	})
	if err != nil {
		if errors.Is(err, ErrAuth) || errors.Is(err, ErrNotAuthenticated) {
			b.auth.Invalidate()
		}
		b.logError("fetching devices failed", err)
		b.setStatus(Offline(DetailCommunicationError, describeAuthError(err, b.cfg.Account.Email)))
		result.Outcome = OutcomeFetchFailed
		result.Err = err
		return nil, err
	}

	result.Outcome = OutcomeOK
	result.DeviceCount = len(devices)

	b.stateMu.Lock()
	b.lastDevices = devices
	b.stateMu.Unlock()

	b.detectDevices(devices)
	b.setStatus(Online())

	if dispatch {
		for _, l := range b.registry.Listeners() {
			b.dispatch("refresh", l, func() error { return l.OnRefresh(ctx, devices) })
		}
	}

	return devices, nil
}

func (b *Bridge) finishPoll(ctx context.Context, result PollResult) {
	b.metrics.RecordPoll(result)

	b.stateMu.Lock()
	b.lastPoll = &result
	b.stateMu.Unlock()

	if b.polls != nil {
		recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		b.polls.RecordPoll(recCtx, result)
		cancel()
	}

	b.logDebug("poll finished",
		"trigger", string(result.Trigger),
		"outcome", string(result.Outcome),
		"devices", result.DeviceCount,
		"duration", result.Duration.String())
}

// detectDevices announces every hwid no listener claims, once, and
// withdraws announced hwids that left the account unclaimed.
func (b *Bridge) detectDevices(devices []Device) {
	bridgeID := b.cfg.Bridge.ID
	present := make(map[string]bool, len(devices))

	var added []string
	b.annMu.Lock()
	for _, d := range devices {
		present[d.HWID] = true
		if b.registry.Claimed(d.HWID) || b.announced[d.HWID] {
			continue
		}
		b.announced[d.HWID] = true
		added = append(added, d.HWID)
	}
	var removed []string
	for hwid := range b.announced {
		if !present[hwid] && !b.registry.Claimed(hwid) {
			delete(b.announced, hwid)
			removed = append(removed, hwid)
		}
	}
	b.annMu.Unlock()

	listeners := b.registry.Listeners()
	for _, hwid := range added {
		b.logInfo("new device found", "hwid", hwid)
		for _, l := range listeners {
			b.dispatch("added", l, func() error { return l.OnAdded(bridgeID, hwid) })
		}
	}
	for _, hwid := range removed {
		b.logInfo("device left the account", "hwid", hwid)
		for _, l := range listeners {
			b.dispatch("removed", l, func() error { return l.OnRemoved(bridgeID, hwid) })
		}
	}
}

// dispatch calls one listener, containing errors and panics so the
// remaining listeners still run.
func (b *Bridge) dispatch(event string, l Listener, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.RecordListenerError(event)
			b.logError("listener panicked",
				fmt.Errorf("panic: %v", r),
				"event", event,
				"hwid", l.HWID())
		}
	}()

	if err := fn(); err != nil {
		b.metrics.RecordListenerError(event)
		b.logError("listener failed", err, "event", event, "hwid", l.HWID())
	}
}

// Register adds a listener.
func (b *Bridge) Register(l Listener) error {
	return b.registry.Register(l)
}

// Unregister removes a listener. It reports whether l was registered.
func (b *Bridge) Unregister(l Listener) bool {
	return b.registry.Unregister(l)
}

// AddDevice creates a device handler and registers it.
// A device without hwid reports a configuration error and is not registered.
//
// Returns:
//   - *DeviceHandler: The registered handler
//   - error: ErrConfiguration, ErrListenerExists or ErrBridgeStopped
func (b *Bridge) AddDevice(dev DeviceConfig) (*DeviceHandler, error) {
	if b.isStopped() {
		return nil, ErrBridgeStopped
	}

	h := newDeviceHandler(b.ctx, deviceHandlerOptions{
		ThingID:   b.cfg.DeviceThingID(dev),
		HWID:      dev.HWID,
		Name:      dev.Name,
		Refresher: b,
		State:     b.state,
		Status:    b.status,
		Readings:  b.readings,
		Scheduler: b.scheduler,
		Metrics:   b.metrics,
		Location:  b.loc,
		Clock:     b.now,
		Logger:    b.getLogger(),
	})

	if dev.HWID == "" {
		h.setStatus(Offline(DetailConfigurationError, "hwid missing"))
		h.Dispose()
		return nil, fmt.Errorf("%w: hwid missing for %s", ErrConfiguration, h.ThingID())
	}

	if err := b.registry.Register(h); err != nil {
		h.Dispose()
		return nil, err
	}

	if err := b.insertHandler(h); err != nil {
		return nil, err
	}

	if b.Status().State == StateOffline {
		h.setStatus(Offline(DetailBridgeOffline, ""))
	} else {
		h.setStatus(Status{State: StateUnknown, Detail: DetailNone})
	}

	b.logInfo("device added", "hwid", dev.HWID, "thing", h.ThingID())
	return h, nil
}

// RemoveDevice disposes and unregisters the handler for hwid. The
// remaining listeners receive OnRemoved and the hwid becomes eligible for
// announcement again.
func (b *Bridge) RemoveDevice(hwid string) error {
	b.handlersMu.Lock()
	h, ok := b.handlers[hwid]
	if ok {
		delete(b.handlers, hwid)
	}
	count := len(b.handlers)
	b.handlersMu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, hwid)
	}

	h.Dispose()
	b.registry.Unregister(h)

	b.annMu.Lock()
	delete(b.announced, hwid)
	b.annMu.Unlock()

	if b.health != nil {
		b.health.SetDeviceCount(count)
	}
	b.metrics.ForgetDevice(hwid)

	bridgeID := b.cfg.Bridge.ID
	for _, l := range b.registry.Listeners() {
		b.dispatch("removed", l, func() error { return l.OnRemoved(bridgeID, hwid) })
	}

	b.logInfo("device removed", "hwid", hwid)
	return nil
}

// Device returns the handler for hwid.
func (b *Bridge) Device(hwid string) (*DeviceHandler, bool) {
	b.handlersMu.RLock()
	defer b.handlersMu.RUnlock()
	h, ok := b.handlers[hwid]
	return h, ok
}

// Devices returns the device handlers in registration order.
func (b *Bridge) Devices() []*DeviceHandler {
	var out []*DeviceHandler
	for _, l := range b.registry.Listeners() {
		if h, ok := l.(*DeviceHandler); ok {
			out = append(out, h)
		}
	}
	return out
}

// DeviceCount returns the number of device handlers.
func (b *Bridge) DeviceCount() int {
	b.handlersMu.RLock()
	defer b.handlersMu.RUnlock()
	return len(b.handlers)
}

// insertHandler stores a registered handler. Stop disposes handlers under
// handlersMu after closing done, so a handler that loses that race is
// unregistered and disposed here instead.
func (b *Bridge) insertHandler(h *DeviceHandler) error {
	b.handlersMu.Lock()
	if b.isStopped() {
		b.handlersMu.Unlock()
		b.registry.Unregister(h)
		h.Dispose()
		return ErrBridgeStopped
	}
	b.handlers[h.HWID()] = h
	count := len(b.handlers)
	b.handlersMu.Unlock()

	if b.health != nil {
		b.health.SetDeviceCount(count)
	}
	return nil
}

// LastDevices returns the device list of the last successful poll.
func (b *Bridge) LastDevices() []Device {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	out := make([]Device, len(b.lastDevices))
	copy(out, b.lastDevices)
	return out
}

// Status returns the bridge availability.
func (b *Bridge) Status() Status {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.bridgeStatus
}

// setStatus records and publishes the bridge status. Going offline marks
// every device offline with bridge_offline.
func (b *Bridge) setStatus(s Status) {
	b.stateMu.Lock()
	prev := b.bridgeStatus
	b.bridgeStatus = s
	b.stateMu.Unlock()

	if b.status != nil {
		b.status.UpdateStatus(b.cfg.Bridge.ID, s)
	}

	if prev.State != s.State {
		b.logInfo("bridge status changed",
			"from", string(prev.State),
			"to", string(s.State),
			"message", s.Message)
	}

	if s.State == StateOffline && prev.State != StateOffline {
		for _, h := range b.Devices() {
			h.setStatus(Offline(DetailBridgeOffline, ""))
		}
	}
}

// handleRefreshMessage handles a refresh command from MQTT. The poll runs
// in its own goroutine so the MQTT client is not blocked.
func (b *Bridge) handleRefreshMessage(topic string, payload []byte) {
	var cmd RefreshCommand
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			b.logError("invalid refresh command", err, "topic", topic)
			return
		}
	}

	if b.isStopped() {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
		defer cancel()

		err := b.HandleRefreshCommand(ctx, cmd.Target)
		switch {
		case err == nil:
		case errors.Is(err, ErrRefreshDeferred):
			b.logInfo("refresh command deferred",
				"next_allowed", b.NextAllowedRefresh().Format(time.RFC3339))
		default:
			b.logError("refresh command failed", err, "target", cmd.Target)
		}
	}()
}

// CloudStatus implements CloudReporter for the health reporter.
func (b *Bridge) CloudStatus() (Status, CloudStatus) {
	snap := b.auth.Snapshot()

	b.stateMu.RLock()
	defer b.stateMu.RUnlock()

	cs := CloudStatus{Authenticated: snap.Authenticated}
	if b.lastPoll != nil {
		at := b.lastPoll.StartedAt.UTC()
		cs.LastPoll = &at
		cs.LastOutcome = string(b.lastPoll.Outcome)
	}
	return b.bridgeStatus, cs
}

// BridgeInfo is a snapshot of the bridge for the API.
type BridgeInfo struct {
	ID                 string          `json:"id"`
	Status             Status          `json:"status"`
	Session            SessionSnapshot `json:"session"`
	Devices            int             `json:"devices"`
	LastPoll           *PollSummary    `json:"last_poll,omitempty"`
	NextAllowedRefresh time.Time       `json:"next_allowed_refresh"`
	RefreshInterval    string          `json:"refresh_interval"`

	// Listeners counts device handlers plus discovery listeners.
	Listeners int `json:"listeners"`

	// AccountDevices lists the hwids of the last successful poll;
	// Unclaimed are those no listener handles.
	AccountDevices []string `json:"account_devices"`
	Unclaimed      []string `json:"unclaimed"`
}

// PollSummary is the JSON form of a PollResult.
type PollSummary struct {
	Trigger     PollTrigger `json:"trigger"`
	StartedAt   time.Time   `json:"started_at"`
	DurationMS  int64       `json:"duration_ms"`
	Outcome     PollOutcome `json:"outcome"`
	DeviceCount int         `json:"device_count"`
	Error       string      `json:"error,omitempty"`
}

// Summary converts a PollResult for JSON output.
func (r PollResult) Summary() PollSummary {
	s := PollSummary{
		Trigger:     r.Trigger,
		StartedAt:   r.StartedAt.UTC(),
		DurationMS:  r.Duration.Milliseconds(),
		Outcome:     r.Outcome,
		DeviceCount: r.DeviceCount,
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}

// Info returns a snapshot of the bridge.
func (b *Bridge) Info() BridgeInfo {
	info := BridgeInfo{
		ID:                 b.cfg.Bridge.ID,
		Status:             b.Status(),
		Session:            b.auth.Snapshot(),
		Devices:            b.DeviceCount(),
		NextAllowedRefresh: b.NextAllowedRefresh().UTC(),
		RefreshInterval:    b.cfg.GetRefreshInterval().String(),
		Listeners:          b.registry.Len(),
		AccountDevices:     []string{},
		Unclaimed:          []string{},
	}

	claimed := make(map[string]bool)
	for _, hwid := range b.registry.ClaimedHWIDs() {
		claimed[hwid] = true
	}
	for _, d := range b.LastDevices() {
		info.AccountDevices = append(info.AccountDevices, d.HWID)
		if !claimed[d.HWID] {
			info.Unclaimed = append(info.Unclaimed, d.HWID)
		}
	}

	b.stateMu.RLock()
	if b.lastPoll != nil {
		summary := b.lastPoll.Summary()
		info.LastPoll = &summary
	}
	b.stateMu.RUnlock()

	return info
}

// SetLogger sets the logger for the bridge and its health reporter.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
