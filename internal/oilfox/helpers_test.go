package oilfox

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeAPI is an in-memory customer API.
type fakeAPI struct {
	mu         sync.Mutex
	devices    []Device
	loginErr   error
	refreshErr error
	devicesErr error

	logins    int
	refreshes int
	fetches   int
	seq       int
	lastToken string

	// loginGate, when set, blocks Login until it is closed. loginStarted
	// is signalled once the call is in flight.
	loginGate    chan struct{}
	loginStarted chan struct{}

	// fetchDelay slows Devices down; activeFetches and peakFetches track
	// how many calls overlap.
	fetchDelay    time.Duration
	activeFetches int
	peakFetches   int
}

func (f *fakeAPI) Login(_ context.Context, _, _ string) (Tokens, error) {
	f.mu.Lock()
	gate, started := f.loginGate, f.loginStarted
	f.mu.Unlock()
	if gate != nil {
		if started != nil {
			started <- struct{}{}
		}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if f.loginErr != nil {
		return Tokens{}, f.loginErr
	}
	return f.nextTokens(), nil
}

func (f *fakeAPI) RefreshToken(_ context.Context, _ string) (Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return Tokens{}, f.refreshErr
	}
	return f.nextTokens(), nil
}

func (f *fakeAPI) nextTokens() Tokens {
	f.seq++
	return Tokens{
		AccessToken:  fmt.Sprintf("access-%d", f.seq),
		RefreshToken: fmt.Sprintf("refresh-%d", f.seq),
	}
}

func (f *fakeAPI) Devices(_ context.Context, s *Session) ([]Device, error) {
	f.mu.Lock()
	f.fetches++
	f.activeFetches++
	if f.activeFetches > f.peakFetches {
		f.peakFetches = f.activeFetches
	}
	delay := f.fetchDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeFetches--
	if s.AccessToken == "" {
		return nil, ErrNotAuthenticated
	}
	f.lastToken = s.AccessToken
	if f.devicesErr != nil {
		return nil, f.devicesErr
	}
	out := make([]Device, len(f.devices))
	copy(out, f.devices)
	return out, nil
}

func (f *fakeAPI) setDevices(devices ...Device) {
	f.mu.Lock()
	f.devices = devices
	f.mu.Unlock()
}

func (f *fakeAPI) peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peakFetches
}

func (f *fakeAPI) counts() (logins, refreshes, fetches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins, f.refreshes, f.fetches
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeTimer is a timer that only fires when the test says so.
type fakeTimer struct {
	mu      sync.Mutex
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasPending := !t.stopped && !t.fired
	t.stopped = true
	return wasPending
}

func (t *fakeTimer) Fire() {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()
	t.f()
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// fakeScheduler records every scheduled timer.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) all() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*fakeTimer, len(s.timers))
	copy(out, s.timers)
	return out
}

// recordingSink captures state and status updates.
type recordingSink struct {
	mu       sync.Mutex
	states   map[string]map[string]any
	statuses map[string][]Status
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		states:   make(map[string]map[string]any),
		statuses: make(map[string][]Status),
	}
}

func (s *recordingSink) UpdateState(hwid, channel string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states[hwid] == nil {
		s.states[hwid] = make(map[string]any)
	}
	s.states[hwid][channel] = value
}

func (s *recordingSink) UpdateStatus(thingID string, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[thingID] = append(s.statuses[thingID], status)
}

func (s *recordingSink) state(hwid, channel string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.states[hwid][channel]
	return v, ok
}

func (s *recordingSink) lastStatus(thingID string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.statuses[thingID]
	if len(list) == 0 {
		return Status{}, false
	}
	return list[len(list)-1], true
}

// recordingListener captures bridge events.
type recordingListener struct {
	hwid       string
	mu         sync.Mutex
	added      []string
	removed    []string
	refreshes  int
	refreshErr error
	panicOn    string
}

func (l *recordingListener) HWID() string { return l.hwid }

func (l *recordingListener) OnAdded(_, hwid string) error {
	if l.panicOn == "added" {
		panic("boom")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.added = append(l.added, hwid)
	return nil
}

func (l *recordingListener) OnRemoved(_, hwid string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removed = append(l.removed, hwid)
	return nil
}

func (l *recordingListener) OnRefresh(context.Context, []Device) error {
	if l.panicOn == "refresh" {
		panic("boom")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshes++
	return l.refreshErr
}

func (l *recordingListener) snapshot() (added, removed []string, refreshes int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.added...), append([]string(nil), l.removed...), l.refreshes
}

// mockMQTT records publications and subscriptions.
type mockMQTT struct {
	mu            sync.Mutex
	connected     bool
	published     []publishedMessage
	subscriptions map[string]func(topic string, payload []byte)
	publishErr    error
}

type publishedMessage struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{
		connected:     true,
		subscriptions: make(map[string]func(string, []byte)),
	}
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, publishedMessage{topic, payload, qos, retained})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler func(string, []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[topic] = handler
	return nil
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTT) GetPublished() []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]publishedMessage, len(m.published))
	copy(out, m.published)
	return out
}

func (m *mockMQTT) lastOn(topic string) (publishedMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.published) - 1; i >= 0; i-- {
		if m.published[i].Topic == topic {
			return m.published[i], true
		}
	}
	return publishedMessage{}, false
}

// SimulateMessage delivers a message to the subscribed handler.
func (m *mockMQTT) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	handler := m.subscriptions[topic]
	m.mu.Unlock()
	if handler != nil {
		handler(topic, payload)
	}
}

func testDevice(hwid string) Device {
	days := int64(120)
	return Device{
		HWID:              hwid,
		CurrentMeteringAt: "2024-03-01T06:00:00.000Z",
		NextMeteringAt:    "2024-03-01T18:00:00.000Z",
		DaysReach:         &days,
		BatteryLevel:      "FULL",
		FillLevelPercent:  64,
		FillLevelQuantity: 1920,
		QuantityUnit:      "L",
	}
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Bridge.ID = "oilfox"
	cfg.Account.Email = "user@example.com"
	cfg.Account.Password = "secret"
	return cfg
}

type bridgeFixture struct {
	bridge    *Bridge
	api       *fakeAPI
	clock     *fakeClock
	scheduler *fakeScheduler
	sink      *recordingSink
}

func newBridgeFixture(opts ...func(*BridgeOptions)) (*bridgeFixture, error) {
	f := &bridgeFixture{
		api:       &fakeAPI{},
		clock:     newFakeClock(),
		scheduler: &fakeScheduler{},
		sink:      newRecordingSink(),
	}
	o := BridgeOptions{
		Config:    testConfig(),
		API:       f.api,
		State:     f.sink,
		Status:    f.sink,
		Scheduler: f.scheduler,
		Location:  time.UTC,
		Clock:     f.clock.Now,
	}
	for _, fn := range opts {
		fn(&o)
	}
	b, err := NewBridge(o)
	if err != nil {
		return nil, err
	}
	f.bridge = b
	return f, nil
}

// recordingLogger counts log calls per level.
type recordingLogger struct {
	mu     sync.Mutex
	levels []string
}

func (l *recordingLogger) record(level string) {
	l.mu.Lock()
	l.levels = append(l.levels, level)
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(string, ...any) { l.record("debug") }
func (l *recordingLogger) Info(string, ...any)  { l.record("info") }
func (l *recordingLogger) Warn(string, ...any)  { l.record("warn") }
func (l *recordingLogger) Error(string, ...any) { l.record("error") }

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, lv := range l.levels {
		if lv == level {
			n++
		}
	}
	return n
}
