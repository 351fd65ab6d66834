package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/oilfox-bridge/internal/infrastructure/config"
	"github.com/nerrad567/oilfox-bridge/internal/infrastructure/database"
	"github.com/nerrad567/oilfox-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/oilfox-bridge/internal/oilfox"
	"github.com/nerrad567/oilfox-bridge/internal/tank"
	"github.com/nerrad567/oilfox-bridge/migrations"
)

// fakeCloud is an in-memory customer API.
type fakeCloud struct {
	mu      sync.Mutex
	devices []oilfox.Device
	err     error
	fetches int
}

func (f *fakeCloud) Login(context.Context, string, string) (oilfox.Tokens, error) {
	return oilfox.Tokens{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (f *fakeCloud) RefreshToken(context.Context, string) (oilfox.Tokens, error) {
	return oilfox.Tokens{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (f *fakeCloud) Devices(context.Context, *oilfox.Session) ([]oilfox.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]oilfox.Device, len(f.devices))
	copy(out, f.devices)
	return out, nil
}

// testClock is a settable clock for the fair-use window.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type testEnv struct {
	srv    *Server
	router http.Handler
	cloud  *fakeCloud
	clock  *testClock
	repo   *tank.SQLiteRepository
	bridge *oilfox.Bridge
	inbox  *oilfox.Inbox
	reg    *prometheus.Registry
}

func tankDevice(hwid string, percent int64) oilfox.Device {
	days := int64(120)
	return oilfox.Device{
		HWID:              hwid,
		CurrentMeteringAt: "2024-03-01T06:00:00.000Z",
		NextMeteringAt:    "2024-03-01T18:00:00.000Z",
		DaysReach:         &days,
		BatteryLevel:      "FULL",
		FillLevelPercent:  percent,
		FillLevelQuantity: percent * 30,
		QuantityUnit:      "L",
	}
}

// newTestEnv wires a real bridge, inbox and SQLite store behind the router.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "api.db"), WALMode: true, BusyTimeout: 5})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	require.NoError(t, db.Migrate(ctx, migrations.FS))

	repo := tank.NewSQLiteRepository(db.DB)
	recorder := tank.NewRecorder(repo, nil)

	cloud := &fakeCloud{devices: []oilfox.Device{tankDevice("0A1B2C", 64), tankDevice("FF0011", 30)}}
	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}

	cfg := oilfox.DefaultConfig()
	cfg.Account.Email = "user@example.com"
	cfg.Account.Password = "secret"

	reg := prometheus.NewRegistry()
	bridge, err := oilfox.NewBridge(oilfox.BridgeOptions{
		Config:   cfg,
		API:      cloud,
		Readings: recorder,
		Polls:    recorder,
		Metrics:  oilfox.NewMetrics(reg),
		Location: time.UTC,
		Clock:    clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(bridge.Stop)

	inbox := oilfox.NewInbox(oilfox.InboxOptions{Adopter: bridge, Store: repo})
	require.NoError(t, bridge.Register(oilfox.NewDiscoveryListener(inbox)))

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			CORS: config.CORSConfig{AllowedOrigins: []string{"http://panel.local"}},
		},
		WS:       config.WebSocketConfig{Path: "/ws", MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:   log,
		Bridge:   bridge,
		Inbox:    inbox,
		Store:    repo,
		Gatherer: reg,
		Checks: map[string]HealthChecker{
			"database": db,
		},
		Version: "test",
	})
	require.NoError(t, err)
	srv.now = clock.Now

	return &testEnv{
		srv:    srv,
		router: srv.buildRouter(),
		cloud:  cloud,
		clock:  clock,
		repo:   repo,
		bridge: bridge,
		inbox:  inbox,
		reg:    reg,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func TestNew_Validation(t *testing.T) {
	log := logging.Default()

	_, err := New(Deps{})
	assert.Error(t, err)

	_, err = New(Deps{Logger: log})
	assert.Error(t, err)

	bridge, err := oilfox.NewBridge(oilfox.BridgeOptions{Config: oilfox.DefaultConfig(), API: &fakeCloud{}})
	require.NoError(t, err)
	defer bridge.Stop()

	_, err = New(Deps{Logger: log, Bridge: bridge})
	assert.Error(t, err, "store is required")
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
	assert.Equal(t, "ok", health.Components["database"])

	env.srv.checks["mqtt"] = checkFunc(func(context.Context) error { return errors.New("mqtt: client not connected") })
	rec = env.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	health = decode[HealthResponse](t, rec)
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "mqtt: client not connected", health.Components["mqtt"])
}

func TestBridge_GetAndRefresh(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/bridge", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[oilfox.BridgeInfo](t, rec)
	assert.Equal(t, "oilfox", info.ID)

	// The fair-use window starts when the bridge is created.
	rec = env.do(t, http.MethodPost, "/api/v1/bridge/refresh", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, ErrCodeRefreshDeferred, body["code"])
	assert.NotEmpty(t, body["next_allowed_refresh"])
	assert.Zero(t, env.cloud.fetches)

	env.clock.Advance(61 * time.Minute)
	rec = env.do(t, http.MethodPost, "/api/v1/bridge/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.cloud.fetches)

	info = decode[oilfox.BridgeInfo](t, rec)
	require.NotNil(t, info.LastPoll)
	assert.Equal(t, oilfox.OutcomeOK, info.LastPoll.Outcome)
	assert.Equal(t, []string{"0A1B2C", "FF0011"}, info.AccountDevices)
	assert.Equal(t, []string{"0A1B2C", "FF0011"}, info.Unclaimed)
	assert.Zero(t, info.Listeners)
}

func TestBridge_RefreshCloudFailure(t *testing.T) {
	env := newTestEnv(t)
	env.cloud.err = &oilfox.StatusError{Code: http.StatusInternalServerError, Err: oilfox.ErrCommunication}
	env.clock.Advance(2 * time.Hour)

	rec := env.do(t, http.MethodPost, "/api/v1/bridge/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, ErrCodeCloudError, decode[Error](t, rec).Code)
}

func TestDevices_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.do(t, http.MethodPost, "/api/v1/devices", AddDeviceRequest{HWID: "0A1B2C", Name: "Cellar"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[oilfox.DeviceInfo](t, rec)
	assert.Equal(t, "0A1B2C", created.HWID)
	assert.Equal(t, "Cellar", created.Name)

	stored, err := env.repo.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, created.ThingID, stored[0].ThingID)

	rec = env.do(t, http.MethodPost, "/api/v1/devices", AddDeviceRequest{HWID: "0A1B2C"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/devices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Devices []oilfox.DeviceInfo `json:"devices"`
		Count   int                 `json:"count"`
	}](t, rec)
	assert.Equal(t, 1, list.Count)

	rec = env.do(t, http.MethodGet, "/api/v1/devices/0A1B2C", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/devices/0A1B2C", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	stored, err = env.repo.ListDevices(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)

	rec = env.do(t, http.MethodDelete, "/api/v1/devices/0A1B2C", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/v1/devices/0A1B2C", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDevices_AddValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/devices", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/devices", AddDeviceRequest{Name: "no hwid"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDevices_RefreshAndReadings(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.bridge.AddDevice(oilfox.DeviceConfig{HWID: "0A1B2C"})
	require.NoError(t, err)

	// Channel refreshes bypass the fair-use window.
	rec := env.do(t, http.MethodPost, "/api/v1/devices/0A1B2C/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	info := decode[oilfox.DeviceInfo](t, rec)
	assert.Equal(t, oilfox.StateOnline, info.Status.State)
	require.NotNil(t, info.Reading)
	assert.Equal(t, int64(64), info.Reading.FillLevelPercent)

	rec = env.do(t, http.MethodPost, "/api/v1/devices/0A1B2C/refresh?channel=volume", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.clock.Advance(deviceRefreshSpacing)
	rec = env.do(t, http.MethodPost, "/api/v1/devices/0A1B2C/refresh", RefreshDeviceRequest{Channel: "daysReach"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/devices/NOPE/refresh", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/devices/0A1B2C/readings?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	readings := decode[struct {
		Readings []tank.Reading `json:"readings"`
		Count    int            `json:"count"`
	}](t, rec)
	assert.Equal(t, 1, readings.Count, "the same metering time is stored once")
	assert.Equal(t, int64(1920), readings.Readings[0].FillLevelQuantity)

	rec = env.do(t, http.MethodGet, "/api/v1/devices/0A1B2C/readings?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/polls", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	polls := decode[struct {
		Polls []tank.PollRecord `json:"polls"`
	}](t, rec)
	require.Len(t, polls.Polls, 2)
	assert.Equal(t, "command", polls.Polls[0].Trigger)
}

func TestDevices_RefreshSpacing(t *testing.T) {
	env := newTestEnv(t)
	for _, hwid := range []string{"0A1B2C", "FF0011"} {
		_, err := env.bridge.AddDevice(oilfox.DeviceConfig{HWID: hwid})
		require.NoError(t, err)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/devices/0A1B2C/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env.clock.Advance(30 * time.Second)
	rec = env.do(t, http.MethodPost, "/api/v1/devices/0A1B2C/refresh", RefreshDeviceRequest{Channel: "batteryLevel"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, ErrCodeRefreshDeferred, body["code"])
	next, err := time.Parse(time.RFC3339, body["next_allowed_refresh"].(string))
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2024, 3, 1, 12, 1, 0, 0, time.UTC)), "next allowed at %s", next)

	// Spacing is per device.
	rec = env.do(t, http.MethodPost, "/api/v1/devices/FF0011/refresh", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	env.clock.Advance(30 * time.Second)
	rec = env.do(t, http.MethodPost, "/api/v1/devices/0A1B2C/refresh", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 3, env.cloud.fetches, "the deferred refresh never reached the cloud")
}

func TestDiscovery_ScanAndApprove(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/discovery", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode[map[string]any](t, rec)["count"])

	rec = env.do(t, http.MethodPost, "/api/v1/discovery/scan", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	scan := decode[struct {
		AccountDevices int                      `json:"account_devices"`
		Results        []oilfox.DiscoveryResult `json:"results"`
	}](t, rec)
	assert.Equal(t, 2, scan.AccountDevices)
	require.Len(t, scan.Results, 2)
	assert.Equal(t, "OilFox 0A1B2C", scan.Results[0].Label)

	rec = env.do(t, http.MethodPost, "/api/v1/discovery/FF0011/approve", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "FF0011", decode[oilfox.DeviceInfo](t, rec).HWID)

	_, ok := env.bridge.Device("FF0011")
	assert.True(t, ok)
	assert.Len(t, env.inbox.Results(), 1)

	stored, err := env.repo.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "FF0011", stored[0].HWID)

	rec = env.do(t, http.MethodPost, "/api/v1/discovery/FF0011/approve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.clock.Advance(2 * time.Hour)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/bridge/refresh", nil).Code)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "oilfox_")
}

func TestMiddleware(t *testing.T) {
	env := newTestEnv(t)

	t.Run("request id generated", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/bridge", nil)
		assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
	})

	t.Run("request id echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/bridge", nil)
		req.Header.Set("X-Request-ID", "abc-123")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
	})

	t.Run("cors", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
		req.Header.Set("Origin", "http://panel.local")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://panel.local", rec.Header().Get("Access-Control-Allow-Origin"))

		req = httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
		req.Header.Set("Origin", "http://evil.example")
		rec = httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("panic recovery", func(t *testing.T) {
		h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestWriteBridgeError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{oilfox.ErrRefreshDeferred, http.StatusTooManyRequests},
		{oilfox.ErrUnknownDevice, http.StatusNotFound},
		{oilfox.ErrUnknownChannel, http.StatusBadRequest},
		{oilfox.ErrConfiguration, http.StatusBadRequest},
		{oilfox.ErrListenerExists, http.StatusConflict},
		{&oilfox.StatusError{Code: 401, Err: oilfox.ErrAuth}, http.StatusBadGateway},
		{oilfox.ErrRateLimited, http.StatusBadGateway},
		{oilfox.ErrBridgeStopped, http.StatusServiceUnavailable},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeBridgeError(rec, tt.err)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestWebSocket_Relay(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	require.NoError(t, conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "1",
		Payload: WSSubscribePayload{Channels: []string{ChannelTankState}},
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ack WSMessage
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, WSTypeResponse, ack.Type)
	assert.Equal(t, "1", ack.ID)

	relay := env.srv.relay(ChannelTankState)
	assert.Error(t, relay("oilfox/state/0A1B2C/fillLevelPercent", []byte("not json")))

	payload := []byte(`{"hwid":"0A1B2C","channel":"fillLevelPercent","value":64}`)
	require.NoError(t, relay("oilfox/state/0A1B2C/fillLevelPercent", payload))

	var event struct {
		Type      string          `json:"type"`
		EventType string          `json:"event_type"`
		Payload   json.RawMessage `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, WSTypeEvent, event.Type)
	assert.Equal(t, ChannelTankState, event.EventType)
	assert.JSONEq(t, string(payload), string(event.Payload))

	// Status events are not delivered without a subscription.
	env.srv.hub.Broadcast(ChannelTankStatus, map[string]string{"state": "offline"})
	require.NoError(t, conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "2"}))
	var pong WSMessage
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, WSTypePong, pong.Type)
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	header := http.Header{"Origin": []string{"http://evil.example"}}
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	if resp != nil {
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
}
