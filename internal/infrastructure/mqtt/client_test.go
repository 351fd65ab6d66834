package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/oilfox-bridge/internal/infrastructure/config"
)

// testConfig returns an MQTT configuration pointing at a local broker.
// Tests in this file never connect; broker tests live in integration_test.go.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "oilfoxd-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// unconnected returns a client that was never connected to a broker.
func unconnected() *Client {
	return &Client{
		cfg:           testConfig(),
		subscriptions: make(map[string]subscription),
	}
}

type capturingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *capturingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *capturingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestTopics(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"system status", topics.SystemStatus(), "oilfox/system/status"},
		{"all states", topics.AllStates(), "oilfox/state/+/+"},
		{"all statuses", topics.AllStatuses(), "oilfox/status/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	t.Run("plain tcp with auth", func(t *testing.T) {
		cfg := testConfig()
		cfg.Auth = config.MQTTAuthConfig{Username: "bridge", Password: "secret"}

		opts := buildClientOptions(cfg)

		if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
			t.Errorf("Servers = %v", opts.Servers)
		}
		if opts.ClientID != "oilfoxd-test" {
			t.Errorf("ClientID = %q", opts.ClientID)
		}
		if opts.Username != "bridge" || opts.Password != "secret" {
			t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
		}
		if !opts.AutoReconnect || !opts.CleanSession {
			t.Error("auto-reconnect and clean session should be enabled")
		}
		if opts.TLSConfig != nil && len(opts.TLSConfig.Certificates) > 0 {
			t.Error("TLS should not be configured")
		}
	})

	t.Run("tls", func(t *testing.T) {
		cfg := testConfig()
		cfg.Broker.TLS = true
		cfg.Broker.Port = 8883

		opts := buildClientOptions(cfg)

		if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
			t.Errorf("Servers = %v", opts.Servers)
		}
		if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
			t.Error("TLS config should require TLS 1.2")
		}
	})
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	if err := configureLWT(opts, "oilfoxd-test"); err != nil {
		t.Fatalf("configureLWT() error = %v", err)
	}

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false")
	}
	if opts.WillTopic != "oilfox/system/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will retained=%v qos=%d", opts.WillRetained, opts.WillQos)
	}

	var payload StatusPayload
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if payload.Status != "offline" || payload.Reason != "unexpected_disconnect" {
		t.Errorf("will payload = %+v", payload)
	}
}

func TestConfigureLWT_WithWill(t *testing.T) {
	opts := buildClientOptions(testConfig())
	will := Will{Topic: "oilfox/health/oilfox", Payload: []byte(`{"status":"offline"}`), QoS: 1}
	if err := configureLWT(opts, "oilfoxd-test", WithWill(will)); err != nil {
		t.Fatalf("configureLWT() error = %v", err)
	}

	if !opts.WillEnabled || !opts.WillRetained {
		t.Fatalf("will enabled=%v retained=%v", opts.WillEnabled, opts.WillRetained)
	}
	if opts.WillTopic != "oilfox/health/oilfox" {
		t.Errorf("WillTopic = %q, want the health topic", opts.WillTopic)
	}
	if string(opts.WillPayload) != `{"status":"offline"}` || opts.WillQos != 1 {
		t.Errorf("will payload=%s qos=%d", opts.WillPayload, opts.WillQos)
	}
}

func TestConfigureLWT_InvalidWill(t *testing.T) {
	tests := []struct {
		name string
		will Will
		want error
	}{
		{"empty topic", Will{Payload: []byte("x")}, ErrInvalidTopic},
		{"invalid qos", Will{Topic: "oilfox/health/x", QoS: 3}, ErrInvalidQoS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := configureLWT(buildClientOptions(testConfig()), "oilfoxd-test", WithWill(tt.will))
			if !errors.Is(err, tt.want) {
				t.Errorf("configureLWT() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStatusPayload(t *testing.T) {
	raw := statusPayload("online", "oilfoxd-test", "")

	if strings.Contains(string(raw), "reason") {
		t.Errorf("empty reason should be omitted: %s", raw)
	}

	var payload StatusPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if payload.Status != "online" || payload.ClientID != "oilfoxd-test" || payload.Timestamp.IsZero() {
		t.Errorf("payload = %+v", payload)
	}
}

func TestPublishValidation(t *testing.T) {
	c := unconnected()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "oilfox/test", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "oilfox/test", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "oilfox/test", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}

	if err := c.PublishRetained("oilfox/test", []byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishRetained() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := unconnected()
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		want    error
	}{
		{"empty topic", "", 1, noop, ErrInvalidTopic},
		{"invalid qos", "oilfox/#", 5, noop, ErrInvalidQoS},
		{"nil handler", "oilfox/#", 1, nil, ErrSubscribeFailed},
		{"not connected", "oilfox/#", 1, noop, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Subscribe(tt.topic, tt.qos, tt.handler)
			if !errors.Is(err, tt.want) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.want)
			}
		})
	}

	if c.SubscriptionCount() != 0 || c.HasSubscription("oilfox/#") {
		t.Error("failed subscriptions must not be tracked")
	}

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v", err)
	}
	if err := c.Unsubscribe("oilfox/#"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v", err)
	}
}

func TestUnconnectedClient(t *testing.T) {
	c := unconnected()

	if c.IsConnected() {
		t.Error("IsConnected() = true for a client never connected")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestDispatch(t *testing.T) {
	c := unconnected()
	logger := &capturingLogger{}
	c.SetLogger(logger)

	var got string
	c.dispatch(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	}, "oilfox/command/0A1B2C/refresh", []byte("fillLevelPercent"))
	if got != "oilfox/command/0A1B2C/refresh=fillLevelPercent" {
		t.Errorf("handler saw %q", got)
	}

	c.dispatch(func(string, []byte) error {
		return errors.New("bad payload")
	}, "oilfox/x", nil)

	c.dispatch(func(string, []byte) error {
		panic("boom")
	}, "oilfox/x", nil)

	if len(logger.warns) != 1 || len(logger.errors) != 1 {
		t.Errorf("warns = %v, errors = %v", logger.warns, logger.errors)
	}
}

func TestDispatch_NoLogger(t *testing.T) {
	c := unconnected()

	// Must not panic without a logger.
	c.dispatch(func(string, []byte) error { panic("boom") }, "oilfox/x", nil)
}

func TestConnectionCallbacks(t *testing.T) {
	c := unconnected()

	var lost error
	c.SetOnDisconnect(func(err error) { lost = err })

	cause := errors.New("broker went away")
	c.handleDisconnect(cause)

	if !errors.Is(lost, cause) {
		t.Errorf("OnDisconnect got %v", lost)
	}
	if c.IsConnected() {
		t.Error("IsConnected() should be false after disconnect")
	}
}
