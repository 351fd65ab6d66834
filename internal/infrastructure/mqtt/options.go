package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/oilfox-bridge/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds the wait for a publish or subscribe ack.
	defaultPublishTimeout = 5 * time.Second

	defaultDisconnectQuiesce = 1000 // milliseconds

	defaultKeepAlive = 60 * time.Second

	maxQoS = 2

	tlsMinVersion = tls.VersionTLS12
)

// StatusPayload is published on the system status topic.
type StatusPayload struct {
	Status    string    `json:"status"`
	ClientID  string    `json:"client_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// buildClientOptions maps the mqtt section of config.yaml to paho options:
// broker URL (tcp:// or ssl://), client id, credentials, clean session,
// auto-reconnect with backoff and keepalive.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// Will is a retained message the broker publishes if the connection drops
// without a clean disconnect. A connection carries exactly one.
type Will struct {
	Topic   string
	Payload []byte
	QoS     byte
}

// Option customises Connect.
type Option func(*connectOptions)

type connectOptions struct {
	will *Will
}

// WithWill replaces the default Last Will on oilfox/system/status.
func WithWill(will Will) Option {
	return func(o *connectOptions) {
		o.will = &will
	}
}

// configureLWT makes the broker publish a retained offline status on
// oilfox/system/status if the daemon disappears without Close, unless a
// WithWill option names another message.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string, options ...Option) error {
	var co connectOptions
	for _, apply := range options {
		apply(&co)
	}

	if co.will == nil {
		opts.SetWill(Topics{}.SystemStatus(), string(statusPayload("offline", clientID, "unexpected_disconnect")), 1, true)
		return nil
	}

	if co.will.Topic == "" {
		return fmt.Errorf("will: %w", ErrInvalidTopic)
	}
	if co.will.QoS > maxQoS {
		return fmt.Errorf("will: %w", ErrInvalidQoS)
	}
	opts.SetBinaryWill(co.will.Topic, co.will.Payload, co.will.QoS, true)
	return nil
}

func statusPayload(status, clientID, reason string) []byte {
	//nolint:errcheck // A struct of strings and a time always encodes
	payload, _ := json.Marshal(StatusPayload{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	return payload
}
