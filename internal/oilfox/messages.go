package oilfox

import (
	"fmt"
	"time"
)

// MQTT messages published and consumed by the bridge.

// StateMessage carries one channel value.
// Topic: oilfox/state/{hwid}/{channel}
// QoS: 1, Retained: Yes
type StateMessage struct {
	HWID      string    `json:"hwid"`
	Channel   string    `json:"channel"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusMessage carries the availability of the bridge or a device.
// Topic: oilfox/status/{thing}
// QoS: 1, Retained: Yes
type StatusMessage struct {
	Thing     string    `json:"thing"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthStatus represents the operational status of the bridge process.
type HealthStatus string

const (
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded means MQTT is up but the cloud session is not.
	HealthDegraded HealthStatus = "degraded"

	HealthUnhealthy HealthStatus = "unhealthy"

	// HealthOffline is published by the broker from the LWT.
	HealthOffline HealthStatus = "offline"

	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: oilfox/health/{bridge}
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge         string       `json:"bridge"`
	Timestamp      time.Time    `json:"timestamp"`
	Status         HealthStatus `json:"status"`
	Version        string       `json:"version"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	DevicesManaged int          `json:"devices_managed"`

	// Cloud describes the session and the last poll.
	Cloud *CloudStatus `json:"cloud,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// CloudStatus is the cloud side of a health message.
type CloudStatus struct {
	Authenticated bool       `json:"authenticated"`
	LastPoll      *time.Time `json:"last_poll,omitempty"`
	LastOutcome   string     `json:"last_outcome,omitempty"`
}

// DiscoveryMessage announces a device that no handler claims.
// Topic: oilfox/discovery/{hwid}
// QoS: 1, Retained: Yes (an empty payload withdraws it)
type DiscoveryMessage struct {
	ThingID    string            `json:"thing_id"`
	Bridge     string            `json:"bridge"`
	Label      string            `json:"label"`
	Properties map[string]string `json:"properties"`
	Timestamp  time.Time         `json:"timestamp"`
}

// RefreshCommand asks the bridge to poll.
// Topic: oilfox/command/refresh
//
// An empty Target is an unscheduled refresh and is subject to the fair-use
// window. A channel name refreshes immediately.
type RefreshCommand struct {
	Target string `json:"target"`
}

// NewStateMessage creates a channel state message.
func NewStateMessage(hwid, channel string, value any) StateMessage {
	return StateMessage{
		HWID:      hwid,
		Channel:   channel,
		Value:     value,
		Timestamp: time.Now().UTC(),
	}
}

// NewStatusMessage creates an availability message.
func NewStatusMessage(thing string, status Status) StatusMessage {
	return StatusMessage{
		Thing:     thing,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
}

// NewDiscoveryMessage creates a discovery announcement.
func NewDiscoveryMessage(result DiscoveryResult) DiscoveryMessage {
	return DiscoveryMessage{
		ThingID:    result.ThingID,
		Bridge:     result.BridgeID,
		Label:      result.Label,
		Properties: result.Properties,
		Timestamp:  time.Now().UTC(),
	}
}

// NewLWTMessage creates the Last Will and Testament health payload.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// Topic helpers

// TopicPrefix is the base topic for all bridge messages.
const TopicPrefix = "oilfox"

// StateTopic returns the topic for a channel value.
// Example: oilfox/state/0A1B2C/fillLevelPercent
func StateTopic(hwid, channel string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, hwid, channel)
}

// StateSubscribeTopic matches every channel of every device.
func StateSubscribeTopic() string {
	return TopicPrefix + "/state/#"
}

// StatusTopic returns the topic for a thing's availability.
// Example: oilfox/status/oilfox:0A1B2C
func StatusTopic(thing string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefix, thing)
}

// HealthTopic returns the topic for bridge health.
// Example: oilfox/health/oilfox
func HealthTopic(bridgeID string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, bridgeID)
}

// DiscoveryTopic returns the topic announcing a hwid.
func DiscoveryTopic(hwid string) string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefix, hwid)
}

// RefreshCommandTopic returns the topic the bridge accepts refresh commands on.
func RefreshCommandTopic() string {
	return TopicPrefix + "/command/refresh"
}
