package oilfox

import (
	"encoding/json"
	"fmt"
)

// MQTTSink publishes channel values and availability as retained messages.
type MQTTSink struct {
	publisher Publisher
	logger    Logger
}

// NewMQTTSink creates a sink on publisher.
func NewMQTTSink(publisher Publisher, logger Logger) *MQTTSink {
	return &MQTTSink{publisher: publisher, logger: logger}
}

// UpdateState publishes a channel value to oilfox/state/{hwid}/{channel}.
func (s *MQTTSink) UpdateState(hwid, channel string, value any) {
	s.publishJSON(StateTopic(hwid, channel), NewStateMessage(hwid, channel, value))
}

// UpdateStatus publishes availability to oilfox/status/{thing}.
func (s *MQTTSink) UpdateStatus(thingID string, status Status) {
	s.publishJSON(StatusTopic(thingID), NewStatusMessage(thingID, status))
}

func (s *MQTTSink) publishJSON(topic string, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logError(topic, fmt.Errorf("encoding message: %w", err))
		return
	}
	if err := s.publisher.Publish(topic, payload, 1, true); err != nil {
		s.logError(topic, err)
	}
}

func (s *MQTTSink) logError(topic string, err error) {
	if s.logger != nil {
		s.logger.Error("failed to publish", "topic", topic, "error", err)
	}
}
