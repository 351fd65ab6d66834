package oilfox

import (
	"context"
	"time"
)

// State is the availability of the bridge or a device.
type State string

const (
	StateUnknown State = "unknown"
	StateOnline  State = "online"
	StateOffline State = "offline"
)

// StatusDetail qualifies an offline state.
type StatusDetail string

const (
	DetailNone               StatusDetail = "none"
	DetailCommunicationError StatusDetail = "communication_error"
	DetailConfigurationError StatusDetail = "configuration_error"
	DetailBridgeOffline      StatusDetail = "bridge_offline"
)

// Status is the availability reported for a thing.
type Status struct {
	State   State        `json:"state"`
	Detail  StatusDetail `json:"detail"`
	Message string       `json:"message,omitempty"`
}

// Online returns an online status.
func Online() Status {
	return Status{State: StateOnline, Detail: DetailNone}
}

// Offline returns an offline status with the given detail.
func Offline(detail StatusDetail, message string) Status {
	return Status{State: StateOffline, Detail: detail, Message: message}
}

// StateSink receives channel updates.
type StateSink interface {
	UpdateState(hwid, channel string, value any)
}

// StatusSink receives availability changes for the bridge and devices.
type StatusSink interface {
	UpdateStatus(thingID string, status Status)
}

// ReadingRecorder persists a device record after each successful refresh.
type ReadingRecorder interface {
	RecordReading(ctx context.Context, device Device) error
}

// PollTrigger identifies what started a poll cycle.
type PollTrigger string

const (
	TriggerScheduled PollTrigger = "scheduled"
	TriggerCommand   PollTrigger = "command"
	TriggerFollowUp  PollTrigger = "follow_up"
	TriggerScan      PollTrigger = "scan"
)

// PollOutcome is the result of a poll cycle.
type PollOutcome string

const (
	OutcomeOK          PollOutcome = "ok"
	OutcomeAuthFailed  PollOutcome = "auth_failed"
	OutcomeFetchFailed PollOutcome = "fetch_failed"
)

// PollResult describes one completed poll cycle.
type PollResult struct {
	Trigger     PollTrigger
	StartedAt   time.Time
	Duration    time.Duration
	Outcome     PollOutcome
	DeviceCount int
	Err         error
}

// PollRecorder keeps a log of poll cycles.
type PollRecorder interface {
	RecordPoll(ctx context.Context, result PollResult)
}

// multiStateSink fans state updates out to several sinks.
type multiStateSink []StateSink

func (m multiStateSink) UpdateState(hwid, channel string, value any) {
	for _, s := range m {
		s.UpdateState(hwid, channel, value)
	}
}

// JoinStateSinks returns a sink forwarding to every non-nil sink.
func JoinStateSinks(sinks ...StateSink) StateSink {
	out := make(multiStateSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
