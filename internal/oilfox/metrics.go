package oilfox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "oilfox"

// Metrics holds the bridge's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	PollsTotal           *prometheus.CounterVec
	PollDuration         prometheus.Histogram
	RefreshCommandsTotal *prometheus.CounterVec
	AuthTotal            *prometheus.CounterVec
	ListenerErrorsTotal  *prometheus.CounterVec
	Devices              prometheus.Gauge
	FillLevelPercent     *prometheus.GaugeVec
	FillLevelQuantity    *prometheus.GaugeVec
	DaysReach            *prometheus.GaugeVec
	LastPollTimestamp    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// Passing a private registry keeps tests independent of the default one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "polls_total",
				Help:      "Poll cycles by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		PollDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "poll_duration_seconds",
				Help:      "Duration of poll cycles including authentication",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		RefreshCommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "refresh_commands_total",
				Help:      "Refresh commands by result (accepted, deferred, targeted)",
			},
			[]string{"result"},
		),
		AuthTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "auth_total",
				Help:      "Authentication attempts by result",
			},
			[]string{"result"},
		),
		ListenerErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "listener_errors_total",
				Help:      "Errors and panics raised by listeners during dispatch",
			},
			[]string{"event"},
		),
		Devices: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "devices",
				Help:      "Devices reported by the last successful poll",
			},
		),
		FillLevelPercent: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "fill_level_percent",
				Help:      "Tank fill level in percent",
			},
			[]string{"hwid"},
		),
		FillLevelQuantity: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "fill_level_quantity",
				Help:      "Tank fill level in the unit reported by the sensor",
			},
			[]string{"hwid", "unit"},
		),
		DaysReach: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "days_reach",
				Help:      "Estimated days until the tank is empty",
			},
			[]string{"hwid"},
		),
		LastPollTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_poll_timestamp_seconds",
				Help:      "Unix time of the last successful poll",
			},
		),
	}
}

// RecordPoll records a completed poll cycle.
func (m *Metrics) RecordPoll(result PollResult) {
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(string(result.Trigger), string(result.Outcome)).Inc()
	m.PollDuration.Observe(result.Duration.Seconds())
	if result.Outcome == OutcomeOK {
		m.Devices.Set(float64(result.DeviceCount))
		m.LastPollTimestamp.Set(float64(result.StartedAt.Add(result.Duration).Unix()))
	}
}

// RecordRefreshCommand counts a refresh command.
func (m *Metrics) RecordRefreshCommand(result string) {
	if m == nil {
		return
	}
	m.RefreshCommandsTotal.WithLabelValues(result).Inc()
}

// RecordAuth counts an authentication attempt.
func (m *Metrics) RecordAuth(result AuthResult) {
	if m == nil {
		return
	}
	m.AuthTotal.WithLabelValues(string(result)).Inc()
}

// RecordListenerError counts a listener failure.
func (m *Metrics) RecordListenerError(event string) {
	if m == nil {
		return
	}
	m.ListenerErrorsTotal.WithLabelValues(event).Inc()
}

// RecordDevice updates the level gauges of one device.
func (m *Metrics) RecordDevice(d Device) {
	if m == nil {
		return
	}
	m.FillLevelPercent.WithLabelValues(d.HWID).Set(float64(d.FillLevelPercent))
	q := d.Quantity()
	m.FillLevelQuantity.WithLabelValues(d.HWID, string(q.Unit)).Set(q.Value)
	if d.DaysReach != nil {
		m.DaysReach.WithLabelValues(d.HWID).Set(float64(*d.DaysReach))
	}
}

// ForgetDevice removes the level gauges of a device.
func (m *Metrics) ForgetDevice(hwid string) {
	if m == nil {
		return
	}
	m.FillLevelPercent.DeleteLabelValues(hwid)
	m.FillLevelQuantity.DeletePartialMatch(prometheus.Labels{"hwid": hwid})
	m.DaysReach.DeleteLabelValues(hwid)
}
