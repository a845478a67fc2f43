package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertLoginFailureSpike AlertType = "login_failure_spike"
	AlertLeadDeleteSpike   AlertType = "lead_delete_spike"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// spikeWindow counts events in a sliding window and fires once the
// threshold is reached.
type spikeWindow struct {
	events    []time.Time
	window    time.Duration
	threshold int
}

func (s *spikeWindow) add(now time.Time) (count int, fired bool) {
	s.events = append(s.events, now)
	cutoff := now.Add(-s.window)
	start := 0
	for start < len(s.events) && s.events[start].Before(cutoff) {
		start++
	}
	s.events = s.events[start:]
	count = len(s.events)
	if count >= s.threshold {
		// Reset to avoid repeated alerts within the same spike.
		s.events = s.events[:0]
		return count, true
	}
	return count, false
}

// metricsCollector raises alerts on bursts of audit events.
type metricsCollector struct {
	mu sync.Mutex

	loginFailures spikeWindow
	deletes       spikeWindow

	alertFn AlertFunc
	now     func() time.Time
}

const (
	defaultLoginFailureWindow    = 1 * time.Minute
	defaultLoginFailureThreshold = 50
	defaultDeleteWindow          = 5 * time.Minute
	defaultDeleteThreshold       = 25
)

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		loginFailures: spikeWindow{window: defaultLoginFailureWindow, threshold: defaultLoginFailureThreshold},
		deletes:       spikeWindow{window: defaultDeleteWindow, threshold: defaultDeleteThreshold},
		alertFn:       alertFn,
		now:           time.Now,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	var (
		w       *spikeWindow
		typ     AlertType
		message string
	)
	switch event {
	case AuditLoginFailure:
		w, typ, message = &m.loginFailures, AlertLoginFailureSpike, "admin login failure rate exceeds threshold"
	case AuditLeadDeleted:
		w, typ, message = &m.deletes, AlertLeadDeleteSpike, "lead deletion rate exceeds threshold"
	default:
		return
	}

	m.mu.Lock()
	now := m.now()
	count, fired := w.add(now)
	threshold := w.threshold
	m.mu.Unlock()

	if fired {
		m.alertFn(AlertEvent{
			Type:      typ,
			Message:   message,
			Count:     count,
			Threshold: threshold,
			Timestamp: now,
		})
	}
}
