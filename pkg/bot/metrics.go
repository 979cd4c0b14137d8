package bot

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks bot runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Interaction counters
	Interactions      atomic.Int64 // component and modal interactions handled
	PermissionDenials atomic.Int64 // interactions rejected for a non-owner
	PromptTimeouts    atomic.Int64 // free-text prompts that expired

	// Ticket counters
	TicketsCreated atomic.Int64
	TicketsDeleted atomic.Int64

	// Relay counters
	RelaysStarted atomic.Int64
	RelaysEnded   atomic.Int64 // relays that reached ENDED
	RelaysErrored atomic.Int64 // relays that reached ERROR
	ActiveRelays  atomic.Int64

	// External platform
	ExternalFailures atomic.Int64 // failed platform calls
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	Interactions      int64 `json:"interactions"`
	PermissionDenials int64 `json:"permission_denials"`
	PromptTimeouts    int64 `json:"prompt_timeouts"`

	TicketsCreated int64 `json:"tickets_created"`
	TicketsDeleted int64 `json:"tickets_deleted"`

	RelaysStarted int64 `json:"relays_started"`
	RelaysEnded   int64 `json:"relays_ended"`
	RelaysErrored int64 `json:"relays_errored"`
	ActiveRelays  int64 `json:"active_relays"`

	ExternalFailures int64 `json:"external_failures"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:            uptime.Truncate(time.Second).String(),
		UptimeSeconds:     int64(uptime.Seconds()),
		Interactions:      m.Interactions.Load(),
		PermissionDenials: m.PermissionDenials.Load(),
		PromptTimeouts:    m.PromptTimeouts.Load(),
		TicketsCreated:    m.TicketsCreated.Load(),
		TicketsDeleted:    m.TicketsDeleted.Load(),
		RelaysStarted:     m.RelaysStarted.Load(),
		RelaysEnded:       m.RelaysEnded.Load(),
		RelaysErrored:     m.RelaysErrored.Load(),
		ActiveRelays:      m.ActiveRelays.Load(),
		ExternalFailures:  m.ExternalFailures.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"interactions", s.Interactions,
		"tickets_created", s.TicketsCreated,
		"active_relays", s.ActiveRelays,
		"prompt_timeouts", s.PromptTimeouts,
		"external_failures", s.ExternalFailures,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
