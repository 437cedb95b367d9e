// Package metrics exposes service-level counters on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meetbuddy_sessions_started_total",
		Help: "Capture sessions that reached the Active state.",
	})

	SessionsStopped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meetbuddy_sessions_stopped_total",
		Help: "Capture sessions torn down via stop.",
	})

	CaptureFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbuddy_capture_failures_total",
		Help: "Session starts that failed before becoming visible.",
	}, []string{"reason"})

	TranscriptEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meetbuddy_transcript_entries_total",
		Help: "Final transcript entries persisted across all sessions.",
	})

	RecordingBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meetbuddy_recording_bytes_total",
		Help: "Recording bytes buffered across all sessions.",
	})

	DialinConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meetbuddy_dialin_connections_total",
		Help: "Accepted dial-in audio connections.",
	})
)
