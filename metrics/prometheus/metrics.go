// Package prometheus provides Prometheus metrics for live sessions.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "livesupport"

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusDropped = "dropped"
)

var (
	// captureFramesTotal counts microphone frames by outcome.
	captureFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_frames_total",
			Help:      "Total number of microphone frames produced by the capture pipeline",
		},
		[]string{"status"}, // status: success, dropped
	)

	// playbackSegmentsTotal counts segments handed to the output sink.
	playbackSegmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_segments_total",
			Help:      "Total number of audio segments scheduled for playback",
		},
	)

	// playbackInterruptionsTotal counts scheduler stops caused by barge-in.
	playbackInterruptionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_interruptions_total",
			Help:      "Total number of playback interruptions",
		},
	)

	// playbackQueueDepth is the number of segments waiting to be scheduled.
	playbackQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_queue_depth",
			Help:      "Number of audio segments waiting to be scheduled",
		},
	)

	// messagesReceivedTotal counts inbound server messages by kind.
	messagesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of inbound server messages",
		},
		[]string{"kind"}, // kind: audio, interrupted, turn_complete, setup_complete, invalid
	)

	// messagesSentTotal counts outbound client messages.
	messagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total number of outbound client messages",
		},
		[]string{"kind", "status"}, // kind: audio, image, json
	)

	// connectDuration is a histogram of connection establishment time.
	connectDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_duration_seconds",
			Help:      "Duration of WebSocket connection and setup in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 45},
		},
		[]string{"status"},
	)

	// sessionsActive is a gauge of currently open sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently open live sessions",
		},
	)

	// snapshotsTotal counts image snapshots by source and outcome.
	snapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Total number of image snapshots captured",
		},
		[]string{"source", "status"}, // source: camera, screen
	)

	// snapshotDuration is a histogram of capture+scale+encode time.
	snapshotDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_duration_seconds",
			Help:      "Duration of snapshot capture and encoding in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"source"},
	)

	// allMetrics is the list of all collectors for registration.
	allMetrics = []prometheus.Collector{
		captureFramesTotal,
		playbackSegmentsTotal,
		playbackInterruptionsTotal,
		playbackQueueDepth,
		messagesReceivedTotal,
		messagesSentTotal,
		connectDuration,
		sessionsActive,
		snapshotsTotal,
		snapshotDuration,
	}
)

// RecordCaptureFrames records n microphone frames with the given outcome.
func RecordCaptureFrames(status string, n int) {
	captureFramesTotal.WithLabelValues(status).Add(float64(n))
}

// RecordPlaybackSegment records a segment handed to the sink.
func RecordPlaybackSegment() {
	playbackSegmentsTotal.Inc()
}

// RecordPlaybackInterruption records a playback stop.
func RecordPlaybackInterruption() {
	playbackInterruptionsTotal.Inc()
}

// SetPlaybackQueueDepth updates the pending segment gauge.
func SetPlaybackQueueDepth(n int) {
	playbackQueueDepth.Set(float64(n))
}

// RecordMessageReceived records an inbound message of the given kind.
func RecordMessageReceived(kind string) {
	messagesReceivedTotal.WithLabelValues(kind).Inc()
}

// RecordMessageSent records an outbound message.
func RecordMessageSent(kind, status string) {
	messagesSentTotal.WithLabelValues(kind, status).Inc()
}

// RecordConnect records a connection attempt. Successful attempts also
// increment the active session gauge.
func RecordConnect(status string, durationSeconds float64) {
	connectDuration.WithLabelValues(status).Observe(durationSeconds)
	if status == StatusSuccess {
		sessionsActive.Inc()
	}
}

// RecordDisconnect decrements the active session gauge.
func RecordDisconnect() {
	sessionsActive.Dec()
}

// RecordSnapshot records a snapshot capture.
func RecordSnapshot(source, status string, durationSeconds float64) {
	snapshotsTotal.WithLabelValues(source, status).Inc()
	if status == StatusSuccess {
		snapshotDuration.WithLabelValues(source).Observe(durationSeconds)
	}
}
