package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voicestream",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "voicestream",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5},
	}, []string{"method", "path"})

	StateTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voicestream",
		Name:      "playback_state_transitions_total",
		Help:      "Total playback state machine transitions by from/to state.",
	}, []string{"from", "to"})

	SegmentLoadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "voicestream",
		Name:      "segment_loads_total",
		Help:      "Total segment loads and switches performed by the coordinator.",
	})

	SegmentsAppendedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "voicestream",
		Name:      "segments_appended_total",
		Help:      "Total segments appended to a live queue after playback started.",
	})

	SeeksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "voicestream",
		Name:      "seek_requests_total",
		Help:      "Total cumulative-time seek requests, including skips.",
	})

	RateChangesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "voicestream",
		Name:      "rate_changes_total",
		Help:      "Total playback rate changes.",
	})

	DurationResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voicestream",
		Name:      "duration_resolutions_total",
		Help:      "Total segment duration resolutions by source.",
	}, []string{"source"})

	DurationCorrectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "voicestream",
		Name:      "duration_corrections_total",
		Help:      "Total in-place duration corrections from measured playback.",
	})

	StaleCallbacksDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "voicestream",
		Name:      "stale_callbacks_dropped_total",
		Help:      "Total asynchronous callbacks dropped because their session generation was superseded.",
	})

	AutoplayBlockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "voicestream",
		Name:      "autoplay_blocked_total",
		Help:      "Total playback starts refused by autoplay policy and swallowed.",
	})

	QueueSegments = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "voicestream",
		Name:      "queue_segments",
		Help:      "Number of segments in the current playback queue.",
	})

	QueueTotalDurationSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "voicestream",
		Name:      "queue_total_duration_seconds",
		Help:      "Total duration of the current playback queue in seconds.",
	})

	ActiveListeners = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "voicestream",
		Name:      "active_listeners",
		Help:      "Number of WebSocket clients subscribed to status snapshots.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		StateTransitionsTotal,
		SegmentLoadsTotal,
		SegmentsAppendedTotal,
		SeeksTotal,
		RateChangesTotal,
		DurationResolutionsTotal,
		DurationCorrectionsTotal,
		StaleCallbacksDroppedTotal,
		AutoplayBlockedTotal,
		QueueSegments,
		QueueTotalDurationSeconds,
		ActiveListeners,
	)
}
