package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facecheck",
		Name:      "frames_processed_total",
		Help:      "Total number of frames run through the extractor",
	}, []string{"kiosk_id"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facecheck",
		Name:      "faces_detected_total",
		Help:      "Total number of frames with a detected face",
	}, []string{"kiosk_id"})

	MatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facecheck",
		Name:      "match_attempts_total",
		Help:      "Match attempts by outcome (accepted, rejected, unknown)",
	}, []string{"outcome"})

	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facecheck",
		Name:      "checkins_total",
		Help:      "Stored check-ins by status",
	}, []string{"status"})

	CheckInFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facecheck",
		Name:      "checkin_failures_total",
		Help:      "Check-in inserts that failed and will be retried",
	})

	EnrollmentCaptures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facecheck",
		Name:      "enrollment_captures_total",
		Help:      "Enrollment capture attempts by result",
	}, []string{"result"})

	EnrollmentSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facecheck",
		Name:      "enrollment_sessions",
		Help:      "Number of open enrollment sessions",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facecheck",
		Name:      "inference_duration_seconds",
		Help:      "Duration of extraction and matching stages",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"stage"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facecheck",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facecheck",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
