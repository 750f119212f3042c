package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wordbiz",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wordbiz",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	connectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wordbiz",
			Name:      "connect_attempts_total",
			Help:      "Lobby connect attempts by result.",
		},
		[]string{"result"},
	)
	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wordbiz",
			Name:      "login_attempts_total",
			Help:      "Lobby login attempts by result.",
		},
		[]string{"result"},
	)
	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wordbiz",
			Name:      "frames_sent_total",
			Help:      "Request frames written to the lobby socket by command verb.",
		},
		[]string{"command"},
	)
	sessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wordbiz",
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session state transitions.",
		},
		[]string{"from", "to"},
	)
	supervisorIterations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wordbiz",
			Subsystem: "supervisor",
			Name:      "iterations_total",
			Help:      "Reconciliation iterations by the action taken.",
		},
		[]string{"phase"},
	)
	sessionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wordbiz",
			Subsystem: "session",
			Name:      "state",
			Help:      "Current session state: 0 disconnected, 1 connected, 2 authenticated.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			connectAttempts,
			loginAttempts,
			framesSent,
			sessionTransitions,
			supervisorIterations,
			sessionState,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordConnectAttempt(err error) {
	RegisterMetrics()
	connectAttempts.WithLabelValues(resultLabel(err)).Inc()
}

func RecordLoginAttempt(err error) {
	RegisterMetrics()
	loginAttempts.WithLabelValues(resultLabel(err)).Inc()
}

// frameVerbs bounds the command label; anything else is counted as "other".
var frameVerbs = map[string]struct{}{
	"LOGIN":   {},
	"LOGOUT":  {},
	"SEEK":    {},
	"UNSEEK":  {},
	"HISTORY": {},
	"FINGER":  {},
}

func RecordFrameSent(verb string) {
	RegisterMetrics()
	framesSent.WithLabelValues(FrameVerbLabel(verb)).Inc()
}

// FrameVerbLabel maps a command verb onto the bounded metric label set.
func FrameVerbLabel(verb string) string {
	verb = strings.ToUpper(strings.TrimSpace(verb))
	if _, ok := frameVerbs[verb]; ok {
		return verb
	}
	return "other"
}

// RecordTransition counts a state change and moves the state gauge; level is
// the numeric state (0..2).
func RecordTransition(from, to string, level int) {
	RegisterMetrics()
	sessionTransitions.WithLabelValues(from, to).Inc()
	sessionState.Set(float64(level))
}

func RecordIteration(phase string) {
	RegisterMetrics()
	supervisorIterations.WithLabelValues(phase).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
