package api

import (
	"crypto/subtle"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"flow-field/internal/config"
	"flow-field/internal/flowfield"
)

// Metrics with bounded cardinality (no per-field labels)
var (
	// Flow field metrics
	generationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowfield_generation_duration_seconds",
		Help:    "Time spent generating a flow field",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})

	generationCells = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowfield_generation_cells",
		Help:    "Grid cells per generated flow field",
		Buckets: prometheus.ExponentialBuckets(16, 4, 8),
	})

	lastReached = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowfield_last_reached_cells",
		Help: "Cells reached by the most recent successful generation",
	})

	generationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowfield_generation_errors_total",
		Help: "Generation runs that did not produce a field",
	}, []string{"reason"}) // Bounded: "goal_blocked", "size_mismatch", "other"

	fieldsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowfield_sessions_active",
		Help: "Live flow field sessions",
	})

	// Admission control; reasons are a fixed set
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowfield",
		Name:      "rejected_total",
		Help:      "Requests or sockets turned away by rate, origin or connection limits",
	}, []string{"reason"}) // "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"

	// endpoint is the chi route pattern so field ids never become labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flowfield",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "API request latency by route",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowfield",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests by route and status code",
	}, []string{"method", "endpoint", "code"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "flowfield",
		Subsystem: "ws",
		Name:      "clients",
		Help:      "WebSocket clients subscribed to field events",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flowfield",
		Subsystem: "ws",
		Name:      "events_total",
		Help:      "Field events fanned out to WebSocket clients",
	})
)

// NewDebugHandler returns the pprof, metrics and health mux, wrapped in
// basic auth when credentials are configured.
func NewDebugHandler(cfg config.ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "OK")
	})

	if cfg.BasicAuthUser != "" {
		return basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}
	return mux
}

// debugListenAddr forces addr onto loopback unless external binding is allowed.
func debugListenAddr(cfg config.ObservabilityConfig) string {
	if cfg.AllowExternal {
		return cfg.ListenAddr
	}
	host, port, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		return "127.0.0.1:6060"
	}
	switch host {
	case "127.0.0.1", "localhost", "::1":
		return cfg.ListenAddr
	}
	log.WithField("addr", cfg.ListenAddr).Warn("Debug server forced to localhost")
	return net.JoinHostPort("127.0.0.1", port)
}

// StartDebugServer starts the internal observability server in the
// background. It returns nil when the server is disabled. pprof must never be
// reachable from outside, so the address is pinned to loopback unless
// AllowExternal is set.
func StartDebugServer(cfg config.ObservabilityConfig) *http.Server {
	if !cfg.Enabled {
		log.Info("Debug server disabled")
		return nil
	}

	srv := &http.Server{
		Addr:              debugListenAddr(cfg),
		Handler:           NewDebugHandler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithFields(log.Fields{
			"pprof":   "http://" + srv.Addr + "/debug/pprof/",
			"metrics": "http://" + srv.Addr + "/metrics",
		}).Info("Debug server starting")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("Debug server error")
		}
	}()

	return srv
}

// basicAuthMiddleware guards next with HTTP basic auth.
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	wantUser, wantPass := []byte(user), []byte(pass)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		userOK := subtle.ConstantTimeCompare([]byte(u), wantUser) == 1
		passOK := subtle.ConstantTimeCompare([]byte(p), wantPass) == 1
		if !ok || !userOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="flowfield-debug"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecordGeneration records one generation run. Its signature matches
// session.GenerateHook.
func RecordGeneration(size int, elapsed time.Duration, reached int, err error) {
	if err != nil {
		generationErrors.WithLabelValues(generationErrorReason(err)).Inc()
		return
	}
	generationDuration.Observe(elapsed.Seconds())
	generationCells.Observe(float64(size * size))
	lastReached.Set(float64(reached))
}

func generationErrorReason(err error) string {
	switch {
	case errors.Is(err, flowfield.ErrGoalBlocked):
		return "goal_blocked"
	case errors.Is(err, flowfield.ErrSizeMismatch):
		return "size_mismatch"
	}
	return "other"
}

// UpdateFieldCount updates the live session gauge
func UpdateFieldCount(count int) {
	fieldsActive.Set(float64(count))
}

// RecordConnectionRejected counts one turned-away request or socket.
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest observes one served API request.
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}

// UpdateWSConnections sets the WebSocket client gauge.
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages counts one broadcast event.
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}
