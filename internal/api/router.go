package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"

	"flow-field/internal/config"
	"flow-field/internal/grid"
	"flow-field/internal/session"
)

// FieldStore defines the session methods used by the API.
// *session.Registry implements it.
type FieldStore interface {
	// Create registers and generates a field for m
	Create(m *grid.Map) (*session.Session, error)
	// Get returns a session by id
	Get(id string) (*session.Session, error)
	// Delete removes a session by id
	Delete(id string) error
	// List returns summaries in creation order
	List() []session.Summary
	// Len returns the number of live sessions
	Len() int
}

// Notifier receives field change events. *WebSocketHub implements it.
type Notifier interface {
	Broadcast(event string, data interface{})
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(string, interface{}) {}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	router := api.NewRouter(api.RouterConfig{
//	    Fields: session.NewRegistry(session.Config{}),
//	    RateLimitConfig: &config.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Fields is the session store (required)
	Fields FieldStore

	// Notifier receives field:* events. Nil drops them.
	Notifier Notifier

	// Field bounds request sizes. Zero values use config.DefaultField.
	Field config.FieldConfig

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses config.DefaultRateLimit.
	RateLimitConfig *config.RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, uses DefaultOrigins.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// NewRouter opens no listeners. The only goroutine it may start is the
// cleanup loop of a rate limiter it creates itself; pass RateLimiter to
// control that lifetime.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	r.Use(middleware.RequestID)
	r.Use(requestMetrics)
	if !cfg.DisableLogging {
		r.Use(requestLogger)
	}
	r.Use(middleware.Recoverer)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := config.DefaultRateLimit()
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = DefaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	fieldCfg := cfg.Field
	defaults := config.DefaultField()
	if fieldCfg.MaxSize <= 0 {
		fieldCfg.MaxSize = defaults.MaxSize
	}
	if fieldCfg.DefaultSize <= 0 {
		fieldCfg.DefaultSize = min(defaults.DefaultSize, fieldCfg.MaxSize)
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}

	h := &routerHandlers{
		fields:   cfg.Fields,
		notifier: notifier,
		limits:   fieldCfg,
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/schema", h.handleSchema)

		r.Route("/fields", func(r chi.Router) {
			r.Post("/", h.handleCreate)
			r.Get("/", h.handleList)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.handleGet)
				r.Delete("/", h.handleDelete)

				// Queries
				r.Get("/cell", h.handleCell)
				r.Get("/trace", h.handleTrace)

				// Edits (full regeneration)
				r.Post("/obstacles", h.handleObstacles)
				r.Put("/goal", h.handleGoal)
				r.Put("/start", h.handleStart)

				// Renderings
				r.Get("/ascii", h.handleASCII)
				r.Get("/texture.png", h.handleTexture)
				r.Get("/plot.png", h.handlePlot)
				r.Get("/scenario", h.handleScenario)
			})
		})
	})

	return r
}

// requestMetrics records latency and status per route pattern.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}

// requestLogger logs one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		entry := log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start),
			"ip":       GetClientIP(r),
			"request":  middleware.GetReqID(r.Context()),
		})
		if ww.Status() >= http.StatusInternalServerError {
			entry.Warn("Request failed")
			return
		}
		entry.Debug("Request served")
	})
}
