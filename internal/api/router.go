package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/honeynil/CampusGigService/internal/handler"
	"github.com/honeynil/CampusGigService/internal/infrastructure/auth"
	"github.com/honeynil/CampusGigService/internal/infrastructure/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

var registerOnce sync.Once

func registerMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RequestCounter, RequestDuration)
	})
}

type RouterConfig struct {
	Handler      *handler.Handler
	Redis        redis.RedisClient
	JWT          *auth.JWTManager
	Limiter      *RateLimiter
	Realtime     http.Handler
	ServeMetrics bool
}

func SetupRouter(cfg RouterConfig) *mux.Router {
	registerMetrics()

	r := mux.NewRouter()
	r.Use(metricsMiddleware)
	if cfg.Limiter != nil {
		r.Use(cfg.Limiter.Handler)
	}

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	if cfg.ServeMetrics {
		r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}
	if cfg.Realtime != nil {
		r.Handle("/ws", cfg.Realtime)
	}

	cfg.Handler.RegisterPublicRoutes(r)

	authMiddleware := auth.AuthMiddleware(cfg.Redis, cfg.JWT)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(authMiddleware, auth.AdminOnly)
	cfg.Handler.RegisterAdminRoutes(admin)

	protected := r.NewRoute().Subrouter()
	protected.Use(authMiddleware)
	cfg.Handler.RegisterProtectedRoutes(protected)

	return r
}

// metricsMiddleware labels requests by route template so that ids in the
// path do not explode label cardinality.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}

		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)
		if recorder.status == 0 {
			recorder.status = http.StatusOK
		}

		status := fmt.Sprintf("%d", recorder.status)
		RequestCounter.WithLabelValues(r.Method, endpoint, status).Inc()
		RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack lets the websocket upgrade pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
