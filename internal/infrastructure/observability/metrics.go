package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Счётчик вызовов методов репозитория
	RepositoryCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_calls_total",
			Help: "Total number of repository method calls",
		},
		[]string{"method", "status"},
	)

	// Гистограмма времени выполнения запросов
	RepositoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_duration_seconds",
			Help:    "Duration of repository method calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	GigTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gig_transitions_total",
			Help: "Gig lifecycle transitions by target state",
		},
		[]string{"to"},
	)

	WalletRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_requests_total",
			Help: "Wallet load and withdrawal requests by decision",
		},
		[]string{"kind", "decision"},
	)

	ExpirySweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expiry_sweeps_total",
			Help: "Expiry sweeper runs by outcome",
		},
		[]string{"status"},
	)

	ExpiredGigs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "expired_gigs_total",
			Help: "Gigs expired and refunded by the sweeper",
		},
	)
)

var registerOnce sync.Once

func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RepositoryCalls, RepositoryDuration, GigTransitions, WalletRequests, ExpirySweeps, ExpiredGigs)
	})
}
