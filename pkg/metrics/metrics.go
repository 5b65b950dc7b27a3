package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "membership", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "membership", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	UsersCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "membership", Name: "users_created_total", Help: "Number of users created."},
	)
	CreateRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "membership", Name: "create_rejected_total", Help: "Number of rejected user creations by status."},
		[]string{"status"},
	)
	Authentications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "membership", Name: "authentications_total", Help: "Password checks by result (success, failure, error)."},
		[]string{"result"},
	)
	StoreConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "membership", Name: "store_conflicts_total", Help: "Commit-time concurrency conflicts by claim kind."},
		[]string{"kind"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(UsersCreated)
	reg.MustRegister(CreateRejected)
	reg.MustRegister(Authentications)
	reg.MustRegister(StoreConflicts)
}
