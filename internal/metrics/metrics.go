package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AppUnlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "applock_unlocks_total",
			Help: "Total number of apps transitioned to unlocked",
		},
	)

	AppLocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applock_locks_total",
			Help: "Total number of apps transitioned to locked",
		},
		[]string{"reason"},
	)

	ReauthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applock_reauth_failures_total",
			Help: "Total number of failed re-authentication attempts",
		},
		[]string{"mode"},
	)

	SessionPrunes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applock_session_prunes_total",
			Help: "Total number of app session records removed by a validity check",
		},
		[]string{"verdict"},
	)

	TokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "applock_tokens_issued_total",
			Help: "Total number of app-scoped tokens issued by the auth endpoint",
		},
	)
)
