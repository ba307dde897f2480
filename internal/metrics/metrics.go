// Package metrics exposes Prometheus counters for session outcomes.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsStarted counts sessions that reached sandbox provisioning.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codecell_sessions_started_total",
		Help: "Sessions that passed admission and authentication.",
	})

	// SessionsRejected counts sessions rejected before execution, by reason.
	SessionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codecell_sessions_rejected_total",
		Help: "Sessions rejected before a sandbox was provisioned.",
	}, []string{"reason"})

	// SessionsCompleted counts finished executions by classified outcome.
	SessionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codecell_sessions_completed_total",
		Help: "Finished executions by outcome classification.",
	}, []string{"outcome"})

	// AuthFailures counts failed credential checks across all surfaces.
	AuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codecell_auth_failures_total",
		Help: "Failed authentication attempts.",
	})

	// ActiveSandboxes tracks sandboxes currently running.
	ActiveSandboxes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "codecell_active_sandboxes",
		Help: "Sandboxes currently running.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
