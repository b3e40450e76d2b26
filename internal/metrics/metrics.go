// Package metrics exposes Prometheus counters for the authorization flow
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	AuthorizationsStarted prometheus.Counter
	AttemptsFinished      *prometheus.CounterVec
	CallbacksRejected     *prometheus.CounterVec
	Exchanges             *prometheus.CounterVec
	Refreshes             *prometheus.CounterVec
	TokenEndpointLatency  prometheus.Histogram
}

// NewMetrics creates the metrics and registers them with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		AuthorizationsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "gmail_oauth2_authorizations_started_total",
			Help: "Total number of authorization attempts started",
		}),
		AttemptsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gmail_oauth2_attempts_finished_total",
			Help: "Authorization attempts that reached a terminal phase, by phase",
		}, []string{"phase"}),
		CallbacksRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gmail_oauth2_callbacks_rejected_total",
			Help: "Callback messages that were ignored or rejected, by reason",
		}, []string{"reason"}),
		Exchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gmail_oauth2_code_exchanges_total",
			Help: "Authorization code exchanges, by result",
		}, []string{"result"}),
		Refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gmail_oauth2_token_refreshes_total",
			Help: "Access token refreshes, by result",
		}, []string{"result"}),
		TokenEndpointLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gmail_oauth2_token_endpoint_duration_seconds",
			Help:    "Time spent waiting on the token endpoint",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Result maps an error to a result label
func Result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
