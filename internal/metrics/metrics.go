// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	signins       *prometheus.CounterVec
	registrations *prometheus.CounterVec
	twoFactor     *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		signins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_signins_total",
				Help: "Total number of sign-in decisions by audit reason.",
			},
			[]string{"reason"},
		),
		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_registrations_total",
				Help: "Total number of registration attempts.",
			},
			[]string{"result"},
		),
		twoFactor: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "twofactor_checks_total",
				Help: "Total number of TOTP code checks.",
			},
			[]string{"flow", "result"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(m.signins, m.registrations, m.twoFactor, m.httpRequests, m.httpDuration)
	return m
}

func (m *Metrics) Signin(reason string) {
	if m == nil {
		return
	}
	m.signins.WithLabelValues(reason).Inc()
}

func (m *Metrics) Registration(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}

// TwoFactorCheck records one code check; flow is "confirm" or "verify".
func (m *Metrics) TwoFactorCheck(flow string, ok bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if ok {
		result = "accepted"
	}
	m.twoFactor.WithLabelValues(flow, result).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
