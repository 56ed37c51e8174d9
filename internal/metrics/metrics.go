// Package metrics holds Prometheus instruments used by the forms subsystem.
// All collectors are registered with the global registry, so importing this
// package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adept_form_submissions_total",
			Help: "Processed form submissions by terminal outcome.",
		}, []string{"form", "outcome"})

	ValidationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adept_form_validation_errors_total",
			Help: "Field-level validation errors reported to users.",
		}, []string{"form"})

	ConditionalCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adept_form_conditional_cycles_total",
			Help: "Circular conditional dependencies detected during evaluation.",
		})

	ConditionalDepth = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adept_form_conditional_depth_total",
			Help: "Conditional evaluations aborted by the depth bound.",
		})

	ConditionalCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adept_form_conditional_cache_total",
			Help: "Visibility cache lookups by result (hit or miss).",
		}, []string{"result"})

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adept_form_rate_limited_total",
			Help: "Submissions rejected by the rate limiter.",
		}, []string{"form"})
)

func init() {
	prometheus.MustRegister(
		Submissions,
		ValidationErrors,
		ConditionalCycles,
		ConditionalDepth,
		ConditionalCache,
		RateLimited,
	)
}
