// Package metrics instruments frago's two hot paths — CDP round trips and
// recipe executions — with Prometheus counters and histograms. There is no
// HTTP exposition server here (that's the orchestrator's concern, and out
// of this spec's scope); callers that want to serve /metrics register
// Registry with their own promhttp.Handler.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is the collector registry every metric in this package is
// registered against. It is a plain *prometheus.Registry, not the global
// default registry, so tests and multiple in-process Sessions/Runners don't
// collide on metric registration.
var Registry = prometheus.NewRegistry()

var (
	// CDPCommandDuration observes how long Session.Send takes per CDP
	// method, split by whether it ultimately succeeded.
	CDPCommandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frago_cdp_command_duration_seconds",
		Help:    "Duration of CDP Send() calls by method and outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "outcome"})

	// CDPCommandTotal counts CDP Send() calls by method and outcome
	// (success, connection_error, encode_error, cdp_error, timeout).
	CDPCommandTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "frago_cdp_commands_total",
		Help: "Total CDP Send() calls by method and outcome.",
	}, []string{"method", "outcome"})

	// RecipeExecutionDuration observes recipe run wall-clock time by
	// runtime and outcome.
	RecipeExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frago_recipe_execution_duration_seconds",
		Help:    "Duration of recipe Run() calls by runtime and outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"runtime", "outcome"})

	// RecipeExecutionTotal counts recipe Run() calls by runtime and
	// outcome (success, not_found, validation_error, execution_error).
	RecipeExecutionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "frago_recipe_executions_total",
		Help: "Total recipe Run() calls by runtime and outcome.",
	}, []string{"runtime", "outcome"})
)

func init() {
	Registry.MustRegister(CDPCommandDuration, CDPCommandTotal, RecipeExecutionDuration, RecipeExecutionTotal)
}

// ObserveCDPCommand records one CDP Send() call's duration and outcome.
func ObserveCDPCommand(method, outcome string, seconds float64) {
	CDPCommandDuration.WithLabelValues(method, outcome).Observe(seconds)
	CDPCommandTotal.WithLabelValues(method, outcome).Inc()
}

// ObserveRecipeExecution records one recipe Run() call's duration and
// outcome.
func ObserveRecipeExecution(runtime, outcome string, seconds float64) {
	RecipeExecutionDuration.WithLabelValues(runtime, outcome).Observe(seconds)
	RecipeExecutionTotal.WithLabelValues(runtime, outcome).Inc()
}
