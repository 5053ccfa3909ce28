// Package metrics registers the Prometheus instrumentation for the
// floworc backend. All collectors are registered on the default registry
// and exposed by the HTTP server at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ServerInfo is a constant gauge labelled with build information.
	ServerInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "floworc_server_info",
		Help: "Build and backend information for the running server.",
	}, []string{"version", "backend"})

	// FlowsSaved counts committed flow mutations, by CRUD event type.
	FlowsSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floworc_flows_saved_total",
		Help: "Number of committed flow mutations, by event type.",
	}, []string{"event"})

	// FlowSaveNoops counts submissions skipped by the no-op short circuit.
	FlowSaveNoops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "floworc_flow_save_noops_total",
		Help: "Number of flow submissions skipped because nothing changed.",
	})

	// TriggerEvaluations counts schedule evaluations performed by the
	// polling loop, fired or not.
	TriggerEvaluations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "floworc_trigger_evaluations_total",
		Help: "Number of schedule trigger evaluations.",
	})

	// ExecutionsFired counts executions produced by schedule triggers.
	ExecutionsFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "floworc_executions_fired_total",
		Help: "Number of executions fired by schedule triggers.",
	})

	// TriggersRetracted counts trigger retractions emitted after updates
	// removed triggers from a flow.
	TriggersRetracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "floworc_triggers_retracted_total",
		Help: "Number of trigger retractions emitted on flow update.",
	})

	// NotifyFailures counts post-commit notification failures, by stage.
	// The mutation itself succeeded; only the broadcast was lost.
	NotifyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floworc_notify_failures_total",
		Help: "Number of post-commit notification failures, by stage.",
	}, []string{"stage"})
)

// Init stamps the server-info gauge. Call once at startup.
func Init(version, backend string) {
	ServerInfo.WithLabelValues(version, backend).Set(1)
}
