package nats

import "fmt"

// Subject hierarchy for the floworc-to-NATS mapping.
//
//	floworc.flow.{namespace}.{id}       -- flow change broadcasts (incl. deletions)
//	floworc.trigger.delete              -- retractions of scheduled trigger executions
//	floworc.execution.{namespace}.{id}  -- execution requests produced by triggers
//	floworc.events.crud                 -- CRUD audit events (core pub/sub, not persisted)
const (
	// Stream subjects
	StreamName    = "FLOWORC"
	SubjectPrefix = "floworc"

	// KV bucket names
	BucketFlows         = "floworc-flows"
	BucketFlowRevisions = "floworc-flows-revisions"
	BucketTriggerState  = "floworc-trigger-state"
)

// FlowSubject returns the subject a flow change is broadcast on.
// Example: floworc.flow.io.floworc.prod.monthly-report
func FlowSubject(namespace, id string) string {
	return fmt.Sprintf("%s.flow.%s.%s", SubjectPrefix, namespace, id)
}

// FlowAllSubject returns the wildcard subject for all flow changes.
func FlowAllSubject() string {
	return fmt.Sprintf("%s.flow.>", SubjectPrefix)
}

// TriggerDeleteSubject returns the subject trigger retractions are sent on.
func TriggerDeleteSubject() string {
	return fmt.Sprintf("%s.trigger.delete", SubjectPrefix)
}

// ExecutionSubject returns the subject execution requests for a flow are
// published on.
func ExecutionSubject(namespace, flowID string) string {
	return fmt.Sprintf("%s.execution.%s.%s", SubjectPrefix, namespace, flowID)
}

// ExecutionAllSubject returns the wildcard subject for all executions.
func ExecutionAllSubject() string {
	return fmt.Sprintf("%s.execution.>", SubjectPrefix)
}

// CrudEventSubject returns the subject CRUD audit events are published on.
func CrudEventSubject() string {
	return fmt.Sprintf("%s.events.crud", SubjectPrefix)
}
