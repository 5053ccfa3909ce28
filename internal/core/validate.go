package core

import (
	"fmt"
	"regexp"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateFlow checks the structural validity of a flow definition. It is
// the single gate before any write: a non-nil result blocks the write
// entirely, nothing is persisted and nothing is emitted.
func ValidateFlow(flow *Flow) *Error {
	if flow == nil {
		return NewValidationError("Flow is required.", nil)
	}
	if flow.ID == "" || !identifierPattern.MatchString(flow.ID) {
		return NewValidationError("Flow id is missing or malformed.", map[string]any{"id": flow.ID})
	}
	if flow.Namespace == "" || !identifierPattern.MatchString(flow.Namespace) {
		return NewValidationError("Flow namespace is missing or malformed.", map[string]any{"namespace": flow.Namespace})
	}
	if len(flow.Tasks) == 0 {
		return NewValidationError("Flow must define at least one task.", map[string]any{
			"namespace": flow.Namespace,
			"id":        flow.ID,
		})
	}

	taskIDs := make(map[string]struct{}, len(flow.Tasks))
	for i, task := range flow.Tasks {
		if task.ID == "" {
			return NewValidationError(fmt.Sprintf("Task %d is missing an id.", i), nil)
		}
		if task.Type == "" {
			return NewValidationError(fmt.Sprintf("Task '%s' is missing a type.", task.ID), nil)
		}
		if _, dup := taskIDs[task.ID]; dup {
			return NewValidationError(fmt.Sprintf("Duplicate task id '%s'.", task.ID), nil)
		}
		taskIDs[task.ID] = struct{}{}
	}

	triggerIDs := make(map[string]struct{}, len(flow.Triggers))
	for _, trigger := range flow.Triggers {
		if trigger.ID == "" {
			return NewValidationError("Trigger is missing an id.", nil)
		}
		if _, dup := triggerIDs[trigger.ID]; dup {
			return NewValidationError(fmt.Sprintf("Duplicate trigger id '%s'.", trigger.ID), nil)
		}
		triggerIDs[trigger.ID] = struct{}{}

		if trigger.Type == TriggerTypeSchedule {
			if _, err := NewSchedule(trigger); err != nil {
				return NewValidationError(
					fmt.Sprintf("Trigger '%s' has an invalid cron expression.", trigger.ID),
					map[string]any{"trigger_id": trigger.ID, "cron": trigger.Cron},
				)
			}
		}
	}

	return nil
}

// ValidateUpdate checks that updated is a legal successor of the current
// flow: identity is immutable across revisions.
func ValidateUpdate(current, updated *Flow) *Error {
	if err := ValidateFlow(updated); err != nil {
		return err
	}
	if current.Namespace != updated.Namespace || current.ID != updated.ID {
		return NewValidationError("Flow identity cannot change on update.", map[string]any{
			"current_namespace": current.Namespace,
			"current_id":        current.ID,
			"updated_namespace": updated.Namespace,
			"updated_id":        updated.ID,
		})
	}
	return nil
}
