package core

import (
	"time"

	"github.com/robfig/cron/v3"
)

// scheduleParser accepts standard 5-field cron expressions plus descriptors
// (@daily, @hourly, ...). Parsing happens once, at trigger construction.
var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule is the cron trigger variant. It is immutable once constructed
// and performs no I/O: given a trigger context it deterministically decides
// whether the trigger fires and which occurrence it fires for, so it is
// safe to evaluate concurrently and repeatedly.
type Schedule struct {
	expression string
	schedule   cron.Schedule
	backfill   *Backfill
}

// NewSchedule builds the schedule for a trigger definition, failing fast
// with a malformed-expression error if the cron string does not parse.
func NewSchedule(t Trigger) (*Schedule, error) {
	schedule, err := scheduleParser.Parse(t.Cron)
	if err != nil {
		return nil, NewMalformedExpressionError(t.Cron, err)
	}
	return &Schedule{
		expression: t.Cron,
		schedule:   schedule,
		backfill:   t.Backfill,
	}, nil
}

// Expression returns the cron expression this schedule was built from.
func (s *Schedule) Expression() string {
	return s.expression
}

// nextFrom returns the first occurrence at or after t. Occurrences are
// computed in t's location, so daylight-saving transitions resolve the way
// a reader of the cron expression in that zone expects.
func (s *Schedule) nextFrom(t time.Time) time.Time {
	return s.schedule.Next(t.Add(-time.Second))
}

// NextDate computes when the trigger should next fire. With a prior
// context the result is the first occurrence strictly after the last
// evaluated date, which lets sequential backfill walk forward one
// occurrence per poll. Without one, a configured backfill start yields the
// occurrence at or after that start; otherwise the first occurrence
// strictly after now.
func (s *Schedule) NextDate(last *TriggerContext) time.Time {
	if last != nil && !last.Date.IsZero() {
		return s.schedule.Next(last.Date)
	}
	if s.backfill != nil && s.backfill.Start != nil {
		return s.nextFrom(*s.backfill.Start)
	}
	return s.schedule.Next(time.Now())
}

// Evaluate decides whether the trigger fires for the given context. The
// context date is first normalized to the nearest valid occurrence at or
// after it; if that occurrence is still in the future (or past the
// backfill end) nothing fires. On a match the returned execution carries
// the schedule variable bundle {date, next, previous} for downstream task
// templating.
func (s *Schedule) Evaluate(run RunContext, trigger TriggerContext) (*Execution, bool) {
	occurrence := s.nextFrom(trigger.Date)
	if occurrence.IsZero() {
		return nil, false
	}
	if occurrence.After(run.now()) {
		return nil, false
	}
	if s.backfill != nil && s.backfill.End != nil && occurrence.After(*s.backfill.End) {
		run.logger().Debug("schedule past backfill end",
			"trigger_id", trigger.TriggerID,
			"occurrence", occurrence,
		)
		return nil, false
	}

	variables := ScheduleVariables{
		Date: occurrence,
		Next: s.schedule.Next(occurrence),
	}
	if previous, ok := s.previousOccurrence(occurrence); ok {
		variables.Previous = previous
	}

	return &Execution{
		ID:           NewUUIDv7(),
		Namespace:    trigger.Namespace,
		FlowID:       trigger.FlowID,
		FlowRevision: trigger.FlowRevision,
		TriggerID:    trigger.TriggerID,
		State:        ExecutionStateCreated,
		Variables: map[string]any{
			"schedule": variables,
		},
		CreatedAt: NowFormatted(),
	}, true
}

// previousWindows are the spans searched, smallest first, when walking a
// cron schedule backwards. The largest covers any satisfiable standard
// expression (yearly at worst, with leap-year slack).
var previousWindows = []time.Duration{
	time.Hour,
	25 * time.Hour,
	8 * 24 * time.Hour,
	32 * 24 * time.Hour,
	366 * 24 * time.Hour,
	4 * 366 * 24 * time.Hour,
}

// previousOccurrence finds the last occurrence strictly before t. The cron
// parser only computes forward, so this seeds a bounded window behind t and
// iterates Next until just before it.
func (s *Schedule) previousOccurrence(t time.Time) (time.Time, bool) {
	for _, window := range previousWindows {
		occurrence := s.schedule.Next(t.Add(-window))
		if occurrence.IsZero() || !occurrence.Before(t) {
			continue
		}
		for {
			next := s.schedule.Next(occurrence)
			if next.IsZero() || !next.Before(t) {
				return occurrence, true
			}
			occurrence = next
		}
	}
	return time.Time{}, false
}
