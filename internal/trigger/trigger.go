// Package trigger parses and evaluates the three schedule kinds a Task or
// TaskGroup may be armed with: fixed interval, cron expression, and
// one-shot. Disambiguation follows the priority rule interval > cron >
// one-shot.
package trigger

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrMissingTrigger is returned when none of interval, cron, or start_time
// is present.
var ErrMissingTrigger = errors.New("missing_trigger: one of interval, cron, or start_time is required")

// ErrInvalidCron is returned when the cron expression fails to parse.
var ErrInvalidCron = errors.New("invalid_cron")

// cronParser matches the Python APScheduler CronTrigger.from_crontab
// five-field convention: minute hour day-of-month month day-of-week, no
// seconds field.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Spec is the raw, user-supplied trigger configuration as accepted by the
// arm endpoints.
type Spec struct {
	Interval  int
	Cron      string
	StartTime *time.Time
	EndTime   *time.Time
}

// Trigger computes the next fire instant after a given time.
type Trigger interface {
	// Next returns the next instant after `after` at which the trigger
	// fires, and false if it will never fire again. The one exception to
	// "strictly after" is an interval trigger without a start time, whose
	// first call returns `after` itself.
	Next(after time.Time) (time.Time, bool)
}

// Parse selects and builds the Trigger implied by spec, applying the
// interval > cron > one-shot priority rule.
func Parse(spec Spec) (Trigger, error) {
	switch {
	case spec.Interval > 0:
		return &intervalTrigger{
			interval: time.Duration(spec.Interval) * time.Second,
			start:    spec.StartTime,
			end:      spec.EndTime,
		}, nil
	case spec.Cron != "":
		sched, err := cronParser.Parse(spec.Cron)
		if err != nil {
			return nil, ErrInvalidCron
		}
		return &cronTrigger{schedule: sched, start: spec.StartTime, end: spec.EndTime}, nil
	case spec.StartTime != nil:
		return &oneShotTrigger{at: *spec.StartTime}, nil
	default:
		return nil, ErrMissingTrigger
	}
}

// intervalTrigger fires at start (or, if start is absent, at the instant it
// is first asked for a next occurrence -- i.e. arm-time), then every
// interval thereafter. Next is only ever called in sequence for a given
// armed job (first by the scheduler's Arm, then by that job's timer
// goroutine), so the fired/anchor bookkeeping below needs no lock.
type intervalTrigger struct {
	interval time.Duration
	start    *time.Time
	end      *time.Time

	fired  bool
	anchor time.Time
}

func (t *intervalTrigger) Next(after time.Time) (time.Time, bool) {
	if t.end != nil && !after.Before(*t.end) {
		return time.Time{}, false
	}

	// No explicit start_time: the first occurrence is arm-time itself, not
	// one interval later. Remember that instant as the anchor for every
	// later occurrence.
	if t.start == nil && !t.fired {
		t.fired = true
		t.anchor = after
		return after, true
	}

	start := after
	if t.start != nil {
		start = *t.start
	} else {
		start = t.anchor
	}

	next := start
	if !next.After(after) {
		elapsed := after.Sub(start)
		steps := elapsed/t.interval + 1
		next = start.Add(steps * t.interval)
	}

	if t.end != nil && next.After(*t.end) {
		return time.Time{}, false
	}
	return next, true
}

type cronTrigger struct {
	schedule cron.Schedule
	start    *time.Time
	end      *time.Time
}

func (t *cronTrigger) Next(after time.Time) (time.Time, bool) {
	if t.end != nil && !after.Before(*t.end) {
		return time.Time{}, false
	}
	from := after
	if t.start != nil && t.start.After(after) {
		from = t.start.Add(-time.Second)
	}
	next := t.schedule.Next(from)
	if t.end != nil && next.After(*t.end) {
		return time.Time{}, false
	}
	return next, true
}

type oneShotTrigger struct {
	at time.Time
}

func (t *oneShotTrigger) Next(after time.Time) (time.Time, bool) {
	if !t.at.After(after) {
		return time.Time{}, false
	}
	return t.at, true
}
