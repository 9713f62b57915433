package action

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ScheduleSpec is what a caller asks for when arming an action.
//
// Interval wins over Cron when both are set. With neither, the action runs
// once on the next scheduler tick and then disarms.
type ScheduleSpec struct {
	Interval time.Duration
	Cron     string
	MaxRuns  int // zero means unlimited
}

// ParseCron validates a cron expression (5 fields, optional seconds, or a
// descriptor such as @hourly).
func ParseCron(expr string) (cron.Schedule, error) {
	s, err := cronParser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("%w: cron %q: %v", ErrInvalidSchedule, expr, err)
	}
	return s, nil
}

// Schedule is the recurring-execution state machine of one action:
// disabled -> armed -> due -> submitted -> armed | disabled.
type Schedule struct {
	Enabled     bool
	Interval    time.Duration
	Cron        string
	NextRun     time.Time
	MaxRuns     int
	CurrentRuns int

	cron cron.Schedule
}

func (s *Schedule) next(now time.Time) time.Time {
	switch {
	case s.Interval > 0:
		return now.Add(s.Interval)
	case s.cron != nil:
		return s.cron.Next(now)
	}
	return time.Time{}
}

// Arm enables the schedule and resets the run counter.
func (a *Action) Arm(spec ScheduleSpec, now time.Time) error {
	if spec.Interval < 0 {
		return fmt.Errorf("%w: negative interval", ErrInvalidSchedule)
	}
	if spec.MaxRuns < 0 {
		return fmt.Errorf("%w: negative max_runs", ErrInvalidSchedule)
	}
	s := Schedule{
		Enabled:  true,
		Interval: spec.Interval,
		Cron:     strings.TrimSpace(spec.Cron),
		MaxRuns:  spec.MaxRuns,
	}
	if s.Cron != "" {
		c, err := ParseCron(s.Cron)
		if err != nil {
			return err
		}
		s.cron = c
	}
	s.NextRun = s.next(now)
	if s.NextRun.IsZero() {
		s.NextRun = now
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.schedule = s
	return nil
}

// Disarm turns the schedule off. It reports whether it was enabled.
func (a *Action) Disarm() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	was := a.schedule.Enabled
	a.schedule.Enabled = false
	return was
}

// Due reports whether the scheduler should submit the action at now.
func (a *Action) Due(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.schedule
	return s.Enabled && !s.NextRun.IsZero() && !now.Before(s.NextRun) && !a.running
}

// Advance records one scheduled submission at now: it re-arms the next run
// and disables the schedule once MaxRuns is reached or nothing recurs.
func (a *Action) Advance(now time.Time) Schedule {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := &a.schedule
	s.CurrentRuns++
	s.NextRun = s.next(now)
	if s.NextRun.IsZero() || (s.MaxRuns > 0 && s.CurrentRuns >= s.MaxRuns) {
		s.Enabled = false
	}
	return *s
}
