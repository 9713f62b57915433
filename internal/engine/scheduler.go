package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/actionflow/internal/action"
	"github.com/gyaneshwarpardhi/actionflow/internal/event"
	"github.com/gyaneshwarpardhi/actionflow/internal/metrics"
)

func (e *Engine) schedulerTick(ctx context.Context) error {
	e.scheduleDue(ctx, time.Now())
	return nil
}

// scheduleDue starts every action whose schedule is due at now and returns
// without waiting for the runs. Each schedule is advanced before its run
// starts, and an action whose previous scheduled run has not finished is
// skipped, so a slow action never holds up the others or fires twice. A
// failure while evaluating one action does not stop the rest. It returns
// the number of runs started.
func (e *Engine) scheduleDue(ctx context.Context, now time.Time) int {
	n := 0
	for _, a := range e.registry.List() {
		id := a.ID()
		if !e.markScheduling(id) {
			continue
		}
		due, err := e.claimDue(a, now)
		if err != nil {
			e.clearScheduling(id)
			metrics.LoopErrors.WithLabelValues("scheduler").Inc()
			e.log.Error("schedule evaluation failed", "action_id", id, "err", err)
			continue
		}
		if !due {
			e.clearScheduling(id)
			continue
		}

		started := e.goTracked(func() {
			defer e.clearScheduling(id)
			if _, err := e.submit(ctx, id, action.Args{}, event.TriggerSchedule, ""); err != nil {
				e.log.Error("scheduled run failed", "action_id", id, "err", err)
			}
		})
		if !started {
			e.clearScheduling(id)
			e.log.Warn("scheduled run skipped during shutdown", "action_id", id)
			continue
		}
		n++
		metrics.ScheduleTriggers.Inc()
	}
	return n
}

// markScheduling records that id has a scheduled run in flight. It reports false
// if one already is.
func (e *Engine) markScheduling(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.scheduling[id]; busy {
		return false
	}
	e.scheduling[id] = struct{}{}
	return true
}

func (e *Engine) clearScheduling(id string) {
	e.mu.Lock()
	delete(e.scheduling, id)
	e.mu.Unlock()
}

// scheduledInFlight counts scheduled runs that have started and not finished.
func (e *Engine) scheduledInFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.scheduling)
}

// claimDue checks one action and, when due, advances its schedule.
func (e *Engine) claimDue(a *action.Action, now time.Time) (due bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if !a.Due(now) {
		return false, nil
	}
	s := a.Advance(now)
	if !s.Enabled {
		e.log.Info("schedule finished", "action_id", a.ID(), "runs", s.CurrentRuns, "max_runs", s.MaxRuns)
	}
	return true, nil
}
