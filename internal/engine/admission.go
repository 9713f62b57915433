package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/actionflow/internal/action"
	"github.com/gyaneshwarpardhi/actionflow/internal/dag"
	"github.com/gyaneshwarpardhi/actionflow/internal/event"
	"github.com/gyaneshwarpardhi/actionflow/internal/metrics"
)

// Submit is the admission controller: it checks the action exists and its
// dependencies are settled, waits for one of MaxConcurrency slots, runs the
// execution core and, on success, cascades to dependents that became ready.
// It ignores the action's execution mode.
func (e *Engine) Submit(ctx context.Context, id string, args action.Args) (interface{}, error) {
	return e.submit(ctx, id, args, event.TriggerImmediate, "")
}

func (e *Engine) submit(ctx context.Context, id string, args action.Args, trig event.Trigger, ticket string) (interface{}, error) {
	o := event.Outcome{
		ID:        uuid.NewString(),
		ActionID:  id,
		Ticket:    ticket,
		Trigger:   trig,
		StartedAt: time.Now(),
	}

	result, category, err := e.admit(ctx, id, args, &o)

	o.FinishedAt = time.Now()
	o.DurationMs = o.FinishedAt.Sub(o.StartedAt).Milliseconds()
	o.Success = err == nil
	if err != nil {
		o.Error = err.Error()
	}
	if dropped := e.outcomes.Publish(o); dropped > 0 {
		metrics.OutcomesDropped.Add(float64(dropped))
	}

	if o.Attempts > 0 {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.ActionsExecuted.WithLabelValues(string(category), string(trig), status).Inc()
	}
	if err == nil {
		e.cascade(id)
	}
	return result, err
}

// admit runs the precondition checks and, once a slot is free, the
// execution core. Rejections leave o.Attempts at zero.
func (e *Engine) admit(ctx context.Context, id string, args action.Args, o *event.Outcome) (interface{}, action.Category, error) {
	a, err := e.registry.Get(id)
	if err != nil {
		metrics.AdmissionRejected.WithLabelValues("not_found").Inc()
		return nil, "", err
	}
	category := a.Config().Category

	if err := e.checkDependencies(id); err != nil {
		return nil, category, err
	}
	// Fail fast instead of queueing for a slot the guard would refuse anyway.
	if a.Running() {
		metrics.AdmissionRejected.WithLabelValues("already_running").Inc()
		return nil, category, fmt.Errorf("%w: %s", action.ErrAlreadyRunning, id)
	}

	if err := e.slots.Acquire(ctx, 1); err != nil {
		return nil, category, fmt.Errorf("action %s: waiting for a slot: %w", id, err)
	}
	if !e.reserve(id) {
		e.slots.Release(1)
		metrics.AdmissionRejected.WithLabelValues("already_running").Inc()
		return nil, category, fmt.Errorf("%w: %s", action.ErrAlreadyRunning, id)
	}
	// A dependency may have started while this run waited for a slot.
	if err := e.checkDependencies(id); err != nil {
		e.unreserve(id)
		return nil, category, err
	}
	defer e.release(id)

	result, attempts, err := e.execute(ctx, a, args)
	o.Attempts = attempts
	if errors.Is(err, action.ErrAlreadyRunning) {
		metrics.AdmissionRejected.WithLabelValues("already_running").Inc()
	}
	return result, category, err
}

func (e *Engine) checkDependencies(id string) error {
	if unmet := dag.Unmet(e.graph, id, e.settled); len(unmet) > 0 {
		metrics.AdmissionRejected.WithLabelValues("dependency_unmet").Inc()
		return fmt.Errorf("%w: %s waits for %s", action.ErrDependencyUnmet, id, strings.Join(unmet, ", "))
	}
	return nil
}

// settled is the dependency satisfaction check: registered, not running or
// holding a slot, executed at least once.
func (e *Engine) settled(id string) bool {
	a, err := e.registry.Get(id)
	if err != nil {
		return false
	}
	e.mu.Lock()
	_, holding := e.running[id]
	e.mu.Unlock()
	return !holding && a.Settled()
}

// reserve inserts id into the running set.
func (e *Engine) reserve(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.running[id]; busy {
		return false
	}
	e.running[id] = struct{}{}
	if n := len(e.running); n > e.peak {
		e.peak = n
		metrics.PeakConcurrency.Set(float64(n))
	}
	metrics.RunningActions.Set(float64(len(e.running)))
	return true
}

// release frees the slot taken by reserve and counts the execution.
func (e *Engine) release(id string) {
	e.mu.Lock()
	e.totalExecuted++
	e.mu.Unlock()
	e.unreserve(id)
}

// unreserve frees the slot taken by reserve without counting an execution.
func (e *Engine) unreserve(id string) {
	e.mu.Lock()
	delete(e.running, id)
	metrics.RunningActions.Set(float64(len(e.running)))
	e.mu.Unlock()
	e.slots.Release(1)
}

func (e *Engine) runningCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.running)
}

// cascade submits, without waiting, every dependent of id whose
// dependencies are now all settled. Failures are logged and published as
// outcomes; they never reach the caller of the original run.
func (e *Engine) cascade(id string) {
	for _, child := range dag.Ready(e.graph, id, e.settled) {
		if !e.registry.Has(child) {
			continue
		}
		metrics.Cascades.Inc()
		started := e.goTracked(func() {
			if _, err := e.submit(e.ctx, child, action.Args{}, event.TriggerCascade, ""); err != nil {
				e.log.Error("cascaded run failed", "action_id", child, "dependency", id, "err", err)
			}
		})
		if !started {
			e.log.Warn("cascade skipped during shutdown", "action_id", child, "dependency", id)
		}
	}
}
