package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/actionflow/internal/action"
	"github.com/gyaneshwarpardhi/actionflow/internal/metrics"
)

var errAttemptTimeout = errors.New("attempt timed out")

type attemptResult struct {
	value interface{}
	err   error
}

// blockingCall is one BlockingFunc invocation queued on the worker pool.
type blockingCall struct {
	fn   action.BlockingFunc
	args action.Args
	out  chan attemptResult // buffered; the waiter may have given up
}

func runBlocking(c *blockingCall) {
	c.out <- protect(func() (interface{}, error) { return c.fn(c.args) })
}

// protect turns a handler panic into an error.
func protect(fn func() (interface{}, error)) (res attemptResult) {
	defer func() {
		if r := recover(); r != nil {
			res = attemptResult{err: fmt.Errorf("handler panic: %v", r)}
		}
	}()
	v, err := fn()
	return attemptResult{value: v, err: err}
}

// execute is the execution core. It holds a's reentrancy guard for the whole
// call, tries the handler up to RetryCount+1 times with a fresh timeout per
// attempt and a fixed RetryDelay between attempts, and records one logical
// execution in a's metrics however it ends.
func (e *Engine) execute(ctx context.Context, a *action.Action, args action.Args) (result interface{}, attempts int, err error) {
	if err := a.Begin(); err != nil {
		return nil, 0, err
	}
	cfg, h := a.Config(), a.Handler()
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		a.Finish(elapsed, result, err)
		metrics.ActionDuration.WithLabelValues(string(cfg.Category)).Observe(float64(elapsed) / float64(time.Millisecond))
	}()

	maxAttempts := cfg.RetryCount + 1
	for attempts = 1; ; attempts++ {
		result, err = e.attempt(ctx, h, cfg.Timeout, args)
		if err == nil {
			return result, attempts, nil
		}
		if attempts >= maxAttempts || ctx.Err() != nil {
			break
		}
		e.log.Warn("action attempt failed, retrying",
			"action_id", a.ID(),
			"attempt", attempts,
			"max_attempts", maxAttempts,
			"retry_delay", cfg.RetryDelay,
			"err", err,
		)
		metrics.ActionRetries.WithLabelValues(string(cfg.Category)).Inc()
		if serr := sleepCtx(ctx, cfg.RetryDelay); serr != nil {
			break
		}
	}

	switch {
	case errors.Is(err, errAttemptTimeout):
		return nil, attempts, fmt.Errorf("%w: %s exceeded %v (attempt %d of %d)", action.ErrTimeout, a.ID(), cfg.Timeout, attempts, maxAttempts)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return nil, attempts, fmt.Errorf("action %s: %w", a.ID(), err)
	default:
		return nil, attempts, fmt.Errorf("%w: %s after %d attempt(s): %w", action.ErrHandlerFailure, a.ID(), attempts, err)
	}
}

// attempt runs the handler once. The handler always runs off the calling
// goroutine so the timeout wins even when the handler ignores its context.
func (e *Engine) attempt(ctx context.Context, handler action.Handler, timeout time.Duration, args action.Args) (interface{}, error) {
	actx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	out := make(chan attemptResult, 1)
	switch h := handler.(type) {
	case action.HandlerFunc:
		go func() {
			out <- protect(func() (interface{}, error) { return h(actx, args) })
		}()
	case action.BlockingFunc:
		if err := e.pool.Submit(actx, &blockingCall{fn: h, args: args, out: out}); err != nil {
			return nil, attemptErr(ctx, actx, err)
		}
	default:
		return nil, fmt.Errorf("unsupported handler type %T", h)
	}

	select {
	case r := <-out:
		if r.err != nil {
			return r.value, attemptErr(ctx, actx, r.err)
		}
		return r.value, nil
	case <-actx.Done():
		return nil, attemptErr(ctx, actx, actx.Err())
	}
}

// attemptErr reports the attempt's own deadline as errAttemptTimeout and
// leaves every other error as is.
func attemptErr(parent, actx context.Context, err error) error {
	if parent.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		return errAttemptTimeout
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
