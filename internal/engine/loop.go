package engine

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/actionflow/internal/metrics"
)

// loop is one of the engine's independently ticking background loops.
type loop struct {
	name     string
	interval time.Duration
	tick     func(context.Context) error
	alive    atomic.Bool
}

// runLoop ticks l until ctx is done. A tick that errors or panics is
// logged and followed by the back-off sleep; it never ends the loop.
func (e *Engine) runLoop(ctx context.Context, l *loop) {
	l.alive.Store(true)
	defer l.alive.Store(false)

	t := time.NewTicker(l.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := safeTick(ctx, l); err != nil {
				metrics.LoopErrors.WithLabelValues(l.name).Inc()
				e.log.Error("loop tick failed, backing off", "loop", l.name, "backoff", e.conf.LoopBackoff, "err", err)
				if sleepCtx(ctx, e.conf.LoopBackoff) != nil {
					return
				}
			}
		}
	}
}

func safeTick(ctx context.Context, l *loop) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return l.tick(ctx)
}

// refreshLoad is the metrics loop tick: load = running / max concurrency.
func (e *Engine) refreshLoad(context.Context) error {
	load := float64(e.runningCount()) / float64(e.conf.MaxConcurrency)
	e.load.Store(math.Float64bits(load))
	metrics.SystemLoad.Set(load)
	return nil
}
