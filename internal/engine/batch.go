package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gyaneshwarpardhi/actionflow/internal/action"
	"github.com/gyaneshwarpardhi/actionflow/internal/event"
	"github.com/gyaneshwarpardhi/actionflow/internal/metrics"
)

// batchItem is one deferred invocation waiting in the batch queue.
type batchItem struct {
	Ticket     string
	ActionID   string
	Args       action.Args
	EnqueuedAt time.Time
}

// batchQueue is a FIFO of pending batch items.
type batchQueue struct {
	mu    sync.Mutex
	items []batchItem
}

func (q *batchQueue) push(it batchItem) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, it)
	return len(q.items)
}

// popN removes and returns up to n items from the front.
func (q *batchQueue) popN(n int) []batchItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.items) {
		n = len(q.items)
	}
	out := make([]batchItem, n)
	copy(out, q.items[:n])
	q.items = append(q.items[:0:0], q.items[n:]...)
	return out
}

func (q *batchQueue) removeAction(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	for _, it := range q.items {
		if it.ActionID != id {
			kept = append(kept, it)
		}
	}
	removed := len(q.items) - len(kept)
	q.items = kept
	return removed
}

func (q *batchQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Enqueue defers an invocation to the batch worker and returns its ticket
// at once. The outcome is published on the outcome stream under that ticket.
func (e *Engine) Enqueue(id string, args action.Args) (string, error) {
	if !e.registry.Has(id) {
		metrics.AdmissionRejected.WithLabelValues("not_found").Inc()
		return "", fmt.Errorf("%w: %q", action.ErrNotFound, id)
	}
	it := batchItem{
		Ticket:     uuid.NewString(),
		ActionID:   id,
		Args:       args,
		EnqueuedAt: time.Now(),
	}
	depth := e.batch.push(it)
	metrics.BatchEnqueued.Inc()
	metrics.BatchQueueDepth.Set(float64(depth))
	e.log.Debug("batch item queued", "action_id", id, "ticket", it.Ticket, "depth", depth)
	return it.Ticket, nil
}

func (e *Engine) batchTick(ctx context.Context) error {
	e.drainBatch(ctx)
	return nil
}

// drainBatch takes up to BatchSize items and waits for all of them. Items
// for different actions run concurrently; items for the same action run one
// after another in queue order, since an action runs at most once at a time.
// Item errors are logged, never returned, so one bad item cannot abort the
// rest. It returns the number of items taken.
func (e *Engine) drainBatch(ctx context.Context) int {
	items := e.batch.popN(e.conf.BatchSize)
	metrics.BatchQueueDepth.Set(float64(e.batch.len()))
	if len(items) == 0 {
		return 0
	}

	var order []string
	byAction := make(map[string][]int)
	for i, it := range items {
		if _, ok := byAction[it.ActionID]; !ok {
			order = append(order, it.ActionID)
		}
		byAction[it.ActionID] = append(byAction[it.ActionID], i)
	}

	errs := make([]error, len(items))
	var g errgroup.Group
	for _, id := range order {
		idx := byAction[id]
		g.Go(func() error {
			for _, i := range idx {
				it := items[i]
				_, errs[i] = e.submit(ctx, it.ActionID, it.Args, event.TriggerBatch, it.Ticket)
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			e.log.Error("batch item failed",
				"action_id", items[i].ActionID,
				"ticket", items[i].Ticket,
				"queued_for", time.Since(items[i].EnqueuedAt),
				"err", err,
			)
		}
	}
	e.log.Debug("batch drained", "items", len(items), "failed", failed)
	return len(items)
}
