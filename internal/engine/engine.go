package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/gyaneshwarpardhi/actionflow/internal/action"
	"github.com/gyaneshwarpardhi/actionflow/internal/config"
	"github.com/gyaneshwarpardhi/actionflow/internal/dag"
	"github.com/gyaneshwarpardhi/actionflow/internal/event"
	"github.com/gyaneshwarpardhi/actionflow/internal/metrics"
)

// Engine owns the action registry, the dependency graph, the admission
// slots, the batch queue and the three periodic loops. Build one with New;
// there is no package-level instance.
type Engine struct {
	conf     config.EngineConf
	log      *slog.Logger
	registry *action.Registry
	graph    *dag.Graph
	slots    *semaphore.Weighted
	pool     *workerPool[*blockingCall]
	batch    *batchQueue
	outcomes *event.Bus

	// mu guards the running set, the scheduled runs in flight and the
	// system counters.
	mu            sync.Mutex
	running       map[string]struct{}
	scheduling    map[string]struct{}
	peak          int
	totalExecuted int64
	load          atomic.Uint64 // math.Float64bits of the last computed load

	// lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lifeMu   sync.Mutex
	started  bool
	closing  bool
	loops    []*loop
	declared map[string]*config.ScheduleDef // ids registered by Apply and the schedule they declared
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger injects a logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithRegistry shares an existing registry instead of creating one.
func WithRegistry(r *action.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// New creates an Engine and starts its shared worker pool. Call Start to
// launch the scheduler, batch and metrics loops.
func New(conf config.EngineConf, opts ...Option) *Engine {
	def := config.DefaultEngineConf()
	if conf.MaxConcurrency <= 0 {
		conf.MaxConcurrency = def.MaxConcurrency
	}
	if conf.WorkerPoolSize <= 0 {
		conf.WorkerPoolSize = def.WorkerPoolSize
	}
	if conf.WorkerQueueDepth <= 0 {
		conf.WorkerQueueDepth = conf.WorkerPoolSize * 8
	}
	if conf.BatchSize <= 0 {
		conf.BatchSize = def.BatchSize
	}
	if conf.BatchInterval <= 0 {
		conf.BatchInterval = def.BatchInterval
	}
	if conf.SchedulerInterval <= 0 {
		conf.SchedulerInterval = def.SchedulerInterval
	}
	if conf.MetricsInterval <= 0 {
		conf.MetricsInterval = def.MetricsInterval
	}
	if conf.LoopBackoff <= 0 {
		conf.LoopBackoff = def.LoopBackoff
	}
	if conf.OutcomeBuffer <= 0 {
		conf.OutcomeBuffer = def.OutcomeBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		conf:       conf,
		log:        slog.Default(),
		registry:   action.NewRegistry(),
		graph:      dag.NewGraph(),
		slots:      semaphore.NewWeighted(int64(conf.MaxConcurrency)),
		batch:      &batchQueue{},
		outcomes:   event.NewBus(),
		running:    make(map[string]struct{}),
		scheduling: make(map[string]struct{}),
		ctx:        ctx,
		cancel:     cancel,
		declared:   make(map[string]*config.ScheduleDef),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.pool = newWorkerPool(conf.WorkerPoolSize, conf.WorkerQueueDepth, runBlocking)
	e.loops = []*loop{
		{name: "scheduler", interval: conf.SchedulerInterval, tick: e.schedulerTick},
		{name: "batch", interval: conf.BatchInterval, tick: e.batchTick},
		{name: "metrics", interval: conf.MetricsInterval, tick: e.refreshLoad},
	}
	return e
}

// Start launches the three periodic loops. They stop when ctx is done or
// Shutdown is called.
func (e *Engine) Start(ctx context.Context) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.closing {
		return errors.New("engine: already shut down")
	}
	if e.started {
		return errors.New("engine: already started")
	}
	e.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	context.AfterFunc(e.ctx, cancel)
	for _, l := range e.loops {
		e.wg.Add(1)
		go func(l *loop) {
			defer e.wg.Done()
			e.runLoop(loopCtx, l)
		}(l)
	}
	e.log.Info("engine started",
		"max_concurrency", e.conf.MaxConcurrency,
		"worker_pool_size", e.conf.WorkerPoolSize,
		"batch_size", e.conf.BatchSize,
	)
	return nil
}

// Shutdown stops the loops and cascades, waits for them, drains the worker
// pool and closes every outcome subscription. In-flight runs see their
// context cancelled.
func (e *Engine) Shutdown() {
	e.lifeMu.Lock()
	if e.closing {
		e.lifeMu.Unlock()
		return
	}
	e.closing = true
	e.lifeMu.Unlock()

	e.cancel()
	e.wg.Wait()
	e.pool.Drain()
	e.outcomes.Close()
	e.log.Info("engine stopped")
}

// goTracked runs fn in a goroutine Shutdown waits for. It reports false if
// the engine is shutting down and fn was not started.
func (e *Engine) goTracked(fn func()) bool {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.closing {
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
	return true
}

// Registry exposes the underlying registry for read access.
func (e *Engine) Registry() *action.Registry { return e.registry }

// Graph exposes the dependency graph.
func (e *Engine) Graph() *dag.Graph { return e.graph }

// Subscribe streams every outcome from now on. buffer <= 0 uses the
// configured outcome buffer. Call cancel to unsubscribe.
func (e *Engine) Subscribe(buffer int) (<-chan event.Outcome, func()) {
	if buffer <= 0 {
		buffer = e.conf.OutcomeBuffer
	}
	return e.outcomes.Subscribe(buffer)
}

// Register creates an action and stores it, replacing any action with the
// same id. Replacement is logged, never rejected. It returns false only when
// the arguments are invalid.
func (e *Engine) Register(id string, h action.Handler, cfg action.Config) (bool, error) {
	a, err := action.New(id, h, cfg)
	if err != nil {
		return false, err
	}
	if e.registry.Register(a) {
		e.log.Warn("action overwritten", "action_id", id)
	} else {
		e.log.Debug("action registered", "action_id", id, "mode", a.Config().Mode)
	}
	return true, nil
}

// Deregister removes an action, its graph edges and its pending batch items.
func (e *Engine) Deregister(id string) error {
	if !e.registry.Remove(id) {
		return fmt.Errorf("%w: %q", action.ErrNotFound, id)
	}
	e.graph.RemoveNode(id)
	if n := e.batch.removeAction(id); n > 0 {
		e.log.Warn("dropped pending batch items of deregistered action", "action_id", id, "count", n)
		metrics.BatchQueueDepth.Set(float64(e.batch.len()))
	}
	e.lifeMu.Lock()
	delete(e.declared, id)
	e.lifeMu.Unlock()
	return nil
}

// AddDependency makes id wait for dependsOn. Both directions of the edge are
// recorded together; cycles are rejected with dag.ErrCycle.
func (e *Engine) AddDependency(id, dependsOn string) error {
	return e.graph.AddEdge(dependsOn, id)
}

// RemoveDependency deletes the edge added by AddDependency.
func (e *Engine) RemoveDependency(id, dependsOn string) bool {
	return e.graph.RemoveEdge(dependsOn, id)
}

// RunResult is what Run returns. Which fields are set depends on the mode:
// immediate modes carry Value, batch carries Ticket, scheduled only Accepted.
type RunResult struct {
	ActionID string      `json:"action_id"`
	Mode     action.Mode `json:"mode"`
	Accepted bool        `json:"accepted"`
	Value    interface{} `json:"result,omitempty"`
	Ticket   string      `json:"ticket,omitempty"`
}

// Run dispatches an action by its execution mode. Immediate modes (sync,
// async, parallel) run now and return the handler result or error. Batch
// mode enqueues and returns a ticket. Scheduled mode only checks that a
// schedule is armed; the scheduler loop runs it.
func (e *Engine) Run(ctx context.Context, id string, args action.Args) (*RunResult, error) {
	a, err := e.registry.Get(id)
	if err != nil {
		metrics.AdmissionRejected.WithLabelValues("not_found").Inc()
		return nil, err
	}
	mode := a.Config().Mode
	res := &RunResult{ActionID: id, Mode: mode}

	switch mode {
	case action.ModeBatch:
		ticket, err := e.Enqueue(id, args)
		if err != nil {
			return res, err
		}
		res.Ticket, res.Accepted = ticket, true
		return res, nil
	case action.ModeScheduled:
		if !a.Schedule().Enabled {
			return res, fmt.Errorf("%w: %s has no enabled schedule", action.ErrNotConfigured, id)
		}
		res.Accepted = true
		return res, nil
	default:
		v, err := e.Submit(ctx, id, args)
		res.Value, res.Accepted = v, err == nil
		return res, err
	}
}

// SetSchedule arms recurring execution of an action and resets its run
// counter. Unknown ids fail with ErrNotConfigured (wrapping ErrNotFound).
func (e *Engine) SetSchedule(id string, spec action.ScheduleSpec) error {
	a, err := e.registry.Get(id)
	if err != nil {
		return fmt.Errorf("%w: %w", action.ErrNotConfigured, err)
	}
	if err := a.Arm(spec, time.Now()); err != nil {
		return fmt.Errorf("action %s: %w", id, err)
	}
	s := a.Schedule()
	e.log.Info("schedule armed", "action_id", id, "interval", s.Interval, "cron", s.Cron, "max_runs", s.MaxRuns, "next_run", s.NextRun)
	return nil
}

// ClearSchedule disarms an action's schedule.
func (e *Engine) ClearSchedule(id string) error {
	a, err := e.registry.Get(id)
	if err != nil {
		return fmt.Errorf("%w: %w", action.ErrNotConfigured, err)
	}
	if !a.Disarm() {
		return fmt.Errorf("%w: %s has no enabled schedule", action.ErrNotConfigured, id)
	}
	return nil
}

// Describe returns the serializable snapshot of one action.
func (e *Engine) Describe(id string) (action.Snapshot, error) {
	a, err := e.registry.Get(id)
	if err != nil {
		return action.Snapshot{}, err
	}
	return a.Snapshot(e.graph.Dependencies(id), e.graph.Dependents(id)), nil
}

// List returns snapshots of every action ordered by id.
func (e *Engine) List() []action.Snapshot {
	all := e.registry.List()
	out := make([]action.Snapshot, 0, len(all))
	for _, a := range all {
		out = append(out, a.Snapshot(e.graph.Dependencies(a.ID()), e.graph.Dependents(a.ID())))
	}
	return out
}

// Status is a point-in-time summary of the engine.
type Status struct {
	TotalActions   int                     `json:"total_actions"`
	Running        int                     `json:"running"`
	Queued         int                     `json:"queued"`
	Scheduled      int                     `json:"scheduled"`
	MaxConcurrency int                     `json:"max_concurrency"`
	Loops          LoopStatus              `json:"loops"`
	ByCategory     map[action.Category]int `json:"by_category"`
	ByPriority     map[action.Priority]int `json:"by_priority"`
	System         SystemStats             `json:"system"`
	WorkerPool     PoolStats               `json:"worker_pool"`
}

// LoopStatus reports which periodic loops are alive.
type LoopStatus struct {
	Scheduler bool `json:"scheduler"`
	Batch     bool `json:"batch"`
	Metrics   bool `json:"metrics"`
}

// SystemStats are the cumulative engine counters.
type SystemStats struct {
	TotalExecuted   int64   `json:"total_executed"`
	PeakConcurrency int     `json:"peak_concurrency"`
	Load            float64 `json:"load"`
}

// PoolStats describes the shared worker pool for blocking handlers.
type PoolStats struct {
	Workers  int `json:"workers"`
	Queued   int `json:"queued"`
	Capacity int `json:"capacity"`
}

// Status returns a snapshot of counts, loop liveness and system counters.
func (e *Engine) Status() Status {
	st := Status{
		MaxConcurrency: e.conf.MaxConcurrency,
		Queued:         e.batch.len(),
		ByCategory:     make(map[action.Category]int),
		ByPriority:     make(map[action.Priority]int),
		WorkerPool: PoolStats{
			Workers:  e.pool.Size(),
			Queued:   e.pool.QueueLen(),
			Capacity: e.pool.QueueCap(),
		},
	}
	for _, a := range e.registry.List() {
		st.TotalActions++
		cfg := a.Config()
		st.ByCategory[cfg.Category]++
		st.ByPriority[cfg.Priority]++
		if a.Schedule().Enabled {
			st.Scheduled++
		}
	}
	for _, l := range e.loops {
		alive := l.alive.Load()
		switch l.name {
		case "scheduler":
			st.Loops.Scheduler = alive
		case "batch":
			st.Loops.Batch = alive
		case "metrics":
			st.Loops.Metrics = alive
		}
	}

	e.mu.Lock()
	st.Running = len(e.running)
	st.System.TotalExecuted = e.totalExecuted
	st.System.PeakConcurrency = e.peak
	e.mu.Unlock()
	st.System.Load = e.Load()
	return st
}

// Load returns the system load computed by the last metrics tick.
func (e *Engine) Load() float64 {
	return math.Float64frombits(e.load.Load())
}
