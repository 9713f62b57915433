package action

import (
	"fmt"
	"sync"
	"time"
)

// Category groups actions by the part of the business they automate.
type Category string

const (
	CategorySystem      Category = "system"
	CategoryUser        Category = "user"
	CategoryAutomation  Category = "automation"
	CategoryMaintenance Category = "maintenance"
	CategoryAnalytics   Category = "analytics"
	CategorySecurity    Category = "security"
)

// Categories lists every valid Category in display order.
var Categories = []Category{
	CategorySystem, CategoryUser, CategoryAutomation,
	CategoryMaintenance, CategoryAnalytics, CategorySecurity,
}

// Priority is descriptive metadata; admission is first-come-first-served.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Priorities lists every valid Priority from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical}

// Mode decides how Engine.Run dispatches an action.
type Mode string

const (
	ModeSync      Mode = "sync"
	ModeAsync     Mode = "async"
	ModeBatch     Mode = "batch"
	ModeScheduled Mode = "scheduled"
	ModeParallel  Mode = "parallel"
)

// Modes lists every valid Mode.
var Modes = []Mode{ModeSync, ModeAsync, ModeBatch, ModeScheduled, ModeParallel}

// Immediate reports whether the mode goes straight to admission.
func (m Mode) Immediate() bool {
	return m == ModeSync || m == ModeAsync || m == ModeParallel
}

func valid[T comparable](v T, set []T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Config is the static policy of an action.
type Config struct {
	Description string
	Category    Category
	Priority    Priority
	Mode        Mode
	Timeout     time.Duration // zero means no per-attempt timeout
	RetryCount  int
	RetryDelay  time.Duration
	Tags        []string
	Metadata    map[string]interface{}
}

// withDefaults fills empty enum fields and validates the rest.
func (c Config) withDefaults() (Config, error) {
	if c.Category == "" {
		c.Category = CategorySystem
	}
	if c.Priority == "" {
		c.Priority = PriorityNormal
	}
	if c.Mode == "" {
		c.Mode = ModeAsync
	}
	switch {
	case !valid(c.Category, Categories):
		return c, fmt.Errorf("%w: unknown category %q", ErrInvalidAction, c.Category)
	case !valid(c.Priority, Priorities):
		return c, fmt.Errorf("%w: unknown priority %q", ErrInvalidAction, c.Priority)
	case !valid(c.Mode, Modes):
		return c, fmt.Errorf("%w: unknown execution mode %q", ErrInvalidAction, c.Mode)
	case c.Timeout < 0:
		return c, fmt.Errorf("%w: negative timeout", ErrInvalidAction)
	case c.RetryCount < 0:
		return c, fmt.Errorf("%w: negative retry count", ErrInvalidAction)
	case c.RetryDelay < 0:
		return c, fmt.Errorf("%w: negative retry delay", ErrInvalidAction)
	}
	return c, nil
}

// Metrics accumulates execution statistics. One logical execution counts once
// no matter how many attempts it took.
type Metrics struct {
	ExecutionCount       int64
	TotalExecutionTime   time.Duration
	AverageExecutionTime time.Duration
	SuccessCount         int64
	FailureCount         int64
	LastExecution        time.Time
}

func (m *Metrics) update(elapsed time.Duration, success bool, at time.Time) {
	m.ExecutionCount++
	m.TotalExecutionTime += elapsed
	m.AverageExecutionTime = m.TotalExecutionTime / time.Duration(m.ExecutionCount)
	if success {
		m.SuccessCount++
	} else {
		m.FailureCount++
	}
	m.LastExecution = at
}

// Action is a registered unit of work. Identity is fixed at construction;
// everything else is guarded by mu.
type Action struct {
	id      string
	created time.Time

	mu         sync.Mutex
	handler    Handler
	cfg        Config
	metrics    Metrics
	schedule   Schedule
	running    bool
	lastResult interface{}
	lastError  error
}

// New validates cfg and returns an idle, unscheduled Action.
func New(id string, h Handler, cfg Config) (*Action, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidAction)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: action %s: handler is required", ErrInvalidAction, id)
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", id, err)
	}
	return &Action{id: id, handler: h, cfg: cfg, created: time.Now()}, nil
}

func (a *Action) ID() string { return a.id }

// Handler returns the current handler.
func (a *Action) Handler() Handler {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handler
}

// Reconfigure swaps the handler and policy while keeping metrics, schedule
// and the last result. A run already in flight finishes with the handler it
// started with.
func (a *Action) Reconfigure(h Handler, cfg Config) error {
	if h == nil {
		return fmt.Errorf("%w: action %s: handler is required", ErrInvalidAction, a.id)
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return fmt.Errorf("action %s: %w", a.id, err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
	a.cfg = cfg
	return nil
}

// Config returns a copy of the action's policy.
func (a *Action) Config() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Metrics returns a copy of the execution statistics.
func (a *Action) Metrics() Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metrics
}

// Schedule returns a copy of the recurring schedule state.
func (a *Action) Schedule() Schedule {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.schedule
}

// Running reports whether the action currently holds an execution slot.
func (a *Action) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Last returns the most recent result and error.
func (a *Action) Last() (interface{}, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastResult, a.lastError
}

// Begin sets the reentrancy guard. It fails with ErrAlreadyRunning if the
// guard is already held.
func (a *Action) Begin() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, a.id)
	}
	a.running = true
	return nil
}

// Finish records the outcome of one logical execution and clears the guard.
func (a *Action) Finish(elapsed time.Duration, result interface{}, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics.update(elapsed, err == nil, time.Now())
	a.lastResult = result
	a.lastError = err
	a.running = false
}

// Settled reports whether dependents of this action may be admitted: it has
// executed at least once and is not running now. A failed execution counts.
func (a *Action) Settled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.running && a.metrics.ExecutionCount > 0
}
