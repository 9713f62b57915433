package action

import "time"

// Snapshot is a serializable view of one action: configuration, metrics,
// schedule, and its dependency edges.
type Snapshot struct {
	ID           string                 `json:"id"`
	Description  string                 `json:"description,omitempty"`
	HandlerKind  string                 `json:"handler_kind"`
	Category     Category               `json:"category"`
	Priority     Priority               `json:"priority"`
	Mode         Mode                   `json:"execution_mode"`
	TimeoutMs    int64                  `json:"timeout_ms,omitempty"`
	RetryCount   int                    `json:"retry_count"`
	RetryDelayMs int64                  `json:"retry_delay_ms"`
	Tags         []string               `json:"tags,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Dependencies []string               `json:"dependencies"`
	Dependents   []string               `json:"dependents"`
	IsRunning    bool                   `json:"is_running"`
	LastResult   interface{}            `json:"last_result,omitempty"`
	LastError    string                 `json:"last_error,omitempty"`
	Metrics      MetricsSnapshot        `json:"metrics"`
	Schedule     ScheduleSnapshot       `json:"schedule"`
	CreatedAt    time.Time              `json:"created_at"`
}

type MetricsSnapshot struct {
	ExecutionCount     int64      `json:"execution_count"`
	TotalExecutionMs   float64    `json:"total_execution_ms"`
	AverageExecutionMs float64    `json:"average_execution_ms"`
	SuccessCount       int64      `json:"success_count"`
	FailureCount       int64      `json:"failure_count"`
	LastExecution      *time.Time `json:"last_execution,omitempty"`
}

type ScheduleSnapshot struct {
	Enabled     bool       `json:"enabled"`
	IntervalMs  int64      `json:"interval_ms,omitempty"`
	Cron        string     `json:"cron_expression,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	MaxRuns     int        `json:"max_runs,omitempty"`
	CurrentRuns int        `json:"current_runs"`
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Snapshot captures the action's state together with its graph edges, which
// the caller supplies because the Registry does not own them.
func (a *Action) Snapshot(dependencies, dependents []string) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	if dependencies == nil {
		dependencies = []string{}
	}
	if dependents == nil {
		dependents = []string{}
	}
	s := Snapshot{
		ID:           a.id,
		Description:  a.cfg.Description,
		HandlerKind:  Kind(a.handler),
		Category:     a.cfg.Category,
		Priority:     a.cfg.Priority,
		Mode:         a.cfg.Mode,
		TimeoutMs:    a.cfg.Timeout.Milliseconds(),
		RetryCount:   a.cfg.RetryCount,
		RetryDelayMs: a.cfg.RetryDelay.Milliseconds(),
		Tags:         append([]string(nil), a.cfg.Tags...),
		Metadata:     a.cfg.Metadata,
		Dependencies: dependencies,
		Dependents:   dependents,
		IsRunning:    a.running,
		LastResult:   a.lastResult,
		Metrics: MetricsSnapshot{
			ExecutionCount:     a.metrics.ExecutionCount,
			TotalExecutionMs:   ms(a.metrics.TotalExecutionTime),
			AverageExecutionMs: ms(a.metrics.AverageExecutionTime),
			SuccessCount:       a.metrics.SuccessCount,
			FailureCount:       a.metrics.FailureCount,
			LastExecution:      timePtr(a.metrics.LastExecution),
		},
		Schedule: ScheduleSnapshot{
			Enabled:     a.schedule.Enabled,
			IntervalMs:  a.schedule.Interval.Milliseconds(),
			Cron:        a.schedule.Cron,
			NextRun:     timePtr(a.schedule.NextRun),
			MaxRuns:     a.schedule.MaxRuns,
			CurrentRuns: a.schedule.CurrentRuns,
		},
		CreatedAt: a.created,
	}
	if a.lastError != nil {
		s.LastError = a.lastError.Error()
	}
	return s
}
