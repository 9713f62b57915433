package config

import "time"

// Config is the top-level YAML structure.
type Config struct {
	Version string      `yaml:"version" validate:"required"`
	Engine  EngineConf  `yaml:"engine"`
	Actions []ActionDef `yaml:"actions" validate:"dive"`
}

// EngineConf holds tunable concurrency and loop settings.
type EngineConf struct {
	MaxConcurrency    int           `yaml:"max_concurrency" validate:"gte=1"`
	WorkerPoolSize    int           `yaml:"worker_pool_size" validate:"gte=1"`
	WorkerQueueDepth  int           `yaml:"worker_queue_depth" validate:"gte=1"`
	BatchSize         int           `yaml:"batch_size" validate:"gte=1"`
	BatchInterval     time.Duration `yaml:"batch_interval" validate:"gt=0"`
	SchedulerInterval time.Duration `yaml:"scheduler_interval" validate:"gt=0"`
	MetricsInterval   time.Duration `yaml:"metrics_interval" validate:"gt=0"`
	LoopBackoff       time.Duration `yaml:"loop_backoff" validate:"gt=0"`
	OutcomeBuffer     int           `yaml:"outcome_buffer" validate:"gte=0"`
	HistoryPath       string        `yaml:"history_path"` // empty = no history store
}

// ActionDef declares one action.
type ActionDef struct {
	ID          string                 `yaml:"id" validate:"required,action_id"`
	Description string                 `yaml:"description"`
	Handler     HandlerDef             `yaml:"handler"`
	Category    string                 `yaml:"category" validate:"omitempty,oneof=system user automation maintenance analytics security"`
	Priority    string                 `yaml:"priority" validate:"omitempty,oneof=low normal high critical"`
	Mode        string                 `yaml:"mode" validate:"omitempty,oneof=sync async batch scheduled parallel"`
	Timeout     time.Duration          `yaml:"timeout" validate:"gte=0"`
	RetryCount  int                    `yaml:"retry_count" validate:"gte=0"`
	RetryDelay  time.Duration          `yaml:"retry_delay" validate:"gte=0"`
	Tags        []string               `yaml:"tags"`
	Metadata    map[string]interface{} `yaml:"metadata"`
	DependsOn   []string               `yaml:"depends_on" validate:"dive,required"`
	Schedule    *ScheduleDef           `yaml:"schedule,omitempty"`
}

// HandlerDef names a builtin handler type and its parameters.
type HandlerDef struct {
	Type   string                 `yaml:"type" validate:"required"`
	Params map[string]interface{} `yaml:"params"`
}

// ScheduleDef arms recurring execution at startup.
type ScheduleDef struct {
	Interval time.Duration `yaml:"interval" validate:"gte=0"`
	Cron     string        `yaml:"cron"`
	MaxRuns  int           `yaml:"max_runs" validate:"gte=0"`
}

// DefaultEngineConf returns the engine settings used when the file omits them.
func DefaultEngineConf() EngineConf {
	c := EngineConf{}
	c.applyDefaults()
	return c
}

// WithDefaults returns a copy of c with every unset setting defaulted.
func (c EngineConf) WithDefaults() EngineConf {
	c.applyDefaults()
	return c
}

func (c *EngineConf) applyDefaults() {
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 10
	}
	if c.WorkerPoolSize == 0 {
		c.WorkerPoolSize = 8
	}
	if c.WorkerQueueDepth == 0 {
		c.WorkerQueueDepth = c.WorkerPoolSize * 8
	}
	if c.BatchSize == 0 {
		c.BatchSize = 5
	}
	if c.BatchInterval == 0 {
		c.BatchInterval = 2 * time.Second
	}
	if c.SchedulerInterval == 0 {
		c.SchedulerInterval = time.Second
	}
	if c.MetricsInterval == 0 {
		c.MetricsInterval = 10 * time.Second
	}
	if c.LoopBackoff == 0 {
		c.LoopBackoff = 5 * time.Second
	}
	if c.OutcomeBuffer == 0 {
		c.OutcomeBuffer = 256
	}
}
