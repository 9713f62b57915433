package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "actionflow_actions_executed_total",
		Help: "Total number of logical action executions, labelled by category, trigger and status.",
	}, []string{"category", "trigger", "status"})

	ActionRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "actionflow_action_retries_total",
		Help: "Total number of retry attempts after a failed attempt, labelled by category.",
	}, []string{"category"})

	ActionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "actionflow_action_duration_ms",
		Help:    "Wall time of one logical execution including retries, in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000, 60000},
	}, []string{"category"})

	AdmissionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "actionflow_admission_rejected_total",
		Help: "Submissions refused before execution, labelled by reason.",
	}, []string{"reason"})

	RunningActions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "actionflow_running_actions",
		Help: "Actions currently holding an execution slot.",
	})

	PeakConcurrency = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "actionflow_peak_concurrency",
		Help: "Highest number of simultaneously running actions since start.",
	})

	SystemLoad = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "actionflow_system_load_ratio",
		Help: "Running actions divided by the concurrency cap (0–1), refreshed by the metrics loop.",
	})

	BatchEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "actionflow_batch_enqueued_total",
		Help: "Total number of batch requests accepted.",
	})

	BatchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "actionflow_batch_queue_depth",
		Help: "Batch requests waiting for the next drain.",
	})

	ScheduleTriggers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "actionflow_schedule_triggers_total",
		Help: "Total number of scheduled submissions made by the scheduler loop.",
	})

	Cascades = promauto.NewCounter(prometheus.CounterOpts{
		Name: "actionflow_cascades_total",
		Help: "Total number of dependents auto-submitted after a dependency succeeded.",
	})

	OutcomesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "actionflow_outcomes_dropped_total",
		Help: "Outcomes not delivered because a subscriber buffer was full.",
	})

	LoopErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "actionflow_loop_errors_total",
		Help: "Unexpected errors caught at a periodic loop boundary, labelled by loop.",
	}, []string{"loop"})
)
