package event

import "time"

// Trigger records what caused an action run.
type Trigger string

const (
	TriggerImmediate Trigger = "immediate"
	TriggerBatch     Trigger = "batch"
	TriggerCascade   Trigger = "cascade"
	TriggerSchedule  Trigger = "schedule"
)

// Outcome is published once for every admitted run, including runs whose
// errors are otherwise only logged (batch items, cascades, scheduled runs).
type Outcome struct {
	ID         string    `json:"id"`
	ActionID   string    `json:"action_id"`
	Ticket     string    `json:"ticket,omitempty"` // batch ticket, if any
	Trigger    Trigger   `json:"trigger"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Attempts   int       `json:"attempts"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`
}
