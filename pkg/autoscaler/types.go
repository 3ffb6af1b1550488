package autoscaler

import (
	"time"

	"tierscale/pkg/policy"
)

// Action what an evaluation did to the fleet
type Action string

const (
	ActionNone Action = "none"
	ActionHire Action = "hire"
	ActionFire Action = "fire"
)

// Decision is the outcome of one EvaluateHire call
type Decision struct {
	QueueType policy.QueueType `json:"queueType"`
	Action    Action           `json:"action"`
	Pending   int              `json:"pending"`
	Before    int              `json:"before"`
	After     int              `json:"after"`
	Desired   int              `json:"desired"`
	Reason    string           `json:"reason,omitempty"`
}

// Hired reports whether workers were requested
func (d Decision) Hired() bool {
	return d.Action == ActionHire
}

// Phase is where a queue type sits in its staffing lifecycle, derived
// from observed state:
//
//	IDLE -> STAFFING -> ACTIVE -> DRAINING -> IDLE
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseStaffing Phase = "STAFFING"
	PhaseActive   Phase = "ACTIVE"
	PhaseDraining Phase = "DRAINING"
	// PhaseUnknown the fleet could not report a worker count
	PhaseUnknown Phase = "UNKNOWN"
)

// PhaseOf classifies observed state
func PhaseOf(pending, workers, desired int, bounds policy.WorkerBounds) Phase {
	switch {
	case pending > 0 && workers < desired:
		return PhaseStaffing
	case pending > 0:
		return PhaseActive
	case workers > bounds.Min:
		return PhaseDraining
	default:
		return PhaseIdle
	}
}

// EventType kind of scaling event
type EventType string

const (
	EventHire            EventType = "hire"
	EventFire            EventType = "fire"
	EventCascade         EventType = "cascade"
	EventProviderFailure EventType = "provider_failure"
)

// ScalingEvent is emitted for every fleet change and every provider failure.
// Events are delivered to sinks only; nothing is persisted.
type ScalingEvent struct {
	ID        string           `json:"id"`
	Type      EventType        `json:"type"`
	QueueType policy.QueueType `json:"queueType"`
	Source    policy.QueueType `json:"source,omitempty"` // cascade only: the queue type that drained
	Before    int              `json:"before"`
	After     int              `json:"after"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
}

// QueueStatus observed state of one queue type
type QueueStatus struct {
	QueueType      policy.QueueType    `json:"queueType"`
	Priority       int                 `json:"priority"`
	Bounds         policy.WorkerBounds `json:"bounds"`
	Ratio          policy.RatioPolicy  `json:"ratio"`
	Pending        int                 `json:"pending"`
	Claimed        int                 `json:"claimed"`
	PendingAbove   *int                `json:"pendingAbove,omitempty"`
	PendingBelow   *int                `json:"pendingBelow,omitempty"`
	CurrentWorkers *int                `json:"currentWorkers"`
	DesiredWorkers int                 `json:"desiredWorkers"`
	Phase          Phase               `json:"phase"`
	Errors         []string            `json:"errors,omitempty"`
}

// Status snapshot reported by the status API
type Status struct {
	Async        bool           `json:"async"`
	Running      bool           `json:"running"`
	LastPollTime *time.Time     `json:"lastPollTime,omitempty"`
	Queues       []QueueStatus  `json:"queues"`
	RecentEvents []ScalingEvent `json:"recentEvents"`
}
