package policy

import "fmt"

// QueueType names a class of jobs and the worker pool that serves them.
type QueueType string

// String returns the queue name
func (t QueueType) String() string {
	return string(t)
}

// RatioMode selects how a queue type converts job count into workers.
type RatioMode string

const (
	// RatioModeTable looks the desired count up in an ordered threshold table.
	RatioModeTable RatioMode = "table"
	// RatioModeScale sets desired workers equal to pending jobs, capped at max.
	RatioModeScale RatioMode = "scale"
)

// RatioRule maps a job threshold to a worker count.
// A rule applies when pending jobs >= JobThreshold.
type RatioRule struct {
	JobThreshold int `yaml:"jobs" json:"jobs"`
	WorkerCount  int `yaml:"workers" json:"workers"`
}

// RatioPolicy is the per queue type job/worker ratio.
// Rules are kept in descending JobThreshold order.
type RatioPolicy struct {
	Mode  RatioMode   `json:"mode"`
	Rules []RatioRule `json:"rules,omitempty"`
}

// ScaleToDemand returns the scale-to-demand ratio policy.
func ScaleToDemand() RatioPolicy {
	return RatioPolicy{Mode: RatioModeScale}
}

// StaticTable returns a table ratio policy. Rules may be given in any order.
func StaticTable(rules ...RatioRule) RatioPolicy {
	return RatioPolicy{Mode: RatioModeTable, Rules: sortRulesDescending(rules)}
}

// WorkerBounds floor and ceiling for a queue type's worker count.
type WorkerBounds struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (b WorkerBounds) validate() error {
	if b.Min < 0 {
		return fmt.Errorf("min_workers must be >= 0, got %d", b.Min)
	}
	if b.Max < b.Min {
		return fmt.Errorf("max_workers (%d) must be >= min_workers (%d)", b.Max, b.Min)
	}
	return nil
}

// QueueSpec is the declaration of a single queue type.
type QueueSpec struct {
	Type     QueueType
	Priority int
	Bounds   WorkerBounds
	Ratio    RatioPolicy
}

// Entry is one row of the priority table.
type Entry struct {
	QueueType QueueType `json:"queueType"`
	Priority  int       `json:"priority"`
}
