package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"tierscale/pkg/policy"
)

// ScalingConfig is the scaling policy as written in the config file:
//
//	scaling:
//	  max_workers: 5
//	  min_workers: 0
//	  worker_priority:
//	    critical: 1
//	    default: 2
//	  job_worker_ratio:
//	    critical: scale
//	    default:
//	      - { jobs: 1, workers: 1 }
//	      - { jobs: 15, workers: 2 }
//	  bounds:
//	    critical: { min: 0, max: 10 }
//
// worker_priority keeps its key order; it breaks ties between equal priorities.
type ScalingConfig struct {
	MaxWorkers     int                     `yaml:"max_workers"`
	MinWorkers     int                     `yaml:"min_workers"`
	WorkerPriority WorkerPriority          `yaml:"worker_priority"`
	JobWorkerRatio map[string]RatioSpec    `yaml:"job_worker_ratio"`
	Bounds         map[string]BoundsConfig `yaml:"bounds"`
}

// BoundsConfig per queue type override of the global worker bounds
type BoundsConfig struct {
	Min *int `yaml:"min"`
	Max *int `yaml:"max"`
}

// PriorityEntry one worker_priority row
type PriorityEntry struct {
	QueueType string
	Priority  int
}

// WorkerPriority is an ordered queue type -> priority mapping
type WorkerPriority []PriorityEntry

// UnmarshalYAML decodes a mapping node while keeping key order
func (w *WorkerPriority) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("worker_priority must be a mapping (line %d)", node.Line)
	}

	entries := make(WorkerPriority, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var priority int
		if err := value.Decode(&priority); err != nil {
			return fmt.Errorf("worker_priority.%s: %w", key.Value, err)
		}
		entries = append(entries, PriorityEntry{QueueType: key.Value, Priority: priority})
	}
	*w = entries
	return nil
}

// RatioSpec is either the scalar "scale" or a list of {jobs, workers} rules
type RatioSpec struct {
	Scale bool
	Rules []policy.RatioRule
}

// UnmarshalYAML accepts "scale" or a sequence of rules
func (r *RatioSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if strings.EqualFold(strings.TrimSpace(node.Value), string(policy.RatioModeScale)) {
			r.Scale = true
			return nil
		}
		return fmt.Errorf("unsupported job_worker_ratio %q (line %d), expected \"scale\" or a rule list", node.Value, node.Line)
	case yaml.SequenceNode:
		var rules []policy.RatioRule
		if err := node.Decode(&rules); err != nil {
			return err
		}
		r.Rules = rules
		return nil
	default:
		return fmt.Errorf("unsupported job_worker_ratio (line %d)", node.Line)
	}
}

func (r RatioSpec) toPolicy() policy.RatioPolicy {
	if r.Scale {
		return policy.ScaleToDemand()
	}
	return policy.RatioPolicy{Mode: policy.RatioModeTable, Rules: r.Rules}
}

// Policy converts the file representation into a validated policy.Policy.
// Every queue type must have a priority and a ratio; bounds fall back to the
// global max_workers/min_workers.
func (s ScalingConfig) Policy() (*policy.Policy, error) {
	if len(s.WorkerPriority) == 0 {
		return nil, fmt.Errorf("scaling.worker_priority must declare at least one queue type")
	}

	declared := make(map[string]struct{}, len(s.WorkerPriority))
	specs := make([]policy.QueueSpec, 0, len(s.WorkerPriority))
	for _, entry := range s.WorkerPriority {
		declared[entry.QueueType] = struct{}{}

		ratio, ok := s.JobWorkerRatio[entry.QueueType]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no job_worker_ratio", policy.ErrUnknownQueueType, entry.QueueType)
		}

		bounds := policy.WorkerBounds{Min: s.MinWorkers, Max: s.MaxWorkers}
		if override, ok := s.Bounds[entry.QueueType]; ok {
			if override.Min != nil {
				bounds.Min = *override.Min
			}
			if override.Max != nil {
				bounds.Max = *override.Max
			}
		}

		specs = append(specs, policy.QueueSpec{
			Type:     policy.QueueType(entry.QueueType),
			Priority: entry.Priority,
			Bounds:   bounds,
			Ratio:    ratio.toPolicy(),
		})
	}

	for name := range s.JobWorkerRatio {
		if _, ok := declared[name]; !ok {
			return nil, fmt.Errorf("%w: job_worker_ratio.%s has no worker_priority", policy.ErrUnknownQueueType, name)
		}
	}
	for name := range s.Bounds {
		if _, ok := declared[name]; !ok {
			return nil, fmt.Errorf("%w: bounds.%s has no worker_priority", policy.ErrUnknownQueueType, name)
		}
	}

	return policy.New(specs)
}
