package policy

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownQueueType is returned when a queue type has no declaration.
	ErrUnknownQueueType = errors.New("unknown queue type")
	// ErrDuplicateQueueType is returned when a queue type is declared twice.
	ErrDuplicateQueueType = errors.New("duplicate queue type")
	// ErrInvalidRatio is returned for malformed ratio tables.
	ErrInvalidRatio = errors.New("invalid job/worker ratio")
)

// Policy is the immutable scaling policy: priority table, worker bounds
// and ratio policy for every declared queue type.
// It is safe for concurrent use because nothing mutates it after New.
type Policy struct {
	order   []QueueType
	queues  map[QueueType]QueueSpec
	tiers   []int
	byTier  map[int][]QueueType
	maxPrio int
}

// New validates the declarations and builds a Policy.
// Declaration order is kept and breaks ties between equal priorities.
func New(specs []QueueSpec) (*Policy, error) {
	if len(specs) == 0 {
		return nil, errors.New("at least one queue type must be declared")
	}

	p := &Policy{
		order:  make([]QueueType, 0, len(specs)),
		queues: make(map[QueueType]QueueSpec, len(specs)),
		byTier: make(map[int][]QueueType),
	}

	for i, spec := range specs {
		if spec.Type == "" {
			return nil, fmt.Errorf("queue declaration %d: empty queue type", i)
		}
		if _, exists := p.queues[spec.Type]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateQueueType, spec.Type)
		}
		if err := spec.Bounds.validate(); err != nil {
			return nil, fmt.Errorf("queue %s: %w", spec.Type, err)
		}
		ratio, err := normalizeRatio(spec.Ratio)
		if err != nil {
			return nil, fmt.Errorf("queue %s: %w", spec.Type, err)
		}
		spec.Ratio = ratio

		p.order = append(p.order, spec.Type)
		p.queues[spec.Type] = spec
		if _, seen := p.byTier[spec.Priority]; !seen {
			p.tiers = append(p.tiers, spec.Priority)
		}
		p.byTier[spec.Priority] = append(p.byTier[spec.Priority], spec.Type)
	}

	sort.Ints(p.tiers)
	p.maxPrio = p.tiers[len(p.tiers)-1]
	return p, nil
}

func normalizeRatio(r RatioPolicy) (RatioPolicy, error) {
	switch r.Mode {
	case RatioModeScale:
		return RatioPolicy{Mode: RatioModeScale}, nil
	case RatioModeTable, "":
		seen := make(map[int]struct{}, len(r.Rules))
		for _, rule := range r.Rules {
			if rule.JobThreshold <= 0 {
				return RatioPolicy{}, fmt.Errorf("%w: job threshold must be > 0, got %d", ErrInvalidRatio, rule.JobThreshold)
			}
			if rule.WorkerCount < 0 {
				return RatioPolicy{}, fmt.Errorf("%w: worker count must be >= 0, got %d", ErrInvalidRatio, rule.WorkerCount)
			}
			if _, dup := seen[rule.JobThreshold]; dup {
				return RatioPolicy{}, fmt.Errorf("%w: duplicate job threshold %d", ErrInvalidRatio, rule.JobThreshold)
			}
			seen[rule.JobThreshold] = struct{}{}
		}
		return RatioPolicy{Mode: RatioModeTable, Rules: sortRulesDescending(r.Rules)}, nil
	default:
		return RatioPolicy{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidRatio, r.Mode)
	}
}

func sortRulesDescending(rules []RatioRule) []RatioRule {
	sorted := append([]RatioRule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].JobThreshold > sorted[j].JobThreshold
	})
	return sorted
}

// Lookup returns the declaration for t.
func (p *Policy) Lookup(t QueueType) (QueueSpec, error) {
	spec, ok := p.queues[t]
	if !ok {
		return QueueSpec{}, fmt.Errorf("%w: %s", ErrUnknownQueueType, t)
	}
	return spec, nil
}

// Has reports whether t is declared.
func (p *Policy) Has(t QueueType) bool {
	_, ok := p.queues[t]
	return ok
}

// QueueTypes returns all declared queue types in declaration order.
func (p *Policy) QueueTypes() []QueueType {
	return append([]QueueType(nil), p.order...)
}

// Entries returns the priority table in declaration order.
func (p *Policy) Entries() []Entry {
	entries := make([]Entry, 0, len(p.order))
	for _, t := range p.order {
		entries = append(entries, Entry{QueueType: t, Priority: p.queues[t].Priority})
	}
	return entries
}

// Tiers returns the distinct declared priorities, highest precedence first.
func (p *Policy) Tiers() []int {
	return append([]int(nil), p.tiers...)
}

// MaxPriority is the numerically largest (lowest precedence) priority.
func (p *Policy) MaxPriority() int {
	return p.maxPrio
}

// QueueTypesAt returns the queue types declared at priority, in declaration order.
func (p *Policy) QueueTypesAt(priority int) []QueueType {
	return append([]QueueType(nil), p.byTier[priority]...)
}

// TiersBelow returns the declared priorities strictly lower in precedence
// than priority, nearest first.
func (p *Policy) TiersBelow(priority int) []int {
	below := make([]int, 0, len(p.tiers))
	for _, tier := range p.tiers {
		if tier > priority {
			below = append(below, tier)
		}
	}
	return below
}

// TiersAbove returns the declared priorities strictly higher in precedence
// than priority.
func (p *Policy) TiersAbove(priority int) []int {
	above := make([]int, 0, len(p.tiers))
	for _, tier := range p.tiers {
		if tier < priority {
			above = append(above, tier)
		}
	}
	return above
}

// Desired converts a pending job count into a desired worker count for t.
func (p *Policy) Desired(t QueueType, pending int) (int, error) {
	spec, err := p.Lookup(t)
	if err != nil {
		return 0, err
	}
	return DesiredWorkers(spec.Ratio, spec.Bounds, pending), nil
}

// DesiredWorkers applies a ratio policy to a pending job count.
//
// Table mode picks the first rule (highest threshold first) whose threshold
// is reached, capped at max. Exceeding the highest declared threshold yields
// max. Below the smallest threshold, or with an empty table, the result is 0.
// Scale mode yields min(pending, max).
func DesiredWorkers(ratio RatioPolicy, bounds WorkerBounds, pending int) int {
	if pending < 0 {
		pending = 0
	}

	if ratio.Mode == RatioModeScale {
		return minInt(pending, bounds.Max)
	}

	if len(ratio.Rules) == 0 {
		return 0
	}

	if pending > ratio.Rules[0].JobThreshold {
		return bounds.Max
	}

	for _, rule := range ratio.Rules {
		if rule.JobThreshold <= pending {
			return minInt(rule.WorkerCount, bounds.Max)
		}
	}
	return 0
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
