package autoscaler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tierscale/pkg/interfaces"
	"tierscale/pkg/policy"
)

var errStorage = errors.New("storage unavailable")

// fakeMetrics answers from in-memory counters; readyAt orders cascade targets
type fakeMetrics struct {
	mu       sync.Mutex
	policy   *policy.Policy
	pending  map[policy.QueueType]int
	claimed  map[policy.QueueType]int
	readyAt  map[policy.QueueType]time.Time
	failing  bool
	failTier bool
	calls    int
}

func newFakeMetrics(p *policy.Policy) *fakeMetrics {
	return &fakeMetrics{
		policy:  p,
		pending: make(map[policy.QueueType]int),
		claimed: make(map[policy.QueueType]int),
		readyAt: make(map[policy.QueueType]time.Time),
	}
}

func (f *fakeMetrics) setPending(t policy.QueueType, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[t] = n
}

func (f *fakeMetrics) PendingCount(_ context.Context, t policy.QueueType) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failing {
		return 0, errStorage
	}
	return f.pending[t], nil
}

func (f *fakeMetrics) ClaimedCount(_ context.Context, t policy.QueueType) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return 0, errStorage
	}
	return f.claimed[t], nil
}

func (f *fakeMetrics) PendingCountAtPriority(_ context.Context, priority int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing || f.failTier {
		return 0, errStorage
	}
	total := 0
	for _, t := range f.policy.QueueTypesAt(priority) {
		total += f.pending[t]
	}
	return total, nil
}

func (f *fakeMetrics) PendingQueueTypesBelow(_ context.Context, priority int) ([]policy.QueueType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing || f.failTier {
		return nil, errStorage
	}
	for _, tier := range f.policy.TiersBelow(priority) {
		var types []policy.QueueType
		for _, t := range f.policy.QueueTypesAt(tier) {
			if f.pending[t] > 0 {
				types = append(types, t)
			}
		}
		if len(types) == 0 {
			continue
		}
		sort.SliceStable(types, func(i, j int) bool {
			return f.readyAt[types[i]].Before(f.readyAt[types[j]])
		})
		return types, nil
	}
	return nil, nil
}

func (f *fakeMetrics) Close() error { return nil }

type setCall struct {
	QueueType policy.QueueType
	Count     int
}

// fakeFleet is a FleetProvider; unavailable types report absent results
type fakeFleet struct {
	mu        sync.Mutex
	workers   map[policy.QueueType]int
	readFails map[policy.QueueType]bool
	setFails  map[policy.QueueType]bool
	sets      []setCall
	readCalls int
}

func newFakeFleet() *fakeFleet {
	return &fakeFleet{
		workers:   make(map[policy.QueueType]int),
		readFails: make(map[policy.QueueType]bool),
		setFails:  make(map[policy.QueueType]bool),
	}
}

func (f *fakeFleet) setWorkers(t policy.QueueType, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workers[t] = n
}

func (f *fakeFleet) CurrentWorkers(_ context.Context, t policy.QueueType) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls++
	if f.readFails[t] {
		return 0, false
	}
	return f.workers[t], true
}

func (f *fakeFleet) SetWorkers(_ context.Context, t policy.QueueType, n int) (interfaces.Ack, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setFails[t] {
		return interfaces.Ack{}, false
	}
	f.sets = append(f.sets, setCall{QueueType: t, Count: n})
	f.workers[t] = n
	return interfaces.Ack{QueueType: t, Requested: n, AcceptedAt: time.Now()}, true
}

func (f *fakeFleet) setCalls() []setCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]setCall(nil), f.sets...)
}

func (f *fakeFleet) current(t policy.QueueType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workers[t]
}

// capturingSink records emitted events
type capturingSink struct {
	mu     sync.Mutex
	events []ScalingEvent
}

func (s *capturingSink) Emit(_ context.Context, event ScalingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *capturingSink) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

func (s *capturingSink) ofType(t EventType) []ScalingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ScalingEvent
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// tieredPolicy declares:
//
//	priority 1: critical (scale, 0..3), mailers (scale, 0..2)
//	priority 2: default (table 20/50/100 -> 1/2/3, 0..3)
//	priority 3: reports (scale, 1..5), bulk (scale, 0..5)
func tieredPolicy(t *testing.T) *policy.Policy {
	t.Helper()
	p, err := policy.New([]policy.QueueSpec{
		{Type: "critical", Priority: 1, Bounds: policy.WorkerBounds{Min: 0, Max: 3}, Ratio: policy.ScaleToDemand()},
		{Type: "mailers", Priority: 1, Bounds: policy.WorkerBounds{Min: 0, Max: 2}, Ratio: policy.ScaleToDemand()},
		{Type: "default", Priority: 2, Bounds: policy.WorkerBounds{Min: 0, Max: 3}, Ratio: policy.StaticTable(
			policy.RatioRule{JobThreshold: 20, WorkerCount: 1},
			policy.RatioRule{JobThreshold: 50, WorkerCount: 2},
			policy.RatioRule{JobThreshold: 100, WorkerCount: 3},
		)},
		{Type: "reports", Priority: 3, Bounds: policy.WorkerBounds{Min: 1, Max: 5}, Ratio: policy.ScaleToDemand()},
		{Type: "bulk", Priority: 3, Bounds: policy.WorkerBounds{Min: 0, Max: 5}, Ratio: policy.ScaleToDemand()},
	})
	require.NoError(t, err)
	return p
}

type harness struct {
	policy     *policy.Policy
	metrics    *fakeMetrics
	fleet      *fakeFleet
	sink       *capturingSink
	controller *Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	p := tieredPolicy(t)
	h := &harness{
		policy:  p,
		metrics: newFakeMetrics(p),
		fleet:   newFakeFleet(),
		sink:    &capturingSink{},
	}
	h.controller = NewController(p, h.metrics, h.fleet, h.sink)
	return h
}
