package autoscaler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tierscale/pkg/interfaces"
	"tierscale/pkg/logger"
	"tierscale/pkg/policy"
)

// TierCounter is implemented by metrics providers that can count pending
// jobs in neighbouring tiers; the status API shows the counts when available.
type TierCounter interface {
	PendingCountAbove(ctx context.Context, queueType policy.QueueType) (int, error)
	PendingCountBelow(ctx context.Context, queueType policy.QueueType) (int, error)
}

type triggerKind int

const (
	triggerEnqueued triggerKind = iota
	triggerFinished
)

func (k triggerKind) String() string {
	if k == triggerEnqueued {
		return "enqueued"
	}
	return "finished"
}

type target struct {
	queueType policy.QueueType
	kind      triggerKind
}

// ManagerOptions tunes trigger handling
type ManagerOptions struct {
	// Async queues triggers and evaluates them on a background goroutine
	Async bool
	// PollLock guards Reconcile; nil means no cross-replica guard
	PollLock DistributedLock
	// Recorder backs the recent events in Status
	Recorder *Recorder
}

// Manager owns the trigger entry points. Triggers never return errors to
// the caller; failures are logged and emitted as events by the controller.
type Manager struct {
	controller *Controller
	metrics    interfaces.QueueMetricsProvider
	fleet      interfaces.FleetProvider
	opts       ManagerOptions

	mu        sync.RWMutex
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	triggerCh chan struct{}
	lastPoll  time.Time

	queueMu        sync.Mutex
	pendingTargets map[target]struct{}
	targetOrder    []target
}

// NewManager creates a manager around controller
func NewManager(controller *Controller, metrics interfaces.QueueMetricsProvider, fleet interfaces.FleetProvider, opts ManagerOptions) *Manager {
	if opts.Recorder == nil {
		opts.Recorder = NewRecorder(defaultRecorderSize)
	}
	return &Manager{
		controller:     controller,
		metrics:        metrics,
		fleet:          fleet,
		opts:           opts,
		triggerCh:      make(chan struct{}, 1),
		pendingTargets: make(map[target]struct{}),
	}
}

// Start launches the dispatch goroutine when async dispatch is enabled
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("autoscaler is already running")
	}
	m.running = true
	if !m.opts.Async {
		logger.InfoCtx(ctx, "autoscaler started, triggers are evaluated synchronously")
		return nil
	}

	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.dispatchLoop(ctx, m.stopCh, m.doneCh)
	logger.InfoCtx(ctx, "autoscaler started, triggers are evaluated asynchronously")
	return nil
}

// Stop halts dispatch and waits for an in-flight batch to finish.
// Queued triggers that were not yet evaluated are dropped.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("autoscaler is not running")
	}
	m.running = false
	stopCh, doneCh := m.stopCh, m.doneCh
	m.stopCh, m.doneCh = nil, nil
	m.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}

	m.queueMu.Lock()
	m.pendingTargets = make(map[target]struct{})
	m.targetOrder = nil
	m.queueMu.Unlock()

	logger.Info("autoscaler stopped")
	return nil
}

// IsRunning reports whether Start was called without a matching Stop
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// OnJobEnqueued is called after a job was added to queueType
func (m *Manager) OnJobEnqueued(ctx context.Context, queueType policy.QueueType) {
	m.trigger(ctx, target{queueType: queueType, kind: triggerEnqueued})
}

// OnJobFinishedOrRemoved is called after a job of queueType completed or was deleted
func (m *Manager) OnJobFinishedOrRemoved(ctx context.Context, queueType policy.QueueType) {
	m.trigger(ctx, target{queueType: queueType, kind: triggerFinished})
}

func (m *Manager) trigger(ctx context.Context, t target) {
	if !m.controller.Policy().Has(t.queueType) {
		logger.WarnCtx(ctx, "ignoring %s trigger for undeclared queue type %s", t.kind, t.queueType)
		return
	}

	m.mu.RLock()
	async := m.opts.Async && m.running
	m.mu.RUnlock()

	if async {
		m.enqueueTarget(t)
		return
	}
	m.run(ctx, t)
}

func (m *Manager) run(ctx context.Context, t target) {
	switch t.kind {
	case triggerEnqueued:
		if _, err := m.controller.EvaluateHire(ctx, t.queueType); err != nil {
			logger.WarnCtx(ctx, "hire evaluation for %s skipped: %v", t.queueType, err)
		}
	case triggerFinished:
		if _, err := m.controller.EvaluateFire(ctx, t.queueType); err != nil {
			logger.WarnCtx(ctx, "fire evaluation for %s incomplete: %v", t.queueType, err)
		}
	}
}

// enqueueTarget records t once until the dispatch loop picks it up
func (m *Manager) enqueueTarget(t target) {
	m.queueMu.Lock()
	if _, exists := m.pendingTargets[t]; !exists {
		m.pendingTargets[t] = struct{}{}
		m.targetOrder = append(m.targetOrder, t)
	}
	m.queueMu.Unlock()

	select {
	case m.triggerCh <- struct{}{}:
	default:
	}
}

func (m *Manager) collectTargets() []target {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()

	targets := m.targetOrder
	m.targetOrder = nil
	for _, t := range targets {
		delete(m.pendingTargets, t)
	}
	return targets
}

func (m *Manager) dispatchLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-m.triggerCh:
			for _, t := range m.collectTargets() {
				runCtx := logger.WithTraceID(context.Background(), uuid.NewString())
				m.run(runCtx, t)
			}
		}
	}
}

// Reconcile re-evaluates every queue type if this replica wins the poll lock
func (m *Manager) Reconcile(ctx context.Context) error {
	if m.opts.PollLock == nil {
		m.ReconcileAll(ctx)
		return nil
	}
	ran, err := WithLock(ctx, m.opts.PollLock, m.ReconcileAll)
	if err != nil {
		return fmt.Errorf("failed to acquire poll lock: %w", err)
	}
	if !ran {
		logger.DebugCtx(ctx, "poll lock held by another replica, skipping reconcile")
	}
	return nil
}

// ReconcileAll runs hire then fire for every declared queue type, in
// declaration order. It catches triggers that were missed or failed.
func (m *Manager) ReconcileAll(ctx context.Context) {
	m.mu.Lock()
	m.lastPoll = time.Now()
	m.mu.Unlock()

	for _, queueType := range m.controller.Policy().QueueTypes() {
		m.run(ctx, target{queueType: queueType, kind: triggerEnqueued})
		m.run(ctx, target{queueType: queueType, kind: triggerFinished})
	}
}

// RecentEvents returns up to limit recorded events, newest first
func (m *Manager) RecentEvents(limit int) []ScalingEvent {
	return m.opts.Recorder.Recent(limit)
}

// QueueStatus observes a single queue type without changing anything
func (m *Manager) QueueStatus(ctx context.Context, queueType policy.QueueType) (QueueStatus, error) {
	spec, err := m.controller.Policy().Lookup(queueType)
	if err != nil {
		return QueueStatus{}, err
	}

	status := QueueStatus{
		QueueType: queueType,
		Priority:  spec.Priority,
		Bounds:    spec.Bounds,
		Ratio:     spec.Ratio,
	}

	pendingKnown := true
	if status.Pending, err = m.metrics.PendingCount(ctx, queueType); err != nil {
		pendingKnown = false
		status.Errors = append(status.Errors, fmt.Sprintf("pending: %v", err))
	}
	if status.Claimed, err = m.metrics.ClaimedCount(ctx, queueType); err != nil {
		status.Errors = append(status.Errors, fmt.Sprintf("claimed: %v", err))
	}
	if counter, ok := m.metrics.(TierCounter); ok {
		if above, err := counter.PendingCountAbove(ctx, queueType); err == nil {
			status.PendingAbove = &above
		} else {
			status.Errors = append(status.Errors, fmt.Sprintf("pending above: %v", err))
		}
		if below, err := counter.PendingCountBelow(ctx, queueType); err == nil {
			status.PendingBelow = &below
		} else {
			status.Errors = append(status.Errors, fmt.Sprintf("pending below: %v", err))
		}
	}

	status.DesiredWorkers = policy.DesiredWorkers(spec.Ratio, spec.Bounds, status.Pending)

	workers, ok := m.fleet.CurrentWorkers(ctx, queueType)
	if !ok {
		status.Phase = PhaseUnknown
		status.Errors = append(status.Errors, "current workers unavailable")
		return status, nil
	}
	status.CurrentWorkers = &workers
	if !pendingKnown {
		status.Phase = PhaseUnknown
		return status, nil
	}
	status.Phase = PhaseOf(status.Pending, workers, status.DesiredWorkers, spec.Bounds)
	return status, nil
}

// Status observes every queue type and attaches recent events
func (m *Manager) Status(ctx context.Context, eventLimit int) Status {
	m.mu.RLock()
	status := Status{
		Async:   m.opts.Async,
		Running: m.running,
	}
	if !m.lastPoll.IsZero() {
		lastPoll := m.lastPoll
		status.LastPollTime = &lastPoll
	}
	m.mu.RUnlock()

	queueTypes := m.controller.Policy().QueueTypes()
	status.Queues = make([]QueueStatus, 0, len(queueTypes))
	for _, queueType := range queueTypes {
		qs, err := m.QueueStatus(ctx, queueType)
		if err != nil {
			continue
		}
		status.Queues = append(status.Queues, qs)
	}
	status.RecentEvents = m.RecentEvents(eventLimit)
	return status
}
