package autoscaler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tierscale/pkg/policy"
)

func TestEvaluateHire_StaticRatio(t *testing.T) {
	h := newHarness(t)
	h.metrics.setPending("default", 60)

	decision, err := h.controller.EvaluateHire(context.Background(), "default")
	require.NoError(t, err)

	assert.Equal(t, ActionHire, decision.Action)
	assert.Equal(t, 0, decision.Before)
	assert.Equal(t, 2, decision.After)
	assert.Equal(t, 60, decision.Pending)
	assert.Equal(t, []setCall{{"default", 2}}, h.fleet.setCalls())

	hires := h.sink.ofType(EventHire)
	require.Len(t, hires, 1)
	assert.Equal(t, "Hiring more default workers so we have 2 in total", hires[0].Message)
	assert.NotEmpty(t, hires[0].ID)
	assert.False(t, hires[0].Timestamp.IsZero())
}

func TestEvaluateHire_ScaleToDemand(t *testing.T) {
	h := newHarness(t)
	h.metrics.setPending("bulk", 3)
	h.fleet.setWorkers("bulk", 1)

	decision, err := h.controller.EvaluateHire(context.Background(), "bulk")
	require.NoError(t, err)

	assert.True(t, decision.Hired())
	assert.Equal(t, []setCall{{"bulk", 3}}, h.fleet.setCalls())
}

func TestEvaluateHire_CappedAtMax(t *testing.T) {
	h := newHarness(t)
	h.metrics.setPending("default", 5000)

	_, err := h.controller.EvaluateHire(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, []setCall{{"default", 3}}, h.fleet.setCalls())
}

func TestEvaluateHire_NoAction(t *testing.T) {
	tests := []struct {
		name    string
		pending int
		workers int
		reason  string
	}{
		{name: "no pending jobs", pending: 0, workers: 0},
		{name: "below smallest threshold", pending: 19, workers: 0},
		{name: "already staffed", pending: 60, workers: 2},
		{name: "never decreases", pending: 25, workers: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.metrics.setPending("default", tt.pending)
			h.fleet.setWorkers("default", tt.workers)

			decision, err := h.controller.EvaluateHire(context.Background(), "default")
			require.NoError(t, err)
			assert.Equal(t, ActionNone, decision.Action)
			assert.Equal(t, tt.workers, decision.After)
			assert.Empty(t, h.fleet.setCalls())
			assert.Empty(t, h.sink.types())
		})
	}
}

func TestEvaluateHire_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.metrics.setPending("default", 60)
	ctx := context.Background()

	first, err := h.controller.EvaluateHire(ctx, "default")
	require.NoError(t, err)
	second, err := h.controller.EvaluateHire(ctx, "default")
	require.NoError(t, err)

	assert.True(t, first.Hired())
	assert.False(t, second.Hired())
	assert.Len(t, h.fleet.setCalls(), 1)
}

func TestEvaluateHire_FleetReadFailure(t *testing.T) {
	h := newHarness(t)
	h.metrics.setPending("default", 60)
	h.fleet.readFails["default"] = true

	decision, err := h.controller.EvaluateHire(context.Background(), "default")
	require.NoError(t, err)

	assert.Equal(t, ActionNone, decision.Action)
	assert.Equal(t, "current workers unavailable", decision.Reason)
	assert.Empty(t, h.fleet.setCalls())
	assert.Equal(t, []EventType{EventProviderFailure}, h.sink.types())
}

func TestEvaluateHire_FleetSetFailure(t *testing.T) {
	h := newHarness(t)
	h.metrics.setPending("default", 60)
	h.fleet.setFails["default"] = true

	decision, err := h.controller.EvaluateHire(context.Background(), "default")
	require.NoError(t, err)

	assert.Equal(t, ActionNone, decision.Action)
	assert.Equal(t, 0, decision.After)
	assert.Equal(t, []EventType{EventProviderFailure}, h.sink.types())
}

func TestEvaluateHire_MetricsFailure(t *testing.T) {
	h := newHarness(t)
	h.metrics.failing = true

	_, err := h.controller.EvaluateHire(context.Background(), "default")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errStorage))

	assert.Zero(t, h.fleet.readCalls)
	assert.Empty(t, h.fleet.setCalls())
	failures := h.sink.ofType(EventProviderFailure)
	require.Len(t, failures, 1)
	assert.Equal(t, policy.QueueType("default"), failures[0].QueueType)
}

func TestEvaluate_UnknownQueueType(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.controller.EvaluateHire(ctx, "ghost")
	assert.ErrorIs(t, err, policy.ErrUnknownQueueType)

	fired, err := h.controller.EvaluateFire(ctx, "ghost")
	assert.ErrorIs(t, err, policy.ErrUnknownQueueType)
	assert.False(t, fired)

	assert.Zero(t, h.metrics.calls)
	assert.Zero(t, h.fleet.readCalls)
}

func TestEvaluateFire_FireAndCascade(t *testing.T) {
	h := newHarness(t)
	h.fleet.setWorkers("critical", 2)
	h.metrics.setPending("default", 60)

	fired, err := h.controller.EvaluateFire(context.Background(), "critical")
	require.NoError(t, err)
	assert.True(t, fired)

	assert.Equal(t, []setCall{{"critical", 0}, {"default", 2}}, h.fleet.setCalls())
	assert.Equal(t, []EventType{EventFire, EventHire, EventCascade}, h.sink.types())

	fires := h.sink.ofType(EventFire)
	assert.Equal(t, "All queued jobs in critical have been processed. Firing all workers.", fires[0].Message)

	cascades := h.sink.ofType(EventCascade)
	assert.Equal(t, policy.QueueType("critical"), cascades[0].Source)
	assert.Equal(t, policy.QueueType("default"), cascades[0].QueueType)
	assert.Equal(t, 0, cascades[0].Before)
	assert.Equal(t, 2, cascades[0].After)
}

func TestEvaluateFire_CascadeWithoutHire(t *testing.T) {
	tests := []struct {
		name    string
		pending int
		setFail bool
	}{
		// default's smallest threshold is 20
		{name: "below smallest threshold", pending: 5},
		{name: "fleet rejects scale", pending: 60, setFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.fleet.setWorkers("critical", 2)
			h.metrics.setPending("default", tt.pending)
			h.fleet.setFails["default"] = tt.setFail

			fired, err := h.controller.EvaluateFire(context.Background(), "critical")
			require.NoError(t, err)
			assert.True(t, fired)

			assert.Equal(t, []setCall{{"critical", 0}}, h.fleet.setCalls())
			assert.Zero(t, h.fleet.current("default"))
			assert.Empty(t, h.sink.ofType(EventCascade))
			assert.Empty(t, h.sink.ofType(EventHire))
		})
	}
}

func TestEvaluateFire_SiblingStillBusy(t *testing.T) {
	h := newHarness(t)
	h.fleet.setWorkers("critical", 2)
	h.metrics.setPending("mailers", 5)
	h.metrics.setPending("default", 60)

	fired, err := h.controller.EvaluateFire(context.Background(), "critical")
	require.NoError(t, err)
	assert.True(t, fired)

	assert.Equal(t, []setCall{{"critical", 0}}, h.fleet.setCalls())
	assert.Empty(t, h.sink.ofType(EventCascade))
}

func TestEvaluateFire_SingleCascadeStep(t *testing.T) {
	h := newHarness(t)
	h.fleet.setWorkers("critical", 2)
	h.metrics.setPending("default", 60)
	h.metrics.setPending("bulk", 4)

	_, err := h.controller.EvaluateFire(context.Background(), "critical")
	require.NoError(t, err)

	// priority 3 is left alone even though it has work
	assert.Equal(t, []setCall{{"critical", 0}, {"default", 2}}, h.fleet.setCalls())
	assert.Zero(t, h.fleet.current("bulk"))
}

func TestEvaluateFire_CascadeSkipsEmptyTier(t *testing.T) {
	h := newHarness(t)
	h.fleet.setWorkers("critical", 2)
	h.metrics.setPending("bulk", 4)

	_, err := h.controller.EvaluateFire(context.Background(), "critical")
	require.NoError(t, err)

	assert.Equal(t, []setCall{{"critical", 0}, {"bulk", 4}}, h.fleet.setCalls())
}

func TestEvaluateFire_CascadeOrderAndStaffedTargets(t *testing.T) {
	h := newHarness(t)
	now := time.Now()
	h.fleet.setWorkers("default", 3)
	h.metrics.setPending("reports", 2)
	h.metrics.setPending("bulk", 4)
	h.metrics.readyAt["reports"] = now
	h.metrics.readyAt["bulk"] = now.Add(-time.Minute)

	fired, err := h.controller.EvaluateFire(context.Background(), "default")
	require.NoError(t, err)
	assert.True(t, fired)

	assert.Equal(t, []setCall{{"default", 0}, {"bulk", 4}, {"reports", 2}}, h.fleet.setCalls())

	// a second drain does not re-cascade into already staffed types
	h.fleet.setWorkers("default", 1)
	_, err = h.controller.EvaluateFire(context.Background(), "default")
	require.NoError(t, err)
	assert.Len(t, h.fleet.setCalls(), 4)
}

func TestEvaluateFire_NoAction(t *testing.T) {
	tests := []struct {
		name     string
		queue    policy.QueueType
		pending  int
		workers  int
		readFail bool
	}{
		{name: "jobs still pending", queue: "critical", pending: 1, workers: 2},
		{name: "already at zero", queue: "critical", workers: 0},
		{name: "already at floor", queue: "reports", workers: 1},
		{name: "below floor", queue: "reports", workers: 0},
		{name: "fleet unavailable", queue: "critical", workers: 2, readFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.metrics.setPending(tt.queue, tt.pending)
			h.fleet.setWorkers(tt.queue, tt.workers)
			h.fleet.readFails[tt.queue] = tt.readFail
			h.metrics.setPending("bulk", 10)

			fired, err := h.controller.EvaluateFire(context.Background(), tt.queue)
			require.NoError(t, err)
			assert.False(t, fired)
			assert.Empty(t, h.fleet.setCalls())
		})
	}
}

func TestEvaluateFire_SetsFloor(t *testing.T) {
	h := newHarness(t)
	h.fleet.setWorkers("reports", 4)

	fired, err := h.controller.EvaluateFire(context.Background(), "reports")
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Equal(t, []setCall{{"reports", 1}}, h.fleet.setCalls())

	fires := h.sink.ofType(EventFire)
	require.Len(t, fires, 1)
	assert.Equal(t, "All queued jobs in reports have been processed. Setting workers to 1.", fires[0].Message)
	assert.Equal(t, 4, fires[0].Before)
	assert.Equal(t, 1, fires[0].After)
}

func TestEvaluateFire_SetFailure(t *testing.T) {
	h := newHarness(t)
	h.fleet.setWorkers("critical", 2)
	h.fleet.setFails["critical"] = true
	h.metrics.setPending("default", 60)

	fired, err := h.controller.EvaluateFire(context.Background(), "critical")
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Empty(t, h.fleet.setCalls())
	assert.Equal(t, []EventType{EventProviderFailure}, h.sink.types())
}

func TestEvaluateFire_CascadeMetricsFailure(t *testing.T) {
	h := newHarness(t)
	h.fleet.setWorkers("critical", 2)
	h.metrics.failTier = true

	fired, err := h.controller.EvaluateFire(context.Background(), "critical")
	assert.True(t, fired)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errStorage))
	assert.Equal(t, []EventType{EventFire, EventProviderFailure}, h.sink.types())
}

func TestPhaseOf(t *testing.T) {
	bounds := policy.WorkerBounds{Min: 1, Max: 5}
	assert.Equal(t, PhaseIdle, PhaseOf(0, 1, 0, bounds))
	assert.Equal(t, PhaseIdle, PhaseOf(0, 0, 0, bounds))
	assert.Equal(t, PhaseStaffing, PhaseOf(10, 1, 5, bounds))
	assert.Equal(t, PhaseActive, PhaseOf(10, 5, 5, bounds))
	assert.Equal(t, PhaseDraining, PhaseOf(0, 3, 0, bounds))
}
