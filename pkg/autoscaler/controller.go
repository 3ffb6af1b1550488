package autoscaler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tierscale/pkg/interfaces"
	"tierscale/pkg/logger"
	"tierscale/pkg/policy"
)

// Controller turns queue depth into worker counts, one queue type per call.
// It keeps no state between calls besides the immutable policy, so
// evaluations for different queue types may run concurrently.
type Controller struct {
	policy  *policy.Policy
	metrics interfaces.QueueMetricsProvider
	fleet   interfaces.FleetProvider
	sink    EventSink
	now     func() time.Time
}

// NewController creates a controller. A nil sink discards events.
func NewController(p *policy.Policy, metrics interfaces.QueueMetricsProvider, fleet interfaces.FleetProvider, sink EventSink) *Controller {
	if sink == nil {
		sink = MultiSink(nil)
	}
	return &Controller{
		policy:  p,
		metrics: metrics,
		fleet:   fleet,
		sink:    sink,
		now:     time.Now,
	}
}

// Policy returns the policy the controller evaluates against
func (c *Controller) Policy() *policy.Policy {
	return c.policy
}

// EvaluateHire raises the worker count of queueType when pending work
// calls for more workers than are running. It never lowers the count.
func (c *Controller) EvaluateHire(ctx context.Context, queueType policy.QueueType) (Decision, error) {
	decision := Decision{QueueType: queueType, Action: ActionNone}

	spec, err := c.policy.Lookup(queueType)
	if err != nil {
		return decision, err
	}

	pending, err := c.metrics.PendingCount(ctx, queueType)
	if err != nil {
		c.providerFailure(ctx, queueType, "pending count", err)
		return decision, fmt.Errorf("pending count for %s: %w", queueType, err)
	}
	decision.Pending = pending

	current, ok := c.fleet.CurrentWorkers(ctx, queueType)
	if !ok {
		decision.Reason = "current workers unavailable"
		c.fleetFailure(ctx, queueType, decision.Reason, 0)
		return decision, nil
	}
	decision.Before = current
	decision.After = current

	desired := policy.DesiredWorkers(spec.Ratio, spec.Bounds, pending)
	decision.Desired = desired

	if pending <= 0 || current >= desired {
		return decision, nil
	}

	if _, ok := c.fleet.SetWorkers(ctx, queueType, desired); !ok {
		decision.Reason = "set workers rejected"
		c.fleetFailure(ctx, queueType, decision.Reason, current)
		return decision, nil
	}

	decision.Action = ActionHire
	decision.After = desired
	msg := fmt.Sprintf("Hiring more %s workers so we have %d in total", queueType, desired)
	logger.InfoCtx(ctx, "%s (before: %d, pending: %d)", msg, current, pending)
	c.emit(ctx, ScalingEvent{
		Type:      EventHire,
		QueueType: queueType,
		Before:    current,
		After:     desired,
		Message:   msg,
	})
	return decision, nil
}

// EvaluateFire scales queueType down to its minimum once its queue is empty,
// then hands staffing to the next tier that has work. It reports whether
// workers were fired; fired may be true together with an error from the
// cascade step.
func (c *Controller) EvaluateFire(ctx context.Context, queueType policy.QueueType) (bool, error) {
	spec, err := c.policy.Lookup(queueType)
	if err != nil {
		return false, err
	}

	pending, err := c.metrics.PendingCount(ctx, queueType)
	if err != nil {
		c.providerFailure(ctx, queueType, "pending count", err)
		return false, fmt.Errorf("pending count for %s: %w", queueType, err)
	}
	if pending != 0 {
		return false, nil
	}

	current, ok := c.fleet.CurrentWorkers(ctx, queueType)
	if !ok {
		c.fleetFailure(ctx, queueType, "current workers unavailable", 0)
		return false, nil
	}
	floor := spec.Bounds.Min
	if current <= floor {
		return false, nil
	}

	if _, ok := c.fleet.SetWorkers(ctx, queueType, floor); !ok {
		c.fleetFailure(ctx, queueType, "set workers rejected", current)
		return false, nil
	}

	msg := fmt.Sprintf("All queued jobs in %s have been processed. Firing all workers.", queueType)
	if floor > 0 {
		msg = fmt.Sprintf("All queued jobs in %s have been processed. Setting workers to %d.", queueType, floor)
	}
	logger.InfoCtx(ctx, "%s (before: %d)", msg, current)
	c.emit(ctx, ScalingEvent{
		Type:      EventFire,
		QueueType: queueType,
		Before:    current,
		After:     floor,
		Message:   msg,
	})

	return true, c.cascade(ctx, spec)
}

// cascade staffs the nearest lower tier with work, one step only.
// Nothing happens while any queue type in the drained tier still has work.
func (c *Controller) cascade(ctx context.Context, drained policy.QueueSpec) error {
	samePriority, err := c.metrics.PendingCountAtPriority(ctx, drained.Priority)
	if err != nil {
		c.providerFailure(ctx, drained.Type, "pending count at priority", err)
		return fmt.Errorf("pending count at priority %d: %w", drained.Priority, err)
	}
	if samePriority != 0 {
		logger.DebugCtx(ctx, "priority %d still has %d pending jobs, not cascading from %s",
			drained.Priority, samePriority, drained.Type)
		return nil
	}

	next, err := c.metrics.PendingQueueTypesBelow(ctx, drained.Priority)
	if err != nil {
		c.providerFailure(ctx, drained.Type, "pending queue types below", err)
		return fmt.Errorf("pending queue types below priority %d: %w", drained.Priority, err)
	}

	for _, queueType := range next {
		if !c.policy.Has(queueType) {
			logger.WarnCtx(ctx, "skipping cascade to undeclared queue type %s", queueType)
			continue
		}

		current, ok := c.fleet.CurrentWorkers(ctx, queueType)
		if !ok {
			c.fleetFailure(ctx, queueType, "current workers unavailable", 0)
			continue
		}
		if current != 0 {
			continue
		}

		logger.InfoCtx(ctx, "Starting process of type %s", queueType)
		decision, err := c.EvaluateHire(ctx, queueType)
		if err != nil {
			logger.ErrorCtx(ctx, "cascade from %s to %s failed: %v", drained.Type, queueType, err)
			continue
		}
		if !decision.Hired() {
			logger.DebugCtx(ctx, "cascade from %s to %s hired nothing (pending: %d, desired: %d)",
				drained.Type, queueType, decision.Pending, decision.Desired)
			continue
		}
		c.emit(ctx, ScalingEvent{
			Type:      EventCascade,
			QueueType: queueType,
			Source:    drained.Type,
			Before:    decision.Before,
			After:     decision.After,
			Message:   fmt.Sprintf("%s drained, cascading to %s", drained.Type, queueType),
		})
	}
	return nil
}

func (c *Controller) providerFailure(ctx context.Context, queueType policy.QueueType, op string, err error) {
	logger.ErrorCtx(ctx, "queue metrics %s failed for %s, skipping evaluation: %v", op, queueType, err)
	c.emit(ctx, ScalingEvent{
		Type:      EventProviderFailure,
		QueueType: queueType,
		Message:   fmt.Sprintf("queue metrics %s failed: %v", op, err),
	})
}

// fleetFailure records a failure the fleet boundary already logged
func (c *Controller) fleetFailure(ctx context.Context, queueType policy.QueueType, reason string, before int) {
	c.emit(ctx, ScalingEvent{
		Type:      EventProviderFailure,
		QueueType: queueType,
		Before:    before,
		After:     before,
		Message:   "fleet: " + reason,
	})
}

func (c *Controller) emit(ctx context.Context, event ScalingEvent) {
	event.ID = uuid.NewString()
	event.Timestamp = c.now()
	c.sink.Emit(ctx, event)
}
