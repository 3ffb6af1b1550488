package fleet

import (
	"context"
	"time"

	"tierscale/pkg/interfaces"
	"tierscale/pkg/logger"
	"tierscale/pkg/policy"
)

// Boundary adapts a FleetBackend into a FleetProvider.
// Backend errors stop here: they are logged with their cause and reported
// as absent results.
type Boundary struct {
	backend interfaces.FleetBackend
	now     func() time.Time
}

var _ interfaces.FleetProvider = (*Boundary)(nil)

// NewBoundary wraps backend
func NewBoundary(backend interfaces.FleetBackend) *Boundary {
	return &Boundary{backend: backend, now: time.Now}
}

// Backend returns the wrapped backend
func (b *Boundary) Backend() interfaces.FleetBackend {
	return b.backend
}

// CurrentWorkers returns the running worker count, or false when the backend failed
func (b *Boundary) CurrentWorkers(ctx context.Context, queueType policy.QueueType) (int, bool) {
	count, err := b.backend.RunningWorkers(ctx, queueType)
	if err != nil {
		logger.ErrorCtx(ctx, "[%s] failed to get current workers for %s: %v", b.backend.Name(), queueType, err)
		return 0, false
	}
	if count < 0 {
		logger.WarnCtx(ctx, "[%s] backend reported negative worker count %d for %s", b.backend.Name(), count, queueType)
		return 0, false
	}
	return count, true
}

// SetWorkers requests count workers, or returns false when the backend rejected the request
func (b *Boundary) SetWorkers(ctx context.Context, queueType policy.QueueType, count int) (interfaces.Ack, bool) {
	if count < 0 {
		logger.WarnCtx(ctx, "[%s] refusing negative worker count %d for %s", b.backend.Name(), count, queueType)
		return interfaces.Ack{}, false
	}
	if err := b.backend.ScaleWorkers(ctx, queueType, count); err != nil {
		logger.ErrorCtx(ctx, "[%s] failed to set workers for %s to %d: %v", b.backend.Name(), queueType, count, err)
		return interfaces.Ack{}, false
	}
	return interfaces.Ack{
		QueueType:  queueType,
		Requested:  count,
		AcceptedAt: b.now(),
	}, true
}
