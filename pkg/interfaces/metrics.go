package interfaces

import (
	"context"

	"tierscale/pkg/policy"
)

// QueueMetricsProvider answers queue-depth questions for the autoscaler.
// Implementations must be read-only and safe for concurrent use.
// Storage errors are returned as-is; callers decide what to skip.
type QueueMetricsProvider interface {
	// PendingCount counts jobs in the queue that are ready to run
	// (ready-time at or before now) and have not permanently failed.
	PendingCount(ctx context.Context, queueType policy.QueueType) (int, error)

	// ClaimedCount counts jobs currently locked by a worker. Used as a
	// proxy for busy workers.
	ClaimedCount(ctx context.Context, queueType policy.QueueType) (int, error)

	// PendingCountAtPriority counts pending jobs across every queue type
	// declared at priority.
	PendingCountAtPriority(ctx context.Context, priority int) (int, error)

	// PendingQueueTypesBelow scans the tiers below priority, nearest first,
	// and returns the queue types of the first tier that has pending jobs,
	// ordered by earliest ready-time. Empty when no lower tier has work.
	PendingQueueTypesBelow(ctx context.Context, priority int) ([]policy.QueueType, error)

	// Close releases the underlying connection
	Close() error
}
