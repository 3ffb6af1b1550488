package interfaces

import (
	"context"
	"time"

	"tierscale/pkg/policy"
)

// FleetBackend talks to a remote worker platform.
// Errors are returned unfiltered; FleetProvider implementations turn them
// into absent results.
type FleetBackend interface {
	// Name identifies the backend in logs (k8s, heroku, ...)
	Name() string

	// RunningWorkers reports how many workers of queueType are running
	RunningWorkers(ctx context.Context, queueType policy.QueueType) (int, error)

	// ScaleWorkers asks the platform to run exactly count workers
	ScaleWorkers(ctx context.Context, queueType policy.QueueType, count int) error
}

// Ack acknowledges an accepted scale request. The platform may still be
// converging towards Requested.
type Ack struct {
	QueueType  policy.QueueType `json:"queueType"`
	Requested  int              `json:"requested"`
	AcceptedAt time.Time        `json:"acceptedAt"`
}

// FleetProvider is the autoscaler's view of the worker fleet.
// A false second return means the call failed and must be treated as
// "skip this cycle", never as zero workers.
type FleetProvider interface {
	CurrentWorkers(ctx context.Context, queueType policy.QueueType) (int, bool)
	SetWorkers(ctx context.Context, queueType policy.QueueType, count int) (Ack, bool)
}
