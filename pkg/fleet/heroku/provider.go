package heroku

import (
	"context"

	"tierscale/pkg/config"
	"tierscale/pkg/interfaces"
	"tierscale/pkg/logger"
	"tierscale/pkg/policy"
)

// Backend scales process types of a single app. A queue type maps to the
// process type of the same name.
type Backend struct {
	client *Client
}

var _ interfaces.FleetBackend = (*Backend)(nil)

// NewBackend creates a backend for cfg.AppName
func NewBackend(cfg config.HerokuConfig) *Backend {
	return &Backend{client: NewClient(cfg)}
}

// Name implements interfaces.FleetBackend
func (b *Backend) Name() string {
	return "heroku"
}

// RunningWorkers counts dynos whose process type is the queue type
func (b *Backend) RunningWorkers(ctx context.Context, queueType policy.QueueType) (int, error) {
	dynos, err := b.client.ListDynos(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, d := range dynos {
		if d.Type == string(queueType) {
			count++
		}
	}
	return count, nil
}

// ScaleWorkers sets the formation quantity for the queue type
func (b *Backend) ScaleWorkers(ctx context.Context, queueType policy.QueueType, count int) error {
	formation, err := b.client.UpdateFormation(ctx, string(queueType), count)
	if err != nil {
		return err
	}
	logger.InfoCtx(ctx, "scaled process type %s to %d", formation.Type, formation.Quantity)
	return nil
}
