package asynq

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hibiken/asynq"

	"tierscale/pkg/config"
	"tierscale/pkg/interfaces"
	"tierscale/pkg/logger"
	"tierscale/pkg/policy"
)

// QueueInspector is the subset of *asynq.Inspector the provider needs
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

// Provider reads queue depth from asynq. Each queue type is an asynq queue
// of the same name; Pending tasks are ready to run and Active tasks are held
// by a worker. Scheduled and retry tasks are not ready yet and archived tasks
// have failed, so neither is counted.
type Provider struct {
	inspector QueueInspector
	policy    *policy.Policy
}

var _ interfaces.QueueMetricsProvider = (*Provider)(nil)

// NewProvider connects an inspector to the configured Redis
func NewProvider(cfg *config.Config, p *policy.Policy) *Provider {
	inspector := asynq.NewInspector(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	logger.Infof("asynq metrics provider initialized, redis: %s", cfg.Redis.Addr)
	return NewProviderWithInspector(inspector, p)
}

// NewProviderWithInspector uses an existing inspector
func NewProviderWithInspector(inspector QueueInspector, p *policy.Policy) *Provider {
	return &Provider{inspector: inspector, policy: p}
}

// queueInfo returns nil info for queues asynq has never seen
func (p *Provider) queueInfo(queueType policy.QueueType) (*asynq.QueueInfo, error) {
	info, err := p.inspector.GetQueueInfo(string(queueType))
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get queue info for %s: %w", queueType, err)
	}
	return info, nil
}

// PendingCount implements interfaces.QueueMetricsProvider
func (p *Provider) PendingCount(_ context.Context, queueType policy.QueueType) (int, error) {
	info, err := p.queueInfo(queueType)
	if err != nil || info == nil {
		return 0, err
	}
	return info.Pending, nil
}

// ClaimedCount implements interfaces.QueueMetricsProvider
func (p *Provider) ClaimedCount(_ context.Context, queueType policy.QueueType) (int, error) {
	info, err := p.queueInfo(queueType)
	if err != nil || info == nil {
		return 0, err
	}
	return info.Active, nil
}

// PendingCountAtPriority implements interfaces.QueueMetricsProvider
func (p *Provider) PendingCountAtPriority(ctx context.Context, priority int) (int, error) {
	total := 0
	for _, queueType := range p.policy.QueueTypesAt(priority) {
		count, err := p.PendingCount(ctx, queueType)
		if err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

// PendingQueueTypesBelow implements interfaces.QueueMetricsProvider.
// Ready-time order is approximated by queue latency: the queue whose oldest
// pending task has waited longest comes first.
func (p *Provider) PendingQueueTypesBelow(_ context.Context, priority int) ([]policy.QueueType, error) {
	for _, tier := range p.policy.TiersBelow(priority) {
		var waiting []*asynq.QueueInfo
		for _, queueType := range p.policy.QueueTypesAt(tier) {
			info, err := p.queueInfo(queueType)
			if err != nil {
				return nil, err
			}
			if info != nil && info.Pending > 0 {
				waiting = append(waiting, info)
			}
		}
		if len(waiting) == 0 {
			continue
		}

		sort.SliceStable(waiting, func(i, j int) bool {
			return waiting[i].Latency > waiting[j].Latency
		})
		result := make([]policy.QueueType, 0, len(waiting))
		for _, info := range waiting {
			result = append(result, policy.QueueType(info.Queue))
		}
		return result, nil
	}
	return nil, nil
}

// Close implements interfaces.QueueMetricsProvider
func (p *Provider) Close() error {
	return p.inspector.Close()
}
