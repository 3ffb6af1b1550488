package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"tierscale/pkg/config"
	"tierscale/pkg/interfaces"
	"tierscale/pkg/logger"
	"tierscale/pkg/policy"
	"tierscale/pkg/queue/mysql/model"
)

// Provider reads queue depth from a delayed jobs table.
// A job is pending when it has not failed and its run_at has passed;
// it is claimed when a worker holds its lock.
type Provider struct {
	ds     *Datastore
	table  string
	policy *policy.Policy
	now    func() time.Time
}

var _ interfaces.QueueMetricsProvider = (*Provider)(nil)

// NewProvider connects to MySQL and reads cfg.MySQL.Table
func NewProvider(cfg *config.Config, p *policy.Policy) (*Provider, error) {
	ds, err := NewDatastore(cfg.MySQL.DSN())
	if err != nil {
		return nil, err
	}
	logger.Infof("mysql metrics provider initialized, table: %s", cfg.MySQL.Table)
	return NewProviderWithDatastore(ds, cfg.MySQL.Table, p), nil
}

// NewProviderWithDatastore uses an existing datastore
func NewProviderWithDatastore(ds *Datastore, table string, p *policy.Policy) *Provider {
	if table == "" {
		table = model.DelayedJob{}.TableName()
	}
	return &Provider{
		ds:     ds,
		table:  table,
		policy: p,
		now:    time.Now,
	}
}

func (p *Provider) jobs(db *gorm.DB) *gorm.DB {
	return db.Model(&model.DelayedJob{}).Table(p.table)
}

func pending(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("failed_at IS NULL").Where("run_at <= ?", now)
	}
}

func claimed(db *gorm.DB) *gorm.DB {
	return db.Where("locked_by IS NOT NULL")
}

func inQueue(queueType policy.QueueType) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("queue = ?", string(queueType))
	}
}

func inQueues(queueTypes []policy.QueueType) func(*gorm.DB) *gorm.DB {
	names := make([]string, 0, len(queueTypes))
	for _, t := range queueTypes {
		names = append(names, string(t))
	}
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("queue IN ?", names)
	}
}

func (p *Provider) pendingQuery(db *gorm.DB, queueType policy.QueueType) *gorm.DB {
	return p.jobs(db).Scopes(pending(p.now()), inQueue(queueType))
}

func (p *Provider) claimedQuery(db *gorm.DB, queueType policy.QueueType) *gorm.DB {
	return p.jobs(db).Scopes(claimed, inQueue(queueType))
}

func (p *Provider) pendingInQuery(db *gorm.DB, queueTypes []policy.QueueType) *gorm.DB {
	return p.jobs(db).Scopes(pending(p.now()), inQueues(queueTypes))
}

// queuesByReadyTimeQuery selects the queues with pending work, earliest run_at first
func (p *Provider) queuesByReadyTimeQuery(db *gorm.DB, queueTypes []policy.QueueType) *gorm.DB {
	return p.pendingInQuery(db, queueTypes).
		Group("queue").
		Order("MIN(run_at) ASC")
}

// PendingCount implements interfaces.QueueMetricsProvider
func (p *Provider) PendingCount(ctx context.Context, queueType policy.QueueType) (int, error) {
	var count int64
	if err := p.pendingQuery(p.ds.DB(ctx), queueType).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count pending jobs for %s: %w", queueType, err)
	}
	return int(count), nil
}

// ClaimedCount implements interfaces.QueueMetricsProvider
func (p *Provider) ClaimedCount(ctx context.Context, queueType policy.QueueType) (int, error) {
	var count int64
	if err := p.claimedQuery(p.ds.DB(ctx), queueType).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count claimed jobs for %s: %w", queueType, err)
	}
	return int(count), nil
}

// PendingCountAtPriority implements interfaces.QueueMetricsProvider
func (p *Provider) PendingCountAtPriority(ctx context.Context, priority int) (int, error) {
	return p.pendingInTiers(ctx, []int{priority})
}

// PendingCountAbove counts pending jobs in tiers of higher precedence than queueType
func (p *Provider) PendingCountAbove(ctx context.Context, queueType policy.QueueType) (int, error) {
	spec, err := p.policy.Lookup(queueType)
	if err != nil {
		return 0, err
	}
	return p.pendingInTiers(ctx, p.policy.TiersAbove(spec.Priority))
}

// PendingCountBelow counts pending jobs in tiers of lower precedence than queueType
func (p *Provider) PendingCountBelow(ctx context.Context, queueType policy.QueueType) (int, error) {
	spec, err := p.policy.Lookup(queueType)
	if err != nil {
		return 0, err
	}
	return p.pendingInTiers(ctx, p.policy.TiersBelow(spec.Priority))
}

func (p *Provider) pendingInTiers(ctx context.Context, tiers []int) (int, error) {
	var queueTypes []policy.QueueType
	for _, tier := range tiers {
		queueTypes = append(queueTypes, p.policy.QueueTypesAt(tier)...)
	}
	if len(queueTypes) == 0 {
		return 0, nil
	}

	var count int64
	if err := p.pendingInQuery(p.ds.DB(ctx), queueTypes).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count pending jobs in tiers %v: %w", tiers, err)
	}
	return int(count), nil
}

// PendingQueueTypesBelow implements interfaces.QueueMetricsProvider
func (p *Provider) PendingQueueTypesBelow(ctx context.Context, priority int) ([]policy.QueueType, error) {
	for _, tier := range p.policy.TiersBelow(priority) {
		queueTypes := p.policy.QueueTypesAt(tier)

		var names []string
		if err := p.queuesByReadyTimeQuery(p.ds.DB(ctx), queueTypes).Pluck("queue", &names).Error; err != nil {
			return nil, fmt.Errorf("failed to list pending queues at priority %d: %w", tier, err)
		}
		if len(names) == 0 {
			continue
		}

		result := make([]policy.QueueType, 0, len(names))
		for _, name := range names {
			result = append(result, policy.QueueType(name))
		}
		return result, nil
	}
	return nil, nil
}

// Close implements interfaces.QueueMetricsProvider
func (p *Provider) Close() error {
	return p.ds.Close()
}
