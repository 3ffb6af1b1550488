package queue

import (
	"fmt"

	"tierscale/pkg/config"
	"tierscale/pkg/interfaces"
	"tierscale/pkg/policy"
	"tierscale/pkg/queue/asynq"
	"tierscale/pkg/queue/mysql"
)

// CreateMetricsProvider creates the queue metrics provider named by providerType
func CreateMetricsProvider(cfg *config.Config, p *policy.Policy, providerType string) (interfaces.QueueMetricsProvider, error) {
	switch providerType {
	case "mysql", "":
		return mysql.NewProvider(cfg, p)
	case "asynq":
		return asynq.NewProvider(cfg, p), nil
	default:
		return nil, fmt.Errorf("unsupported metrics provider type: %s", providerType)
	}
}
