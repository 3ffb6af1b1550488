package fleet

import (
	"fmt"

	"tierscale/pkg/config"
	"tierscale/pkg/fleet/heroku"
	"tierscale/pkg/fleet/k8s"
	"tierscale/pkg/interfaces"
)

// CreateFleetBackend creates the fleet backend named by providerType
func CreateFleetBackend(cfg *config.Config, providerType string) (interfaces.FleetBackend, error) {
	switch providerType {
	case "k8s", "kubernetes", "":
		return k8s.NewDeploymentBackend(cfg.K8s)
	case "heroku":
		return heroku.NewBackend(cfg.Heroku), nil
	default:
		return nil, fmt.Errorf("unsupported fleet provider type: %s", providerType)
	}
}

// CreateFleetProvider creates the backend and wraps it in a Boundary
func CreateFleetProvider(cfg *config.Config, providerType string) (*Boundary, error) {
	backend, err := CreateFleetBackend(cfg, providerType)
	if err != nil {
		return nil, err
	}
	return NewBoundary(backend), nil
}
