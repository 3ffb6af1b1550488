package k8s

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"tierscale/pkg/config"
	"tierscale/pkg/interfaces"
	"tierscale/pkg/logger"
	"tierscale/pkg/policy"
)

// DeploymentBackend runs each queue type as one Deployment named
// prefix + queue type and scales it through Spec.Replicas.
type DeploymentBackend struct {
	client    kubernetes.Interface
	namespace string
	prefix    string
}

var _ interfaces.FleetBackend = (*DeploymentBackend)(nil)

// NewDeploymentBackend builds a client from in-cluster config, falling back to kubeconfig
func NewDeploymentBackend(cfg config.K8sConfig) (*DeploymentBackend, error) {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		if cfg.Kubeconfig != "" {
			loadingRules.ExplicitPath = cfg.Kubeconfig
		}
		kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{})
		restConfig, err = kubeConfig.ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to get kubernetes config: %v", err)
		}
	}

	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %v", err)
	}

	logger.Infof("k8s fleet backend initialized, namespace: %s, deployment prefix: %q", cfg.Namespace, cfg.DeploymentPrefix)
	return NewDeploymentBackendWithClient(client, cfg.Namespace, cfg.DeploymentPrefix), nil
}

// NewDeploymentBackendWithClient uses an existing clientset
func NewDeploymentBackendWithClient(client kubernetes.Interface, namespace, prefix string) *DeploymentBackend {
	return &DeploymentBackend{
		client:    client,
		namespace: namespace,
		prefix:    prefix,
	}
}

// Name implements interfaces.FleetBackend
func (b *DeploymentBackend) Name() string {
	return "k8s"
}

// DeploymentName returns the Deployment that serves queueType
func (b *DeploymentBackend) DeploymentName(queueType policy.QueueType) string {
	return b.prefix + string(queueType)
}

// RunningWorkers returns the desired replica count of the queue type's Deployment.
// Desired rather than ready replicas keeps repeated hire evaluations idempotent
// while pods are still starting.
func (b *DeploymentBackend) RunningWorkers(ctx context.Context, queueType policy.QueueType) (int, error) {
	name := b.DeploymentName(queueType)
	deployment, err := b.client.AppsV1().Deployments(b.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to get deployment %s: %w", name, err)
	}
	if deployment.Spec.Replicas == nil {
		// unset replicas defaults to 1 on the API server
		return 1, nil
	}
	return int(*deployment.Spec.Replicas), nil
}

// ScaleWorkers updates Spec.Replicas of the queue type's Deployment
func (b *DeploymentBackend) ScaleWorkers(ctx context.Context, queueType policy.QueueType, count int) error {
	if count < 0 {
		return fmt.Errorf("replicas cannot be negative")
	}

	name := b.DeploymentName(queueType)
	deployments := b.client.AppsV1().Deployments(b.namespace)
	deployment, err := deployments.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to get deployment %s: %w", name, err)
	}

	r := int32(count)
	deployment.Spec.Replicas = &r

	if _, err := deployments.Update(ctx, deployment, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to scale deployment %s: %w", name, err)
	}
	logger.InfoCtx(ctx, "scaled deployment %s/%s to %d replicas", b.namespace, name, count)
	return nil
}
