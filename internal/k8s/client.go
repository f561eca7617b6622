package k8s

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// opTimeout bounds every Kubernetes API call.
const opTimeout = 30 * time.Second

// Client is the client-go backed Orchestrator.
type Client struct {
	clientset kubernetes.Interface
	logger    *slog.Logger
}

// NewClient builds a clientset from the in-cluster config, falling back to
// the local kubeconfig. An error means the capability is absent and the
// gateway should run in development mode.
func NewClient(logger *slog.Logger) (*Client, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := os.Getenv("KUBECONFIG")
		if kubeconfig == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("locating kubeconfig: %w", err)
			}
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("building kubernetes config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes clientset: %w", err)
	}

	return &Client{clientset: clientset, logger: logger}, nil
}

// CreateInstance applies the namespace, Deployment, and Service for the
// instance. Already-existing objects are treated as applied.
func (c *Client) CreateInstance(ctx context.Context, cfg DeploymentConfig) (*DeploymentResult, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.ensureNamespace(ctx, cfg.Namespace); err != nil {
		return nil, err
	}

	deployment := generateDeployment(cfg)
	_, err := c.clientset.AppsV1().Deployments(cfg.Namespace).Create(ctx, deployment, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return nil, fmt.Errorf("applying deployment %s: %w", deployment.Name, err)
	}

	service := generateService(cfg)
	_, err = c.clientset.CoreV1().Services(cfg.Namespace).Create(ctx, service, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return nil, fmt.Errorf("applying service %s: %w", service.Name, err)
	}

	c.logger.Info("redis workload applied",
		"namespace", cfg.Namespace,
		"deployment", deployment.Name,
		"service", service.Name,
	)

	return &DeploymentResult{
		DeploymentName: deployment.Name,
		ServiceName:    service.Name,
		Namespace:      cfg.Namespace,
		Domain:         fmt.Sprintf("%s.%s.svc.cluster.local", service.Name, cfg.Namespace),
		Port:           cfg.Port,
	}, nil
}

// DeleteInstance removes the instance's Deployment and Service. Absent
// objects are ignored.
func (c *Client) DeleteInstance(ctx context.Context, namespace, slug string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := c.clientset.AppsV1().Deployments(namespace).Delete(ctx, DeploymentName(slug), metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("deleting deployment %s: %w", DeploymentName(slug), err)
	}

	err = c.clientset.CoreV1().Services(namespace).Delete(ctx, ServiceName(slug), metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("deleting service %s: %w", ServiceName(slug), err)
	}

	c.logger.Info("redis workload deleted", "namespace", namespace, "slug", slug)
	return nil
}

// DeploymentStatus derives the instance status from deployment readiness.
func (c *Client) DeploymentStatus(ctx context.Context, namespace, slug string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	deployment, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, DeploymentName(slug), metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return StatusFailed, nil
		}
		return "", fmt.Errorf("getting deployment %s: %w", DeploymentName(slug), err)
	}

	return statusFromDeployment(deployment), nil
}

func (c *Client) ensureNamespace(ctx context.Context, namespace string) error {
	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: namespace},
	}
	_, err := c.clientset.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("ensuring namespace %s: %w", namespace, err)
	}
	return nil
}

func statusFromDeployment(d *appsv1.Deployment) string {
	if d.Status.ReadyReplicas >= 1 {
		return StatusRunning
	}
	return StatusPending
}

func instanceLabels(cfg DeploymentConfig) map[string]string {
	return map[string]string{
		"app":                    "redis",
		"redisgate/instance":     cfg.Slug,
		"redisgate/instance-id":  cfg.InstanceID.String(),
		"redisgate/organization": cfg.OrganizationID.String(),
	}
}

func generateDeployment(cfg DeploymentConfig) *appsv1.Deployment {
	labels := instanceLabels(cfg)
	replicas := int32(1)

	memory := resource.NewQuantity(cfg.MaxMemory, resource.BinarySI)

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      DeploymentName(cfg.Slug),
			Namespace: cfg.Namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  "redis",
						Image: fmt.Sprintf("redis:%s", cfg.RedisVersion),
						Args: []string{
							"redis-server",
							"--requirepass", cfg.RedisPassword,
							"--maxmemory", fmt.Sprintf("%d", cfg.MaxMemory),
							"--maxmemory-policy", "allkeys-lru",
						},
						Ports: []corev1.ContainerPort{{
							Name:          "redis",
							ContainerPort: cfg.Port,
							Protocol:      corev1.ProtocolTCP,
						}},
						Resources: corev1.ResourceRequirements{
							Limits: corev1.ResourceList{
								corev1.ResourceMemory: *memory,
							},
						},
					}},
				},
			},
		},
	}
}

func generateService(cfg DeploymentConfig) *corev1.Service {
	labels := instanceLabels(cfg)

	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      ServiceName(cfg.Slug),
			Namespace: cfg.Namespace,
			Labels:    labels,
		},
		Spec: corev1.ServiceSpec{
			Selector: labels,
			Type:     corev1.ServiceTypeClusterIP,
			Ports: []corev1.ServicePort{{
				Name:     "redis",
				Port:     cfg.Port,
				Protocol: corev1.ProtocolTCP,
			}},
		},
	}
}
