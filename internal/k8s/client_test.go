package k8s

import (
	"testing"

	"github.com/google/uuid"
	appsv1 "k8s.io/api/apps/v1"
)

func testConfig() DeploymentConfig {
	return DeploymentConfig{
		Name:           "cache",
		Slug:           "cache-1",
		Namespace:      "redis-org",
		OrganizationID: uuid.New(),
		InstanceID:     uuid.New(),
		RedisVersion:   "7.2",
		MaxMemory:      268435456,
		RedisPassword:  "pw",
		Port:           6379,
	}
}

func TestGenerateDeployment(t *testing.T) {
	cfg := testConfig()
	d := generateDeployment(cfg)

	if d.Name != "redis-cache-1" {
		t.Errorf("deployment name = %q, want redis-cache-1", d.Name)
	}
	if d.Namespace != cfg.Namespace {
		t.Errorf("namespace = %q, want %q", d.Namespace, cfg.Namespace)
	}

	containers := d.Spec.Template.Spec.Containers
	if len(containers) != 1 {
		t.Fatalf("containers = %d, want 1", len(containers))
	}
	if containers[0].Image != "redis:7.2" {
		t.Errorf("image = %q, want redis:7.2", containers[0].Image)
	}
	if containers[0].Ports[0].ContainerPort != 6379 {
		t.Errorf("container port = %d, want 6379", containers[0].Ports[0].ContainerPort)
	}

	// Selector must match template labels or the deployment is rejected.
	for k, v := range d.Spec.Selector.MatchLabels {
		if d.Spec.Template.Labels[k] != v {
			t.Errorf("selector label %s=%s missing from template", k, v)
		}
	}

	mem := containers[0].Resources.Limits.Memory()
	if mem.Value() != cfg.MaxMemory {
		t.Errorf("memory limit = %d, want %d", mem.Value(), cfg.MaxMemory)
	}
}

func TestGenerateService(t *testing.T) {
	cfg := testConfig()
	s := generateService(cfg)

	if s.Name != "redis-cache-1-service" {
		t.Errorf("service name = %q, want redis-cache-1-service", s.Name)
	}
	if s.Spec.Ports[0].Port != 6379 {
		t.Errorf("service port = %d, want 6379", s.Spec.Ports[0].Port)
	}
	if s.Spec.Selector["redisgate/instance"] != "cache-1" {
		t.Errorf("selector = %v, want instance label", s.Spec.Selector)
	}
}

func TestStatusFromDeployment(t *testing.T) {
	tests := []struct {
		name          string
		readyReplicas int32
		want          string
	}{
		{"ready", 1, StatusRunning},
		{"not ready", 0, StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &appsv1.Deployment{}
			d.Status.ReadyReplicas = tt.readyReplicas
			if got := statusFromDeployment(d); got != tt.want {
				t.Errorf("statusFromDeployment() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonicalNames(t *testing.T) {
	if DeploymentName("x") != "redis-x" {
		t.Errorf("DeploymentName = %q", DeploymentName("x"))
	}
	if ServiceName("x") != "redis-x-service" {
		t.Errorf("ServiceName = %q", ServiceName("x"))
	}
}
