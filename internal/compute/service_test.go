package compute

import (
	"context"
	"errors"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/wisbric/compute-gateway/internal/apierr"
	"github.com/wisbric/compute-gateway/internal/cluster"
	"github.com/wisbric/compute-gateway/internal/preset"
)

type stubPresets struct {
	presets map[string]preset.Preset
}

func (s *stubPresets) GetPreset(ctx context.Context, id string) (preset.Preset, error) {
	p, ok := s.presets[id]
	if !ok {
		return preset.Preset{}, preset.ErrNotFound
	}
	return p, nil
}

func newTestService() (*Service, kubernetesFakeClientset) {
	kube := fake.NewSimpleClientset()
	cpc := cluster.NewClientFromInterface(kube, "default")
	presets := &stubPresets{presets: map[string]preset.Preset{
		"default-development": {
			ID:   "default-development",
			Name: "Development",
			Template: preset.Template{
				Image: "gateway/compute-base:latest",
				Ports: []cluster.Port{{Name: "daemon", ContainerPort: 8080}},
			},
			Resources: preset.Resources{
				Requests: cluster.ResourceList{CPU: "250m", Memory: "512Mi"},
				Limits:   cluster.ResourceList{CPU: "1", Memory: "2Gi"},
			},
		},
	}}
	return NewService(cpc, presets), kube
}

// kubernetesFakeClientset aliases the fake clientset's concrete type so
// tests can reach into it directly (e.g. to mark a pod ready) without
// re-deriving the import path at each call site.
type kubernetesFakeClientset = *fake.Clientset

func TestCreateCompute_ResolvesDefaultPreset(t *testing.T) {
	svc, _ := newTestService()

	info, err := svc.CreateCompute(context.Background(), CreateParams{})
	if err != nil {
		t.Fatalf("CreateCompute() error = %v", err)
	}
	if info.PresetID != "default-development" {
		t.Errorf("PresetID = %q, want default-development", info.PresetID)
	}
	if info.ComputeID == "" {
		t.Error("ComputeID is empty, want generated id")
	}
}

func TestCreateCompute_UnknownPreset(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateCompute(context.Background(), CreateParams{PresetID: "does-not-exist"})
	if err != ErrPresetNotFound {
		t.Errorf("err = %v, want ErrPresetNotFound", err)
	}
}

func TestGetCompute_PodIPHiddenUntilReady(t *testing.T) {
	svc, kube := newTestService()

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "compute-abc123456789",
			Namespace: "default",
			Labels:    map[string]string{"app": "compute", "computeId": "abc123456789", "presetId": "default-development"},
		},
		Status: corev1.PodStatus{
			Phase: corev1.PodPending,
			PodIP: "10.0.0.9",
		},
	}
	if _, err := kube.CoreV1().Pods("default").Create(context.Background(), pod, metav1.CreateOptions{}); err != nil {
		t.Fatalf("seeding pod: %v", err)
	}

	info, err := svc.GetCompute(context.Background(), "abc123456789")
	if err != nil {
		t.Fatalf("GetCompute() error = %v", err)
	}
	if info.Network.PodIP != "" {
		t.Errorf("Network.PodIP = %q, want empty until ready", info.Network.PodIP)
	}
}

func TestListComputes_NoPresetFilterReturnsAll(t *testing.T) {
	svc, kube := newTestService()

	for _, name := range []string{"compute-one", "compute-two"} {
		pod := &corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: "default",
				Labels:    map[string]string{"app": "compute"},
			},
		}
		if _, err := kube.CoreV1().Pods("default").Create(context.Background(), pod, metav1.CreateOptions{}); err != nil {
			t.Fatalf("seeding pod: %v", err)
		}
	}

	infos, err := svc.ListComputes(context.Background(), Filters{})
	if err != nil {
		t.Fatalf("ListComputes() error = %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("len(infos) = %d, want 2", len(infos))
	}
}

func TestListComputes_FiltersByLabel(t *testing.T) {
	svc, kube := newTestService()

	pods := []*corev1.Pod{
		{
			ObjectMeta: metav1.ObjectMeta{
				Name:      "compute-owner-a",
				Namespace: "default",
				Labels:    map[string]string{"app": "compute", "owner": "alice"},
			},
		},
		{
			ObjectMeta: metav1.ObjectMeta{
				Name:      "compute-owner-b",
				Namespace: "default",
				Labels:    map[string]string{"app": "compute", "owner": "bob"},
			},
		},
	}
	for _, pod := range pods {
		if _, err := kube.CoreV1().Pods("default").Create(context.Background(), pod, metav1.CreateOptions{}); err != nil {
			t.Fatalf("seeding pod: %v", err)
		}
	}

	infos, err := svc.ListComputes(context.Background(), Filters{Labels: map[string]string{"owner": "alice"}})
	if err != nil {
		t.Fatalf("ListComputes() error = %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("len(infos) = %d, want 1", len(infos))
	}
	if infos[0].Labels["owner"] != "alice" {
		t.Errorf("Labels[owner] = %q, want alice", infos[0].Labels["owner"])
	}
}

func TestFindCompute_NoMatchReturnsNotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.FindCompute(context.Background(), "", map[string]string{"owner": "nobody"})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != apierr.CodeNotFound {
		t.Errorf("err = %v, want apierr.CodeNotFound", err)
	}
}

func TestFindOrCreateCompute_CreatesWhenNoMatch(t *testing.T) {
	svc, _ := newTestService()

	info, err := svc.FindOrCreateCompute(context.Background(), CreateParams{Labels: map[string]string{"owner": "alice"}})
	if err != nil {
		t.Fatalf("FindOrCreateCompute() error = %v", err)
	}
	if info.ComputeID == "" {
		t.Error("ComputeID is empty, want generated id")
	}
}

func TestFindOrCreateCompute_ReturnsExistingMatch(t *testing.T) {
	svc, _ := newTestService()

	first, err := svc.CreateCompute(context.Background(), CreateParams{Labels: map[string]string{"owner": "alice"}})
	if err != nil {
		t.Fatalf("CreateCompute() error = %v", err)
	}

	second, err := svc.FindOrCreateCompute(context.Background(), CreateParams{Labels: map[string]string{"owner": "alice"}})
	if err != nil {
		t.Fatalf("FindOrCreateCompute() error = %v", err)
	}
	if second.ComputeID != first.ComputeID {
		t.Errorf("ComputeID = %q, want %q (existing match reused)", second.ComputeID, first.ComputeID)
	}
}
