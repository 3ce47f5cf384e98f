package cluster

import (
	"context"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestCreateWorkload_Idempotent(t *testing.T) {
	kube := fake.NewSimpleClientset()
	c := NewClientFromInterface(kube, "default")

	spec := WorkloadSpec{
		ComputeID: "abc123",
		PresetID:  "default-development",
		Template: WorkloadTemplate{
			Image: "gateway/compute:latest",
			Ports: []Port{{Name: "daemon", ContainerPort: 8080}},
		},
	}

	if err := c.CreateWorkload(context.Background(), spec); err != nil {
		t.Fatalf("first CreateWorkload() error = %v", err)
	}
	if err := c.CreateWorkload(context.Background(), spec); err != nil {
		t.Fatalf("second CreateWorkload() should be idempotent, got error = %v", err)
	}

	pods, err := kube.CoreV1().Pods("default").List(context.Background(), metav1.ListOptions{})
	if err != nil {
		t.Fatalf("listing pods: %v", err)
	}
	if len(pods.Items) != 1 {
		t.Fatalf("len(pods.Items) = %d, want 1", len(pods.Items))
	}
}

func TestGetPodByComputeID_NotFound(t *testing.T) {
	kube := fake.NewSimpleClientset()
	c := NewClientFromInterface(kube, "default")

	_, err := c.GetPodByComputeID(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected not-found error, got nil")
	}
}

func TestGetPodByComputeID_ReadyFromConditions(t *testing.T) {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "compute-abc123",
			Namespace: "default",
			Labels:    map[string]string{appLabel: appLabelValue, computeIDLabel: "abc123", presetIDLabel: "default-development"},
		},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			PodIP: "10.0.0.5",
			Conditions: []corev1.PodCondition{
				{Type: corev1.PodReady, Status: corev1.ConditionTrue},
			},
		},
	}
	kube := fake.NewSimpleClientset(pod)
	c := NewClientFromInterface(kube, "default")

	rec, err := c.GetPodByComputeID(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("GetPodByComputeID() error = %v", err)
	}
	if !rec.IsReady {
		t.Error("IsReady = false, want true")
	}
	if rec.IP != "10.0.0.5" {
		t.Errorf("IP = %q, want 10.0.0.5", rec.IP)
	}
	if rec.Phase != PhaseRunning {
		t.Errorf("Phase = %q, want Running", rec.Phase)
	}
}

func TestDeleteWorkloadByComputeID_IdempotentWhenMissing(t *testing.T) {
	kube := fake.NewSimpleClientset()
	c := NewClientFromInterface(kube, "default")

	if err := c.DeleteWorkloadByComputeID(context.Background(), "never-existed"); err != nil {
		t.Fatalf("DeleteWorkloadByComputeID() on missing pod should be a no-op, got error = %v", err)
	}
}

func TestListPodsByPreset_OrderedByCreatedAt(t *testing.T) {
	older := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:              "compute-older",
			Namespace:         "default",
			Labels:            map[string]string{appLabel: appLabelValue, presetIDLabel: "default-development"},
			CreationTimestamp: metav1.NewTime(time.Now().Add(-time.Hour)),
		},
	}
	newer := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:              "compute-newer",
			Namespace:         "default",
			Labels:            map[string]string{appLabel: appLabelValue, presetIDLabel: "default-development"},
			CreationTimestamp: metav1.NewTime(time.Now()),
		},
	}
	kube := fake.NewSimpleClientset(newer, older)
	c := NewClientFromInterface(kube, "default")

	records, err := c.ListPodsByPreset(context.Background(), "default-development")
	if err != nil {
		t.Fatalf("ListPodsByPreset() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].Name != "compute-older" {
		t.Errorf("records[0].Name = %q, want compute-older (oldest first)", records[0].Name)
	}
}

func TestBackoffDelay_BoundedByCap(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffDelay(attempt)
		if d > backoffCap {
			t.Errorf("backoffDelay(%d) = %v, exceeds cap %v", attempt, d, backoffCap)
		}
		if d < 0 {
			t.Errorf("backoffDelay(%d) = %v, want >= 0", attempt, d)
		}
	}
}
