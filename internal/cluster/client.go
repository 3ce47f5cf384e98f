package cluster

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/wisbric/compute-gateway/internal/apierr"
)

const (
	appLabel        = "app"
	appLabelValue   = "compute"
	computeIDLabel  = "computeId"
	presetIDLabel   = "presetId"
	daemonPortName  = "daemon"
	workspaceVolume = "workspace"
)

const (
	backoffBase       = 200 * time.Millisecond
	backoffCap        = 5 * time.Second
	backoffMaxRetries = 5
)

// Client is the Container Platform Client: a retrying, namespace-scoped
// surface over the cluster API for single-pod compute workloads.
type Client struct {
	kube      kubernetes.Interface
	namespace string
}

// NewClient builds a Client. If kubeconfigPath is empty, it uses the
// in-cluster service account config; otherwise it loads the given
// kubeconfig file, matching the in-cluster/local fallback used throughout
// Kubernetes-native tooling.
func NewClient(kubeconfigPath, namespace string) (*Client, error) {
	var restConfig *rest.Config
	var err error

	if kubeconfigPath == "" {
		restConfig, err = rest.InClusterConfig()
	} else {
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	}
	if err != nil {
		return nil, fmt.Errorf("building cluster config: %w", err)
	}

	kube, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("building cluster client: %w", err)
	}

	return &Client{kube: kube, namespace: namespace}, nil
}

// NewClientFromInterface wraps an existing kubernetes.Interface, primarily
// for tests that substitute fake.NewSimpleClientset.
func NewClientFromInterface(kube kubernetes.Interface, namespace string) *Client {
	return &Client{kube: kube, namespace: namespace}
}

func workloadName(computeID string) string { return "compute-" + computeID }

// CreateWorkload creates the single-pod workload for a compute. It is
// idempotent by pod name ("compute-<computeID>"): if a pod with this name
// already exists,
// CreateWorkload returns nil without modifying it.
func (c *Client) CreateWorkload(ctx context.Context, spec WorkloadSpec) error {
	pod := buildPodSpec(c.namespace, spec)

	err := c.retry(ctx, func() error {
		_, err := c.kube.CoreV1().Pods(c.namespace).Create(ctx, pod, metav1.CreateOptions{})
		return err
	})
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	if err != nil {
		return apierr.Wrap(apierr.CodeUpstreamUnavail, "creating workload", err)
	}
	return nil
}

// GetPodByComputeID returns the PodRecord for a compute, or ErrNotFound.
func (c *Client) GetPodByComputeID(ctx context.Context, computeID string) (PodRecord, error) {
	var pod *corev1.Pod
	err := c.retry(ctx, func() error {
		p, err := c.kube.CoreV1().Pods(c.namespace).Get(ctx, workloadName(computeID), metav1.GetOptions{})
		if err != nil {
			return err
		}
		pod = p
		return nil
	})
	if apierrors.IsNotFound(err) {
		return PodRecord{}, apierr.New(apierr.CodeNotFound, "pod not found")
	}
	if err != nil {
		return PodRecord{}, apierr.Wrap(apierr.CodeUpstreamUnavail, "getting pod", err)
	}
	return podToRecord(pod), nil
}

// ListPodsByPreset returns all pods created from the given preset, ordered
// by creation time ascending. An empty presetID returns every compute pod
// regardless of preset.
func (c *Client) ListPodsByPreset(ctx context.Context, presetID string) ([]PodRecord, error) {
	selector := fmt.Sprintf("%s=%s", appLabel, appLabelValue)
	if presetID != "" {
		selector = fmt.Sprintf("%s,%s=%s", selector, presetIDLabel, presetID)
	}

	var list *corev1.PodList
	err := c.retry(ctx, func() error {
		l, err := c.kube.CoreV1().Pods(c.namespace).List(ctx, metav1.ListOptions{
			LabelSelector: selector,
		})
		if err != nil {
			return err
		}
		list = l
		return nil
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeUpstreamUnavail, "listing pods", err)
	}

	records := make([]PodRecord, 0, len(list.Items))
	for i := range list.Items {
		records = append(records, podToRecord(&list.Items[i]))
	}
	sortByCreatedAt(records)
	return records, nil
}

// DeleteWorkloadByComputeID deletes a compute's pod. It is idempotent:
// deleting an already-gone pod returns nil.
func (c *Client) DeleteWorkloadByComputeID(ctx context.Context, computeID string) error {
	err := c.retry(ctx, func() error {
		return c.kube.CoreV1().Pods(c.namespace).Delete(ctx, workloadName(computeID), metav1.DeleteOptions{})
	})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return apierr.Wrap(apierr.CodeUpstreamUnavail, "deleting workload", err)
	}
	return nil
}

// HealthCheck reports whether the cluster API is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.kube.CoreV1().Namespaces().Get(ctx, c.namespace, metav1.GetOptions{})
	if err != nil {
		return apierr.Wrap(apierr.CodeUpstreamUnavail, "cluster health check", err)
	}
	return nil
}

// retry wraps op with exponential backoff and full jitter, retrying only
// transient cluster errors (timeouts, throttling, internal errors).
func (c *Client) retry(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < backoffMaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = op()
		if lastErr == nil || !isTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func isTransient(err error) bool {
	return apierrors.IsServerTimeout(err) ||
		apierrors.IsTooManyRequests(err) ||
		apierrors.IsInternalError(err) ||
		errors.Is(err, context.DeadlineExceeded)
}

// backoffDelay returns a full-jitter exponential delay for the given retry
// attempt (1-indexed), bounded by backoffCap.
func backoffDelay(attempt int) time.Duration {
	exp := backoffBase * time.Duration(1<<uint(attempt-1))
	if exp > backoffCap {
		exp = backoffCap
	}
	return time.Duration(rand.Int63n(int64(exp) + 1))
}

func podToRecord(pod *corev1.Pod) PodRecord {
	rec := PodRecord{
		Name:      pod.Name,
		IP:        pod.Status.PodIP,
		ComputeID: pod.Labels[computeIDLabel],
		PresetID:  pod.Labels[presetIDLabel],
		Labels:    pod.Labels,
		Phase:     PodPhase(pod.Status.Phase),
		Message:   string(pod.Status.Phase),
		CreatedAt: pod.CreationTimestamp.Time,
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
			rec.IsReady = true
			break
		}
	}
	return rec
}

func sortByCreatedAt(records []PodRecord) {
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && records[j].CreatedAt.Before(records[j-1].CreatedAt); j-- {
			records[j], records[j-1] = records[j-1], records[j]
		}
	}
}

func buildPodSpec(namespace string, spec WorkloadSpec) *corev1.Pod {
	labels := map[string]string{
		appLabel:       appLabelValue,
		computeIDLabel: spec.ComputeID,
		presetIDLabel:  spec.PresetID,
	}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	container := corev1.Container{
		Name:      "compute",
		Image:     spec.Template.Image,
		Command:   spec.Template.Command,
		Args:      spec.Template.Args,
		Resources: toResourceRequirements(spec.Requests, spec.Limits),
	}
	if spec.Template.WorkingDir != "" {
		container.WorkingDir = spec.Template.WorkingDir
	}
	for k, v := range spec.Template.Env {
		container.Env = append(container.Env, corev1.EnvVar{Name: k, Value: v})
	}
	for _, p := range spec.Template.Ports {
		container.Ports = append(container.Ports, corev1.ContainerPort{
			Name:          p.Name,
			ContainerPort: p.ContainerPort,
			Protocol:      corev1.ProtocolTCP,
		})
	}
	for _, vm := range spec.Template.VolumeMounts {
		container.VolumeMounts = append(container.VolumeMounts, corev1.VolumeMount{
			Name:      vm.Name,
			MountPath: vm.MountPath,
		})
	}

	readyPort := defaultReadyPort(spec.Template.Ports)
	container.ReadinessProbe = &corev1.Probe{
		ProbeHandler: corev1.ProbeHandler{
			TCPSocket: &corev1.TCPSocketAction{Port: intstr.FromInt(int(readyPort))},
		},
		InitialDelaySeconds: 2,
		PeriodSeconds:       5,
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:        workloadName(spec.ComputeID),
			Namespace:   namespace,
			Labels:      labels,
			Annotations: spec.Annotations,
		},
		Spec: corev1.PodSpec{
			RestartPolicy:                corev1.RestartPolicyNever,
			AutomountServiceAccountToken: boolPtr(false),
			ActiveDeadlineSeconds:        nil,
			Containers:                   []corev1.Container{container},
			Volumes: []corev1.Volume{
				{
					Name:         workspaceVolume,
					VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
				},
			},
		},
	}
}

func defaultReadyPort(ports []Port) int32 {
	for _, p := range ports {
		if p.Name == daemonPortName {
			return p.ContainerPort
		}
	}
	if len(ports) > 0 {
		return ports[0].ContainerPort
	}
	return 8080
}

func toResourceRequirements(requests, limits ResourceList) corev1.ResourceRequirements {
	reqs := corev1.ResourceRequirements{
		Requests: corev1.ResourceList{},
		Limits:   corev1.ResourceList{},
	}
	if requests.CPU != "" {
		reqs.Requests[corev1.ResourceCPU] = resource.MustParse(requests.CPU)
	}
	if requests.Memory != "" {
		reqs.Requests[corev1.ResourceMemory] = resource.MustParse(requests.Memory)
	}
	if limits.CPU != "" {
		reqs.Limits[corev1.ResourceCPU] = resource.MustParse(limits.CPU)
	}
	if limits.Memory != "" {
		reqs.Limits[corev1.ResourceMemory] = resource.MustParse(limits.Memory)
	}
	return reqs
}

func boolPtr(b bool) *bool { return &b }
