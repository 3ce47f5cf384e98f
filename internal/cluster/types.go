// Package cluster is the Container Platform Client: a minimal, retrying
// surface over the cluster API that creates, inspects, and deletes the
// single-pod workloads backing each compute.
package cluster

import "time"

// PodPhase mirrors corev1.PodPhase without leaking the client-go type into
// callers that only need lifecycle state.
type PodPhase string

const (
	PhasePending   PodPhase = "Pending"
	PhaseRunning   PodPhase = "Running"
	PhaseFailed    PodPhase = "Failed"
	PhaseSucceeded PodPhase = "Succeeded"
	PhaseUnknown   PodPhase = "Unknown"
)

// PodRecord is a read view of a workload's backing pod.
type PodRecord struct {
	Name      string
	IP        string
	ComputeID string
	PresetID  string
	Labels    map[string]string
	Phase     PodPhase
	IsReady   bool
	Message   string
	CreatedAt time.Time
}

// Port is a named container port exposed by a workload.
type Port struct {
	Name          string
	ContainerPort int32
}

// VolumeMount describes a path inside the container backed by an
// ephemeral workspace volume.
type VolumeMount struct {
	Name      string
	MountPath string
}

// ResourceList is a cpu/memory pair in Kubernetes quantity syntax
// (e.g. "500m", "512Mi").
type ResourceList struct {
	CPU    string
	Memory string
}

// WorkloadTemplate is the pod shape materialized from a preset.
type WorkloadTemplate struct {
	Image        string
	Command      []string
	Args         []string
	Env          map[string]string
	Ports        []Port
	WorkingDir   string
	VolumeMounts []VolumeMount
}

// WorkloadSpec is the input to CreateWorkload: a preset's template plus the
// per-compute identity and any per-call overrides.
type WorkloadSpec struct {
	ComputeID   string
	PresetID    string
	Template    WorkloadTemplate
	Requests    ResourceList
	Limits      ResourceList
	Labels      map[string]string
	Annotations map[string]string
}
