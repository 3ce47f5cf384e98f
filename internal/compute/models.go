// Package compute is the Compute Manager: the lifecycle of compute
// instances, synthesized on every call from CPC pod state. It holds no
// persistent compute table.
package compute

import (
	"time"

	"github.com/wisbric/compute-gateway/internal/cluster"
)

// Status mirrors a pod's lifecycle state as observed through CPC.
type Status struct {
	Phase   cluster.PodPhase
	Ready   bool
	Message string
}

// Network carries a compute's pod IP, present only once the pod is ready.
// Ports is never populated by the Compute Manager and is always nil.
type Network struct {
	PodIP string
	Ports map[string]int32
}

// Info is the synthesized view of a compute: pod state (from CPC), with
// PresetID taken from the pod's presetId label.
type Info struct {
	ComputeID string
	PresetID  string
	PodName   string
	Status    Status
	Network   Network
	Labels    map[string]string
	CreatedAt time.Time
}

// CreateParams is the input to CreateCompute. ComputeID and PresetID are
// both optional: an absent ComputeID is generated, an absent PresetID
// resolves to the Preset Manager's default.
type CreateParams struct {
	ComputeID         string
	PresetID          string
	Labels            map[string]string
	Annotations       map[string]string
	ResourceOverrides *cluster.ResourceList
}

// Filters narrows ListComputes. Labels matches are exact (all given
// key/value pairs must be present on a compute's labels).
type Filters struct {
	PresetID string
	Labels   map[string]string
}
