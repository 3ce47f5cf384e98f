// Package preset is the Preset Manager: CRUD over declarative compute
// templates, plus default-preset bootstrap at process start.
package preset

import (
	"time"

	"github.com/wisbric/compute-gateway/internal/cluster"
)

// DefaultPresetID is substituted whenever a compute create omits presetID.
const DefaultPresetID = "default-development"

// Template is the pod shape a preset materializes, independent of any one
// compute instance.
type Template struct {
	Image        string
	Command      []string
	Args         []string
	Env          map[string]string
	Ports        []cluster.Port
	WorkingDir   string
	VolumeMounts []cluster.VolumeMount
}

// Resources is a preset's default requests/limits, copied onto every pod
// created from it. A compute's ResourceOverrides, when set, replaces Limits
// only; Requests always come from the preset.
type Resources struct {
	Requests cluster.ResourceList
	Limits   cluster.ResourceList
}

// Preset is a versioned, named compute template.
type Preset struct {
	ID            string
	Name          string
	Description   string
	Version       int
	Template      Template
	Resources     Resources
	BaseReplicas  int
	Labels        map[string]string
	Annotations   map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DeploymentName is the fixed "preset-<id>" naming convention for a preset.
// No Deployment object is ever created under it, and it is not written onto
// any pod label or annotation.
func (p Preset) DeploymentName() string {
	return "preset-" + p.ID
}

// Filters narrows ListPresets.
type Filters struct {
	Name    string
	Version *int
	Labels  map[string]string
}

func (f Filters) matches(p Preset) bool {
	if f.Name != "" && p.Name != f.Name {
		return false
	}
	if f.Version != nil && p.Version != *f.Version {
		return false
	}
	for k, v := range f.Labels {
		if p.Labels[k] != v {
			return false
		}
	}
	return true
}
