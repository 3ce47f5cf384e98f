package compute

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/wisbric/compute-gateway/internal/apierr"
	"github.com/wisbric/compute-gateway/internal/cluster"
	"github.com/wisbric/compute-gateway/internal/preset"
)

// ErrPresetNotFound is returned when CreateCompute references an unknown
// preset.
var ErrPresetNotFound = errors.New("preset not found")

// PresetLookup is the narrow view Service needs over the Preset Manager.
type PresetLookup interface {
	GetPreset(ctx context.Context, id string) (preset.Preset, error)
}

// Service is the Compute Manager. It persists nothing of its own: every
// read synthesizes Info from a CPC pod lookup alone; the preset is looked up
// only by CreateCompute, and Info carries its id from the pod's presetId
// label.
type Service struct {
	cpc     *cluster.Client
	presets PresetLookup
}

// NewService builds the Compute Manager.
func NewService(cpc *cluster.Client, presets PresetLookup) *Service {
	return &Service{cpc: cpc, presets: presets}
}

const computeIDAlphabetLen = 12

// CreateCompute materializes a new compute: resolves the preset (default
// if omitted), generates a collision-checked compute id if one wasn't
// given, and creates the backing pod via CPC.
func (s *Service) CreateCompute(ctx context.Context, params CreateParams) (Info, error) {
	presetID := params.PresetID
	if presetID == "" {
		presetID = preset.DefaultPresetID
	}

	p, err := s.presets.GetPreset(ctx, presetID)
	if err != nil {
		if errors.Is(err, preset.ErrNotFound) {
			return Info{}, ErrPresetNotFound
		}
		return Info{}, fmt.Errorf("resolving preset: %w", err)
	}

	computeID := params.ComputeID
	if computeID == "" {
		computeID, err = s.generateUniqueComputeID(ctx)
		if err != nil {
			return Info{}, err
		}
	}

	requests, limits := p.Resources.Requests, p.Resources.Limits
	if params.ResourceOverrides != nil {
		limits = *params.ResourceOverrides
	}

	spec := cluster.WorkloadSpec{
		ComputeID: computeID,
		PresetID:  presetID,
		Template: cluster.WorkloadTemplate{
			Image:        p.Template.Image,
			Command:      p.Template.Command,
			Args:         p.Template.Args,
			Env:          p.Template.Env,
			Ports:        p.Template.Ports,
			WorkingDir:   p.Template.WorkingDir,
			VolumeMounts: p.Template.VolumeMounts,
		},
		Requests:    requests,
		Limits:      limits,
		Labels:      params.Labels,
		Annotations: params.Annotations,
	}

	if err := s.cpc.CreateWorkload(ctx, spec); err != nil {
		return Info{}, fmt.Errorf("creating workload: %w", err)
	}

	return s.GetCompute(ctx, computeID)
}

// GetCompute synthesizes a compute's current view from its pod state.
func (s *Service) GetCompute(ctx context.Context, computeID string) (Info, error) {
	pod, err := s.cpc.GetPodByComputeID(ctx, computeID)
	if err != nil {
		return Info{}, err
	}
	return podToInfo(pod), nil
}

// GetPod is a thin wrapper over CPC, looking the pod up by its name
// "compute-<computeID>".
func (s *Service) GetPod(ctx context.Context, computeID string) (cluster.PodRecord, error) {
	return s.cpc.GetPodByComputeID(ctx, computeID)
}

// ListComputes returns computes matching f.
func (s *Service) ListComputes(ctx context.Context, f Filters) ([]Info, error) {
	pods, err := s.cpc.ListPodsByPreset(ctx, f.PresetID)
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(pods))
	for _, pod := range pods {
		if !matchesLabels(pod.Labels, f.Labels) {
			continue
		}
		infos = append(infos, podToInfo(pod))
	}
	return infos, nil
}

func matchesLabels(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

// FindCompute resolves a compute either by explicit id, or — when computeID
// is empty — by the first compute whose labels match every entry in labels.
// Returns an apierr.CodeNotFound error when nothing matches.
func (s *Service) FindCompute(ctx context.Context, computeID string, labels map[string]string) (Info, error) {
	if computeID != "" {
		return s.GetCompute(ctx, computeID)
	}

	infos, err := s.ListComputes(ctx, Filters{Labels: labels})
	if err != nil {
		return Info{}, err
	}
	if len(infos) == 0 {
		return Info{}, apierr.New(apierr.CodeNotFound, "no compute matches filters")
	}
	return infos[0], nil
}

// FindOrCreateCompute returns the compute matching params.ComputeID or
// params.Labels if one already exists, creating a new one via CreateCompute
// only when no match is found.
func (s *Service) FindOrCreateCompute(ctx context.Context, params CreateParams) (Info, error) {
	info, err := s.FindCompute(ctx, params.ComputeID, params.Labels)
	if err == nil {
		return info, nil
	}
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != apierr.CodeNotFound {
		return Info{}, err
	}
	return s.CreateCompute(ctx, params)
}

// CountByPreset satisfies preset.ComputeLister, letting the Preset Manager
// refuse to delete a preset still referenced by a live compute.
func (s *Service) CountByPreset(ctx context.Context, presetID string) (int, error) {
	pods, err := s.cpc.ListPodsByPreset(ctx, presetID)
	if err != nil {
		return 0, err
	}
	return len(pods), nil
}

// DeleteCompute removes a compute's pod. Idempotent: deleting an
// already-gone compute succeeds.
func (s *Service) DeleteCompute(ctx context.Context, computeID string) error {
	return s.cpc.DeleteWorkloadByComputeID(ctx, computeID)
}

func (s *Service) generateUniqueComputeID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		id, err := randomComputeID()
		if err != nil {
			return "", fmt.Errorf("generating compute id: %w", err)
		}
		if _, err := s.cpc.GetPodByComputeID(ctx, id); err != nil {
			var apiErr *apierr.Error
			if errors.As(err, &apiErr) && apiErr.Code == apierr.CodeNotFound {
				return id, nil
			}
			return "", err
		}
	}
	return "", fmt.Errorf("generating compute id: exhausted collision retries")
}

// randomComputeID generates a URL-safe 12-character identifier.
func randomComputeID() (string, error) {
	b := make([]byte, 9) // base64url encodes 9 bytes to 12 chars, no padding
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	id := base64.RawURLEncoding.EncodeToString(b)
	return strings.ToLower(id)[:computeIDAlphabetLen], nil
}

func podToInfo(pod cluster.PodRecord) Info {
	info := Info{
		ComputeID: pod.ComputeID,
		PresetID:  pod.PresetID,
		PodName:   pod.Name,
		Labels:    pod.Labels,
		Status: Status{
			Phase:   pod.Phase,
			Ready:   pod.IsReady,
			Message: pod.Message,
		},
		CreatedAt: pod.CreatedAt,
	}
	if pod.IsReady {
		info.Network.PodIP = pod.IP
	}
	return info
}
