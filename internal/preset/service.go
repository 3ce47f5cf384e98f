package preset

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/wisbric/compute-gateway/internal/cluster"
)

//go:embed defaults.json
var embeddedDefaults []byte

// defaultsSpec is the on-disk/embedded shape of the built-in preset set:
// a flat list rather than the richer Preset type, since timestamps are
// assigned at creation time, not carried in configuration.
type defaultsSpec struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Version      int                 `json:"version"`
	Template     defaultsTemplate    `json:"template"`
	Resources    Resources           `json:"resources"`
	BaseReplicas int                 `json:"baseReplicas"`
}

type defaultsTemplate struct {
	Image        string                `json:"image"`
	Command      []string              `json:"command"`
	Args         []string              `json:"args"`
	Env          map[string]string     `json:"env"`
	Ports        []cluster.Port        `json:"ports"`
	WorkingDir   string                `json:"workingDir"`
	VolumeMounts []cluster.VolumeMount `json:"volumeMounts"`
}

// ErrInUse is returned by Delete when a preset is still referenced by a
// live compute.
var ErrInUse = errors.New("preset in use")

// ComputeLister is the narrow view Service needs over the Compute Manager
// to enforce the "can't delete a preset with live computes" invariant,
// without importing the compute package and creating an import cycle (CM
// depends on PM, not the reverse).
type ComputeLister interface {
	CountByPreset(ctx context.Context, presetID string) (int, error)
}

// Service is the Preset Manager.
type Service struct {
	store    *Store
	computes ComputeLister
}

// NewService builds the Preset Manager.
func NewService(store *Store, computes ComputeLister) *Service {
	return &Service{store: store, computes: computes}
}

// CreatePreset stores a new preset. It does not eagerly create any pod: the
// preset's template is materialized against CPC the first time a compute is
// created from it (see compute.Service.CreateCompute), so "materializing
// the baseline workload" happens lazily rather than spinning up an unused
// pod that nothing observes.
func (s *Service) CreatePreset(ctx context.Context, p Preset) (Preset, error) {
	if p.Version == 0 {
		p.Version = 1
	}
	created, err := s.store.Create(ctx, p)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return Preset{}, err
		}
		return Preset{}, fmt.Errorf("creating preset: %w", err)
	}
	return created, nil
}

func (s *Service) GetPreset(ctx context.Context, id string) (Preset, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListPresets(ctx context.Context, f Filters) ([]Preset, error) {
	return s.store.List(ctx, f)
}

// DeletePreset removes a preset, failing with ErrInUse if any compute still
// references it.
func (s *Service) DeletePreset(ctx context.Context, id string) error {
	if s.computes != nil {
		count, err := s.computes.CountByPreset(ctx, id)
		if err != nil {
			return fmt.Errorf("checking preset usage: %w", err)
		}
		if count > 0 {
			return ErrInUse
		}
	}
	return s.store.Delete(ctx, id)
}

// InitializeDefaults creates any missing member of the built-in preset set.
// Idempotent: an existing preset is never mutated, and presets created by
// a prior run are silently skipped.
func (s *Service) InitializeDefaults(ctx context.Context, overridePath string) error {
	raw := embeddedDefaults
	if overridePath != "" {
		b, err := os.ReadFile(overridePath)
		if err != nil {
			return fmt.Errorf("reading presets file %q: %w", overridePath, err)
		}
		raw = b
	}

	var specs []defaultsSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return fmt.Errorf("decoding default presets: %w", err)
	}

	now := time.Now()
	for _, spec := range specs {
		if _, err := s.store.Get(ctx, spec.ID); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("checking default preset %q: %w", spec.ID, err)
		}

		p := Preset{
			ID:          spec.ID,
			Name:        spec.Name,
			Description: spec.Description,
			Version:     spec.Version,
			Template: Template{
				Image:        spec.Template.Image,
				Command:      spec.Template.Command,
				Args:         spec.Template.Args,
				Env:          spec.Template.Env,
				Ports:        spec.Template.Ports,
				WorkingDir:   spec.Template.WorkingDir,
				VolumeMounts: spec.Template.VolumeMounts,
			},
			Resources:    spec.Resources,
			BaseReplicas: spec.BaseReplicas,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if _, err := s.store.Create(ctx, p); err != nil && !errors.Is(err, ErrAlreadyExists) {
			return fmt.Errorf("creating default preset %q: %w", spec.ID, err)
		}
	}

	return nil
}
