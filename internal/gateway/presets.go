package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/compute-gateway/internal/apierr"
	"github.com/wisbric/compute-gateway/internal/cluster"
	"github.com/wisbric/compute-gateway/internal/httpserver"
	"github.com/wisbric/compute-gateway/internal/preset"
)

type createPresetRequest struct {
	ID          string            `json:"id" validate:"required"`
	Name        string            `json:"name" validate:"required"`
	Description string            `json:"description"`
	Template    templateRequest   `json:"template" validate:"required"`
	Resources   resourcesRequest  `json:"resources" validate:"required"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
}

type templateRequest struct {
	Image        string                `json:"image" validate:"required"`
	Command      []string              `json:"command"`
	Args         []string              `json:"args"`
	Env          map[string]string     `json:"env"`
	Ports        []cluster.Port        `json:"ports"`
	WorkingDir   string                `json:"workingDir"`
	VolumeMounts []cluster.VolumeMount `json:"volumeMounts"`
}

type resourcesRequest struct {
	Requests cluster.ResourceList `json:"requests"`
	Limits   cluster.ResourceList `json:"limits"`
}

type presetResponse struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Version      int               `json:"version"`
	Labels       map[string]string `json:"labels,omitempty"`
	Annotations  map[string]string `json:"annotations,omitempty"`
	BaseReplicas int               `json:"base_replicas"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func presetToResponse(p preset.Preset) presetResponse {
	return presetResponse{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Version:      p.Version,
		Labels:       p.Labels,
		Annotations:  p.Annotations,
		BaseReplicas: p.BaseReplicas,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (h *handlers) createPreset(w http.ResponseWriter, r *http.Request) {
	var req createPresetRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	p := preset.Preset{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Template: preset.Template{
			Image:        req.Template.Image,
			Command:      req.Template.Command,
			Args:         req.Template.Args,
			Env:          req.Template.Env,
			Ports:        req.Template.Ports,
			WorkingDir:   req.Template.WorkingDir,
			VolumeMounts: req.Template.VolumeMounts,
		},
		Resources: preset.Resources{
			Requests: req.Resources.Requests,
			Limits:   req.Resources.Limits,
		},
		Labels:      req.Labels,
		Annotations: req.Annotations,
	}

	created, err := h.deps.Presets.CreatePreset(r.Context(), p)
	if err != nil {
		if errors.Is(err, preset.ErrAlreadyExists) {
			apierr.RespondCode(w, apierr.CodeConflict, "preset already exists")
			return
		}
		h.deps.Logger.Error("creating preset", "error", err)
		apierr.RespondCode(w, apierr.CodeInternal, "failed to create preset")
		return
	}

	httpserver.Respond(w, http.StatusCreated, presetToResponse(created))
}

func (h *handlers) getPreset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "presetID")

	p, err := h.deps.Presets.GetPreset(r.Context(), id)
	if err != nil {
		if errors.Is(err, preset.ErrNotFound) {
			apierr.RespondCode(w, apierr.CodeNotFound, "preset not found")
			return
		}
		h.deps.Logger.Error("getting preset", "error", err)
		apierr.RespondCode(w, apierr.CodeInternal, "failed to get preset")
		return
	}

	httpserver.Respond(w, http.StatusOK, presetToResponse(p))
}

func (h *handlers) listPresets(w http.ResponseWriter, r *http.Request) {
	f := preset.Filters{Name: r.URL.Query().Get("name")}

	presets, err := h.deps.Presets.ListPresets(r.Context(), f)
	if err != nil {
		h.deps.Logger.Error("listing presets", "error", err)
		apierr.RespondCode(w, apierr.CodeInternal, "failed to list presets")
		return
	}

	out := make([]presetResponse, 0, len(presets))
	for _, p := range presets {
		out = append(out, presetToResponse(p))
	}
	httpserver.Respond(w, http.StatusOK, out)
}

func (h *handlers) deletePreset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "presetID")

	if err := h.deps.Presets.DeletePreset(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, preset.ErrNotFound):
			apierr.RespondCode(w, apierr.CodeNotFound, "preset not found")
		case errors.Is(err, preset.ErrInUse):
			apierr.RespondCode(w, apierr.CodeConflict, "preset is still in use by a live compute")
		default:
			h.deps.Logger.Error("deleting preset", "error", err)
			apierr.RespondCode(w, apierr.CodeInternal, "failed to delete preset")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
