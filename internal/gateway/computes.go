package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/compute-gateway/internal/apierr"
	"github.com/wisbric/compute-gateway/internal/cluster"
	"github.com/wisbric/compute-gateway/internal/compute"
	"github.com/wisbric/compute-gateway/internal/httpserver"
	"github.com/wisbric/compute-gateway/internal/identity"
)

// defaultSandboxExtension is how far past now an /extend call with no
// explicit duration sets a sandbox's backing session expiry (an expiry
// already later than that is kept).
const defaultSandboxExtension = 15 * time.Minute

type createComputeRequest struct {
	ComputeID         string                `json:"compute_id"`
	PresetID          string                `json:"preset_id"`
	Labels            map[string]string     `json:"labels"`
	Annotations       map[string]string     `json:"annotations"`
	ResourceOverrides *cluster.ResourceList `json:"resource_overrides"`
}

type computeResponse struct {
	ComputeID string            `json:"compute_id"`
	PresetID  string            `json:"preset_id"`
	PodName   string            `json:"pod_name"`
	Phase     cluster.PodPhase  `json:"phase"`
	Ready     bool              `json:"ready"`
	Message   string            `json:"message,omitempty"`
	PodIP     string            `json:"pod_ip,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func computeToResponse(info compute.Info) computeResponse {
	return computeResponse{
		ComputeID: info.ComputeID,
		PresetID:  info.PresetID,
		PodName:   info.PodName,
		Phase:     info.Status.Phase,
		Ready:     info.Status.Ready,
		Message:   info.Status.Message,
		PodIP:     info.Network.PodIP,
		Labels:    info.Labels,
		CreatedAt: info.CreatedAt,
	}
}

func (h *handlers) createCompute(w http.ResponseWriter, r *http.Request) {
	var req createComputeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	info, err := h.deps.Computes.CreateCompute(r.Context(), compute.CreateParams{
		ComputeID:         req.ComputeID,
		PresetID:          req.PresetID,
		Labels:            req.Labels,
		Annotations:       req.Annotations,
		ResourceOverrides: req.ResourceOverrides,
	})
	if err != nil {
		if errors.Is(err, compute.ErrPresetNotFound) {
			apierr.RespondCode(w, apierr.CodeValidation, "unknown preset")
			return
		}
		h.deps.Logger.Error("creating compute", "error", err)
		apierr.RespondCode(w, apierr.CodeInternal, "failed to create compute")
		return
	}

	httpserver.Respond(w, http.StatusCreated, computeToResponse(info))
}

func (h *handlers) getCompute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "computeID")

	info, err := h.deps.Computes.GetCompute(r.Context(), id)
	if err != nil {
		var apiErr *apierr.Error
		if errors.As(err, &apiErr) && apiErr.Code == apierr.CodeNotFound {
			apierr.RespondCode(w, apierr.CodeNotFound, "compute not found")
			return
		}
		h.deps.Logger.Error("getting compute", "error", err)
		apierr.RespondCode(w, apierr.CodeInternal, "failed to get compute")
		return
	}

	httpserver.Respond(w, http.StatusOK, computeToResponse(info))
}

func (h *handlers) listComputes(w http.ResponseWriter, r *http.Request) {
	f := compute.Filters{PresetID: r.URL.Query().Get("preset_id")}

	computes, err := h.deps.Computes.ListComputes(r.Context(), f)
	if err != nil {
		h.deps.Logger.Error("listing computes", "error", err)
		apierr.RespondCode(w, apierr.CodeInternal, "failed to list computes")
		return
	}

	out := make([]computeResponse, 0, len(computes))
	for _, c := range computes {
		out = append(out, computeToResponse(c))
	}
	httpserver.Respond(w, http.StatusOK, out)
}

func (h *handlers) deleteCompute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "computeID")

	if err := h.deps.Computes.DeleteCompute(r.Context(), id); err != nil {
		h.deps.Logger.Error("deleting compute", "error", err)
		apierr.RespondCode(w, apierr.CodeInternal, "failed to delete compute")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// findCompute resolves an existing compute by id or by label match, without
// creating one. It responds 404 when nothing matches.
func (h *handlers) findCompute(w http.ResponseWriter, r *http.Request) {
	var req createComputeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	info, err := h.deps.Computes.FindCompute(r.Context(), req.ComputeID, req.Labels)
	if err != nil {
		var apiErr *apierr.Error
		if errors.As(err, &apiErr) && apiErr.Code == apierr.CodeNotFound {
			apierr.RespondCode(w, apierr.CodeNotFound, "no compute matches filters")
			return
		}
		h.deps.Logger.Error("finding compute", "error", err)
		apierr.RespondCode(w, apierr.CodeInternal, "failed to find compute")
		return
	}

	httpserver.Respond(w, http.StatusOK, computeToResponse(info))
}

// findOrCreateCompute resolves an existing compute by id or label match, or
// creates one from the same parameters CreateCompute would accept.
func (h *handlers) findOrCreateCompute(w http.ResponseWriter, r *http.Request) {
	var req createComputeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	info, err := h.deps.Computes.FindOrCreateCompute(r.Context(), compute.CreateParams{
		ComputeID:         req.ComputeID,
		PresetID:          req.PresetID,
		Labels:            req.Labels,
		Annotations:       req.Annotations,
		ResourceOverrides: req.ResourceOverrides,
	})
	if err != nil {
		if errors.Is(err, compute.ErrPresetNotFound) {
			apierr.RespondCode(w, apierr.CodeValidation, "unknown preset")
			return
		}
		h.deps.Logger.Error("finding or creating compute", "error", err)
		apierr.RespondCode(w, apierr.CodeInternal, "failed to find or create compute")
		return
	}

	httpserver.Respond(w, http.StatusOK, computeToResponse(info))
}

type extendSandboxRequest struct {
	ExtendBySeconds int64 `json:"extend_by_seconds"`
}

type extendSandboxResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// extendCompute pushes out the expiry of the end-user session backing the
// caller's sandbox access, keeping a still-live preview from losing its
// grant mid-use. Only an end-user bearer token (minted off a claimed
// session) can call this — organization members manage compute lifecycle
// through create/delete instead.
func (h *handlers) extendCompute(w http.ResponseWriter, r *http.Request) {
	var req extendSandboxRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	id := identity.FromContext(r.Context())
	if id == nil || id.Kind != identity.SubjectEndUser || id.SessionID == nil {
		apierr.RespondCode(w, apierr.CodeForbidden, "extending a sandbox requires an end-user session token")
		return
	}

	by := defaultSandboxExtension
	if req.ExtendBySeconds > 0 {
		by = time.Duration(req.ExtendBySeconds) * time.Second
	}

	cs, err := h.deps.Auth.ExtendSession(r.Context(), *id.SessionID, by)
	if err != nil {
		h.deps.Logger.Error("extending sandbox session", "error", err)
		apierr.RespondCode(w, apierr.CodeInternal, "failed to extend sandbox session")
		return
	}

	httpserver.Respond(w, http.StatusOK, extendSandboxResponse{ExpiresAt: cs.ExpiresAt})
}
