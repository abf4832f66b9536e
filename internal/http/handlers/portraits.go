package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"portraits/internal/domain"
	"portraits/internal/middleware"
	"portraits/internal/orchestrator"
)

type createPortraitRequest struct {
	Images          []string `json:"images"`
	Style           string   `json:"style"`
	EditInstruction string   `json:"edit_instruction"`
}

type createPortraitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// PortraitsCreate accepts a generation request and returns a queued job id
// immediately; the job itself runs detached.
func (a *App) PortraitsCreate(w http.ResponseWriter, r *http.Request) {
	var req createPortraitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	// The paid order reference comes from the auth layer, never from the
	// request body: anything client-supplied would let a rate-limited caller
	// grant themselves the privileged quota.
	orderID := a.verifiedOrderID(r)

	input := orchestrator.CreateJobInput{
		OwnerID:         a.currentUserID(r),
		SourceIdentity:  middleware.ClientIP(r),
		Privileged:      orderID != "",
		OrderID:         orderID,
		UploadIDs:       req.Images,
		Style:           req.Style,
		EditInstruction: req.EditInstruction,
	}

	jobID, err := a.Service.CreateJob(r.Context(), input)
	if err != nil {
		var denied *orchestrator.AdmissionDeniedError
		switch {
		case errors.As(err, &denied):
			retryAfter := int(denied.Decision.RetryAfter.Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			a.json(w, http.StatusTooManyRequests, map[string]any{
				"error":               "admission_denied",
				"reason":              string(denied.Decision.Reason),
				"retry_after_seconds": retryAfter,
			})
		case errors.Is(err, domain.ErrInvalidRequest):
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		default:
			a.Logger.Error().Err(err).Msg("create portrait job failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to queue job")
		}
		return
	}

	a.json(w, http.StatusAccepted, createPortraitResponse{JobID: jobID, Status: string(domain.JobStatusQueued)})
}

// PortraitStatus is the polling read for one job. The HD artifact reference
// is never exposed here.
func (a *App) PortraitStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	view, err := a.Service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("read portrait job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to read job")
		return
	}

	resp := map[string]any{
		"job_id":     view.JobID,
		"status":     string(view.Status),
		"created_at": view.CreatedAt,
		"updated_at": view.UpdatedAt,
	}
	if view.Error != "" {
		resp["error"] = view.Error
	}
	if view.PreviewURL != "" {
		resp["preview_url"] = view.PreviewURL
	}
	a.json(w, http.StatusOK, resp)
}
