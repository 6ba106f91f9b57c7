package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/maintenance-tracker/internal/db"
	"github.com/ukydev/maintenance-tracker/internal/errs"
	"github.com/ukydev/maintenance-tracker/internal/middleware"
	"github.com/ukydev/maintenance-tracker/internal/models"
	"github.com/ukydev/maintenance-tracker/internal/recurrence"
	"github.com/ukydev/maintenance-tracker/internal/stage"
	"github.com/ukydev/maintenance-tracker/internal/timer"
)

// MaintenanceHandler exposes the plan, request and timer operations over
// HTTP. All stage writes route through the guard; there is no raw stage
// field endpoint.
type MaintenanceHandler struct {
	Plans    db.PlanCollection
	Requests db.RequestCollection
	Segments db.SegmentCollection
	Causes   db.PauseCauseCollection
	Assets   db.AssetCollection
	Stages   db.StageCollection
	Seq      db.SequenceAllocator
	Gen      *recurrence.Generator
	Timer    *timer.Service
	Guard    *stage.Guard
}

// Register mounts every route on the mux.
func (h *MaintenanceHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/plans", h.CreatePlan)
	mux.HandleFunc("GET /api/plans/{id}", h.GetPlan)
	mux.HandleFunc("PUT /api/plans/{id}", h.UpdatePlan)
	mux.HandleFunc("DELETE /api/plans/{id}", h.DeletePlan)
	mux.HandleFunc("GET /api/plans/{id}/requests", h.ListPlanRequests)
	mux.HandleFunc("POST /api/plans/{id}/generate", h.GeneratePlan)
	mux.HandleFunc("POST /api/requests", h.CreateRequest)
	mux.HandleFunc("GET /api/requests/{id}", h.GetRequest)
	mux.HandleFunc("DELETE /api/requests/{id}", h.DeleteRequest)
	mux.HandleFunc("GET /api/requests/{id}/segments", h.GetSegments)
	mux.HandleFunc("GET /api/requests/{id}/duration", h.GetDuration)
	mux.HandleFunc("POST /api/requests/{id}/timer/start", h.StartTimer)
	mux.HandleFunc("POST /api/requests/{id}/timer/pause", h.PauseTimer)
	mux.HandleFunc("POST /api/requests/{id}/timer/continue", h.ContinueTimer)
	mux.HandleFunc("POST /api/requests/{id}/timer/finish", h.FinishTimer)
	mux.HandleFunc("POST /api/requests/{id}/stage", h.AssignStage)
	mux.HandleFunc("POST /api/requests/{id}/confirm-finish", h.ConfirmFinish)
	mux.HandleFunc("POST /api/requests/{id}/confirm-cancel", h.ConfirmCancel)
	mux.HandleFunc("POST /api/assets", h.CreateAsset)
	mux.HandleFunc("GET /api/assets", h.ListAssets)
	mux.HandleFunc("GET /api/assets/{id}", h.GetAsset)
	mux.HandleFunc("PUT /api/assets/{id}", h.UpdateAsset)
	mux.HandleFunc("DELETE /api/assets/{id}", h.DeleteAsset)
	mux.HandleFunc("GET /api/pause-causes", h.ListPauseCauses)
	mux.HandleFunc("POST /api/pause-causes", h.CreatePauseCause)
	mux.HandleFunc("POST /api/pause-causes/{id}/toggle", h.TogglePauseCause)
}

// CreatePlan creates a maintenance plan and assigns its code.
func (h *MaintenanceHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	var plan models.Plan
	if err := json.Unmarshal(body, &plan); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if plan.Interval <= 0 {
		http.Error(w, "Plan interval must be positive", http.StatusBadRequest)
		return
	}
	if !models.IsValidIntervalUnit(plan.IntervalUnit) {
		http.Error(w, "Invalid interval unit", http.StatusBadRequest)
		return
	}
	if plan.Code == "" || plan.Code == models.CodeUnassigned {
		code, err := h.Seq.NextCode(r.Context(), db.SeqPlan)
		if err != nil {
			log.WithError(err).Warn("plan code allocation failed, using sentinel")
		}
		plan.Code = code
	}
	plan.Active = true
	created, err := h.Plans.InsertPlan(r.Context(), plan)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetPlan returns one plan.
func (h *MaintenanceHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.Plans.FindPlanByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// UpdatePlan applies a partial update to a plan. Fields absent from the
// body keep their stored values.
func (h *MaintenanceHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	plan, err := h.Plans.FindPlanByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	if err := json.Unmarshal(body, plan); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if plan.Interval <= 0 {
		http.Error(w, "Plan interval must be positive", http.StatusBadRequest)
		return
	}
	if !models.IsValidIntervalUnit(plan.IntervalUnit) {
		http.Error(w, "Invalid interval unit", http.StatusBadRequest)
		return
	}
	if err := h.Plans.UpdatePlan(r.Context(), id, *plan); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// DeletePlan removes a plan. Requests already issued for it survive.
func (h *MaintenanceHandler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	if err := h.Plans.DeletePlan(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPlanRequests returns every request issued for a plan.
func (h *MaintenanceHandler) ListPlanRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Requests.FindRequestsByPlan(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if requests == nil {
		requests = []models.Request{}
	}
	writeJSON(w, http.StatusOK, requests)
}

// GeneratePlan is the manual "generate now" trigger for one plan.
func (h *MaintenanceHandler) GeneratePlan(w http.ResponseWriter, r *http.Request) {
	created, err := h.Gen.GenerateForPlanID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if created == nil {
		created = []models.Request{}
	}
	writeJSON(w, http.StatusOK, created)
}

// CreateRequest creates a corrective maintenance request.
func (h *MaintenanceHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	var request models.Request
	if err := json.Unmarshal(body, &request); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if request.AssetID == "" {
		http.Error(w, "Asset is required", http.StatusBadRequest)
		return
	}
	if request.Kind == "" {
		request.Kind = models.KindCorrective
	}
	if request.IssueDate.IsZero() {
		request.IssueDate = time.Now()
	}
	if request.Code == "" || request.Code == models.CodeUnassigned {
		code, err := h.Seq.NextCode(r.Context(), db.SeqRequest)
		if err != nil {
			log.WithError(err).Warn("request code allocation failed, using sentinel")
		}
		request.Code = code
	}
	if request.StageID == "" && h.Stages != nil {
		if initial, err := h.Stages.FindStageByKey(r.Context(), models.StageKeyNew); err == nil && initial != nil {
			request.StageID = initial.ID.Hex()
		}
	}
	created, err := h.Requests.InsertRequest(r.Context(), request)
	if err != nil {
		writeError(w, err)
		return
	}
	// An open corrective request blocks the asset's approval.
	if err := h.Guard.RefreshAssetApproval(r.Context(), created.AssetID); err != nil {
		log.WithError(err).Warn("asset approval refresh failed")
	}
	writeJSON(w, http.StatusCreated, created)
}

// CreateAsset registers a piece of equipment.
func (h *MaintenanceHandler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	var asset models.Asset
	if err := json.Unmarshal(body, &asset); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if asset.Name == "" {
		http.Error(w, "Asset name is required", http.StatusBadRequest)
		return
	}
	if asset.ApprovalStatus == "" {
		asset.ApprovalStatus = models.AssetApproved
	}
	created, err := h.Assets.InsertAsset(r.Context(), asset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListAssets returns every asset.
func (h *MaintenanceHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.Assets.FindAssets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if assets == nil {
		assets = []models.Asset{}
	}
	writeJSON(w, http.StatusOK, assets)
}

// UpdateAsset applies a partial update to an asset. The approval status
// is recomputed, not taken from the body.
func (h *MaintenanceHandler) UpdateAsset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	asset, err := h.Assets.FindAssetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	status := asset.ApprovalStatus
	if err := json.Unmarshal(body, asset); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	asset.ApprovalStatus = status
	if asset.Name == "" {
		http.Error(w, "Asset name is required", http.StatusBadRequest)
		return
	}
	if err := h.Assets.UpdateAsset(r.Context(), id, *asset); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// DeleteAsset removes an asset.
func (h *MaintenanceHandler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	if err := h.Assets.DeleteAsset(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAsset returns one asset with a freshly computed approval status.
func (h *MaintenanceHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Guard.RefreshAssetApproval(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	asset, err := h.Assets.FindAssetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// GetRequest returns one maintenance request.
func (h *MaintenanceHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	request, err := h.Requests.FindRequestByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

// DeleteRequest removes a request and cascades to its time segments.
func (h *MaintenanceHandler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Segments.DeleteSegmentsByRequest(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Requests.DeleteRequest(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSegments lists a request's time segments.
func (h *MaintenanceHandler) GetSegments(w http.ResponseWriter, r *http.Request) {
	segments, err := h.Segments.FindSegmentsByRequest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if segments == nil {
		segments = []models.TimeSegment{}
	}
	writeJSON(w, http.StatusOK, segments)
}

// GetDuration returns the live aggregate active duration.
func (h *MaintenanceHandler) GetDuration(w http.ResponseWriter, r *http.Request) {
	hours, display, err := h.Timer.ActiveDuration(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"duration_hours":   hours,
		"duration_display": display,
	})
}

// StartTimer starts work tracking on a request.
func (h *MaintenanceHandler) StartTimer(w http.ResponseWriter, r *http.Request) {
	request, err := h.Timer.Start(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

// PauseTimer pauses work tracking; the body must carry the pause cause.
func (h *MaintenanceHandler) PauseTimer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PauseCauseID string `json:"pause_cause_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	request, err := h.Timer.Pause(r.Context(), r.PathValue("id"), req.PauseCauseID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

// ContinueTimer resumes work tracking after a pause.
func (h *MaintenanceHandler) ContinueTimer(w http.ResponseWriter, r *http.Request) {
	request, err := h.Timer.Continue(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

// FinishTimer ends work tracking on a request.
func (h *MaintenanceHandler) FinishTimer(w http.ResponseWriter, r *http.Request) {
	request, err := h.Timer.Finish(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

// AssignStage is the guarded stage write path for board moves.
func (h *MaintenanceHandler) AssignStage(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}
	var req struct {
		StageID    string `json:"stage_id"`
		Authorized bool   `json:"authorized"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	request, err := h.Guard.AssignStage(r.Context(), claims, r.PathValue("id"), req.StageID, req.Authorized)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

// ConfirmFinish finishes a request through the guarded workflow.
func (h *MaintenanceHandler) ConfirmFinish(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, h.Guard.ConfirmFinish)
}

// ConfirmCancel cancels a request through the guarded workflow.
func (h *MaintenanceHandler) ConfirmCancel(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, h.Guard.ConfirmCancel)
}

func (h *MaintenanceHandler) confirm(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, principal stage.Principal, id string) (*models.Request, error)) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}
	request, err := fn(r.Context(), claims, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

// ListPauseCauses returns the active pause causes.
func (h *MaintenanceHandler) ListPauseCauses(w http.ResponseWriter, r *http.Request) {
	causes, err := h.Causes.FindActivePauseCauses(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if causes == nil {
		causes = []models.PauseCause{}
	}
	writeJSON(w, http.StatusOK, causes)
}

// CreatePauseCause adds a pause cause.
func (h *MaintenanceHandler) CreatePauseCause(w http.ResponseWriter, r *http.Request) {
	var cause models.PauseCause
	if err := json.NewDecoder(r.Body).Decode(&cause); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if cause.Name == "" {
		http.Error(w, "Pause cause name is required", http.StatusBadRequest)
		return
	}
	cause.Active = true
	created, err := h.Causes.InsertPauseCause(r.Context(), cause)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// TogglePauseCause flips a pause cause's active flag.
func (h *MaintenanceHandler) TogglePauseCause(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cause, err := h.Causes.FindPauseCauseByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Causes.SetPauseCauseActive(r.Context(), id, !cause.Active); err != nil {
		writeError(w, err)
		return
	}
	cause.Active = !cause.Active
	writeJSON(w, http.StatusOK, cause)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error kinds onto HTTP statuses so UIs can render
// permission failures distinctly from validation ones.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errs.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errs.IsPermission(err):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errs.IsConfiguration(err):
		http.Error(w, err.Error(), http.StatusInternalServerError)
	case errors.Is(err, db.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
