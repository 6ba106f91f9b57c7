package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ukydev/maintenance-tracker/internal/clock"
	"github.com/ukydev/maintenance-tracker/internal/db"
	"github.com/ukydev/maintenance-tracker/internal/middleware"
	"github.com/ukydev/maintenance-tracker/internal/models"
	"github.com/ukydev/maintenance-tracker/internal/recurrence"
	"github.com/ukydev/maintenance-tracker/internal/stage"
	"github.com/ukydev/maintenance-tracker/internal/timer"
)

type maintenanceFixture struct {
	mux *http.ServeMux
	mem *db.Memory
}

func newMaintenanceFixture(t *testing.T) *maintenanceFixture {
	t.Helper()
	mem := db.NewMemory()
	clk := clock.Fixed{T: time.Date(2024, time.June, 12, 10, 0, 0, 0, time.UTC)}

	gen := &recurrence.Generator{Plans: mem, Requests: mem, Stages: mem, Assets: mem, Seq: mem, Clock: clk}
	timerService := &timer.Service{Requests: mem, Segments: mem, Stages: mem, Causes: mem, Clock: clk}
	guard := &stage.Guard{Requests: mem, Stages: mem, Plans: mem, Assets: mem, Gen: gen, Clock: clk}

	handler := &MaintenanceHandler{
		Plans:    mem,
		Requests: mem,
		Segments: mem,
		Causes:   mem,
		Assets:   mem,
		Stages:   mem,
		Seq:      mem,
		Gen:      gen,
		Timer:    timerService,
		Guard:    guard,
	}
	mux := http.NewServeMux()
	handler.Register(mux)

	// Well-known stages so stage advancement and confirmation resolve.
	ctx := context.Background()
	for _, s := range []models.Stage{
		{Key: models.StageKeyNew, Name: "New Request", Sequence: 1},
		{Key: models.StageKeyInProgress, Name: "In Progress", Sequence: 2},
		{Key: models.StageKeyReview, Name: "Review", Sequence: 3},
		{Key: models.StageKeyDone, Name: "Done", Sequence: 4, Terminal: true},
		{Key: models.StageKeyCancelled, Name: "Cancelled", Sequence: 5, Terminal: true},
	} {
		if _, err := mem.InsertStage(ctx, s); err != nil {
			t.Fatalf("failed to seed stage: %v", err)
		}
	}
	return &maintenanceFixture{mux: mux, mem: mem}
}

func (f *maintenanceFixture) do(t *testing.T, method, path string, body interface{}, claims *models.Claims) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if claims != nil {
		req = req.WithContext(context.WithValue(req.Context(), middleware.UserContextKey, claims))
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

func (f *maintenanceFixture) seedAsset(t *testing.T) *models.Asset {
	t.Helper()
	asset, err := f.mem.InsertAsset(context.Background(), models.Asset{Name: "Pump", Active: true})
	if err != nil {
		t.Fatalf("failed to seed asset: %v", err)
	}
	return asset
}

func adminClaims() *models.Claims {
	return &models.Claims{UserID: "u1", Username: "admin", Role: models.RoleAdmin}
}

func TestCreatePlanEndpoint(t *testing.T) {
	f := newMaintenanceFixture(t)
	asset := f.seedAsset(t)

	t.Run("assigns a sequence code", func(t *testing.T) {
		w := f.do(t, "POST", "/api/plans", models.Plan{
			AssetID:       asset.ID.Hex(),
			Interval:      1,
			IntervalUnit:  models.UnitMonth,
			HorizonLength: 2,
			HorizonUnit:   models.UnitMonth,
			NextDate:      time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC),
		}, adminClaims())
		assert.Equal(t, http.StatusCreated, w.Code)

		var plan models.Plan
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &plan))
		assert.Equal(t, "MP00001", plan.Code)
		assert.True(t, plan.Active)
	})

	t.Run("rejects a non-positive interval", func(t *testing.T) {
		w := f.do(t, "POST", "/api/plans", models.Plan{AssetID: asset.ID.Hex(), Interval: 0, IntervalUnit: models.UnitMonth}, adminClaims())
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects an unknown interval unit", func(t *testing.T) {
		w := f.do(t, "POST", "/api/plans", models.Plan{AssetID: asset.ID.Hex(), Interval: 1, IntervalUnit: "fortnight"}, adminClaims())
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUpdateAndDeletePlanEndpoints(t *testing.T) {
	f := newMaintenanceFixture(t)
	asset := f.seedAsset(t)

	plan, err := f.mem.InsertPlan(context.Background(), models.Plan{
		Code:          "MP00001",
		AssetID:       asset.ID.Hex(),
		Interval:      1,
		IntervalUnit:  models.UnitMonth,
		HorizonLength: 2,
		HorizonUnit:   models.UnitMonth,
		NextDate:      time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC),
		Active:        true,
	})
	assert.NoError(t, err)
	id := plan.ID.Hex()

	t.Run("partial update keeps stored fields", func(t *testing.T) {
		w := f.do(t, "PUT", "/api/plans/"+id, map[string]interface{}{"interval": 3}, adminClaims())
		assert.Equal(t, http.StatusOK, w.Code)

		updated, err := f.mem.FindPlanByID(context.Background(), id)
		assert.NoError(t, err)
		assert.Equal(t, 3, updated.Interval)
		assert.Equal(t, models.UnitMonth, updated.IntervalUnit)
		assert.Equal(t, "MP00001", updated.Code)
	})

	t.Run("rejects a non-positive interval", func(t *testing.T) {
		w := f.do(t, "PUT", "/api/plans/"+id, map[string]interface{}{"interval": 0}, adminClaims())
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("requests survive plan deletion", func(t *testing.T) {
		planID := id
		_, err := f.mem.InsertRequest(context.Background(), models.Request{
			Code:          "MR00001",
			PlanID:        &planID,
			AssetID:       asset.ID.Hex(),
			Kind:          models.KindPreventive,
			ScheduledDate: time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC),
		})
		assert.NoError(t, err)

		w := f.do(t, "DELETE", "/api/plans/"+id, nil, adminClaims())
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = f.do(t, "GET", "/api/plans/"+id, nil, adminClaims())
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = f.do(t, "GET", "/api/plans/"+id+"/requests", nil, adminClaims())
		assert.Equal(t, http.StatusOK, w.Code)
		var requests []models.Request
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &requests))
		assert.Len(t, requests, 1)
	})
}

func TestGeneratePlanEndpoint(t *testing.T) {
	f := newMaintenanceFixture(t)
	asset := f.seedAsset(t)

	plan, err := f.mem.InsertPlan(context.Background(), models.Plan{
		AssetID:       asset.ID.Hex(),
		Interval:      1,
		IntervalUnit:  models.UnitMonth,
		HorizonLength: 2,
		HorizonUnit:   models.UnitMonth,
		AnchorDate:    time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC),
		NextDate:      time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC),
		Active:        true,
	})
	assert.NoError(t, err)

	w := f.do(t, "POST", "/api/plans/"+plan.ID.Hex()+"/generate", nil, adminClaims())
	assert.Equal(t, http.StatusOK, w.Code)

	var created []models.Request
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Len(t, created, 2)

	t.Run("repeat run creates nothing", func(t *testing.T) {
		w := f.do(t, "POST", "/api/plans/"+plan.ID.Hex()+"/generate", nil, adminClaims())
		assert.Equal(t, http.StatusOK, w.Code)

		var more []models.Request
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &more))
		assert.Empty(t, more)
	})

	t.Run("unknown plan yields 404", func(t *testing.T) {
		w := f.do(t, "POST", "/api/plans/123456789012345678901234/generate", nil, adminClaims())
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestTimerEndpoints(t *testing.T) {
	f := newMaintenanceFixture(t)
	asset := f.seedAsset(t)
	ctx := context.Background()

	w := f.do(t, "POST", "/api/requests", models.Request{AssetID: asset.ID.Hex(), Name: "Broken valve"}, adminClaims())
	assert.Equal(t, http.StatusCreated, w.Code)
	var request models.Request
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &request))
	assert.Equal(t, models.KindCorrective, request.Kind)
	assert.Equal(t, "MR00001", request.Code)
	id := request.ID.Hex()

	w = f.do(t, "POST", "/api/requests/"+id+"/timer/start", nil, adminClaims())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &request))
	assert.Equal(t, models.TimerActive, request.TimerState)

	t.Run("pause without a cause fails", func(t *testing.T) {
		w := f.do(t, "POST", "/api/requests/"+id+"/timer/pause", map[string]string{}, adminClaims())
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	cause, err := f.mem.InsertPauseCause(ctx, models.PauseCause{Name: "lunch", Active: true})
	assert.NoError(t, err)

	w = f.do(t, "POST", "/api/requests/"+id+"/timer/pause", map[string]string{"pause_cause_id": cause.ID.Hex()}, adminClaims())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &request))
	assert.Equal(t, models.TimerPause, request.TimerState)

	w = f.do(t, "POST", "/api/requests/"+id+"/timer/continue", nil, adminClaims())
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, "POST", "/api/requests/"+id+"/timer/finish", nil, adminClaims())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &request))
	assert.Equal(t, models.TimerDone, request.TimerState)

	t.Run("duration endpoint", func(t *testing.T) {
		w := f.do(t, "GET", "/api/requests/"+id+"/duration", nil, adminClaims())
		assert.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp, "duration_hours")
		assert.Contains(t, resp, "duration_display")
	})

	t.Run("segments endpoint", func(t *testing.T) {
		w := f.do(t, "GET", "/api/requests/"+id+"/segments", nil, adminClaims())
		assert.Equal(t, http.StatusOK, w.Code)

		var segments []models.TimeSegment
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &segments))
		assert.Len(t, segments, 3)
	})
}

func TestConfirmEndpoints(t *testing.T) {
	f := newMaintenanceFixture(t)
	asset := f.seedAsset(t)

	newRequest := func(t *testing.T) string {
		w := f.do(t, "POST", "/api/requests", models.Request{AssetID: asset.ID.Hex(), Name: "Inspection"}, adminClaims())
		assert.Equal(t, http.StatusCreated, w.Code)
		var request models.Request
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &request))
		return request.ID.Hex()
	}

	t.Run("confirm finish as admin", func(t *testing.T) {
		id := newRequest(t)
		w := f.do(t, "POST", "/api/requests/"+id+"/confirm-finish", nil, adminClaims())
		assert.Equal(t, http.StatusOK, w.Code)

		var request models.Request
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &request))
		assert.NotNil(t, request.CheckedAt)
	})

	t.Run("confirm cancel twice is rejected", func(t *testing.T) {
		id := newRequest(t)
		w := f.do(t, "POST", "/api/requests/"+id+"/confirm-cancel", nil, adminClaims())
		assert.Equal(t, http.StatusOK, w.Code)

		w = f.do(t, "POST", "/api/requests/"+id+"/confirm-cancel", nil, adminClaims())
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing user context", func(t *testing.T) {
		id := newRequest(t)
		w := f.do(t, "POST", "/api/requests/"+id+"/confirm-finish", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("technician without technical admin gets 403", func(t *testing.T) {
		id := newRequest(t)
		claims := &models.Claims{UserID: "u2", Username: "tech", Role: models.RoleTechnician}
		w := f.do(t, "POST", "/api/requests/"+id+"/confirm-finish", nil, claims)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestAssignStageEndpoint(t *testing.T) {
	f := newMaintenanceFixture(t)
	asset := f.seedAsset(t)

	w := f.do(t, "POST", "/api/requests", models.Request{AssetID: asset.ID.Hex(), Name: "Inspection"}, adminClaims())
	assert.Equal(t, http.StatusCreated, w.Code)
	var request models.Request
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &request))
	id := request.ID.Hex()

	done, err := f.mem.FindStageByKey(context.Background(), models.StageKeyDone)
	assert.NoError(t, err)
	review, err := f.mem.FindStageByKey(context.Background(), models.StageKeyReview)
	assert.NoError(t, err)

	t.Run("board move to a normal stage", func(t *testing.T) {
		w := f.do(t, "POST", "/api/requests/"+id+"/stage", map[string]interface{}{"stage_id": review.ID.Hex()}, adminClaims())
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("board move into terminal is rejected", func(t *testing.T) {
		w := f.do(t, "POST", "/api/requests/"+id+"/stage", map[string]interface{}{"stage_id": done.ID.Hex()}, adminClaims())
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAssetEndpoints(t *testing.T) {
	f := newMaintenanceFixture(t)

	w := f.do(t, "POST", "/api/assets", models.Asset{Name: "Compressor", Active: true}, adminClaims())
	assert.Equal(t, http.StatusCreated, w.Code)
	var asset models.Asset
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &asset))
	assert.Equal(t, models.AssetApproved, asset.ApprovalStatus)

	t.Run("name is required", func(t *testing.T) {
		w := f.do(t, "POST", "/api/assets", models.Asset{}, adminClaims())
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown asset yields 404", func(t *testing.T) {
		w := f.do(t, "GET", "/api/assets/123456789012345678901234", nil, adminClaims())
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("listing returns the asset", func(t *testing.T) {
		w := f.do(t, "GET", "/api/assets", nil, adminClaims())
		assert.Equal(t, http.StatusOK, w.Code)
		var assets []models.Asset
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &assets))
		assert.Len(t, assets, 1)
	})

	t.Run("update keeps the computed approval status", func(t *testing.T) {
		w := f.do(t, "PUT", "/api/assets/"+asset.ID.Hex(), map[string]interface{}{
			"name":            "Compressor B",
			"approval_status": models.AssetUnapproved,
		}, adminClaims())
		assert.Equal(t, http.StatusOK, w.Code)

		updated, err := f.mem.FindAssetByID(context.Background(), asset.ID.Hex())
		assert.NoError(t, err)
		assert.Equal(t, "Compressor B", updated.Name)
		assert.Equal(t, models.AssetApproved, updated.ApprovalStatus)
	})

	t.Run("delete removes the asset", func(t *testing.T) {
		extra, err := f.mem.InsertAsset(context.Background(), models.Asset{Name: "Spare pump", Active: true})
		assert.NoError(t, err)

		w := f.do(t, "DELETE", "/api/assets/"+extra.ID.Hex(), nil, adminClaims())
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = f.do(t, "GET", "/api/assets/"+extra.ID.Hex(), nil, adminClaims())
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("open corrective request blocks approval", func(t *testing.T) {
		w := f.do(t, "POST", "/api/requests", models.Request{AssetID: asset.ID.Hex(), Name: "Leaking seal"}, adminClaims())
		assert.Equal(t, http.StatusCreated, w.Code)
		var request models.Request
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &request))
		assert.NotEmpty(t, request.StageID)

		w = f.do(t, "GET", "/api/assets/"+asset.ID.Hex(), nil, adminClaims())
		assert.Equal(t, http.StatusOK, w.Code)
		var got models.Asset
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, models.AssetUnapproved, got.ApprovalStatus)

		w = f.do(t, "POST", "/api/requests/"+request.ID.Hex()+"/confirm-finish", nil, adminClaims())
		assert.Equal(t, http.StatusOK, w.Code)

		w = f.do(t, "GET", "/api/assets/"+asset.ID.Hex(), nil, adminClaims())
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, models.AssetApproved, got.ApprovalStatus)
	})
}

func TestDeleteRequestCascades(t *testing.T) {
	f := newMaintenanceFixture(t)
	asset := f.seedAsset(t)
	ctx := context.Background()

	w := f.do(t, "POST", "/api/requests", models.Request{AssetID: asset.ID.Hex(), Name: "Inspection"}, adminClaims())
	assert.Equal(t, http.StatusCreated, w.Code)
	var request models.Request
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &request))
	id := request.ID.Hex()

	w = f.do(t, "POST", "/api/requests/"+id+"/timer/start", nil, adminClaims())
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, "DELETE", "/api/requests/"+id, nil, adminClaims())
	assert.Equal(t, http.StatusNoContent, w.Code)

	segments, err := f.mem.FindSegmentsByRequest(ctx, id)
	assert.NoError(t, err)
	assert.Empty(t, segments)

	w = f.do(t, "GET", "/api/requests/"+id, nil, adminClaims())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPauseCauseEndpoints(t *testing.T) {
	f := newMaintenanceFixture(t)

	w := f.do(t, "POST", "/api/pause-causes", models.PauseCause{Name: "Waiting for parts"}, adminClaims())
	assert.Equal(t, http.StatusCreated, w.Code)
	var cause models.PauseCause
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &cause))
	assert.True(t, cause.Active)

	t.Run("name is required", func(t *testing.T) {
		w := f.do(t, "POST", "/api/pause-causes", models.PauseCause{}, adminClaims())
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("listing returns only active causes", func(t *testing.T) {
		w := f.do(t, "GET", "/api/pause-causes", nil, adminClaims())
		assert.Equal(t, http.StatusOK, w.Code)
		var causes []models.PauseCause
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &causes))
		assert.Len(t, causes, 1)
	})

	t.Run("toggle deactivates", func(t *testing.T) {
		w := f.do(t, "POST", "/api/pause-causes/"+cause.ID.Hex()+"/toggle", nil, adminClaims())
		assert.Equal(t, http.StatusOK, w.Code)

		w = f.do(t, "GET", "/api/pause-causes", nil, adminClaims())
		var causes []models.PauseCause
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &causes))
		assert.Empty(t, causes)
	})
}
