package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vthunder/acuity/internal/types"
)

type backendHandler struct {
	store Store
}

// AppendObservation handles POST /api/observations
func (h *backendHandler) AppendObservation(w http.ResponseWriter, r *http.Request) {
	var obs types.Observation
	if err := decodeJSON(r, &obs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if obs.ID == "" {
		obs.ID = uuid.NewString()
	}
	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now()
	}
	if err := h.store.AppendObservation(r.Context(), obs); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": obs.ID})
}

// History handles GET /api/history
func (h *backendHandler) History(w http.ResponseWriter, r *http.Request) {
	rng, limit, err := rangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	obs, err := h.store.Observations(r.Context(), rng, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if obs == nil {
		obs = []types.Observation{}
	}
	writeJSON(w, http.StatusOK, obs)
}

// AppendTask handles POST /api/tasks
func (h *backendHandler) AppendTask(w http.ResponseWriter, r *http.Request) {
	var ct types.CompletedTask
	if err := decodeJSON(r, &ct); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(ct.Task) == "" {
		writeError(w, http.StatusBadRequest, "task is required")
		return
	}
	if ct.ID == "" {
		ct.ID = uuid.NewString()
	}
	if ct.CompletedAt.IsZero() {
		ct.CompletedAt = time.Now()
	}
	if err := h.store.AppendCompletedTask(r.Context(), ct); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": ct.ID})
}

// Tasks handles GET /api/tasks
func (h *backendHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	rng, _, err := rangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tasks, err := h.store.CompletedTasks(r.Context(), rng)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []types.CompletedTask{}
	}
	writeJSON(w, http.StatusOK, tasks)
}
