package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vthunder/acuity/internal/engine"
	"github.com/vthunder/acuity/internal/ledger"
	"github.com/vthunder/acuity/internal/types"
)

type engineHandler struct {
	engine *engine.Engine
}

type taskRequest struct {
	Task string `json:"task"`
}

type completeRequest struct {
	Task      string                 `json:"task"`       // empty completes the current task
	ElapsedMs *int64                 `json:"elapsed_ms"` // null for untimed
	Source    types.CompletionSource `json:"source"`
}

// Status handles GET /engine/status
func (h *engineHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// History handles GET /engine/history
func (h *engineHandler) History(w http.ResponseWriter, r *http.Request) {
	rng, limit, err := rangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	obs := h.engine.History(rng, limit)
	if obs == nil {
		obs = []types.Observation{}
	}
	writeJSON(w, http.StatusOK, obs)
}

// Report handles GET /engine/report
func (h *engineHandler) Report(w http.ResponseWriter, r *http.Request) {
	rng, _, err := rangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Report(rng, r.URL.Query().Get("task")))
}

// Tasks handles GET /engine/tasks
func (h *engineHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	rng, _, err := rangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tasks := h.engine.Completed(rng)
	if tasks == nil {
		tasks = []types.CompletedTask{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// SetTask handles POST /engine/task
func (h *engineHandler) SetTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h.engine.SetTask(req.Task)
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// Confirm handles POST /engine/confirm
func (h *engineHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h.engine.ConfirmTask(req.Task)
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// Start handles POST /engine/start
func (h *engineHandler) Start(w http.ResponseWriter, r *http.Request) {
	started := h.engine.Start()
	writeJSON(w, http.StatusOK, map[string]any{"started": started, "status": h.engine.Status()})
}

// Stop handles POST /engine/stop
func (h *engineHandler) Stop(w http.ResponseWriter, r *http.Request) {
	stopped := h.engine.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"stopped": stopped, "status": h.engine.Status()})
}

// Complete handles POST /engine/complete
func (h *engineHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Source == "" {
		req.Source = types.SourceAPI
	}

	var (
		ct  types.CompletedTask
		err error
	)
	if strings.TrimSpace(req.Task) == "" {
		ct, err = h.engine.CompleteCurrent(req.Source)
	} else {
		var elapsed *time.Duration
		if req.ElapsedMs != nil {
			d := time.Duration(*req.ElapsedMs) * time.Millisecond
			elapsed = &d
		}
		ct, err = h.engine.CompleteTask(req.Task, elapsed, req.Source)
	}

	switch {
	case errors.Is(err, engine.ErrNoTask), errors.Is(err, ledger.ErrNegativeElapsed):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusCreated, ct)
	}
}

// Events handles GET /engine/events as a server-sent event stream
func (h *engineHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := h.engine.Subscribe(64)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
			flusher.Flush()
		}
	}
}
