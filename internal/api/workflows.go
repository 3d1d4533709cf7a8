package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nidhogg/agri-assist/internal/workflow"
)

func (h *Handler) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := cleanQuery(req.Query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate(req.runOptions); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := h.workflows.Create(r.Context(), q, req.run())
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"workflow_id":    st.ID,
		"original_query": st.Query,
		"status":         st.Status,
		"subtasks":       st.Subtasks,
		"total_subtasks": len(st.Subtasks),
	})
}

func (h *Handler) workflowStatus(w http.ResponseWriter, r *http.Request) {
	v, err := h.workflows.Status(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) workflowResult(w http.ResponseWriter, r *http.Request) {
	ans, err := h.workflows.Result(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (h *Handler) stepWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	rec, err := h.workflows.Step(r.Context(), id, index)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) summarizeWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	summary, err := h.workflows.Summarize(r.Context(), id)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"workflow_id": id,
		"summary":     summary,
		"status":      string(workflow.StatusCompleted),
	})
}

func (h *Handler) streamWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	events, err := h.workflows.Stream(r.Context(), id)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}

	h.sendEvents(w, flusher, id, events)
}

// workflowEvents serves the event history kept for a workflow. With
// follow=true the history and every later event are sent as SSE until the
// workflow completes or fails.
func (h *Handler) workflowEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event log not configured")
		return
	}
	id := chi.URLParam(r, "id")
	history, err := h.events.Replay(r.Context(), id)
	if err != nil {
		h.logger.Error("replay workflow events", zap.String("workflow_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read workflow events")
		return
	}
	if len(history) == 0 {
		if _, err := h.workflows.Status(id); err != nil {
			writeError(w, errStatus(err), err.Error())
			return
		}
	}

	if r.URL.Query().Get("follow") != "true" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"workflow_id": id,
			"events":      history,
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	h.sendEvents(w, flusher, id, h.events.Subscribe(r.Context(), id))
}

func (h *Handler) sendEvents(w http.ResponseWriter, flusher http.Flusher, id string, events <-chan workflow.Event) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			h.logger.Warn("encode workflow event", zap.String("workflow_id", id), zap.Error(err))
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		flusher.Flush()
	}
}

func (h *Handler) cleanupWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.workflows.Cleanup(id) {
		writeJSON(w, http.StatusOK, map[string]string{"workflow_id": id, "status": "removed"})
		return
	}
	if _, err := h.workflows.Status(id); err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeError(w, http.StatusConflict, "workflow is processing or finished too recently to remove")
}
