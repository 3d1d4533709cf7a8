package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/nidhogg/agri-assist/internal/workflow"
)

type queryRequest struct {
	Query string `json:"query"`
	runOptions
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
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

	ans, err := h.workflows.Answer(r.Context(), q, req.run())
	if err != nil {
		h.logger.Error("answer query", zap.Error(err))
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

type batchRequest struct {
	Queries []string `json:"queries"`
	runOptions
}

func (h *Handler) queryBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Queries) == 0 || len(req.Queries) > workflow.MaxBatch {
		writeError(w, http.StatusBadRequest, workflow.ErrBatchSize.Error())
		return
	}
	queries := make([]string, len(req.Queries))
	for i, q := range req.Queries {
		c, err := cleanQuery(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		queries[i] = c
	}
	if err := h.validate(req.runOptions); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.workflows.Batch(r.Context(), queries, req.run())
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
