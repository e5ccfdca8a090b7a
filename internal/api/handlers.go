package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"sheetsync/internal/models"
)

type enqueueRequest struct {
	Kind    models.OperationKind `json:"kind"`
	StoreID string               `json:"store_id"`
	Range   string               `json:"range"`
	Values  models.Matrix        `json:"values"`
}

type reconcileRequest struct {
	SourceStoreID string `json:"source_store_id"`
	SourceRange   string `json:"source_range"`
	TargetStoreID string `json:"target_store_id"`
	TargetRange   string `json:"target_range"`
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var body enqueueRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	body.StoreID = strings.TrimSpace(body.StoreID)
	body.Range = strings.TrimSpace(body.Range)
	if body.StoreID == "" {
		writeError(w, http.StatusBadRequest, "store_id is required")
		return
	}
	if body.Range == "" {
		writeError(w, http.StatusBadRequest, "range is required")
		return
	}

	if !body.Kind.Valid() {
		writeError(w, http.StatusBadRequest, "kind must be one of read, write, append")
		return
	}
	if body.Kind != models.KindRead && len(body.Values) == 0 {
		writeError(w, http.StatusBadRequest, "values are required for write and append")
		return
	}

	var id models.OperationID
	switch body.Kind {
	case models.KindRead:
		id = s.engine.EnqueueRead(body.StoreID, body.Range)
	case models.KindWrite:
		id = s.engine.EnqueueWrite(body.StoreID, body.Range, body.Values)
	case models.KindAppend:
		id = s.engine.EnqueueAppend(body.StoreID, body.Range, body.Values)
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *HTTPServer) handleListOperations(w http.ResponseWriter, r *http.Request) {
	raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	if raw == "" {
		writeJSON(w, http.StatusOK, map[string]any{"operations": s.engine.Snapshot().Ledger})
		return
	}

	status := models.OperationStatus(raw)
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	ops := s.engine.ByStatus(status)
	if ops == nil {
		ops = []models.Operation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": ops})
}

func (s *HTTPServer) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	op, ok := s.engine.Get(models.OperationID(r.PathValue("id")))
	if !ok {
		writeError(w, http.StatusNotFound, "operation not found")
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	cancelled := s.engine.Cancel(models.OperationID(r.PathValue("id")))
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (s *HTTPServer) handleResubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.engine.Resubmit(models.OperationID(r.PathValue("id")))
	if !ok {
		writeError(w, http.StatusConflict, "only failed operations can be resubmitted")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *HTTPServer) handleClearCompleted(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"cleared": s.engine.ClearCompleted()})
}

// handleDrain starts a drain that outlives the request. A drain already in
// progress makes the new one a no-op.
func (s *HTTPServer) handleDrain(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	go s.engine.Drain(ctx)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "draining"})
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"is_active":                state.IsActive,
		"last_successful_drain_at": state.LastSuccessfulDrainAt,
		"config":                   state.Config,
		"queue_length":             state.QueueLength,
		"counts":                   state.CountByStatus(),
		"taken_at":                 state.TakenAt,
	})
}

func (s *HTTPServer) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var patch models.SyncConfigPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.engine.Configure(patch); err != nil {
		if models.CodeOf(err) == models.CodeConfigurationError {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot().Config)
}

func (s *HTTPServer) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var body reconcileRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.SourceStoreID == "" || body.SourceRange == "" || body.TargetStoreID == "" || body.TargetRange == "" {
		writeError(w, http.StatusBadRequest, "source and target store_id and range are required")
		return
	}

	result, err := s.engine.Reconcile(r.Context(), body.SourceStoreID, body.SourceRange, body.TargetStoreID, body.TargetRange)
	if err != nil {
		var opErr *models.OperationError
		if errors.As(err, &opErr) && opErr.Code == models.CodeReconciliationReadError {
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "code": opErr.Code})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "operation archive is not configured")
		return
	}
	limit := models.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	ops, err := s.archive.ListArchivedOperations(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list archived operations")
		writeError(w, http.StatusInternalServerError, "failed to read archive")
		return
	}
	if ops == nil {
		ops = []models.Operation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": ops})
}
