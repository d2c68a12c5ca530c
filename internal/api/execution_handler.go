package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/Mender/internal/audit"
	"github.com/shaiso/Mender/internal/domain"
	"github.com/shaiso/Mender/internal/engine"
	"github.com/shaiso/Mender/internal/mq"
	"github.com/shaiso/Mender/internal/telemetry"
)

// Максимальный размер списка за один запрос.
const maxListLimit = 500

// CreateExecution ставит выполнение workflow в очередь.
// POST /api/v1/executions
func (h *Handler) CreateExecution(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		Unavailable(w, "execution queue is not configured")
		return
	}

	var req CreateExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Workflow == nil {
		BadRequest(w, "workflow is required")
		return
	}
	if err := engine.Validate(req.Workflow); err != nil {
		InvalidState(w, err.Error())
		return
	}
	if req.Concurrency < 0 || req.Concurrency > maxListLimit {
		BadRequest(w, "invalid concurrency")
		return
	}

	payload := mq.ExecutionRequestedPayload{
		ExecutionID:  uuid.NewString(),
		Workflow:     req.Workflow,
		WorkflowPath: req.WorkflowPath,
		Concurrency:  req.Concurrency,
	}
	if len(req.Batch) > 0 {
		payload.Batch = true
		payload.Inputs = req.Batch
	} else {
		// обязательные переменные проверяются до постановки в очередь
		if _, err := engine.ResolveVariables(req.Workflow, req.Inputs); err != nil {
			InvalidState(w, err.Error())
			return
		}
		payload.Inputs = []map[string]any{req.Inputs}
	}

	if err := h.queue.PublishExecutionRequested(r.Context(), payload); err != nil {
		InternalError(w, r, err)
		return
	}

	telemetry.FromContext(r.Context()).Info("execution requested",
		"execution_id", payload.ExecutionID,
		"workflow", req.Workflow.Name,
		"batch", payload.Batch,
	)

	Accepted(w, ExecutionAcceptedResponse{
		ExecutionID:  payload.ExecutionID,
		WorkflowName: req.Workflow.Name,
		IsBatch:      payload.Batch,
		Status:       domain.ExecutionPending,
	})
}

// ListExecutions возвращает сводки выполнений, новые первыми.
// GET /api/v1/executions?workflow=...&limit=...
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	filter := audit.ExecutionFilter{
		WorkflowName: r.URL.Query().Get("workflow"),
		Limit:        audit.DefaultListLimit,
	}

	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 || limit > maxListLimit {
			BadRequest(w, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	items, err := h.executions.ListExecutions(r.Context(), filter)
	if HandleRepoError(w, r, err, "") {
		return
	}
	if items == nil {
		items = []audit.ExecutionSummary{}
	}

	List(w, items, len(items))
}

// GetExecution возвращает выполнение или пакет по ID.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.loadExecution(w, r)
	if !ok {
		return
	}
	Success(w, resp)
}

// ListExecutionHealing возвращает сессии лечения, запущенные выполнением.
// GET /api/v1/executions/{id}/healing
func (h *Handler) ListExecutionHealing(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.loadExecution(w, r)
	if !ok {
		return
	}

	var ids []string
	if resp.Execution != nil {
		ids = resp.Execution.HealingSessions
	} else {
		for _, e := range resp.Batch.Executions {
			ids = append(ids, e.HealingSessions...)
		}
	}

	logger := telemetry.FromContext(r.Context())
	sessions := make([]HealingSessionResponse, 0, len(ids))
	for _, id := range ids {
		s, err := h.healing.GetHealing(r.Context(), id)
		if isNotFound(err) {
			// сессия могла быть удалена очисткой аудита
			logger.Warn("healing session missing", "session_id", id)
			continue
		}
		if err != nil {
			InternalError(w, r, err)
			return
		}
		sessions = append(sessions, HealingFromDomain(s))
	}

	List(w, sessions, len(sessions))
}

// loadExecution ищет ID сначала среди одиночных выполнений, затем среди пакетов.
func (h *Handler) loadExecution(w http.ResponseWriter, r *http.Request) (ExecutionResponse, bool) {
	id := r.PathValue("id")
	if id == "" {
		BadRequest(w, "invalid execution id")
		return ExecutionResponse{}, false
	}

	exec, err := h.executions.GetExecution(r.Context(), id)
	if err == nil {
		return ExecutionResponse{Execution: exec}, true
	}
	if !isNotFound(err) {
		InternalError(w, r, err)
		return ExecutionResponse{}, false
	}

	batch, err := h.executions.GetBatch(r.Context(), id)
	if HandleRepoError(w, r, err, "execution not found") {
		return ExecutionResponse{}, false
	}
	return ExecutionResponse{Batch: batch}, true
}
