package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shaiso/Mender/internal/audit"
	"github.com/shaiso/Mender/internal/domain"
	"github.com/shaiso/Mender/internal/mq"
	"github.com/shaiso/Mender/internal/telemetry"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeQueue struct {
	payloads []mq.ExecutionRequestedPayload
	err      error
}

func (q *fakeQueue) PublishExecutionRequested(_ context.Context, p mq.ExecutionRequestedPayload) error {
	if q.err != nil {
		return q.err
	}
	q.payloads = append(q.payloads, p)
	return nil
}

type testServer struct {
	mux   *http.ServeMux
	store *audit.FileStore
	queue *fakeQueue
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := audit.NewFileStore(audit.Config{FS: afero.NewMemMapFs(), Dir: "logs", Logger: discard})
	queue := &fakeQueue{}
	h := NewHandler(Config{Executions: store, Healing: store, Queue: queue, Logger: discard})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return &testServer{mux: mux, store: store, queue: queue}
}

func (s *testServer) do(t *testing.T, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func searchWorkflow() *domain.Workflow {
	return &domain.Workflow{
		Name: "search",
		Steps: []domain.Step{
			{ID: "open", Type: domain.ActionNavigate, URL: "https://example.com"},
			{ID: "query", Type: domain.ActionFill, Selector: "#q", Value: "${query}"},
		},
		Variables: map[string]domain.Variable{
			"query": {Name: "query", Required: true},
		},
	}
}

func TestCreateExecution(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/executions", "application/json", mustJSON(t, CreateExecutionRequest{
		Workflow: searchWorkflow(),
		Inputs:   map[string]any{"query": "go"},
	}))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	resp := decodeData[ExecutionAcceptedResponse](t, rec)
	assert.NotEmpty(t, resp.ExecutionID)
	assert.Equal(t, domain.ExecutionPending, resp.Status)
	assert.False(t, resp.IsBatch)

	require.Len(t, s.queue.payloads, 1)
	p := s.queue.payloads[0]
	assert.Equal(t, resp.ExecutionID, p.ExecutionID)
	assert.False(t, p.Batch)
	assert.Equal(t, []map[string]any{{"query": "go"}}, p.Inputs)
}

func TestCreateExecution_Batch(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/executions", "application/json", mustJSON(t, CreateExecutionRequest{
		Workflow:    searchWorkflow(),
		Batch:       []map[string]any{{"query": "a"}, {"query": "b"}},
		Concurrency: 2,
	}))
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, s.queue.payloads, 1)
	assert.True(t, s.queue.payloads[0].Batch)
	assert.Len(t, s.queue.payloads[0].Inputs, 2)
	assert.Equal(t, 2, s.queue.payloads[0].Concurrency)
}

func TestCreateExecution_Rejected(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body []byte
		code int
	}{
		{"malformed body", []byte("{"), http.StatusBadRequest},
		{"no workflow", mustJSON(t, CreateExecutionRequest{}), http.StatusBadRequest},
		{"no steps", mustJSON(t, CreateExecutionRequest{Workflow: &domain.Workflow{Name: "x"}}), http.StatusUnprocessableEntity},
		{"missing variable", mustJSON(t, CreateExecutionRequest{Workflow: searchWorkflow()}), http.StatusUnprocessableEntity},
		{"bad concurrency", mustJSON(t, CreateExecutionRequest{Workflow: searchWorkflow(), Concurrency: -1}), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/executions", "application/json", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, s.queue.payloads)
}

func TestCreateExecution_QueueErrors(t *testing.T) {
	s := newTestServer(t)
	s.queue.err = errors.New("broker down")

	body := mustJSON(t, CreateExecutionRequest{Workflow: searchWorkflow(), Inputs: map[string]any{"query": "go"}})
	rec := s.do(t, http.MethodPost, "/api/v1/executions", "application/json", body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	h := NewHandler(Config{Executions: s.store, Healing: s.store, Logger: discard})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/executions", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func saveExecution(t *testing.T, store *audit.FileStore, id string, sessions ...string) *domain.WorkflowExecutionResult {
	t.Helper()
	r := domain.NewWorkflowExecutionResult(id, "search", 1, nil)
	sr := domain.NewStepResult(&domain.Step{ID: "open", Type: domain.ActionNavigate})
	sr.MarkSuccess(nil)
	r.AddStepResult(sr)
	r.HealingSessions = sessions
	r.MarkCompleted()
	require.NoError(t, store.SaveExecution(context.Background(), r))
	return r
}

func TestGetExecution(t *testing.T) {
	s := newTestServer(t)
	saveExecution(t, s.store, "exec-1")

	rec := s.do(t, http.MethodGet, "/api/v1/executions/exec-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeData[ExecutionResponse](t, rec)
	require.NotNil(t, resp.Execution)
	assert.Nil(t, resp.Batch)
	assert.Equal(t, domain.ExecutionCompleted, resp.Execution.Status)

	rec = s.do(t, http.MethodGet, "/api/v1/executions/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetExecution_Batch(t *testing.T) {
	s := newTestServer(t)

	b := domain.NewBatchExecutionResult("batch-1", "search", 1, 2)
	b.AddExecution(saveExecution(t, s.store, "exec-1"))
	b.MarkCompleted()
	require.NoError(t, s.store.SaveBatch(context.Background(), b))

	rec := s.do(t, http.MethodGet, "/api/v1/executions/batch-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeData[ExecutionResponse](t, rec)
	require.NotNil(t, resp.Batch)
	assert.Equal(t, 1, resp.Batch.CompletedExecutions)
}

func TestListExecutions(t *testing.T) {
	s := newTestServer(t)
	saveExecution(t, s.store, "exec-1")
	saveExecution(t, s.store, "exec-2")

	rec := s.do(t, http.MethodGet, "/api/v1/executions?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeData[[]audit.ExecutionSummary](t, rec)
	assert.Len(t, items, 1)

	rec = s.do(t, http.MethodGet, "/api/v1/executions?workflow=other", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeData[[]audit.ExecutionSummary](t, rec))

	rec = s.do(t, http.MethodGet, "/api/v1/executions?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListExecutionHealing(t *testing.T) {
	s := newTestServer(t)

	hs := domain.NewHealingSession("hs-1", domain.ErrorContext{
		Kind: domain.ErrorTimeout,
		Step: domain.Step{ID: "submit"},
	}, "click submit")
	hs.MarkSucceeded(domain.TierHeuristic, []domain.Step{{ID: "submit_healed", Type: domain.ActionClick, Selector: "button"}}, nil)
	require.NoError(t, s.store.SaveHealing(context.Background(), hs))

	saveExecution(t, s.store, "exec-1", "hs-1", "hs-gone")

	rec := s.do(t, http.MethodGet, "/api/v1/executions/exec-1/healing", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	sessions := decodeData[[]HealingSessionResponse](t, rec)
	require.Len(t, sessions, 1)
	assert.Equal(t, "hs-1", sessions[0].ID)
	assert.Equal(t, domain.TierHeuristic, sessions[0].Tier)
	assert.Equal(t, "submit", sessions[0].StepID)
	assert.Len(t, sessions[0].NewSteps, 1)
}

func TestValidateWorkflow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/workflows/validate", "application/json", mustJSON(t, searchWorkflow()))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[ValidationResponse](t, rec)
	assert.True(t, resp.Valid)
	assert.True(t, resp.Accepted)
	assert.Equal(t, 2, resp.StepCount)
	assert.InDelta(t, 1.0, resp.Score, 1e-9)

	yamlDoc := strings.Join([]string{
		"name: broken",
		"steps:",
		"  - id: go",
		"    type: navigate",
		"  - id: go",
		"    type: click",
	}, "\n")
	rec = s.do(t, http.MethodPost, "/api/v1/workflows/validate", "application/yaml", []byte(yamlDoc))
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeData[ValidationResponse](t, rec)
	assert.False(t, resp.Valid)
	assert.Equal(t, 2, resp.StepCount)
	require.NotEmpty(t, resp.Errors)
	assert.Contains(t, resp.Errors[0], "duplicate step ID")

	rec = s.do(t, http.MethodPost, "/api/v1/workflows/validate", "application/json", []byte("not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecovery(t *testing.T) {
	h := Recovery(discard)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLogging_RequestID(t *testing.T) {
	var seen *slog.Logger
	h := Logging(discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = telemetry.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))
	assert.NotSame(t, slog.Default(), seen)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}
