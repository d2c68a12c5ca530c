package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Mender/internal/domain"
	"github.com/shaiso/Mender/internal/driver"
	"github.com/shaiso/Mender/internal/driver/drivertest"
	"github.com/shaiso/Mender/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memExecutions struct {
	mu         sync.Mutex
	executions []*domain.WorkflowExecutionResult
	batches    []*domain.BatchExecutionResult
}

func (m *memExecutions) SaveExecution(_ context.Context, r *domain.WorkflowExecutionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = append(m.executions, r)
	return nil
}

func (m *memExecutions) SaveBatch(_ context.Context, b *domain.BatchExecutionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, b)
	return nil
}

func searchWorkflow() *domain.Workflow {
	return &domain.Workflow{
		Name:    "search",
		Timeout: 1000,
		Variables: map[string]domain.Variable{
			"query": {Name: "query", Required: true},
			"site":  {Name: "site", Default: "example.test"},
		},
		Steps: []domain.Step{
			{ID: "open", Type: domain.ActionNavigate, URL: "https://${site}/"},
			{ID: "type", Type: domain.ActionFill, Selector: "#q", Value: "${query}"},
			{ID: "go", Type: domain.ActionClick, Selector: "#go"},
			{ID: "title", Type: domain.ActionExtract, Selector: "h1"},
		},
	}
}

func newRunner(l driver.Launcher, store ExecutionStore, limit int) *Runner {
	return NewRunner(RunnerConfig{
		Launcher:         l,
		Steps:            newExecutor(Config{}),
		Store:            store,
		ConcurrencyLimit: limit,
		Logger:           discard,
	})
}

func TestRun_Completed(t *testing.T) {
	launcher := &drivertest.Launcher{Setup: func(d *drivertest.Driver) {
		d.Texts["h1"] = []string{"Results"}
	}}
	store := &memExecutions{}
	r := newRunner(launcher, store, 0)

	res, err := r.Run(context.Background(), searchWorkflow(), RunOptions{
		ExecutionID: "exec-1",
		Inputs:      map[string]any{"query": "golang"},
	})
	require.NoError(t, err)

	assert.Equal(t, "exec-1", res.ExecutionID)
	assert.Equal(t, domain.ExecutionCompleted, res.Status)
	assert.Equal(t, 4, res.TotalSteps)
	assert.Equal(t, 4, res.SuccessfulSteps)
	assert.Equal(t, 1.0, res.SuccessRate)
	assert.Equal(t, "golang", res.OutputVariables["query"])
	assert.Equal(t, "example.test", res.OutputVariables["site"])
	assert.Equal(t, []string{"Results"}, res.OutputVariables["extracted_title"])

	drivers := launcher.Drivers()
	require.Len(t, drivers, 1)
	assert.Equal(t, []string{"navigate https://example.test/", "fill #q", "click #go", "extract h1"}, drivers[0].Ops())
	assert.True(t, drivers[0].Closed())
	assert.Zero(t, launcher.Active())

	require.Len(t, store.executions, 1)
	assert.Same(t, res, store.executions[0])
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	launcher := &drivertest.Launcher{Setup: func(d *drivertest.Driver) {
		d.On("fill", "#q", drivertest.Fail(
			driver.NewError("fill", "#q", driver.KindPermission, errors.New("readonly")),
		))
	}}
	r := newRunner(launcher, nil, 0)

	res, err := r.Run(context.Background(), searchWorkflow(), RunOptions{Inputs: map[string]any{"query": "x"}})
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionFailed, res.Status)
	assert.Equal(t, "type", res.FailedStepID)
	assert.Contains(t, res.Error, "permission denied")
	assert.Len(t, res.StepResults, 2)
	assert.Equal(t, 1, res.SuccessfulSteps)
	assert.Equal(t, 1, res.FailedSteps)
	assert.InDelta(t, 0.25, res.SuccessRate, 1e-9)
	assert.Empty(t, res.HealingSessions)
}

func TestRun_MissingVariable(t *testing.T) {
	launcher := &drivertest.Launcher{}
	r := newRunner(launcher, nil, 0)

	res, err := r.Run(context.Background(), searchWorkflow(), RunOptions{})
	require.ErrorIs(t, err, engine.ErrMissingVariable)
	assert.Equal(t, domain.ExecutionFailed, res.Status)
	assert.Empty(t, launcher.Drivers())
}

func TestRun_LaunchFailure(t *testing.T) {
	launcher := &drivertest.Launcher{Err: errors.New("chrome not found")}
	r := newRunner(launcher, nil, 0)

	res, err := r.Run(context.Background(), searchWorkflow(), RunOptions{Inputs: map[string]any{"query": "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chrome not found")
	assert.Equal(t, domain.ExecutionFailed, res.Status)
}

func TestRun_NoLauncher(t *testing.T) {
	r := NewRunner(RunnerConfig{Logger: discard})

	_, err := r.Run(context.Background(), searchWorkflow(), RunOptions{Inputs: map[string]any{"query": "x"}})
	require.ErrorIs(t, err, ErrNoLauncher)
}

func TestRun_Cancelled(t *testing.T) {
	launcher := &drivertest.Launcher{Setup: func(d *drivertest.Driver) {
		d.On("click", "#go", drivertest.Block)
	}}
	r := newRunner(launcher, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	res, err := r.Run(ctx, searchWorkflow(), RunOptions{Inputs: map[string]any{"query": "x"}})
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionCancelled, res.Status)
	require.Len(t, res.StepResults, 3)
	assert.Equal(t, domain.StepCancelled, res.StepResults[2].Status)
	assert.Zero(t, launcher.Active())
}

func TestBatch_RespectsConcurrencyLimit(t *testing.T) {
	launcher := &drivertest.Launcher{Setup: func(d *drivertest.Driver) {
		d.On("click", "#go", drivertest.Sleep(20*time.Millisecond))
	}}
	store := &memExecutions{}
	r := newRunner(launcher, store, 5)

	inputs := make([]map[string]any, 20)
	for i := range inputs {
		inputs[i] = map[string]any{"query": "q", "n": i}
	}

	batch, err := r.Batch(context.Background(), searchWorkflow(), BatchOptions{Inputs: inputs})
	require.NoError(t, err)

	assert.LessOrEqual(t, launcher.MaxActive(), 5)
	assert.Len(t, launcher.Drivers(), 20)
	assert.Zero(t, launcher.Active())

	assert.Equal(t, domain.ExecutionCompleted, batch.Status)
	assert.Equal(t, 5, batch.ConcurrencyLimit)
	assert.Equal(t, 20, batch.TotalExecutions)
	assert.Equal(t, 20, batch.CompletedExecutions)
	assert.Equal(t, 1.0, batch.SuccessRate)
	require.Len(t, batch.Executions, 20)
	for i, exec := range batch.Executions {
		assert.Equal(t, i, exec.InputVariables["n"])
	}

	assert.Len(t, store.executions, 20)
	require.Len(t, store.batches, 1)
}

func TestBatch_PartialFailure(t *testing.T) {
	launcher := &drivertest.Launcher{}
	r := newRunner(launcher, nil, 2)

	batch, err := r.Batch(context.Background(), searchWorkflow(), BatchOptions{
		Inputs: []map[string]any{{"query": "a"}, {}, {"query": "c"}},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionCompleted, batch.Status)
	assert.Equal(t, 2, batch.CompletedExecutions)
	assert.Equal(t, 1, batch.FailedExecutions)
	assert.Equal(t, domain.ExecutionFailed, batch.Executions[1].Status)
}

func TestBatch_Cancelled(t *testing.T) {
	launcher := &drivertest.Launcher{Setup: func(d *drivertest.Driver) {
		d.On("click", "#go", drivertest.Block)
	}}
	r := newRunner(launcher, nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	batch, err := r.Batch(ctx, searchWorkflow(), BatchOptions{
		Inputs: []map[string]any{{"query": "a"}, {"query": "b"}, {"query": "c"}},
	})
	require.NoError(t, err)

	require.Len(t, batch.Executions, 3)
	for _, exec := range batch.Executions {
		assert.Equal(t, domain.ExecutionCancelled, exec.Status)
	}
	assert.Equal(t, domain.ExecutionFailed, batch.Status)
	assert.LessOrEqual(t, launcher.MaxActive(), 1)
}

func TestBatch_Empty(t *testing.T) {
	r := newRunner(&drivertest.Launcher{}, nil, 0)
	_, err := r.Batch(context.Background(), searchWorkflow(), BatchOptions{})
	require.ErrorIs(t, err, ErrEmptyBatch)
}
