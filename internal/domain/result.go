package domain

import "time"

// DefaultMaxRetries — число повторов шага по умолчанию.
const DefaultMaxRetries = 3

// DefaultConcurrencyLimit — размер пула разрешений для пакетного выполнения.
const DefaultConcurrencyLimit = 10

// StepResult — исход одного шага.
//
// Принадлежит WorkflowExecutionResult, в который добавлен.
type StepResult struct {
	StepID   string     `json:"step_id"`
	StepType ActionKind `json:"step_type"`
	Status   StepStatus `json:"status"`

	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	DurationMs int64      `json:"duration_ms"`

	// Data — структурированный результат действия.
	Data           map[string]any `json:"result_data,omitempty"`
	ExtractedData  map[string]any `json:"extracted_data,omitempty"`
	ScreenshotPath string         `json:"screenshot_path,omitempty"`

	// Ошибка — всегда исходная ошибка шага, а не ошибка лечения.
	Error     string    `json:"error_message,omitempty"`
	ErrorKind ErrorKind `json:"error_type,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	// Metadata — healing_applied, healing_session_id, new_steps_count, healing_tier.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewStepResult создаёт результат в статусе PENDING.
func NewStepResult(step *Step) *StepResult {
	return &StepResult{
		StepID:     step.ID,
		StepType:   step.Type,
		Status:     StepPending,
		StartTime:  time.Now(),
		MaxRetries: DefaultMaxRetries,
		Metadata:   make(map[string]any),
	}
}

// MarkRunning переводит шаг в RUNNING.
func (r *StepResult) MarkRunning() {
	r.Status = StepRunning
	r.StartTime = time.Now()
}

// MarkRetry фиксирует повтор шага.
func (r *StepResult) MarkRetry() {
	r.Status = StepRetrying
	r.RetryCount++
}

// MarkSuccess переводит шаг в COMPLETED с результатом.
func (r *StepResult) MarkSuccess(data map[string]any) {
	r.finish(StepCompleted)
	if data != nil {
		r.Data = data
	}
}

// MarkFailed переводит шаг в FAILED с исходной ошибкой.
func (r *StepResult) MarkFailed(msg string, kind ErrorKind) {
	r.finish(StepFailed)
	r.Error = msg
	r.ErrorKind = kind
}

// MarkTimeout переводит шаг в TIMEOUT.
func (r *StepResult) MarkTimeout(msg string) {
	r.finish(StepTimeout)
	r.Error = msg
	r.ErrorKind = ErrorTimeout
}

// MarkCancelled переводит шаг в CANCELLED.
func (r *StepResult) MarkCancelled(msg string) {
	r.finish(StepCancelled)
	r.Error = msg
}

// SetMeta записывает значение в Metadata.
func (r *StepResult) SetMeta(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = value
}

// HealingApplied возвращает true, если шаг завершён через лечение.
func (r *StepResult) HealingApplied() bool {
	v, _ := r.Metadata["healing_applied"].(bool)
	return v
}

func (r *StepResult) finish(status StepStatus) {
	now := time.Now()
	r.Status = status
	r.EndTime = &now
	r.DurationMs = now.Sub(r.StartTime).Milliseconds()
}

// WorkflowExecutionResult — итог одного выполнения workflow.
type WorkflowExecutionResult struct {
	ExecutionID  string          `json:"execution_id"`
	WorkflowName string          `json:"workflow_name"`
	WorkflowPath string          `json:"workflow_path,omitempty"`
	Status       ExecutionStatus `json:"status"`

	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	DurationMs int64      `json:"duration_ms"`

	InputVariables  map[string]any `json:"input_variables,omitempty"`
	OutputVariables map[string]any `json:"output_variables,omitempty"`

	StepResults []*StepResult `json:"step_results"`

	TotalSteps      int     `json:"total_steps"`
	CompletedSteps  int     `json:"completed_steps"`
	SuccessfulSteps int     `json:"successful_steps"`
	FailedSteps     int     `json:"failed_steps"`
	SuccessRate     float64 `json:"success_rate"`

	FailedStepID string `json:"failed_step_id,omitempty"`
	Error        string `json:"error_message,omitempty"`

	// HealingSessions — ID сессий лечения, запущенных в ходе выполнения.
	HealingSessions []string `json:"healing_sessions,omitempty"`
}

// NewWorkflowExecutionResult создаёт результат в статусе RUNNING.
func NewWorkflowExecutionResult(id, name string, totalSteps int, inputs map[string]any) *WorkflowExecutionResult {
	return &WorkflowExecutionResult{
		ExecutionID:    id,
		WorkflowName:   name,
		Status:         ExecutionRunning,
		StartTime:      time.Now(),
		InputVariables: inputs,
		StepResults:    []*StepResult{},
		TotalSteps:     totalSteps,
	}
}

// AddStepResult добавляет результат шага и обновляет счётчики.
//
// completed — любой финальный статус; successful — COMPLETED;
// failed — FAILED, TIMEOUT, CANCELLED.
func (r *WorkflowExecutionResult) AddStepResult(sr *StepResult) {
	r.StepResults = append(r.StepResults, sr)

	if sr.Status.IsTerminal() {
		r.CompletedSteps++
	}
	switch sr.Status {
	case StepCompleted:
		r.SuccessfulSteps++
	case StepFailed, StepTimeout, StepCancelled:
		r.FailedSteps++
	}

	if r.TotalSteps > 0 {
		r.SuccessRate = float64(r.SuccessfulSteps) / float64(r.TotalSteps)
	}
}

// MarkCompleted устанавливает финальный статус и фиксирует длительность.
// Вызывается ровно один раз; повторные вызовы игнорируются.
func (r *WorkflowExecutionResult) MarkCompleted() {
	if r.Status.IsTerminal() {
		return
	}
	switch {
	case r.FailedSteps > 0:
		r.Status = ExecutionFailed
	case r.CompletedSteps == r.TotalSteps:
		r.Status = ExecutionCompleted
	default:
		r.Status = ExecutionFailed
	}
	r.finish()
}

// MarkCancelled завершает выполнение как отменённое.
func (r *WorkflowExecutionResult) MarkCancelled(msg string) {
	if r.Status.IsTerminal() {
		return
	}
	r.Status = ExecutionCancelled
	if r.Error == "" {
		r.Error = msg
	}
	r.finish()
}

// MarkFailed завершает выполнение ошибкой, не связанной с шагом.
func (r *WorkflowExecutionResult) MarkFailed(msg string) {
	if r.Status.IsTerminal() {
		return
	}
	r.Status = ExecutionFailed
	r.Error = msg
	r.finish()
}

func (r *WorkflowExecutionResult) finish() {
	now := time.Now()
	r.EndTime = &now
	r.DurationMs = now.Sub(r.StartTime).Milliseconds()
}

// BatchExecutionResult — итог пакетного выполнения.
type BatchExecutionResult struct {
	BatchID      string          `json:"batch_id"`
	WorkflowName string          `json:"workflow_name"`
	Status       ExecutionStatus `json:"status"`

	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	DurationMs int64      `json:"duration_ms"`

	Executions []*WorkflowExecutionResult `json:"executions"`

	TotalExecutions     int     `json:"total_executions"`
	CompletedExecutions int     `json:"completed_executions"`
	FailedExecutions    int     `json:"failed_executions"`
	SuccessRate         float64 `json:"success_rate"`

	ConcurrencyLimit int `json:"concurrent_limit"`
}

// NewBatchExecutionResult создаёт результат пакета в статусе RUNNING.
func NewBatchExecutionResult(id, name string, total, limit int) *BatchExecutionResult {
	if limit <= 0 {
		limit = DefaultConcurrencyLimit
	}
	return &BatchExecutionResult{
		BatchID:          id,
		WorkflowName:     name,
		Status:           ExecutionRunning,
		StartTime:        time.Now(),
		Executions:       []*WorkflowExecutionResult{},
		TotalExecutions:  total,
		ConcurrencyLimit: limit,
	}
}

// AddExecution добавляет результат выполнения и обновляет счётчики.
func (b *BatchExecutionResult) AddExecution(r *WorkflowExecutionResult) {
	b.Executions = append(b.Executions, r)
	if r.Status == ExecutionCompleted {
		b.CompletedExecutions++
	} else {
		b.FailedExecutions++
	}
	if b.TotalExecutions > 0 {
		b.SuccessRate = float64(b.CompletedExecutions) / float64(b.TotalExecutions)
	}
}

// MarkCompleted устанавливает финальный статус пакета.
// Пакет FAILED, только если ничего не завершилось успешно при наличии ошибок.
func (b *BatchExecutionResult) MarkCompleted() {
	if b.Status.IsTerminal() {
		return
	}
	if b.FailedExecutions > 0 && b.CompletedExecutions == 0 {
		b.Status = ExecutionFailed
	} else {
		b.Status = ExecutionCompleted
	}
	now := time.Now()
	b.EndTime = &now
	b.DurationMs = now.Sub(b.StartTime).Milliseconds()
}
