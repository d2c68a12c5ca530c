package api

import (
	"time"

	"github.com/shaiso/Mender/internal/domain"
)

// CreateExecutionRequest — запрос на выполнение workflow.
//
// Непустой Batch делает выполнение пакетным; Inputs при этом игнорируется.
type CreateExecutionRequest struct {
	Workflow     *domain.Workflow `json:"workflow"`
	WorkflowPath string           `json:"workflow_path,omitempty"`
	Inputs       map[string]any   `json:"inputs,omitempty"`
	Batch        []map[string]any `json:"batch,omitempty"`
	Concurrency  int              `json:"concurrency,omitempty"`
}

// ExecutionAcceptedResponse — ответ на принятый запрос.
type ExecutionAcceptedResponse struct {
	ExecutionID  string                 `json:"execution_id"`
	WorkflowName string                 `json:"workflow_name"`
	IsBatch      bool                   `json:"is_batch"`
	Status       domain.ExecutionStatus `json:"status"`
}

// ExecutionResponse — выполнение или пакет; заполнено ровно одно поле.
type ExecutionResponse struct {
	Execution *domain.WorkflowExecutionResult `json:"execution,omitempty"`
	Batch     *domain.BatchExecutionResult    `json:"batch,omitempty"`
}

// HealingSessionResponse — краткое описание сессии лечения.
type HealingSessionResponse struct {
	ID        string               `json:"session_id"`
	Status    domain.HealingStatus `json:"status"`
	Success   bool                 `json:"success"`
	Tier      domain.Tier          `json:"tier,omitempty"`
	ErrorKind domain.ErrorKind     `json:"error_kind"`
	StepID    string               `json:"step_id,omitempty"`
	Goal      string               `json:"goal"`
	Reason    string               `json:"failure_reason,omitempty"`
	StartTime time.Time            `json:"start_time"`
	EndTime   *time.Time           `json:"end_time,omitempty"`

	Actions  []domain.HealingAction `json:"actions"`
	NewSteps []domain.Step          `json:"new_steps"`
}

// HealingFromDomain конвертирует domain.HealingSession в HealingSessionResponse.
func HealingFromDomain(s *domain.HealingSession) HealingSessionResponse {
	return HealingSessionResponse{
		ID:        s.ID,
		Status:    s.Status,
		Success:   s.Success,
		Tier:      s.Tier,
		ErrorKind: s.ErrorContext.Kind,
		StepID:    s.ErrorContext.Step.ID,
		Goal:      s.Goal,
		Reason:    s.Reason,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Actions:   s.Actions,
		NewSteps:  s.NewSteps,
	}
}

// ValidationResponse — итог проверки документа workflow.
type ValidationResponse struct {
	Valid     bool     `json:"valid"`
	Accepted  bool     `json:"accepted"`
	Score     float64  `json:"score"`
	StepCount int      `json:"step_count"`
	Errors    []string `json:"errors"`
	Warnings  []string `json:"warnings"`
}
