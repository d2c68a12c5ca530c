package mq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Mender/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeExecutionRequested MessageType = "execution.requested"
	MessageTypeExecutionCompleted MessageType = "execution.completed"
	MessageTypeHealingCompleted   MessageType = "healing.completed"
)

// Message — конверт сообщения.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

func newMessage(t MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// ExecutionRequestedPayload — запрос на выполнение workflow.
//
// Inputs с одним элементом и Batch=false — одиночное выполнение.
type ExecutionRequestedPayload struct {
	ExecutionID  string           `json:"execution_id"`
	Workflow     *domain.Workflow `json:"workflow"`
	WorkflowPath string           `json:"workflow_path,omitempty"`
	Inputs       []map[string]any `json:"inputs,omitempty"`
	Batch        bool             `json:"batch,omitempty"`
	Concurrency  int              `json:"concurrency,omitempty"`
}

// ExecutionCompletedPayload — итог выполнения или пакета.
type ExecutionCompletedPayload struct {
	ExecutionID     string                 `json:"execution_id"`
	WorkflowName    string                 `json:"workflow_name"`
	IsBatch         bool                   `json:"is_batch"`
	Status          domain.ExecutionStatus `json:"status"`
	SuccessRate     float64                `json:"success_rate"`
	DurationMs      int64                  `json:"duration_ms"`
	FailedStepID    string                 `json:"failed_step_id,omitempty"`
	Error           string                 `json:"error,omitempty"`
	HealingSessions []string               `json:"healing_sessions,omitempty"`
}

// ExecutionCompleted собирает событие из результата выполнения.
func ExecutionCompleted(r *domain.WorkflowExecutionResult) ExecutionCompletedPayload {
	return ExecutionCompletedPayload{
		ExecutionID:     r.ExecutionID,
		WorkflowName:    r.WorkflowName,
		Status:          r.Status,
		SuccessRate:     r.SuccessRate,
		DurationMs:      r.DurationMs,
		FailedStepID:    r.FailedStepID,
		Error:           r.Error,
		HealingSessions: r.HealingSessions,
	}
}

// BatchCompleted собирает событие из результата пакета.
func BatchCompleted(b *domain.BatchExecutionResult) ExecutionCompletedPayload {
	p := ExecutionCompletedPayload{
		ExecutionID:  b.BatchID,
		WorkflowName: b.WorkflowName,
		IsBatch:      true,
		Status:       b.Status,
		SuccessRate:  b.SuccessRate,
		DurationMs:   b.DurationMs,
	}
	for _, r := range b.Executions {
		p.HealingSessions = append(p.HealingSessions, r.HealingSessions...)
	}
	return p
}

// HealingCompletedPayload — итог сессии лечения.
type HealingCompletedPayload struct {
	SessionID string               `json:"session_id"`
	Status    domain.HealingStatus `json:"status"`
	Success   bool                 `json:"success"`
	Tier      domain.Tier          `json:"tier,omitempty"`
	ErrorKind domain.ErrorKind     `json:"error_kind"`
	StepID    string               `json:"step_id,omitempty"`
	NewSteps  int                  `json:"new_steps"`
	Reason    string               `json:"reason,omitempty"`
}

// HealingCompleted собирает событие из сессии лечения.
func HealingCompleted(s *domain.HealingSession) HealingCompletedPayload {
	return HealingCompletedPayload{
		SessionID: s.ID,
		Status:    s.Status,
		Success:   s.Success,
		Tier:      s.Tier,
		ErrorKind: s.ErrorContext.Kind,
		StepID:    s.ErrorContext.Step.ID,
		NewSteps:  len(s.NewSteps),
		Reason:    s.Reason,
	}
}

// ParsePayload парсит payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// После json.Unmarshal конверта payload — map[string]any.
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
