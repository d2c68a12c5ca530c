package domain

// StepStatus — статус выполнения шага.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ FAILED | TIMEOUT → (лечение) → COMPLETED | FAILED
//	                  ↘ RETRYING → RUNNING
//	          (или) → CANCELLED
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepCancelled StepStatus = "cancelled"
	StepTimeout   StepStatus = "timeout"
	StepRetrying  StepStatus = "retrying"
)

// IsTerminal возвращает true, если статус финальный.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepCancelled, StepTimeout:
		return true
	default:
		return false
	}
}

// ExecutionStatus — статус выполнения workflow или пакета.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// IsTerminal возвращает true, если статус финальный.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	default:
		return false
	}
}

// HealingStatus — статус сессии лечения.
//
// Жизненный цикл:
//
//	NOT_STARTED → IN_PROGRESS → SUCCESS | FAILED | SKIPPED
type HealingStatus string

const (
	HealingNotStarted HealingStatus = "not_started"
	HealingInProgress HealingStatus = "in_progress"
	HealingSuccess    HealingStatus = "success"
	HealingFailed     HealingStatus = "failed"
	HealingSkipped    HealingStatus = "skipped"
)

// IsTerminal возвращает true, если статус финальный.
func (s HealingStatus) IsTerminal() bool {
	switch s {
	case HealingSuccess, HealingFailed, HealingSkipped:
		return true
	default:
		return false
	}
}
