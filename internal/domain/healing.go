package domain

import "time"

// Tier — уровень стратегии лечения, давший замену.
type Tier string

const (
	TierAI        Tier = "ai"
	TierHeuristic Tier = "heuristic"
)

// HealingAction — запись об одном сгенерированном действии лечения.
//
// Success выставляется только после того, как созданный шаг
// реально выполнился успешно.
type HealingAction struct {
	ID          string       `json:"action_id"`
	Timestamp   time.Time    `json:"timestamp"`
	Type        ActionKind   `json:"action_type"`
	StepID      string       `json:"step_id,omitempty"`
	Selector    string       `json:"selector,omitempty"`
	Value       string       `json:"value,omitempty"`
	Coords      *Coordinates `json:"coordinates,omitempty"`
	Description string       `json:"description"`
	Success     bool         `json:"success"`
}

// HealingSession — запись одной попытки лечения и её исхода.
//
// Переходит в финальный статус ровно один раз.
type HealingSession struct {
	ID           string       `json:"session_id"`
	ErrorContext ErrorContext `json:"error_context"`
	Goal         string       `json:"healing_goal"`

	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	Actions  []HealingAction `json:"healing_actions"`
	Status   HealingStatus   `json:"status"`
	Success  bool            `json:"success"`
	Tier     Tier            `json:"tier,omitempty"`
	Reason   string          `json:"failure_reason,omitempty"`
	NewSteps []Step          `json:"new_steps"`

	// Alternatives — NewSteps являются взаимоисключающими кандидатами:
	// выполняются по порядку до первого успешного.
	Alternatives bool `json:"alternatives,omitempty"`
}

// NewHealingSession создаёт сессию в статусе IN_PROGRESS.
func NewHealingSession(id string, ec ErrorContext, goal string) *HealingSession {
	return &HealingSession{
		ID:           id,
		ErrorContext: ec,
		Goal:         goal,
		StartTime:    time.Now(),
		Status:       HealingInProgress,
		Actions:      []HealingAction{},
		NewSteps:     []Step{},
	}
}

// MarkSucceeded завершает сессию успехом с заменяющими шагами.
// Повторный вызов после финального статуса игнорируется.
func (s *HealingSession) MarkSucceeded(tier Tier, steps []Step, actions []HealingAction) bool {
	if s.Status.IsTerminal() {
		return false
	}
	now := time.Now()
	s.Status = HealingSuccess
	s.Success = true
	s.Tier = tier
	s.NewSteps = steps
	s.Actions = actions
	s.EndTime = &now
	return true
}

// MarkFailed завершает сессию неудачей.
func (s *HealingSession) MarkFailed(reason string) bool {
	if s.Status.IsTerminal() {
		return false
	}
	now := time.Now()
	s.Status = HealingFailed
	s.Success = false
	s.Reason = reason
	s.EndTime = &now
	return true
}

// MarkSkipped завершает сессию без попытки лечения.
func (s *HealingSession) MarkSkipped(reason string) bool {
	if s.Status.IsTerminal() {
		return false
	}
	now := time.Now()
	s.Status = HealingSkipped
	s.Reason = reason
	s.EndTime = &now
	return true
}

// ConfirmAction отмечает действие, породившее шаг stepID, как успешное.
func (s *HealingSession) ConfirmAction(stepID string) {
	for i := range s.Actions {
		if s.Actions[i].StepID == stepID {
			s.Actions[i].Success = true
		}
	}
}

// Duration возвращает продолжительность сессии.
func (s *HealingSession) Duration() time.Duration {
	if s.EndTime == nil {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}
