package domain

import (
	"time"
)

// Значения по умолчанию для Workflow.
const (
	DefaultWorkflowVersion = "1.0.0"
	DefaultWorkflowTimeout = 30000 // мс
	DefaultRetryCount      = 3
)

// Метка generated_by для шагов, созданных лечением.
const GeneratedByHealer = "mender_healer"

// Статус шага, оставленного в документе без замены.
const StepStatusSkipped = "skipped"

// Step — один шаг workflow (примитивное действие браузера).
//
// После выполнения шаг не изменяется: при лечении он заменяется
// новыми шагами целиком.
type Step struct {
	// ID — уникальный в пределах workflow идентификатор.
	ID string `json:"id"`

	// Type — тип действия.
	Type ActionKind `json:"type"`

	// Description — описание шага (используется для подбора селекторов и цели лечения).
	Description string `json:"description,omitempty"`

	Selector string       `json:"selector,omitempty"`
	XPath    string       `json:"xpath,omitempty"`
	URL      string       `json:"url,omitempty"`
	Value    string       `json:"value,omitempty"`
	Key      string       `json:"key,omitempty"`
	Coords   *Coordinates `json:"coordinates,omitempty"`

	// Timeout — таймаут шага в миллисекундах. 0 — использовать таймаут workflow.
	Timeout int `json:"timeout,omitempty"`

	// WaitCondition — состояние элемента для ожидания: visible, hidden, attached, detached.
	WaitCondition string `json:"wait_condition,omitempty"`

	ScrollDirection string `json:"scroll_direction,omitempty"`
	ScrollAmount    int    `json:"scroll_amount,omitempty"`
	ScreenshotPath  string `json:"screenshot_path,omitempty"`

	// Metadata — произвольные данные шага.
	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt *time.Time `json:"created_at,omitempty"`

	// Происхождение шага, созданного лечением.
	GeneratedBy          string     `json:"generated_by,omitempty"`
	OriginalStepIndex    *int       `json:"original_step_index,omitempty"`
	HealingSessionID     string     `json:"healing_session_id,omitempty"`
	ReplacedOriginal     *Step      `json:"replaced_original,omitempty"`
	ReplacementIndex     *int       `json:"replacement_index,omitempty"`
	ReplacementTimestamp *time.Time `json:"replacement_timestamp,omitempty"`

	// Пометка пропуска, когда лечение не дало замены.
	Status        string     `json:"status,omitempty"`
	SkipReason    string     `json:"skip_reason,omitempty"`
	SkipTimestamp *time.Time `json:"skip_timestamp,omitempty"`
}

// IsHealed возвращает true, если шаг создан лечением.
func (s *Step) IsHealed() bool {
	return s.GeneratedBy == GeneratedByHealer
}

// IsSkipped возвращает true, если шаг помечен пропущенным.
func (s *Step) IsSkipped() bool {
	return s.Status == StepStatusSkipped
}

// Clone возвращает глубокую копию шага.
func (s Step) Clone() Step {
	c := s
	if s.Coords != nil {
		coords := *s.Coords
		c.Coords = &coords
	}
	if s.Metadata != nil {
		c.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	if s.ReplacedOriginal != nil {
		orig := s.ReplacedOriginal.Clone()
		c.ReplacedOriginal = &orig
	}
	c.OriginalStepIndex = cloneInt(s.OriginalStepIndex)
	c.ReplacementIndex = cloneInt(s.ReplacementIndex)
	return c
}

// TimeoutDuration возвращает таймаут шага или fallback, если таймаут не задан.
func (s *Step) TimeoutDuration(fallback time.Duration) time.Duration {
	if s.Timeout <= 0 {
		return fallback
	}
	return time.Duration(s.Timeout) * time.Millisecond
}

// Variable — объявленная переменная workflow.
type Variable struct {
	Name        string   `json:"name"`
	Type        string   `json:"type,omitempty"` // string, number, boolean
	Description string   `json:"description,omitempty"`
	Default     any      `json:"default,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Options     []string `json:"options,omitempty"`
}

// HealingHistoryEntry — запись журнала замен в документе workflow.
// Журнал только дополняется.
type HealingHistoryEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	FailedStepIndex int       `json:"failed_step_index"`
	OriginalStep    Step      `json:"original_step"`
	NewStepsCount   int       `json:"new_steps_count"`
	Action          string    `json:"action"`
}

// AppliedHealingSession — отметка о применённой сессии лечения.
type AppliedHealingSession struct {
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
	BackupPath string    `json:"backup_path,omitempty"`
}

// Workflow — именованная последовательность шагов с переменными.
//
// Инварианты: ID шагов уникальны; порядок шагов — порядок выполнения.
type Workflow struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`

	// Steps — шаги в порядке выполнения.
	// nil означает отсутствие ключа steps в документе.
	Steps []Step `json:"steps"`

	// Variables — объявленные переменные по имени.
	Variables map[string]Variable `json:"variables,omitempty"`

	// Timeout — таймаут шага по умолчанию, мс.
	Timeout    int      `json:"timeout,omitempty"`
	RetryCount int      `json:"retry_count,omitempty"`
	Parallel   bool     `json:"parallel,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Author     string   `json:"author,omitempty"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Аудит лечения.
	LastUpdated            *time.Time              `json:"last_updated,omitempty"`
	HealingApplied         bool                    `json:"healing_applied,omitempty"`
	HealingHistory         []HealingHistoryEntry   `json:"healing_history,omitempty"`
	AppliedHealingSessions []AppliedHealingSession `json:"applied_healing_sessions,omitempty"`
}

// DefaultTimeout возвращает таймаут шага по умолчанию.
func (w *Workflow) DefaultTimeout() time.Duration {
	if w.Timeout <= 0 {
		return DefaultWorkflowTimeout * time.Millisecond
	}
	return time.Duration(w.Timeout) * time.Millisecond
}

// StepByID ищет шаг по ID.
func (w *Workflow) StepByID(id string) (*Step, int) {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i], i
		}
	}
	return nil, -1
}

// Clone возвращает глубокую копию workflow.
// Мутации применяются к копии, а не к workflow, который сейчас выполняется.
func (w *Workflow) Clone() *Workflow {
	c := *w
	if w.Steps != nil {
		c.Steps = make([]Step, len(w.Steps))
		for i := range w.Steps {
			c.Steps[i] = w.Steps[i].Clone()
		}
	}
	if w.Variables != nil {
		c.Variables = make(map[string]Variable, len(w.Variables))
		for k, v := range w.Variables {
			c.Variables[k] = v
		}
	}
	c.Tags = append([]string(nil), w.Tags...)
	c.HealingHistory = append([]HealingHistoryEntry(nil), w.HealingHistory...)
	c.AppliedHealingSessions = append([]AppliedHealingSession(nil), w.AppliedHealingSessions...)
	return &c
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
