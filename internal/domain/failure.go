package domain

import "time"

// ErrorKind — класс сбоя шага.
type ErrorKind string

const (
	ErrorElementNotFound  ErrorKind = "element_not_found"
	ErrorTimeout          ErrorKind = "timeout"
	ErrorNetwork          ErrorKind = "network_error"
	ErrorPageLoad         ErrorKind = "page_load_error"
	ErrorJavaScript       ErrorKind = "javascript_error"
	ErrorSelectorInvalid  ErrorKind = "selector_invalid"
	ErrorPermissionDenied ErrorKind = "permission_denied"
	ErrorUnknown          ErrorKind = "unknown"
)

// Severity — грубый приоритет сбоя, определяет допустимость лечения.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorContext — снимок диагностического состояния в момент сбоя.
//
// Создаётся один раз на сбой и после создания не изменяется.
// Сохраняется в аудит.
type ErrorContext struct {
	ID        string    `json:"error_id"`
	Timestamp time.Time `json:"timestamp"`

	Kind     ErrorKind      `json:"error_type"`
	Message  string         `json:"error_message"`
	Details  map[string]any `json:"error_details,omitempty"`
	Severity Severity       `json:"severity"`

	// Контекст workflow.
	WorkflowPath string `json:"workflow_path,omitempty"`
	StepIndex    int    `json:"step_index"`
	Step         Step   `json:"step_data"`

	// SourceStep — шаг в виде документа, до подстановки переменных.
	// nil, если подстановка ничего не изменила.
	SourceStep *Step `json:"source_step,omitempty"`

	// Состояние страницы. Пустые пути — снимок не удался.
	PageURL        string `json:"page_url,omitempty"`
	PageTitle      string `json:"page_title,omitempty"`
	ScreenshotPath string `json:"screenshot_path,omitempty"`
	DOMSnapshot    string `json:"dom_snapshot,omitempty"`

	BrowserType  string `json:"browser_type,omitempty"`
	ViewportSize string `json:"viewport_size,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`

	ExecutionContext map[string]any `json:"execution_context,omitempty"`
	RetryCount       int            `json:"retry_count"`

	// IsHealable — производный флаг, вычисляется классификатором при создании.
	IsHealable bool `json:"is_healable"`
}

// Source возвращает шаг в виде документа: SourceStep, если он есть,
// иначе Step.
func (ec ErrorContext) Source() Step {
	if ec.SourceStep != nil {
		return *ec.SourceStep
	}
	return ec.Step
}
