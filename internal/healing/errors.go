package healing

import "errors"

// Ошибки лечения.
var (
	// ErrNotHealable — ошибка не подлежит лечению.
	ErrNotHealable = errors.New("error is not healable")

	// ErrNoSteps — уровень не предложил ни одного шага.
	ErrNoSteps = errors.New("no healing steps generated")

	// ErrAgentUnavailable — AI-агент не настроен.
	ErrAgentUnavailable = errors.New("ai agent is not configured")

	// ErrAgentFailed — агент сообщил о неудаче.
	ErrAgentFailed = errors.New("ai agent reported failure")

	// ErrInvalidResponse — ответ агента не удалось разобрать.
	ErrInvalidResponse = errors.New("invalid agent response")

	// ErrTierPanic — уровень лечения завершился паникой.
	ErrTierPanic = errors.New("healing tier panicked")
)

// ReasonCancelled — причина неудачи сессии, отменённой пользователем.
const ReasonCancelled = "user cancelled"
