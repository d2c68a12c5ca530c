package domain

import "fmt"

// ActionKind — тип примитивного действия шага.
//
// Набор закрыт: новый тип добавляется сюда, в AllActionKinds
// и в единственную точку диспетчеризации executor.dispatch.
type ActionKind string

const (
	ActionNavigate   ActionKind = "navigate"
	ActionClick      ActionKind = "click"
	ActionFill       ActionKind = "fill"
	ActionSelect     ActionKind = "select"
	ActionWait       ActionKind = "wait"
	ActionScroll     ActionKind = "scroll"
	ActionHover      ActionKind = "hover"
	ActionPressKey   ActionKind = "press_key"
	ActionScreenshot ActionKind = "screenshot"
	ActionExtract    ActionKind = "extract"
	ActionCustom     ActionKind = "custom"
)

// AllActionKinds возвращает все допустимые типы действий в фиксированном порядке.
func AllActionKinds() []ActionKind {
	return []ActionKind{
		ActionNavigate,
		ActionClick,
		ActionFill,
		ActionSelect,
		ActionWait,
		ActionScroll,
		ActionHover,
		ActionPressKey,
		ActionScreenshot,
		ActionExtract,
		ActionCustom,
	}
}

// IsValid проверяет, что тип действия входит в закрытый набор.
func (k ActionKind) IsValid() bool {
	switch k {
	case ActionNavigate, ActionClick, ActionFill, ActionSelect, ActionWait,
		ActionScroll, ActionHover, ActionPressKey, ActionScreenshot,
		ActionExtract, ActionCustom:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление ActionKind.
func (k ActionKind) String() string {
	return string(k)
}

// ParseActionKind парсит строку в ActionKind.
// Неизвестный тип — ошибка.
func ParseActionKind(s string) (ActionKind, error) {
	k := ActionKind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("unknown action kind %q", s)
	}
	return k, nil
}

// Coordinates — координаты точки на странице.
type Coordinates struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
