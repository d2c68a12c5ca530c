// Package healing генерирует заменяющие шаги для упавшего шага workflow.
//
// Orchestrator пробует уровни по порядку, первый успех побеждает:
//   - ai.go, openai.go — внешний агент получает текстовую цель и
//     возвращает типизированные действия
//   - heuristic.go — детерминированные правила по (ErrorKind, ActionKind)
//   - selectors.go — альтернативные селекторы для правил element_not_found
//
// Упавший шаг никогда не меняется на месте: лечение всегда создаёт
// новые шаги с пометкой происхождения.
package healing
