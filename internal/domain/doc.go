// Package domain содержит модели предметной области Mender.
//
// Основные сущности:
//   - Workflow, Step, Variable — записанный сценарий браузера
//   - ErrorContext — неизменяемый снимок сбоя шага
//   - HealingSession, HealingAction — попытка лечения и её аудит
//   - StepResult, WorkflowExecutionResult, BatchExecutionResult — итоги выполнения
//   - ValidationResult — оценка изменённого workflow
package domain
