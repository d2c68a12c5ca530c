package domain

import "math"

// AcceptanceThreshold — минимальный score, при котором изменённый workflow принимается.
const AcceptanceThreshold = 0.7

// ValidationResult — итог проверки workflow.
type ValidationResult struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Score    float64  `json:"score"`
}

// NewValidationResult создаёт результат с максимальным score.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
		Score:    1.0,
	}
}

// AddError добавляет ошибку и штраф.
func (v *ValidationResult) AddError(msg string, penalty float64) {
	v.Errors = append(v.Errors, msg)
	v.penalize(penalty)
}

// AddWarning добавляет предупреждение и штраф.
func (v *ValidationResult) AddWarning(msg string, penalty float64) {
	v.Warnings = append(v.Warnings, msg)
	v.penalize(penalty)
}

// IsValid — ошибок нет.
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

// Accepted — ошибок нет и score не ниже порога.
func (v *ValidationResult) Accepted() bool {
	return v.IsValid() && v.Score >= AcceptanceThreshold
}

func (v *ValidationResult) penalize(p float64) {
	// округление убирает накопление погрешности float
	v.Score = math.Round((v.Score-p)*1e4) / 1e4
	if v.Score < 0 {
		v.Score = 0
	}
}
