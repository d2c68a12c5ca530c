package mutator

import (
	"fmt"

	"github.com/shaiso/Mender/internal/domain"
)

// Штрафы проверки.
const (
	PenaltyMissingSteps = 0.5
	PenaltyMissingName  = 0.1
	PenaltyEmptySteps   = 0.3
	PenaltyStepError    = 0.1
	PenaltyCoherence    = 0.05
)

// MaxHealedGap — максимальное расстояние между соседними шагами лечения.
const MaxHealedGap = 5

// Validate проверяет структуру workflow и связность шагов лечения.
//
// Ошибки структуры шагов: click требует selector, key или coordinates;
// fill — selector и value; navigate — url; wait — selector или timeout.
// Предупреждения связности: шаги лечения разнесены дальше MaxHealedGap
// позиций или относятся к разным исходным шагам.
func Validate(wf *domain.Workflow) *domain.ValidationResult {
	res := domain.NewValidationResult()

	if wf.Steps == nil {
		res.AddError("workflow is missing 'steps' field", PenaltyMissingSteps)
	}
	if wf.Name == "" {
		res.AddWarning("workflow is missing 'name' field", PenaltyMissingName)
	}
	if len(wf.Steps) == 0 {
		res.AddError("workflow has no steps", PenaltyEmptySteps)
	}

	for i := range wf.Steps {
		for _, msg := range stepErrors(&wf.Steps[i], i) {
			res.AddError(msg, PenaltyStepError)
		}
	}

	for _, msg := range coherenceWarnings(wf.Steps) {
		res.AddWarning(msg, PenaltyCoherence)
	}

	return res
}

func stepErrors(s *domain.Step, i int) []string {
	var errs []string

	if s.Type == "" {
		return append(errs, fmt.Sprintf("step %d is missing 'type' field", i))
	}
	if !s.Type.IsValid() {
		return append(errs, fmt.Sprintf("step %d has unknown type %q", i, s.Type))
	}

	switch s.Type {
	case domain.ActionClick:
		if s.Selector == "" && s.Key == "" && s.Coords == nil {
			errs = append(errs, fmt.Sprintf("step %d (click) is missing 'selector' or 'coordinates' field", i))
		}
	case domain.ActionFill:
		if s.Selector == "" {
			errs = append(errs, fmt.Sprintf("step %d (fill) is missing 'selector' field", i))
		}
		if s.Value == "" {
			errs = append(errs, fmt.Sprintf("step %d (fill) is missing 'value' field", i))
		}
	case domain.ActionNavigate:
		if s.URL == "" {
			errs = append(errs, fmt.Sprintf("step %d (navigate) is missing 'url' field", i))
		}
	case domain.ActionWait:
		if s.Selector == "" && s.Timeout <= 0 {
			errs = append(errs, fmt.Sprintf("step %d (wait) is missing 'selector' or 'timeout' field", i))
		}
	}

	return errs
}

func coherenceWarnings(steps []domain.Step) []string {
	var (
		warnings  []string
		positions []int
		originals = make(map[int]struct{})
	)

	for i := range steps {
		if !steps[i].IsHealed() {
			continue
		}
		positions = append(positions, i)
		if idx := steps[i].OriginalStepIndex; idx != nil {
			originals[*idx] = struct{}{}
		}
	}

	for i := 1; i < len(positions); i++ {
		if positions[i]-positions[i-1] > MaxHealedGap {
			warnings = append(warnings, "healed steps are scattered too far apart")
			break
		}
	}
	if len(originals) > 1 {
		warnings = append(warnings, "healed steps replace more than one original step; manual review advised")
	}

	return warnings
}
