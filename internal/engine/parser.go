package engine

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/shaiso/Mender/internal/domain"
)

// Validate проверяет, что workflow можно выполнять.
//
// Проверяет:
// - Наличие шагов
// - Непустые и уникальные ID шагов
// - Известные типы шагов
//
// Полноту полей по типу действия проверяет mutator.Validate.
func Validate(wf *domain.Workflow) error {
	if wf == nil || len(wf.Steps) == 0 {
		return ErrEmptySteps
	}

	stepIDs := make(map[string]bool, len(wf.Steps))

	for i := range wf.Steps {
		step := &wf.Steps[i]

		if step.ID == "" {
			return NewValidationError("", "id",
				fmt.Sprintf("step %d has empty ID", i), ErrEmptyStepID)
		}

		if stepIDs[step.ID] {
			return NewValidationError(step.ID, "id",
				fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID)
		}
		stepIDs[step.ID] = true

		if !step.Type.IsValid() {
			return NewValidationError(step.ID, "type",
				fmt.Sprintf("unknown step type: %q", step.Type), ErrUnknownStepType)
		}
	}

	return nil
}

// ResolveVariables строит начальный контекст выполнения:
// значения по умолчанию объявленных переменных, поверх — переданные значения.
//
// Если обязательная переменная не передана и не имеет значения по умолчанию,
// возвращается ErrMissingVariable со списком имён.
func ResolveVariables(wf *domain.Workflow, inputs map[string]any) (map[string]any, error) {
	vars := make(map[string]any, len(wf.Variables)+len(inputs))

	for name, v := range wf.Variables {
		if v.Default != nil {
			vars[name] = v.Default
		}
	}
	maps.Copy(vars, inputs)

	var missing []string
	for name, v := range wf.Variables {
		if !v.Required {
			continue
		}
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("%w: %s", ErrMissingVariable, strings.Join(missing, ", "))
	}

	return vars, nil
}
