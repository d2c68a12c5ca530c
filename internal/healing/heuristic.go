package healing

import (
	"fmt"
	"time"

	"github.com/shaiso/Mender/internal/domain"
)

// Таймауты шагов, создаваемых правилами.
const (
	HealedWaitTimeout   = 5000  // мс
	HealedActionTimeout = 15000 // мс
)

// Heuristic строит план по правилам (ErrorKind, ActionKind).
//
//   - timeout + click/fill: ожидание видимости, затем повтор действия
//     с увеличенным таймаутом
//   - element_not_found + click: до 3 кандидатов с другими селекторами
//   - element_not_found + fill: до 2 кандидатов
//
// Для остальных сочетаний возвращает ErrNoSteps.
func Heuristic(sessionID string, ec domain.ErrorContext, now time.Time) (Plan, error) {
	step := ec.Step
	// повтор и подставляемые значения сохраняются в документ шаблонами
	src := ec.Source()
	sid := shortID(sessionID)

	var plan Plan

	switch ec.Kind {
	case domain.ErrorTimeout:
		switch step.Type {
		case domain.ActionClick:
			plan.Steps = []domain.Step{
				healedWait(sid, src, "wait for page to settle (healing)"),
				{
					ID:            "healed_click_" + sid,
					Type:          domain.ActionClick,
					Description:   "retry click (healing): " + step.Description,
					Selector:      src.Selector,
					Key:           src.Key,
					Timeout:       HealedActionTimeout,
					WaitCondition: "visible",
				},
			}
		case domain.ActionFill:
			plan.Steps = []domain.Step{
				healedWait(sid, src, "wait for input to become available (healing)"),
				{
					ID:          "healed_fill_" + sid,
					Type:        domain.ActionFill,
					Description: "retry fill (healing): " + step.Description,
					Selector:    src.Selector,
					Value:       src.Value,
					Timeout:     HealedActionTimeout,
				},
			}
		}

	case domain.ErrorElementNotFound:
		switch step.Type {
		case domain.ActionClick:
			for i, sel := range Generate(step.Selector, step.Description, step.Value, true) {
				plan.Steps = append(plan.Steps, domain.Step{
					ID:            fmt.Sprintf("healed_click_%s_%d", sid, i),
					Type:          domain.ActionClick,
					Description:   fmt.Sprintf("alternative click %d (healing): %s", i+1, step.Description),
					Selector:      sel,
					Timeout:       HealedActionTimeout,
					WaitCondition: "visible",
				})
			}
		case domain.ActionFill:
			for i, sel := range Generate(step.Selector, step.Description, step.Value, false) {
				plan.Steps = append(plan.Steps, domain.Step{
					ID:          fmt.Sprintf("healed_fill_%s_%d", sid, i),
					Type:        domain.ActionFill,
					Description: fmt.Sprintf("alternative fill %d (healing): %s", i+1, step.Description),
					Selector:    sel,
					Value:       src.Value,
					Timeout:     HealedActionTimeout,
				})
			}
		}
		plan.Alternatives = true
	}

	if len(plan.Steps) == 0 {
		return Plan{}, fmt.Errorf("%w: %s on %s", ErrNoSteps, ec.Kind, step.Type)
	}

	plan.Actions = provenance(plan.Steps, sessionID, ec, now)
	return plan, nil
}

func healedWait(sid string, step domain.Step, description string) domain.Step {
	return domain.Step{
		ID:            "healed_wait_" + sid,
		Type:          domain.ActionWait,
		Description:   description,
		Selector:      step.Selector,
		Timeout:       HealedWaitTimeout,
		WaitCondition: "visible",
	}
}
