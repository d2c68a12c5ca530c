package healing

import (
	"fmt"
	"time"

	"github.com/shaiso/Mender/internal/domain"
)

// Plan — результат одного уровня лечения.
type Plan struct {
	Steps   []domain.Step
	Actions []domain.HealingAction

	// Alternatives — шаги являются кандидатами, а не последовательностью.
	Alternatives bool
}

// shortID — первые 8 символов идентификатора сессии.
func shortID(sessionID string) string {
	if len(sessionID) > 8 {
		return sessionID[:8]
	}
	return sessionID
}

// provenance проставляет шагам происхождение и строит записи действий.
func provenance(steps []domain.Step, sessionID string, ec domain.ErrorContext, now time.Time) []domain.HealingAction {
	sid := shortID(sessionID)
	actions := make([]domain.HealingAction, 0, len(steps))

	for i := range steps {
		idx := ec.StepIndex
		ts := now
		steps[i].GeneratedBy = domain.GeneratedByHealer
		steps[i].OriginalStepIndex = &idx
		steps[i].HealingSessionID = sessionID
		steps[i].CreatedAt = &ts

		actions = append(actions, domain.HealingAction{
			ID:          fmt.Sprintf("action_%s_%d", sid, i),
			Timestamp:   now,
			Type:        steps[i].Type,
			StepID:      steps[i].ID,
			Selector:    steps[i].Selector,
			Value:       steps[i].Value,
			Coords:      steps[i].Coords,
			Description: steps[i].Description,
		})
	}

	return actions
}
