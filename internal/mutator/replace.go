package mutator

import (
	"fmt"
	"time"

	"github.com/shaiso/Mender/internal/domain"
)

// SkipReasonHealingFailed — причина пропуска шага без замены.
const SkipReasonHealingFailed = "healing_failed"

// HistoryActionReplace — действие в журнале healing_history.
const HistoryActionReplace = "replace_failed_steps"

// Replace возвращает копию wf, где шаг failedIndex заменён на newSteps.
//
// Пустой newSteps оставляет шаг на месте с пометкой status=skipped.
// Каждый вставленный шаг получает ссылку на заменённый шаг, свою
// позицию среди замен и время замены. В healing_history добавляется
// запись; wf не изменяется.
func Replace(wf *domain.Workflow, failedIndex int, newSteps []domain.Step, now time.Time) (*domain.Workflow, error) {
	if failedIndex < 0 || failedIndex >= len(wf.Steps) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, failedIndex, len(wf.Steps))
	}

	updated := wf.Clone()
	original := updated.Steps[failedIndex].Clone()

	if len(newSteps) == 0 {
		skipped := &updated.Steps[failedIndex]
		ts := now
		skipped.Status = domain.StepStatusSkipped
		skipped.SkipReason = SkipReasonHealingFailed
		skipped.SkipTimestamp = &ts
	} else {
		inserted := make([]domain.Step, len(newSteps))
		for i := range newSteps {
			s := newSteps[i].Clone()
			orig := original.Clone()
			idx := i
			ts := now
			s.ReplacedOriginal = &orig
			s.ReplacementIndex = &idx
			s.ReplacementTimestamp = &ts
			inserted[i] = s
		}

		steps := make([]domain.Step, 0, len(updated.Steps)-1+len(inserted))
		steps = append(steps, updated.Steps[:failedIndex]...)
		steps = append(steps, inserted...)
		steps = append(steps, updated.Steps[failedIndex+1:]...)
		updated.Steps = steps
	}

	ts := now
	updated.LastUpdated = &ts
	updated.HealingApplied = true
	updated.HealingHistory = append(updated.HealingHistory, domain.HealingHistoryEntry{
		Timestamp:       now,
		FailedStepIndex: failedIndex,
		OriginalStep:    original,
		NewStepsCount:   len(newSteps),
		Action:          HistoryActionReplace,
	})

	return updated, nil
}
