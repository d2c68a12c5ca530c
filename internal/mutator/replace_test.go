package mutator

import (
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Mender/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleWorkflow() *domain.Workflow {
	return &domain.Workflow{
		Name: "checkout",
		Steps: []domain.Step{
			{ID: "open", Type: domain.ActionNavigate, URL: "https://shop.test"},
			{ID: "buy", Type: domain.ActionClick, Selector: "#buy"},
			{ID: "email", Type: domain.ActionFill, Selector: "#email", Value: "a@b.c"},
			{ID: "submit", Type: domain.ActionClick, Selector: "#submit"},
		},
	}
}

func healedSteps(n int) []domain.Step {
	idx := 1
	steps := make([]domain.Step, n)
	for i := range steps {
		steps[i] = domain.Step{
			ID:                "healed_" + string(rune('a'+i)),
			Type:              domain.ActionClick,
			Selector:          "button.alt",
			GeneratedBy:       domain.GeneratedByHealer,
			OriginalStepIndex: &idx,
		}
	}
	return steps
}

func TestReplace_WithSteps(t *testing.T) {
	wf := sampleWorkflow()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, n := range []int{1, 2, 3} {
		updated, err := Replace(wf, 1, healedSteps(n), now)
		require.NoError(t, err)

		require.Len(t, updated.Steps, len(wf.Steps)-1+n)
		assert.Equal(t, "open", updated.Steps[0].ID)
		assert.Equal(t, "email", updated.Steps[1+n].ID)
		assert.Equal(t, "submit", updated.Steps[2+n].ID)

		for i := 0; i < n; i++ {
			s := updated.Steps[1+i]
			require.NotNil(t, s.ReplacedOriginal)
			assert.Equal(t, "buy", s.ReplacedOriginal.ID)
			require.NotNil(t, s.ReplacementIndex)
			assert.Equal(t, i, *s.ReplacementIndex)
			assert.Equal(t, now, *s.ReplacementTimestamp)
		}

		assert.True(t, updated.HealingApplied)
		require.Len(t, updated.HealingHistory, 1)
		entry := updated.HealingHistory[0]
		assert.Equal(t, 1, entry.FailedStepIndex)
		assert.Equal(t, n, entry.NewStepsCount)
		assert.Equal(t, "buy", entry.OriginalStep.ID)
		assert.Equal(t, HistoryActionReplace, entry.Action)
	}

	assert.Len(t, wf.Steps, 4)
	assert.Empty(t, wf.HealingHistory)
	assert.False(t, wf.HealingApplied)
}

func TestReplace_EmptyMarksSkipped(t *testing.T) {
	wf := sampleWorkflow()

	updated, err := Replace(wf, 2, nil, time.Now())
	require.NoError(t, err)

	require.Len(t, updated.Steps, len(wf.Steps))
	assert.True(t, updated.Steps[2].IsSkipped())
	assert.Equal(t, SkipReasonHealingFailed, updated.Steps[2].SkipReason)
	assert.NotNil(t, updated.Steps[2].SkipTimestamp)
	assert.False(t, wf.Steps[2].IsSkipped())

	res := Validate(updated)
	assert.True(t, res.Accepted())
	assert.Equal(t, 0, updated.HealingHistory[0].NewStepsCount)
}

func TestReplace_HistoryAppendOnly(t *testing.T) {
	wf := sampleWorkflow()

	first, err := Replace(wf, 1, healedSteps(2), time.Now())
	require.NoError(t, err)
	second, err := Replace(first, 4, nil, time.Now())
	require.NoError(t, err)

	require.Len(t, second.HealingHistory, 2)
	assert.Equal(t, 1, second.HealingHistory[0].FailedStepIndex)
	assert.Equal(t, 4, second.HealingHistory[1].FailedStepIndex)
	assert.Len(t, first.HealingHistory, 1)
}

func TestReplace_OutOfRange(t *testing.T) {
	for _, idx := range []int{-1, 4, 10} {
		_, err := Replace(sampleWorkflow(), idx, nil, time.Now())
		assert.True(t, errors.Is(err, ErrIndexOutOfRange), idx)
	}
}
