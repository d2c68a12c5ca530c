package healing

import (
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Mender/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSessionID = "0123456789abcdef"

func TestHeuristic_TimeoutFill(t *testing.T) {
	ec := domain.ErrorContext{
		Kind:      domain.ErrorTimeout,
		StepIndex: 2,
		Step: domain.Step{
			ID: "s3", Type: domain.ActionFill, Selector: "#missing",
			Value: "alice", Description: "type user name",
		},
	}
	original := ec.Step.Clone()

	plan, err := Heuristic(testSessionID, ec, time.Now())
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.False(t, plan.Alternatives)

	wait, fill := plan.Steps[0], plan.Steps[1]
	assert.Equal(t, "healed_wait_01234567", wait.ID)
	assert.Equal(t, domain.ActionWait, wait.Type)
	assert.Equal(t, "#missing", wait.Selector)
	assert.Equal(t, HealedWaitTimeout, wait.Timeout)
	assert.Equal(t, "visible", wait.WaitCondition)

	assert.Equal(t, "healed_fill_01234567", fill.ID)
	assert.Equal(t, domain.ActionFill, fill.Type)
	assert.Equal(t, "alice", fill.Value)
	assert.Equal(t, HealedActionTimeout, fill.Timeout)

	for _, s := range plan.Steps {
		assert.Equal(t, domain.GeneratedByHealer, s.GeneratedBy)
		require.NotNil(t, s.OriginalStepIndex)
		assert.Equal(t, 2, *s.OriginalStepIndex)
		assert.Equal(t, testSessionID, s.HealingSessionID)
		assert.NotNil(t, s.CreatedAt)
	}

	require.Len(t, plan.Actions, 2)
	assert.Equal(t, "action_01234567_0", plan.Actions[0].ID)
	assert.Equal(t, "healed_fill_01234567", plan.Actions[1].StepID)
	for _, a := range plan.Actions {
		assert.False(t, a.Success)
	}

	assert.Equal(t, original, ec.Step)
}

func TestHeuristic_TimeoutClick(t *testing.T) {
	ec := domain.ErrorContext{
		Kind: domain.ErrorTimeout,
		Step: domain.Step{ID: "s1", Type: domain.ActionClick, Selector: "#buy"},
	}

	plan, err := Heuristic(testSessionID, ec, time.Now())
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, domain.ActionWait, plan.Steps[0].Type)
	assert.Equal(t, "healed_click_01234567", plan.Steps[1].ID)
	assert.Equal(t, "visible", plan.Steps[1].WaitCondition)
}

func TestHeuristic_ElementNotFound(t *testing.T) {
	click := domain.ErrorContext{
		Kind: domain.ErrorElementNotFound,
		Step: domain.Step{ID: "s1", Type: domain.ActionClick, Selector: "#go", Description: "press search button"},
	}
	plan, err := Heuristic(testSessionID, click, time.Now())
	require.NoError(t, err)
	assert.True(t, plan.Alternatives)
	require.Len(t, plan.Steps, MaxClickAlternatives)
	for i, s := range plan.Steps {
		assert.Equal(t, "healed_click_01234567_"+string(rune('0'+i)), s.ID)
		assert.Equal(t, domain.ActionClick, s.Type)
	}

	fill := domain.ErrorContext{
		Kind: domain.ErrorElementNotFound,
		Step: domain.Step{ID: "s2", Type: domain.ActionFill, Selector: "#q", Value: "search gophers"},
	}
	plan, err = Heuristic(testSessionID, fill, time.Now())
	require.NoError(t, err)
	require.Len(t, plan.Steps, MaxFillAlternatives)
	assert.Equal(t, "healed_fill_01234567_1", plan.Steps[1].ID)
	assert.Equal(t, "search gophers", plan.Steps[1].Value)
}

func TestHeuristic_KeepsTemplatesFromSourceStep(t *testing.T) {
	source := domain.Step{ID: "q", Type: domain.ActionFill, Selector: "#q-${field}", Value: "${term}"}
	rendered := domain.Step{ID: "q", Type: domain.ActionFill, Selector: "#q-main", Value: "laptops"}

	plan, err := Heuristic(testSessionID, domain.ErrorContext{
		Kind: domain.ErrorTimeout, Step: rendered, SourceStep: &source,
	}, time.Now())
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "#q-${field}", plan.Steps[0].Selector)
	assert.Equal(t, "#q-${field}", plan.Steps[1].Selector)
	assert.Equal(t, "${term}", plan.Steps[1].Value)

	plan, err = Heuristic(testSessionID, domain.ErrorContext{
		Kind: domain.ErrorElementNotFound, Step: rendered, SourceStep: &source,
	}, time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, plan.Steps)
	for _, s := range plan.Steps {
		assert.Equal(t, "${term}", s.Value)
		assert.NotContains(t, s.Selector, "${")
	}
}

func TestHeuristic_NoRule(t *testing.T) {
	tests := []domain.ErrorContext{
		{Kind: domain.ErrorTimeout, Step: domain.Step{Type: domain.ActionNavigate, URL: "https://x"}},
		{Kind: domain.ErrorJavaScript, Step: domain.Step{Type: domain.ActionClick, Selector: "#a"}},
		{Kind: domain.ErrorElementNotFound, Step: domain.Step{Type: domain.ActionClick}},
		{Kind: domain.ErrorElementNotFound, Step: domain.Step{Type: domain.ActionHover, Selector: "#a"}},
	}

	for _, ec := range tests {
		_, err := Heuristic(testSessionID, ec, time.Now())
		assert.True(t, errors.Is(err, ErrNoSteps), "%s/%s", ec.Kind, ec.Step.Type)
	}
}
