package mutator

import (
	"testing"

	"github.com/shaiso/Mender/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestValidate_WellFormed(t *testing.T) {
	res := Validate(sampleWorkflow())
	assert.Equal(t, 1.0, res.Score)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
	assert.True(t, res.Accepted())
}

func TestValidate_MissingSteps(t *testing.T) {
	res := Validate(&domain.Workflow{Name: "empty"})
	assert.LessOrEqual(t, res.Score, 0.5)
	assert.False(t, res.IsValid())
	assert.False(t, res.Accepted())

	res = Validate(&domain.Workflow{})
	assert.InDelta(t, 0.1, res.Score, 1e-9)
	assert.Len(t, res.Warnings, 1)
}

func TestValidate_StepErrors(t *testing.T) {
	wf := &domain.Workflow{
		Name: "broken",
		Steps: []domain.Step{
			{ID: "a", Type: domain.ActionClick},
			{ID: "b", Type: domain.ActionFill},
			{ID: "c", Type: domain.ActionNavigate},
			{ID: "d", Type: domain.ActionWait},
			{ID: "e"},
			{ID: "f", Type: "teleport"},
			{ID: "g", Type: domain.ActionClick, Coords: &domain.Coordinates{X: 1, Y: 2}},
			{ID: "h", Type: domain.ActionWait, Timeout: 1000},
		},
	}

	res := Validate(wf)
	assert.Len(t, res.Errors, 7)
	assert.InDelta(t, 0.3, res.Score, 1e-9)
	assert.Contains(t, res.Errors[0], "step 0 (click)")
	assert.False(t, res.Accepted())
}

func TestValidate_Coherence(t *testing.T) {
	one, two := 1, 7
	healed := func(id string, orig *int) domain.Step {
		return domain.Step{ID: id, Type: domain.ActionWait, Timeout: 100, GeneratedBy: domain.GeneratedByHealer, OriginalStepIndex: orig}
	}
	plain := func(id string) domain.Step {
		return domain.Step{ID: id, Type: domain.ActionWait, Timeout: 100}
	}

	wf := &domain.Workflow{Name: "w", Steps: []domain.Step{
		healed("h1", &one), plain("p1"), plain("p2"), plain("p3"),
		plain("p4"), plain("p5"), plain("p6"), healed("h2", &two),
	}}

	res := Validate(wf)
	assert.Empty(t, res.Errors)
	assert.Len(t, res.Warnings, 2)
	assert.InDelta(t, 0.9, res.Score, 1e-9)
	assert.True(t, res.Accepted())

	wf.Steps = []domain.Step{healed("h1", &one), healed("h2", &one), plain("p1")}
	res = Validate(wf)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1.0, res.Score)
}
