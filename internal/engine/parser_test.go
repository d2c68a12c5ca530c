package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Mender/internal/domain"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		wf      *domain.Workflow
		wantErr error
	}{
		{"nil workflow", nil, ErrEmptySteps},
		{"no steps", &domain.Workflow{Name: "wf"}, ErrEmptySteps},
		{
			"empty id",
			&domain.Workflow{Steps: []domain.Step{{Type: domain.ActionClick}}},
			ErrEmptyStepID,
		},
		{
			"duplicate id",
			&domain.Workflow{Steps: []domain.Step{
				{ID: "a", Type: domain.ActionClick},
				{ID: "a", Type: domain.ActionFill},
			}},
			ErrDuplicateStepID,
		},
		{
			"unknown type",
			&domain.Workflow{Steps: []domain.Step{{ID: "a", Type: "drag"}}},
			ErrUnknownStepType,
		},
		{
			"valid",
			&domain.Workflow{Steps: []domain.Step{
				{ID: "a", Type: domain.ActionNavigate, URL: "https://example.com"},
				{ID: "b", Type: domain.ActionClick, Selector: "#go"},
			}},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.wf)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidate_ErrorCarriesStep(t *testing.T) {
	wf := &domain.Workflow{Steps: []domain.Step{{ID: "click1", Type: "tap"}}}

	err := Validate(wf)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "click1", vErr.StepID)
	assert.Equal(t, "type", vErr.Field)
}

func TestResolveVariables(t *testing.T) {
	wf := &domain.Workflow{
		Variables: map[string]domain.Variable{
			"query": {Name: "query", Required: true},
			"page":  {Name: "page", Default: 1},
			"token": {Name: "token", Required: true, Default: "anon"},
		},
	}

	vars, err := ResolveVariables(wf, map[string]any{"query": "go", "extra": true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"query": "go", "page": 1, "token": "anon", "extra": true}, vars)

	_, err = ResolveVariables(wf, nil)
	assert.ErrorIs(t, err, ErrMissingVariable)
	assert.Contains(t, err.Error(), "query")
	assert.NotContains(t, err.Error(), "token")
}

func TestLoadFile(t *testing.T) {
	fs := afero.NewMemMapFs()

	jsonDoc := `{"name":"search","steps":[{"id":"s1","type":"navigate","url":"https://example.com"}],"variables":{"q":{"name":"q","required":true}}}`
	yamlDoc := "name: search\nsteps:\n  - id: s1\n    type: fill\n    selector: \"#q\"\n    value: \"{{ q }}\"\n    timeout: 5000\n"

	require.NoError(t, afero.WriteFile(fs, "/wf/search.json", []byte(jsonDoc), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/wf/search.yaml", []byte(yamlDoc), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/wf/search.txt", []byte(jsonDoc), 0o644))

	wf, err := LoadFile(fs, "/wf/search.json")
	require.NoError(t, err)
	assert.Equal(t, "search", wf.Name)
	assert.Equal(t, domain.ActionNavigate, wf.Steps[0].Type)
	assert.True(t, wf.Variables["q"].Required)

	wf, err = LoadFile(fs, "/wf/search.yaml")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionFill, wf.Steps[0].Type)
	assert.Equal(t, "{{ q }}", wf.Steps[0].Value)
	assert.Equal(t, 5000, wf.Steps[0].Timeout)

	_, err = LoadFile(fs, "/wf/search.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Parse([]byte("{not json"), FormatJSON)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestParse_MissingStepsIsNil(t *testing.T) {
	wf, err := Parse([]byte(`{"name":"x"}`), FormatJSON)
	require.NoError(t, err)
	assert.Nil(t, wf.Steps)

	wf, err = Parse([]byte(`{"name":"x","steps":[]}`), FormatJSON)
	require.NoError(t, err)
	assert.NotNil(t, wf.Steps)
	assert.Empty(t, wf.Steps)
}
