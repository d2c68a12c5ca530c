package engine

import (
	"testing"

	"github.com/shaiso/Mender/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	vars := NewVars(map[string]any{
		"query": "golang",
		"count": 42,
		"user":  map[string]any{"email": "dev@example.com"},
	})

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"plain text", "Plain text", "Plain text"},
		{"simple dollar", "q=${query}", "q=golang"},
		{"simple braces", "{{ query }} x{{count}}", "golang x42"},
		{"nested path", "mail: {{ user.email }}", "mail: dev@example.com"},
		{"dollar nested path", "${user.email}", "dev@example.com"},
		{"pipeline", "{{ .query | upper }}", "GOLANG"},
		{"missing key in expression stays literal", `{{ default "none" .missing_ok }}`, `{{ default "none" .missing_ok }}`},
		{"sprig default", `{{ default "none" .query }}`, "golang"},
		{"unresolved simple stays literal", "hello {{ name }}", "hello {{ name }}"},
		{"unresolved dollar stays literal", "hello ${name}", "hello ${name}"},
		{"broken expression stays literal", "{{ .query | nosuchfunc }}", "{{ .query | nosuchfunc }}"},
		{"mixed", "${query}-{{ missing }}", "golang-{{ missing }}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Render(tt.template, vars))
		})
	}
}

func TestRenderStep(t *testing.T) {
	vars := NewVars(map[string]any{"term": "shoes", "site": "https://shop.example"})

	step := domain.Step{
		ID:          "s1",
		Type:        domain.ActionFill,
		URL:         "${site}/search",
		Selector:    "input[name={{ term }}]",
		Value:       "{{ term }}",
		Description: "search for {{ term }}",
		Metadata: map[string]any{
			"note":  "{{ term }}",
			"count": 3,
			"tags":  []any{"${term}", 1},
		},
	}

	rendered := RenderStep(step, vars)

	assert.Equal(t, "https://shop.example/search", rendered.URL)
	assert.Equal(t, "input[name=shoes]", rendered.Selector)
	assert.Equal(t, "shoes", rendered.Value)
	assert.Equal(t, "search for shoes", rendered.Description)
	assert.Equal(t, "shoes", rendered.Metadata["note"])
	assert.Equal(t, 3, rendered.Metadata["count"])
	assert.Equal(t, []any{"shoes", 1}, rendered.Metadata["tags"])

	// исходный шаг не изменён
	assert.Equal(t, "{{ term }}", step.Value)
	assert.Equal(t, "{{ term }}", step.Metadata["note"])
}

func TestVars_Isolation(t *testing.T) {
	initial := map[string]any{"a": 1}
	v1 := NewVars(initial)
	v2 := NewVars(initial)

	v1.Set("a", 2)
	v1.Set("extracted_s1", []string{"x"})

	got, _ := v2.Get("a")
	assert.Equal(t, 1, got)
	_, ok := v2.Get("extracted_s1")
	assert.False(t, ok)
	assert.Equal(t, 1, initial["a"])

	snap := v1.Snapshot()
	snap["a"] = 100
	got, _ = v1.Get("a")
	assert.Equal(t, 2, got)
}
