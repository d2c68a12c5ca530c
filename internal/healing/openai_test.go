package healing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shaiso/Mender/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAgentResponse(t *testing.T) {
	content := "```json\n" + `{
		"success": true,
		"actions": [
			{"type": "click", "selector": "button.buy", "description": "click buy"},
			{"type": "teleport", "description": "not an action"},
			{"type": "fill", "selector": "#email", "value": "a@b.c", "description": "email"},
			{"type": "click", "coordinates": {"x": 10.5, "y": 20}, "description": "by point"}
		]
	}` + "\n```"

	res, dropped, err := ParseAgentResponse(content)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, dropped)
	require.Len(t, res.Actions, 3)
	assert.Equal(t, domain.ActionClick, res.Actions[0].Type)
	assert.Equal(t, "button.buy", res.Actions[0].Selector)
	assert.Equal(t, "a@b.c", res.Actions[1].Value)
	require.NotNil(t, res.Actions[2].Coords)
	assert.Equal(t, 10.5, res.Actions[2].Coords.X)
}

func TestParseAgentResponse_Invalid(t *testing.T) {
	for _, content := range []string{"", "I clicked the button", "[1,2]", `{"success": tru`} {
		_, _, err := ParseAgentResponse(content)
		assert.True(t, errors.Is(err, ErrInvalidResponse), content)
	}
}

func TestOpenAIAgent_Run(t *testing.T) {
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		answer := `{"success": true, "actions": [{"type": "click", "selector": "#alt", "description": "alt"}]}`
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": answer},
			}},
		})
	}))
	defer srv.Close()

	agent := NewOpenAIAgent(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "test-model"})

	res, err := agent.Run(context.Background(), "find and click #buy")
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "#alt", res.Actions[0].Selector)

	assert.Equal(t, "test-model", gotBody["model"])
	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "find and click #buy", msgs[1].(map[string]any)["content"])
}

func TestOpenAIAgent_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	agent := NewOpenAIAgent(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := agent.Run(context.Background(), "goal")
	assert.Error(t, err)
}
