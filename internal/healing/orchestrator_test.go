package healing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Mender/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu       sync.Mutex
	sessions map[string]domain.HealingSession
}

func (m *memStore) SaveHealing(_ context.Context, s *domain.HealingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions == nil {
		m.sessions = make(map[string]domain.HealingSession)
	}
	m.sessions[s.ID] = *s
	return nil
}

func clickNotFound() domain.ErrorContext {
	return domain.ErrorContext{
		ID:         "err-1",
		Kind:       domain.ErrorElementNotFound,
		Severity:   domain.SeverityMedium,
		Message:    "click #buy: element not found",
		StepIndex:  1,
		Step:       domain.Step{ID: "s2", Type: domain.ActionClick, Selector: "#buy", Description: "buy button"},
		IsHealable: true,
	}
}

func TestOrchestrator_AITierWins(t *testing.T) {
	var goal string
	agent := AgentFunc(func(_ context.Context, g string) (AgentResult, error) {
		goal = g
		return AgentResult{Success: true, Actions: []AgentAction{
			{Type: domain.ActionClick, Selector: "button.purchase", Description: "purchase"},
		}}, nil
	})
	store := &memStore{}

	o := New(Config{Agent: agent, Store: store})
	s := o.Heal(context.Background(), clickNotFound())

	assert.Equal(t, domain.HealingSuccess, s.Status)
	assert.True(t, s.Success)
	assert.Equal(t, domain.TierAI, s.Tier)
	assert.False(t, s.Alternatives)
	require.Len(t, s.NewSteps, 1)
	assert.Equal(t, "button.purchase", s.NewSteps[0].Selector)
	assert.Equal(t, s.ID, s.NewSteps[0].HealingSessionID)
	assert.False(t, s.Actions[0].Success)
	assert.NotNil(t, s.EndTime)

	assert.Contains(t, goal, "find and click #buy; if not found, find a functionally similar alternative")
	assert.Contains(t, goal, "element not found")

	require.Contains(t, store.sessions, s.ID)
	assert.Empty(t, o.Active())
}

func TestOrchestrator_FallsBackToHeuristic(t *testing.T) {
	tests := []struct {
		name  string
		agent Agent
	}{
		{"no agent", nil},
		{"agent error", AgentFunc(func(context.Context, string) (AgentResult, error) {
			return AgentResult{}, errors.New("rate limited")
		})},
		{"agent reports failure", AgentFunc(func(context.Context, string) (AgentResult, error) {
			return AgentResult{Success: false}, nil
		})},
		{"agent without actions", AgentFunc(func(context.Context, string) (AgentResult, error) {
			return AgentResult{Success: true}, nil
		})},
		{"agent panics", AgentFunc(func(context.Context, string) (AgentResult, error) {
			panic("agent exploded")
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(Config{Agent: tt.agent})
			s := o.Heal(context.Background(), clickNotFound())

			assert.Equal(t, domain.HealingSuccess, s.Status)
			assert.Equal(t, domain.TierHeuristic, s.Tier)
			assert.True(t, s.Alternatives)
			assert.NotEmpty(t, s.NewSteps)
		})
	}
}

func TestOrchestrator_BothTiersFail(t *testing.T) {
	ec := domain.ErrorContext{
		Kind:       domain.ErrorTimeout,
		Severity:   domain.SeverityMedium,
		Step:       domain.Step{ID: "s1", Type: domain.ActionNavigate, URL: "https://slow.example"},
		IsHealable: true,
	}

	o := New(Config{Agent: AgentFunc(func(context.Context, string) (AgentResult, error) {
		return AgentResult{}, errors.New("model unavailable")
	})})
	s := o.Heal(context.Background(), ec)

	assert.Equal(t, domain.HealingFailed, s.Status)
	assert.False(t, s.Success)
	assert.Empty(t, s.NewSteps)
	assert.Contains(t, s.Reason, "model unavailable")
	assert.Contains(t, s.Reason, "no healing steps generated")
	assert.Equal(t, "wait for page load then perform navigate", s.Goal)
}

func TestOrchestrator_NotHealable(t *testing.T) {
	ec := clickNotFound()
	ec.IsHealable = false

	called := false
	o := New(Config{Agent: AgentFunc(func(context.Context, string) (AgentResult, error) {
		called = true
		return AgentResult{}, nil
	})})
	s := o.Heal(context.Background(), ec)

	assert.Equal(t, domain.HealingSkipped, s.Status)
	assert.False(t, called)
}

func TestOrchestrator_Cancel(t *testing.T) {
	started := make(chan struct{})
	agent := AgentFunc(func(ctx context.Context, _ string) (AgentResult, error) {
		close(started)
		<-ctx.Done()
		return AgentResult{}, ctx.Err()
	})

	o := New(Config{Agent: agent})
	done := make(chan *domain.HealingSession, 1)
	go func() { done <- o.Heal(context.Background(), clickNotFound()) }()

	<-started
	ids := o.Active()
	require.Len(t, ids, 1)
	assert.True(t, o.Cancel(ids[0]))

	select {
	case s := <-done:
		assert.Equal(t, domain.HealingFailed, s.Status)
		assert.Equal(t, ReasonCancelled, s.Reason)
		assert.Empty(t, s.NewSteps)
	case <-time.After(5 * time.Second):
		t.Fatal("heal did not return after cancel")
	}

	assert.False(t, o.Cancel(ids[0]))
}

func TestOrchestrator_ParentContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(Config{})
	s := o.Heal(ctx, clickNotFound())

	assert.Equal(t, domain.HealingFailed, s.Status)
	assert.Equal(t, ReasonCancelled, s.Reason)
}

func TestGoal(t *testing.T) {
	ec := domain.ErrorContext{
		Kind: domain.ErrorElementNotFound,
		Step: domain.Step{Type: domain.ActionFill, Description: "email field", Value: "a@b.c"},
	}
	assert.Equal(t, "find email field and enter 'a@b.c'; if not found, find a functionally similar alternative", Goal(ec))

	ec = domain.ErrorContext{Kind: domain.ErrorJavaScript, Step: domain.Step{Type: domain.ActionNavigate, URL: "https://x.test"}}
	assert.Contains(t, Goal(ec), "repair the failed operation: navigate to https://x.test")
}
