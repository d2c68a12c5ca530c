package healing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shaiso/Mender/internal/domain"
)

// Agent — внешний AI-агент, восстанавливающий действие по текстовой цели.
// Считается ненадёжным: его ошибки и паники перехватываются.
type Agent interface {
	Run(ctx context.Context, goal string) (AgentResult, error)
}

// AgentFunc — адаптер функции к Agent.
type AgentFunc func(ctx context.Context, goal string) (AgentResult, error)

// Run вызывает f(ctx, goal).
func (f AgentFunc) Run(ctx context.Context, goal string) (AgentResult, error) {
	return f(ctx, goal)
}

// AgentAction — одно действие, выполненное агентом.
type AgentAction struct {
	Type        domain.ActionKind   `json:"type"`
	Selector    string              `json:"selector,omitempty"`
	Value       string              `json:"value,omitempty"`
	Coords      *domain.Coordinates `json:"coordinates,omitempty"`
	Description string              `json:"description"`
}

// AgentResult — ответ агента.
type AgentResult struct {
	Success bool          `json:"success"`
	Actions []AgentAction `json:"actions"`
}

// Goal формулирует цель лечения по классу ошибки и шагу.
func Goal(ec domain.ErrorContext) string {
	step := ec.Step

	switch ec.Kind {
	case domain.ErrorElementNotFound:
		switch step.Type {
		case domain.ActionClick:
			return fmt.Sprintf("find and click %s; if not found, find a functionally similar alternative",
				target(step, "the target element"))
		case domain.ActionFill:
			return fmt.Sprintf("find %s and enter '%s'; if not found, find a functionally similar alternative",
				target(step, "the input field"), step.Value)
		}
	case domain.ErrorTimeout:
		return fmt.Sprintf("wait for page load then perform %s", step.Type)
	}

	return fmt.Sprintf("repair the failed operation: %s. Analyze the current page state and find a suitable way to complete it", describe(step))
}

// Prompt дополняет цель диагностикой сбоя для агента.
func Prompt(ec domain.ErrorContext, goal string) string {
	var b strings.Builder
	b.WriteString("An automated browser workflow step failed and must be repaired.\n\n")
	fmt.Fprintf(&b, "Goal: %s\n", goal)
	fmt.Fprintf(&b, "Error message: %s\n", ec.Message)
	fmt.Fprintf(&b, "Error type: %s\n", ec.Kind)
	fmt.Fprintf(&b, "Failed step: %s\n", describe(ec.Step))
	fmt.Fprintf(&b, "Current page URL: %s\n", orUnknown(ec.PageURL))
	fmt.Fprintf(&b, "Page title: %s\n", orUnknown(ec.PageTitle))
	b.WriteString("\nIf the original selector does not work, find a functionally similar element. ")
	b.WriteString("Perform the operation step by step and make sure it completes.")
	return b.String()
}

// planFromAgent превращает действия агента в шаги.
// Действия неизвестного типа отбрасываются.
func planFromAgent(res AgentResult, sessionID string, ec domain.ErrorContext, now time.Time) (Plan, error) {
	if !res.Success {
		return Plan{}, ErrAgentFailed
	}

	sid := shortID(sessionID)
	var steps []domain.Step
	for _, a := range res.Actions {
		if !a.Type.IsValid() {
			continue
		}
		steps = append(steps, domain.Step{
			ID:          fmt.Sprintf("ai_%s_%s_%d", a.Type, sid, len(steps)),
			Type:        a.Type,
			Description: a.Description,
			Selector:    a.Selector,
			Value:       a.Value,
			Coords:      a.Coords,
		})
	}
	if len(steps) == 0 {
		return Plan{}, fmt.Errorf("%w: agent returned no usable actions", ErrNoSteps)
	}

	return Plan{Steps: steps, Actions: provenance(steps, sessionID, ec, now)}, nil
}

func target(step domain.Step, fallback string) string {
	switch {
	case step.Selector != "":
		return step.Selector
	case step.Description != "":
		return step.Description
	default:
		return fallback
	}
}

func describe(step domain.Step) string {
	switch step.Type {
	case domain.ActionClick:
		return "click " + target(step, "element")
	case domain.ActionFill:
		return fmt.Sprintf("enter '%s' into %s", step.Value, target(step, "input field"))
	case domain.ActionNavigate:
		return "navigate to " + step.URL
	case domain.ActionWait:
		return "wait for " + target(step, "element") + " to appear"
	default:
		return fmt.Sprintf("perform %s", step.Type)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
