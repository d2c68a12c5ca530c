package mq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shaiso/Mender/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *fakeAck) Ack(bool) error { a.acked = true; return nil }

func (a *fakeAck) Nack(_, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func newTestConsumer(h Handler) *Consumer {
	return NewConsumer(nil, slog.New(slog.NewTextHandler(io.Discard, nil)), ConsumerConfig{
		Queue:   QueueExecutionsRequested,
		Handler: h,
	})
}

func encode(t *testing.T, msg *Message) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return body
}

func TestParsePayload_ExecutionRequested(t *testing.T) {
	payload := ExecutionRequestedPayload{
		ExecutionID: "exec-1",
		Workflow: &domain.Workflow{
			Name:  "search",
			Steps: []domain.Step{{ID: "open", Type: domain.ActionNavigate, URL: "https://example.com"}},
		},
		Inputs:      []map[string]any{{"query": "go"}, {"query": "rust"}},
		Batch:       true,
		Concurrency: 2,
	}

	var msg Message
	require.NoError(t, json.Unmarshal(encode(t, newMessage(MessageTypeExecutionRequested, payload)), &msg))
	assert.Equal(t, MessageTypeExecutionRequested, msg.Type)

	got, err := ParsePayload[ExecutionRequestedPayload](&msg)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", got.ExecutionID)
	assert.Equal(t, "search", got.Workflow.Name)
	assert.Equal(t, domain.ActionNavigate, got.Workflow.Steps[0].Type)
	assert.Len(t, got.Inputs, 2)
	assert.True(t, got.Batch)
}

func TestParsePayload_TypeMismatch(t *testing.T) {
	msg := &Message{Payload: map[string]any{"batch": "yes"}}
	_, err := ParsePayload[ExecutionRequestedPayload](msg)
	require.Error(t, err)
}

func TestBatchCompleted_CollectsHealingSessions(t *testing.T) {
	b := domain.NewBatchExecutionResult("batch-1", "search", 2, 2)
	r1 := domain.NewWorkflowExecutionResult("e1", "search", 1, nil)
	r1.HealingSessions = []string{"h1"}
	r2 := domain.NewWorkflowExecutionResult("e2", "search", 1, nil)
	r2.HealingSessions = []string{"h2", "h3"}
	b.AddExecution(r1)
	b.AddExecution(r2)

	p := BatchCompleted(b)
	assert.True(t, p.IsBatch)
	assert.Equal(t, "batch-1", p.ExecutionID)
	assert.Equal(t, []string{"h1", "h2", "h3"}, p.HealingSessions)
}

func TestHealingCompleted(t *testing.T) {
	s := domain.NewHealingSession("hs-1", domain.ErrorContext{
		Kind: domain.ErrorElementNotFound,
		Step: domain.Step{ID: "submit"},
	}, "click submit")
	s.MarkSucceeded(domain.TierHeuristic, []domain.Step{{ID: "a"}, {ID: "b"}}, nil)

	p := HealingCompleted(s)
	assert.Equal(t, "hs-1", p.SessionID)
	assert.True(t, p.Success)
	assert.Equal(t, domain.TierHeuristic, p.Tier)
	assert.Equal(t, "submit", p.StepID)
	assert.Equal(t, 2, p.NewSteps)
}

func TestConsumer_Ack(t *testing.T) {
	var got MessageType
	c := newTestConsumer(func(_ context.Context, msg *Message) error {
		got = msg.Type
		return nil
	})

	ack := &fakeAck{}
	c.handle(context.Background(), ack, encode(t, newMessage(MessageTypeExecutionRequested, nil)), false)

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	assert.Equal(t, MessageTypeExecutionRequested, got)
}

func TestConsumer_HandlerErrorRequeuedOnce(t *testing.T) {
	c := newTestConsumer(func(context.Context, *Message) error {
		return errors.New("boom")
	})
	body := encode(t, newMessage(MessageTypeExecutionRequested, nil))

	first := &fakeAck{}
	c.handle(context.Background(), first, body, false)
	assert.True(t, first.nacked)
	assert.True(t, first.requeue)

	second := &fakeAck{}
	c.handle(context.Background(), second, body, true)
	assert.True(t, second.nacked)
	assert.False(t, second.requeue)
}

func TestConsumer_MalformedGoesToDLQ(t *testing.T) {
	called := false
	c := newTestConsumer(func(context.Context, *Message) error {
		called = true
		return nil
	})

	ack := &fakeAck{}
	c.handle(context.Background(), ack, []byte("{not json"), false)

	assert.False(t, called)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
}

func TestConsumer_HandlerPanic(t *testing.T) {
	c := newTestConsumer(func(context.Context, *Message) error {
		panic("handler exploded")
	})

	ack := &fakeAck{}
	c.handle(context.Background(), ack, encode(t, newMessage(MessageTypeExecutionRequested, nil)), true)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
}

func TestDefaultTopology(t *testing.T) {
	top := DefaultTopology()
	assert.ElementsMatch(t, []Queue{
		QueueExecutionsRequested,
		QueueExecutionsCompleted,
		QueueHealingCompleted,
		QueueDLQExecutions,
	}, top.Queues())

	for _, q := range top.queues {
		if q.name == QueueExecutionsRequested {
			assert.Equal(t, string(ExchangeDLQ), q.args["x-dead-letter-exchange"])
		}
	}
}
