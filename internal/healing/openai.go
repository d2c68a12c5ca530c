package healing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/shaiso/Mender/internal/domain"
	"github.com/tidwall/gjson"
)

// DefaultModel — модель по умолчанию.
const DefaultModel = "gpt-4o-mini"

const systemPrompt = `You repair failed steps of browser automation workflows.
Respond with a single JSON object and nothing else:
{"success": bool, "actions": [{"type": "...", "selector": "...", "value": "...", "description": "...", "coordinates": {"x": 0, "y": 0}}]}
Allowed action types: navigate, click, fill, select, wait, scroll, hover, press_key, screenshot, extract.
Use CSS selectors. Set success to false when the goal cannot be reached.`

// OpenAIConfig — конфигурация агента на OpenAI-совместимом API.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64

	// Timeout — ограничение на один запрос (default: 60s).
	Timeout time.Duration

	Logger *slog.Logger
}

// OpenAIAgent — Agent поверх Chat Completions.
// Ответ модели разбирается один раз в типизированные AgentAction.
type OpenAIAgent struct {
	client      openai.Client
	model       string
	temperature float64
	timeout     time.Duration
	logger      *slog.Logger
}

// NewOpenAIAgent создаёт агента.
func NewOpenAIAgent(cfg OpenAIConfig) *OpenAIAgent {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAIAgent{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: cfg.Temperature,
		timeout:     timeout,
		logger:      logger,
	}
}

// Run запрашивает у модели действия для достижения цели.
func (a *OpenAIAgent) Run(ctx context.Context, goal string) (AgentResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(goal),
		},
		Temperature: openai.Float(a.temperature),
	})
	if err != nil {
		return AgentResult{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return AgentResult{}, fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}

	res, dropped, err := ParseAgentResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return AgentResult{}, err
	}
	if dropped > 0 {
		a.logger.Warn("agent actions dropped", "count", dropped, "model", a.model)
	}
	return res, nil
}

// ParseAgentResponse разбирает JSON-ответ агента.
// Обрамление ```json снимается. Действия неизвестного типа пропускаются
// и считаются в dropped.
func ParseAgentResponse(content string) (res AgentResult, dropped int, err error) {
	body := stripFence(content)
	if !gjson.Valid(body) {
		return AgentResult{}, 0, fmt.Errorf("%w: not a json object", ErrInvalidResponse)
	}

	doc := gjson.Parse(body)
	if !doc.IsObject() {
		return AgentResult{}, 0, fmt.Errorf("%w: not a json object", ErrInvalidResponse)
	}

	res.Success = doc.Get("success").Bool()
	doc.Get("actions").ForEach(func(_, v gjson.Result) bool {
		kind, err := domain.ParseActionKind(v.Get("type").String())
		if err != nil {
			dropped++
			return true
		}

		action := AgentAction{
			Type:        kind,
			Selector:    v.Get("selector").String(),
			Value:       v.Get("value").String(),
			Description: v.Get("description").String(),
		}
		if c := v.Get("coordinates"); c.IsObject() {
			action.Coords = &domain.Coordinates{X: c.Get("x").Float(), Y: c.Get("y").Float()}
		}
		res.Actions = append(res.Actions, action)
		return true
	})

	return res, dropped, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
