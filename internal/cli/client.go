package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shaiso/Mender/internal/domain"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ExecutionAccepted — ответ на поставленное в очередь выполнение.
type ExecutionAccepted struct {
	ExecutionID  string `json:"execution_id"`
	WorkflowName string `json:"workflow_name"`
	IsBatch      bool   `json:"is_batch"`
	Status       string `json:"status"`
}

// ExecutionSummary — строка истории выполнений.
type ExecutionSummary struct {
	ID           string  `json:"execution_id"`
	WorkflowName string  `json:"workflow_name"`
	Status       string  `json:"status"`
	StartTime    string  `json:"start_time"`
	DurationMs   int64   `json:"duration_ms"`
	SuccessRate  float64 `json:"success_rate"`
	IsBatch      bool    `json:"is_batch"`
}

// ExecutionDetail — выполнение или пакет; заполнено ровно одно поле.
type ExecutionDetail struct {
	Execution *domain.WorkflowExecutionResult `json:"execution,omitempty"`
	Batch     *domain.BatchExecutionResult    `json:"batch,omitempty"`
}

// HealingSession — сессия лечения из API.
type HealingSession struct {
	ID        string `json:"session_id"`
	Status    string `json:"status"`
	Success   bool   `json:"success"`
	Tier      string `json:"tier,omitempty"`
	ErrorKind string `json:"error_kind"`
	StepID    string `json:"step_id,omitempty"`
	Goal      string `json:"goal"`
	Reason    string `json:"failure_reason,omitempty"`
	StartTime string `json:"start_time"`

	NewSteps []domain.Step `json:"new_steps"`
}

// --- Request types ---

// SubmitRequest — постановка выполнения в очередь.
type SubmitRequest struct {
	Workflow     *domain.Workflow `json:"workflow"`
	WorkflowPath string           `json:"workflow_path,omitempty"`
	Inputs       map[string]any   `json:"inputs,omitempty"`
	Batch        []map[string]any `json:"batch,omitempty"`
	Concurrency  int              `json:"concurrency,omitempty"`
}

// envelope — ответ API: {"data": ...} или {"error": {...}}.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ответ API со статусом 4xx/5xx.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.StatusCode)
	}
	return e.Code + ": " + e.Message
}

// IsNotFound сообщает, что API ответил 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client — HTTP-клиент для Mender API.
//
// Ответы 502/503/504 и сетевые ошибки повторяются с экспоненциальной
// задержкой; POST повторяется только если запрос не дошёл до сервера.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    uint64
	backoff    time.Duration
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retries:    3,
		backoff:    200 * time.Millisecond,
	}
}

// SubmitExecution ставит выполнение в очередь.
func (c *Client) SubmitExecution(ctx context.Context, req SubmitRequest) (*ExecutionAccepted, error) {
	var accepted ExecutionAccepted
	if err := c.call(ctx, http.MethodPost, "/api/v1/executions", req, &accepted); err != nil {
		return nil, err
	}
	return &accepted, nil
}

// ListExecutions возвращает историю выполнений. Пустой workflow — все.
func (c *Client) ListExecutions(ctx context.Context, workflow string, limit int) ([]ExecutionSummary, error) {
	params := url.Values{}
	if workflow != "" {
		params.Set("workflow", workflow)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/executions"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var items []ExecutionSummary
	err := c.call(ctx, http.MethodGet, path, nil, &items)
	return items, err
}

// GetExecution возвращает выполнение или пакет по ID.
func (c *Client) GetExecution(ctx context.Context, id string) (*ExecutionDetail, error) {
	var detail ExecutionDetail
	if err := c.call(ctx, http.MethodGet, "/api/v1/executions/"+url.PathEscape(id), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListExecutionHealing возвращает сессии лечения выполнения.
func (c *Client) ListExecutionHealing(ctx context.Context, id string) ([]HealingSession, error) {
	var sessions []HealingSession
	err := c.call(ctx, http.MethodGet, "/api/v1/executions/"+url.PathEscape(id)+"/healing", nil, &sessions)
	return sessions, err
}

// call выполняет запрос с повторами и раскладывает data в result.
func (c *Client) call(ctx context.Context, method, path string, body, result any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = data
	}

	var env envelope
	b := retry.WithMaxRetries(c.retries, retry.NewExponential(c.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		status, err := c.roundTrip(ctx, method, path, payload, &env)
		switch {
		case err != nil && status == 0 && (method == http.MethodGet || isDialError(err)):
			return retry.RetryableError(err)
		case err != nil:
			return err
		case status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
			return retry.RetryableError(apiError(status, &env))
		case status >= 400:
			return apiError(status, &env)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if result == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// roundTrip отправляет один запрос. status == 0 — ответа не было.
func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, env *envelope) (int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	*env = envelope{}
	if err := json.NewDecoder(resp.Body).Decode(env); err != nil && resp.StatusCode < 400 {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func apiError(status int, env *envelope) *APIError {
	e := &APIError{StatusCode: status}
	if env.Error != nil {
		e.Code, e.Message = env.Error.Code, env.Error.Message
	}
	return e
}

// isDialError — соединение не установлено, запрос точно не отправлен.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
