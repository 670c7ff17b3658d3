package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"exam_engine_backend/internal/config"
)

// ExecutionTestCase is the runner-facing view of a test case.
type ExecutionTestCase struct {
	ID        uint   `json:"id"`
	Assertion string `json:"assertion"`
}

type ExecutionRequest struct {
	Code      string              `json:"code"`
	TestCases []ExecutionTestCase `json:"testcases"`
}

// CodeRunner executes untrusted code against test cases and returns the raw
// result document. The engine stores the document as-is and only interprets
// its "tests" key at scoring time.
type CodeRunner interface {
	Execute(ctx context.Context, req ExecutionRequest) (json.RawMessage, error)
}

// HTTPCodeRunner talks to an external sandboxed runner over HTTP.
type HTTPCodeRunner struct {
	URL    string
	APIKey string
	Client *http.Client
}

func NewHTTPCodeRunner(cfg config.RunnerConfig) *HTTPCodeRunner {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPCodeRunner{
		URL:    cfg.URL,
		APIKey: cfg.APIKey,
		Client: &http.Client{Timeout: timeout},
	}
}

func (r *HTTPCodeRunner) Execute(ctx context.Context, req ExecutionRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.APIKey != "" {
		httpReq.Header.Set("X-API-Key", r.APIKey)
	}

	resp, err := r.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("代码执行服务返回 %d: %s", resp.StatusCode, string(raw))
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("代码执行服务返回了非 JSON 响应")
	}
	return json.RawMessage(raw), nil
}
