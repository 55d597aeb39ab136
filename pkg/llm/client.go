// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm provides the text-completion collaborator used by the
// documentation pipeline. Supported backends: Ollama, OpenAI-compatible
// APIs, Anthropic, and a mock for testing.
//
// The pipeline treats a Client as an opaque completion function. Retry and
// backoff for transient failures live inside the providers; callers only see
// the final result or error.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"
)

// Client is the interface for LLM text completion.
type Client interface {
	// Complete produces a text completion for the given request.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider identifier.
	Name() string
}

// Request represents a single text-completion request.
type Request struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Response contains the completion text plus usage accounting.
type Response struct {
	Text         string        `json:"text"`
	Model        string        `json:"model"`
	PromptTokens int           `json:"prompt_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
}

// Options holds configuration for creating a client.
type Options struct {
	// Provider type: "ollama", "openai", "anthropic", "mock"
	Provider string `json:"provider"`

	// BaseURL for the API endpoint (provider default when empty).
	BaseURL string `json:"base_url,omitempty"`

	// APIKey for authenticated providers.
	APIKey string `json:"api_key,omitempty"`

	// Model to use when a request does not name one.
	Model string `json:"model,omitempty"`

	// MaxTokens default for requests that leave it unset.
	// Documentation chapters are long-form, so the default is generous.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Timeout for a single API round trip.
	Timeout time.Duration `json:"timeout,omitempty"`

	// MaxRetries for 429/5xx responses.
	MaxRetries int `json:"max_retries,omitempty"`
}

// New creates a Client based on options.
// Supported providers: "ollama", "openai", "anthropic", "mock".
//
// Environment variables:
//   - OLLAMA_HOST: Ollama server URL (default: http://localhost:11434)
//   - OLLAMA_MODEL: Default Ollama model
//   - OPENAI_API_KEY: OpenAI API key
//   - OPENAI_BASE_URL: OpenAI-compatible API URL
//   - ANTHROPIC_API_KEY: Anthropic API key
func New(opts Options) (Client, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 300 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 8192
	}

	switch strings.ToLower(opts.Provider) {
	case "ollama", "local", "":
		return newOllamaClient(opts)
	case "openai", "openai-compatible":
		return newOpenAIClient(opts)
	case "anthropic", "claude":
		return newAnthropicClient(opts)
	case "mock", "test":
		return &MockClient{model: opts.Model}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: ollama, openai, anthropic, mock)", opts.Provider)
	}
}

// Call is the single-shot convenience used by the pipeline: one prompt in,
// completion text out.
func Call(ctx context.Context, prompt string, opts Options) (string, error) {
	client, err := New(opts)
	if err != nil {
		return "", err
	}
	resp, err := client.Complete(ctx, Request{Prompt: prompt})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// retryStatus reports whether an HTTP status is worth retrying.
func retryStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// backoffDelay computes the delay before retry attempt n (0-based),
// exponential with jitter: 1s, 2s, 4s... capped at 30s.
func backoffDelay(attempt int) time.Duration {
	d := time.Second << uint(attempt)
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4))
	return d + jitter
}

// doWithRetry executes fn up to maxRetries+1 times, retrying on transport
// errors and retryable HTTP statuses. fn returns the response status (0 for
// transport errors) so doWithRetry can decide.
func doWithRetry(ctx context.Context, maxRetries int, fn func() (int, error)) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		status, err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if status != 0 && !retryStatus(status) {
			return err
		}
		if attempt >= maxRetries {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDelay(attempt)):
		}
	}
}

// =============================================================================
// OLLAMA
// =============================================================================

type ollamaClient struct {
	baseURL    string
	model      string
	maxTokens  int
	client     *http.Client
	maxRetries int
}

func newOllamaClient(opts Options) (*ollamaClient, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	model := opts.Model
	if model == "" {
		model = os.Getenv("OLLAMA_MODEL")
	}

	return &ollamaClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		maxTokens:  opts.MaxTokens,
		client:     &http.Client{Timeout: opts.Timeout},
		maxRetries: opts.MaxRetries,
	}, nil
}

func (c *ollamaClient) Name() string { return "ollama" }

func (c *ollamaClient) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return nil, fmt.Errorf("ollama: model not specified (set OLLAMA_MODEL or pass in request)")
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	payload := map[string]any{
		"model":  model,
		"prompt": req.Prompt,
		"stream": false,
		"options": map[string]any{
			"num_predict": maxTokens,
		},
	}
	if req.Temperature > 0 {
		payload["options"].(map[string]any)["temperature"] = req.Temperature
	}

	body, _ := json.Marshal(payload)

	var result struct {
		Response        string `json:"response"`
		Model           string `json:"model"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}

	start := time.Now()
	err := doWithRetry(ctx, c.maxRetries, func() (int, error) {
		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", strings.NewReader(string(body)))
		if err != nil {
			return 0, err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(httpReq)
		if err != nil {
			return 0, fmt.Errorf("ollama generate: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			return resp.StatusCode, fmt.Errorf("ollama generate error (status %d): %s", resp.StatusCode, string(bodyBytes))
		}
		return http.StatusOK, json.NewDecoder(resp.Body).Decode(&result)
	})
	if err != nil {
		return nil, err
	}

	return &Response{
		Text:         result.Response,
		Model:        result.Model,
		PromptTokens: result.PromptEvalCount,
		OutputTokens: result.EvalCount,
		Duration:     time.Since(start),
	}, nil
}

// =============================================================================
// OPENAI-COMPATIBLE
// =============================================================================

type openaiClient struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	client     *http.Client
	maxRetries int
}

func newOpenAIClient(opts Options) (*openaiClient, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	model := opts.Model
	if model == "" {
		model = os.Getenv("OPENAI_MODEL")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &openaiClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		maxTokens:  opts.MaxTokens,
		client:     &http.Client{Timeout: opts.Timeout},
		maxRetries: opts.MaxRetries,
	}, nil
}

func (c *openaiClient) Name() string { return "openai" }

func (c *openaiClient) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	payload := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
		"max_tokens": maxTokens,
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}

	body, _ := json.Marshal(payload)

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Model string `json:"model"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}

	start := time.Now()
	err := doWithRetry(ctx, c.maxRetries, func() (int, error) {
		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", strings.NewReader(string(body)))
		if err != nil {
			return 0, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(httpReq)
		if err != nil {
			return 0, fmt.Errorf("openai completion: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			return resp.StatusCode, fmt.Errorf("openai completion error (status %d): %s", resp.StatusCode, string(bodyBytes))
		}
		return http.StatusOK, json.NewDecoder(resp.Body).Decode(&result)
	})
	if err != nil {
		return nil, err
	}

	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	return &Response{
		Text:         result.Choices[0].Message.Content,
		Model:        result.Model,
		PromptTokens: result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
		Duration:     time.Since(start),
	}, nil
}

// =============================================================================
// ANTHROPIC
// =============================================================================

type anthropicClient struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	client     *http.Client
	maxRetries int
}

func newAnthropicClient(opts Options) (*anthropicClient, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}

	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	model := opts.Model
	if model == "" {
		model = os.Getenv("ANTHROPIC_MODEL")
	}
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}

	return &anthropicClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		maxTokens:  opts.MaxTokens,
		client:     &http.Client{Timeout: opts.Timeout},
		maxRetries: opts.MaxRetries,
	}, nil
}

func (c *anthropicClient) Name() string { return "anthropic" }

func (c *anthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	payload := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
		"max_tokens": maxTokens,
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}

	body, _ := json.Marshal(payload)

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Model string `json:"model"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}

	start := time.Now()
	err := doWithRetry(ctx, c.maxRetries, func() (int, error) {
		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", strings.NewReader(string(body)))
		if err != nil {
			return 0, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", "2023-06-01")

		resp, err := c.client.Do(httpReq)
		if err != nil {
			return 0, fmt.Errorf("anthropic completion: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			return resp.StatusCode, fmt.Errorf("anthropic completion error (status %d): %s", resp.StatusCode, string(bodyBytes))
		}
		return http.StatusOK, json.NewDecoder(resp.Body).Decode(&result)
	})
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, c := range result.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}

	return &Response{
		Text:         text.String(),
		Model:        result.Model,
		PromptTokens: result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
		Duration:     time.Since(start),
	}, nil
}

// =============================================================================
// MOCK (for testing)
// =============================================================================

// MockClient is a test client that returns predictable responses and counts
// how many completions were issued.
type MockClient struct {
	model        string
	CompleteFunc func(ctx context.Context, req Request) (*Response, error)
	Calls        int
}

func (c *MockClient) Name() string { return "mock" }

func (c *MockClient) Complete(ctx context.Context, req Request) (*Response, error) {
	c.Calls++
	if c.CompleteFunc != nil {
		return c.CompleteFunc(ctx, req)
	}
	return &Response{
		Text:         fmt.Sprintf("[mock] completion for: %.50s...", req.Prompt),
		Model:        "mock-model",
		PromptTokens: len(req.Prompt) / 4,
		OutputTokens: 20,
		Duration:     10 * time.Millisecond,
	}, nil
}
