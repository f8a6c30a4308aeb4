package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultOpenAIModel   = "o4-mini-2025-04-16"
	defaultOpenAIBaseURL = "https://api.openai.com"
)

// OpenAIClient is a Provider backed by the OpenAI chat completions API.
type OpenAIClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// OpenAIOption configures an OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithOpenAIBaseURL sets a custom base URL (for testing).
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.baseURL = url
	}
}

// NewOpenAIClient creates an OpenAI-backed provider. An empty model
// falls back to the default.
func NewOpenAIClient(apiKey, model string, opts ...OpenAIOption) *OpenAIClient {
	c := &OpenAIClient{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultOpenAIBaseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	if c.model == "" {
		c.model = defaultOpenAIModel
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the model name recorded with each result.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Complete sends one chat completion request and returns the raw
// assistant text. JSON mode and a low temperature keep the scoring
// consistent across runs.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	reqBody := openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0.3,
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return "", fmt.Errorf("unexpected response (status %d): %w", resp.StatusCode, err)
	}
	if openAIResp.Error != nil {
		return "", fmt.Errorf("API error: %s", openAIResp.Error.Message)
	}
	if len(openAIResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return openAIResp.Choices[0].Message.Content, nil
}

// OpenAI API types

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}
