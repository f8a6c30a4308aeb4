package classifier

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	anthropicMaxTokens    = 4096
)

// AnthropicClient is a Provider backed by the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

// NewAnthropicClient creates an Anthropic-backed provider. Extra request
// options are passed to the SDK client (base URL overrides in tests).
func NewAnthropicClient(apiKey, model string, opts ...option.RequestOption) *AnthropicClient {
	if model == "" {
		model = defaultAnthropicModel
	}
	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicClient{
		client: anthropic.NewClient(clientOpts...),
		model:  model,
	}
}

// Model returns the model name recorded with each result.
func (c *AnthropicClient) Model() string {
	return c.model
}

// Complete sends one Messages API request and returns the first text
// block of the response.
func (c *AnthropicClient) Complete(ctx context.Context, system, user string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: anthropicMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("messages API: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}
