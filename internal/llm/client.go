// Package llm is the chat-completion transport used by the extraction and
// explanation services. The backend is DeepSeek through its OpenAI-compatible
// API; anything that satisfies Completer can stand in for it.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"leasecheck/internal/logger"
)

const (
	// DefaultBaseURL is the DeepSeek OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.deepseek.com/v1"

	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "deepseek-chat"
)

// Request is one system+user exchange.
type Request struct {
	SystemPrompt string
	UserMessage  string
	Temperature  float32
	MaxTokens    int
}

// Completer sends a prompt and returns the raw model text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Config configures a ChatClient.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ChatClient implements Completer on top of go-openai.
type ChatClient struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

// NewChatClient builds a client for cfg. An empty API key is a configuration
// error and yields ErrMissingCredentials.
func NewChatClient(cfg Config) (*ChatClient, error) {
	const op = "NewChatClient"

	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, WrapLLMError(op, ErrMissingCredentials, "")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL
	if clientConfig.BaseURL == "" {
		clientConfig.BaseURL = DefaultBaseURL
	}

	return NewChatClientWithDeps(openai.NewClientWithConfig(clientConfig), cfg.Model), nil
}

// NewChatClientWithDeps wraps an existing go-openai client.
func NewChatClientWithDeps(client *openai.Client, model string) *ChatClient {
	if model == "" {
		model = DefaultModel
	}
	return &ChatClient{
		client: client,
		model:  model,
		log:    logger.WithComponent("llm"),
	}
}

// Model returns the configured model name.
func (c *ChatClient) Model() string {
	return c.model
}

// Complete sends one chat completion. No retries happen here.
func (c *ChatClient) Complete(ctx context.Context, req Request) (string, error) {
	const op = "Complete"

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserMessage,
	})

	c.log.Debug().
		Str("model", c.model).
		Float32("temperature", req.Temperature).
		Int("max_tokens", req.MaxTokens).
		Int("prompt_length", len(req.SystemPrompt)+len(req.UserMessage)).
		Msg("Sending chat completion")

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", WrapLLMError(op, ErrRequestFailed, err.Error())
	}

	if len(resp.Choices) == 0 {
		return "", WrapLLMError(op, ErrEmptyResponse, "no choices")
	}

	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", WrapLLMError(op, ErrEmptyResponse, fmt.Sprintf("finish reason %q", resp.Choices[0].FinishReason))
	}

	c.log.Debug().
		Int("response_length", len(content)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("Received chat completion")

	return content, nil
}
