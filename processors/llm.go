package processors

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"mediarag/config"
)

// NewOpenAIClient builds the shared client for the OpenAI-compatible
// endpoint (hosted API or a local Ollama).
func NewOpenAIClient(cfg *config.Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// Embedder turns text into a fixed-dimensionality vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type OpenAIEmbedder struct {
	cli   *openai.Client
	model string
}

func NewOpenAIEmbedder(cli *openai.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{cli: cli, model: model}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.cli.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	// A missing vector is an explicit failure, never a silent default.
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding model %s returned no vector", e.model)
	}
	return resp.Data[0].Embedding, nil
}

// Chat generates an answer from an assembled prompt.
type Chat interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type OpenAIChat struct {
	cli   *openai.Client
	model string
}

func NewOpenAIChat(cli *openai.Client, model string) *OpenAIChat {
	return &OpenAIChat{cli: cli, model: model}
}

func (c *OpenAIChat) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat model %s returned no choices", c.model)
	}
	return resp.Choices[0].Message.Content, nil
}
