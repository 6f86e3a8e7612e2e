package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"docchat/internal/domain"
)

// OpenAIClient adapts an OpenAI-compatible chat endpoint to domain.LLMClient.
// The base URL is configurable so any provider speaking the same protocol
// works unchanged.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient constructs a chat client against the given endpoint.
func NewOpenAIClient(baseURL, apiKey, model string, httpClient *http.Client) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func toOpenAIMessages(messages []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// Complete issues one blocking completion call and returns the assistant text.
func (c *OpenAIClient) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(messages),
	})
	if err != nil {
		return "", fmt.Errorf("failed to call completion endpoint: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion endpoint returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatStream starts a streaming completion. Chunks are forwarded until the
// provider signals the end of the stream; a mid-stream failure is delivered
// on the error channel. Both channels close when the stream ends.
func (c *OpenAIClient) ChatStream(ctx context.Context, messages []domain.Message) (<-chan domain.LLMStreamChunk, <-chan error, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open completion stream: %w", err)
	}

	chunkCh := make(chan domain.LLMStreamChunk)
	errCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)
		defer close(errCh)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				select {
				case chunkCh <- domain.LLMStreamChunk{Done: true}:
				case <-ctx.Done():
				}
				return
			}
			if err != nil {
				select {
				case errCh <- fmt.Errorf("completion stream failed: %w", err):
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case chunkCh <- domain.LLMStreamChunk{Response: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return chunkCh, errCh, nil
}

// Version returns the wrapped model name.
func (c *OpenAIClient) Version() string {
	return c.model
}

var _ domain.LLMClient = (*OpenAIClient)(nil)
