package llm

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Backend issues chat completion requests against one configured model.
// Complete blocks for the full response; Stream delivers it incrementally.
type Backend interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Stream(ctx context.Context, messages []Message) (Stream, error)
}

// Client implements Backend over any OpenAI-compatible chat completion
// endpoint (OpenAI, DeepSeek, and friends) using the openai-go SDK with a
// per-model base URL.
type Client struct {
	client *openai.Client
	model  string
}

func NewClient(baseURL, apiKey, model string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &Client{client: &client, model: model}
}

func (c *Client) params(messages []Message) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    buildChatMessages(messages),
		Temperature: openai.Float(DefaultTemperature),
		MaxTokens:   openai.Int(DefaultMaxTokens),
	}
}

func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(messages))
	if err != nil {
		return "", backendErrorf(err, "chat completion failed for %s", c.model)
	}
	if len(resp.Choices) == 0 {
		return "", backendErrorf(nil, "backend returned no choices for %s", c.model)
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) Stream(ctx context.Context, messages []Message) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(messages))
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case events <- Event{Type: EventTextDelta, Text: delta}:
				}
			}
		}
		if err := stream.Err(); err != nil {
			return backendErrorf(err, "streaming failed for %s", c.model)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case events <- Event{Type: EventDone}:
		}
		return nil
	}), nil
}

func buildChatMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		}
	}
	return out
}
