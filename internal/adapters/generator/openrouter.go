package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/revrost/go-openrouter"
	"github.com/rs/zerolog/log"
)

const DefaultAltTextPrompt = "Write a concise alt text for this image, at most one sentence. " +
	"Reply with the alt text only."

type OpenRouterClient interface {
	CreateChatCompletion(ctx context.Context,
		request openrouter.ChatCompletionRequest) (openrouter.ChatCompletionResponse, error)
}

// OpenRouter describes images with a vision model for alt text.
type OpenRouter struct {
	client OpenRouterClient
	model  string
	prompt string
}

func NewOpenRouter(apiKey, model string) *OpenRouter {
	return &OpenRouter{
		client: openrouter.NewClient(
			apiKey,
			openrouter.WithXTitle("cloudimg"),
		),
		model:  model,
		prompt: DefaultAltTextPrompt,
	}
}

func (c *OpenRouter) Describe(ctx context.Context, imageURL string) (string, error) {
	if imageURL == "" {
		return "", errors.New("missing image")
	}

	ccr := openrouter.ChatCompletionRequest{
		Model: c.model,
		Messages: []openrouter.ChatCompletionMessage{
			{
				Role: openrouter.ChatMessageRoleUser,
				Content: openrouter.Content{Multi: []openrouter.ChatMessagePart{
					{
						Type:     openrouter.ChatMessagePartTypeImageURL,
						ImageURL: &openrouter.ChatMessageImageURL{URL: imageURL},
					},
					{
						Type: openrouter.ChatMessagePartTypeText,
						Text: c.prompt,
					},
				},
				},
			},
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, ccr)
	if err != nil {
		return "", fmt.Errorf("openrouter API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned from openrouter response")
	}

	alt := strings.TrimSpace(resp.Choices[0].Message.Content.Text)
	if alt == "" {
		return "", errors.New("empty alt text returned from openrouter")
	}

	log.Debug().
		Str("model", resp.Model).
		Int("totalTokens", resp.Usage.TotalTokens).
		Msg("generated alt text")

	return alt, nil
}
