package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"gwi.com/conversation-assistant/internal/store"
)

const providerOpenAI = "openai"

type OpenAIClient struct {
	client *openai.Client
	log    zerolog.Logger
}

// NewOpenAIClient builds a client for the OpenAI API, or a compatible server when baseURL is set.
func NewOpenAIClient(apiKey, baseURL string, log zerolog.Logger) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		log:    log.With().Str("provider", providerOpenAI).Logger(),
	}
}

func (c *OpenAIClient) IsFlagged(ctx context.Context, text string) (flagged bool, err error) {
	defer func(start time.Time) { observe(providerOpenAI, OperationModeration, start, err) }(time.Now())

	resp, err := c.client.Moderations(ctx, openai.ModerationRequest{Input: text})
	if err != nil {
		return false, fmt.Errorf("openai moderation request failed: %w", err)
	}
	if len(resp.Results) == 0 {
		return false, errors.New("openai moderation returned no results")
	}
	return resp.Results[0].Flagged, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (reply *string, err error) {
	defer func(start time.Time) { observe(providerOpenAI, OperationCompletion, start, err) }(time.Now())

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Messages:  chatMessages(BuildPrompt(req.System, req.History)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		c.log.Warn().Str("model", req.Model).Msg("chat completion returned no content")
		return nil, nil
	}
	content := resp.Choices[0].Message.Content
	return &content, nil
}

func (c *OpenAIClient) Close() error {
	return nil
}

func chatMessages(prompt []Turn) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(prompt))
	for _, turn := range prompt {
		role := openai.ChatMessageRoleUser
		switch turn.Role {
		case store.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case store.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	return messages
}
