package core

import (
	"context"
	"errors"
	"strings"

	"gwi.com/conversation-assistant/internal/llm"
	"gwi.com/conversation-assistant/internal/store"
)

const (
	assistantSystemPrompt = "You are a helpful assistant."
	summarySystemPrompt   = "Summarize the conversation in 5 words."
)

// Canned texts. Mock texts are what mock mode answers with.
const (
	MockAnswer    = "Mock answer"
	MockSummary   = "Mock summary"
	UnsafeMessage = "Whoa, whoa... I am here to help you learn, so watch your words and what you ask about."
)

// generateAnswer runs moderation and completion for the latest user message of
// the conversation and stores the assistant reply.
func (s *ChatService) generateAnswer(ctx context.Context, ownerID, conversationID int64) (*store.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, lookupError(err)
	}

	content, err := s.answerContent(ctx, conv)
	if err != nil {
		return nil, err
	}

	answer, err := s.store.CreateMessage(ctx, store.MessageCreate{
		ConversationID: conv.ID,
		OwnerID:        ownerID,
		Role:           store.RoleAssistant,
		Content:        content,
	})
	if err != nil {
		return nil, persistenceError(err)
	}
	return answer, nil
}

func (s *ChatService) answerContent(ctx context.Context, conv *store.Conversation) (string, error) {
	log := s.log.With().Int64("conversation_id", conv.ID).Logger()
	if s.settings.MockMode {
		log.Debug().Msg("mock mode: skipping moderation and completion")
		return MockAnswer, nil
	}

	question := lastUserMessage(conv.Messages)
	if question == nil {
		return "", newError(KindInternal, DetailPersistenceFailure, errors.New("conversation has no user message to answer"))
	}

	flagged, err := s.llm.IsFlagged(ctx, question.Content)
	if err != nil {
		return "", newError(KindRemote, DetailAssistantUnavailable, err)
	}
	if flagged {
		log.Info().Int64("message_id", question.ID).Msg("message flagged by moderation")
		return UnsafeMessage, nil
	}

	reply, err := s.llm.Complete(ctx, llm.CompletionRequest{
		System:    assistantSystemPrompt,
		History:   conv.Messages,
		Model:     s.settings.ChatModel,
		MaxTokens: s.settings.MaxTokens,
	})
	if err != nil {
		return "", newError(KindRemote, DetailAssistantUnavailable, err)
	}
	if reply == nil {
		return "", newError(KindRemote, DetailAssistantEmpty, nil)
	}
	return *reply, nil
}

// generateSummary returns the model's summary of the conversation as produced,
// or nil when the model produced none.
func (s *ChatService) generateSummary(ctx context.Context, conversationID int64) (*string, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, lookupError(err)
	}
	if s.settings.MockMode {
		summary := MockSummary
		return &summary, nil
	}

	summary, err := s.llm.Complete(ctx, llm.CompletionRequest{
		System:    summarySystemPrompt,
		History:   conv.Messages,
		Model:     s.settings.ChatModel,
		MaxTokens: s.settings.SummaryMaxTokens,
	})
	if err != nil {
		return nil, newError(KindRemote, DetailAssistantUnavailable, err)
	}
	if summary != nil && strings.TrimSpace(*summary) == "" {
		return nil, nil
	}
	return summary, nil
}

func lastUserMessage(messages []store.Message) *store.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == store.RoleUser {
			return &messages[i]
		}
	}
	return nil
}
