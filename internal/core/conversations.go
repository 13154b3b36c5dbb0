package core

import (
	"context"

	"gwi.com/conversation-assistant/internal/store"
)

const (
	DefaultPageLimit = 100
	maxPageLimit     = 1000
)

// ListConversations returns a page of the user's conversations and their total count.
func (s *ChatService) ListConversations(ctx context.Context, user *store.User, skip, limit int) ([]store.Conversation, int, error) {
	if user == nil {
		return nil, 0, newError(KindForbidden, DetailNotEnoughPermissions, nil)
	}
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	conversations, count, err := s.store.ListConversations(ctx, user.ID, skip, limit)
	if err != nil {
		return nil, 0, persistenceError(err)
	}
	return conversations, count, nil
}

// GetConversation returns an owned conversation with its messages.
func (s *ChatService) GetConversation(ctx context.Context, user *store.User, id int64) (*store.Conversation, error) {
	return s.ownedConversation(ctx, user, id)
}

// DeleteConversation removes an owned conversation and all of its messages.
func (s *ChatService) DeleteConversation(ctx context.Context, user *store.User, id int64) error {
	if _, err := s.ownedConversation(ctx, user, id); err != nil {
		return err
	}
	if err := s.store.DeleteConversation(ctx, id); err != nil {
		return lookupError(err)
	}
	s.log.Info().Int64("conversation_id", id).Int64("user_id", user.ID).Msg("conversation deleted")
	return nil
}

func (s *ChatService) ownedConversation(ctx context.Context, user *store.User, id int64) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	if user == nil || conv.OwnerID != user.ID {
		return nil, newError(KindForbidden, DetailNotEnoughPermissions, nil)
	}
	return conv, nil
}
