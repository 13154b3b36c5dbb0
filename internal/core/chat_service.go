package core

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"gwi.com/conversation-assistant/internal/llm"
	"gwi.com/conversation-assistant/internal/metrics"
	"gwi.com/conversation-assistant/internal/store"
)

// Store is the persistence the chat service depends on.
type Store interface {
	StartConversation(ctx context.Context, ownerID int64, role store.Role, content string) (*store.Conversation, *store.Message, error)
	GetConversation(ctx context.Context, id int64) (*store.Conversation, error)
	ListConversations(ctx context.Context, ownerID int64, skip, limit int) ([]store.Conversation, int, error)
	UpdateConversation(ctx context.Context, id int64, in store.ConversationUpdate) (*store.Conversation, error)
	DeleteConversation(ctx context.Context, id int64) error
	CreateMessage(ctx context.Context, in store.MessageCreate) (*store.Message, error)
}

type Settings struct {
	// MockMode skips moderation and completion and answers with canned text.
	MockMode         bool
	ChatModel        string
	MaxTokens        int
	SummaryMaxTokens int
}

func DefaultSettings() Settings {
	return Settings{
		ChatModel:        "gpt-3.5-turbo",
		MaxTokens:        2000,
		SummaryMaxTokens: 20,
	}
}

type ChatService struct {
	store    Store
	llm      llm.Client
	settings Settings
	log      zerolog.Logger
}

// NewChatService wires the orchestrator. client may be nil when settings.MockMode is set.
func NewChatService(db Store, client llm.Client, settings Settings, log zerolog.Logger) *ChatService {
	return &ChatService{
		store:    db,
		llm:      client,
		settings: settings,
		log:      log.With().Str("component", "chat").Logger(),
	}
}

// MessageIn is a message as submitted by a client.
type MessageIn struct {
	Content string
	Role    string
}

type ChatReply struct {
	ConversationID int64
	Content        string
	Summary        *string // Only set when a conversation was started
	QuestionID     int64
	AnswerID       int64
}

const (
	entryNew      = "new"
	entryContinue = "continue"
)

// NewConversation starts a conversation with the user's first message, answers
// it and stores a short summary of the exchange.
func (s *ChatService) NewConversation(ctx context.Context, user *store.User, in MessageIn) (reply *ChatReply, err error) {
	defer func() { observeTurn(entryNew, err) }()

	if role, err := store.ParseRole(in.Role); err != nil || role != store.RoleUser {
		return nil, newError(KindValidation, DetailMisconfiguredRole, err)
	}
	if user == nil || user.ID == 0 {
		return nil, newError(KindForbidden, DetailNotAllowed, nil)
	}
	if in.Content == "" {
		return nil, newError(KindValidation, DetailEmptyContent, nil)
	}

	conv, question, err := s.store.StartConversation(ctx, user.ID, store.RoleUser, in.Content)
	if err != nil {
		return nil, persistenceError(err)
	}
	metrics.ConversationsCreatedTotal.Inc()
	log := s.log.With().Int64("conversation_id", conv.ID).Int64("user_id", user.ID).Logger()
	log.Debug().Msg("conversation started")

	answer, err := s.generateAnswer(ctx, user.ID, conv.ID)
	if err != nil {
		return nil, err
	}

	summary, err := s.generateSummary(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.UpdateConversation(ctx, conv.ID, store.ConversationUpdate{Summary: summary}); err != nil {
		return nil, persistenceError(err)
	}
	log.Info().Int64("answer_id", answer.ID).Msg("conversation answered and summarized")

	return &ChatReply{
		ConversationID: conv.ID,
		Content:        answer.Content,
		Summary:        summary,
		QuestionID:     question.ID,
		AnswerID:       answer.ID,
	}, nil
}

// ContinueConversation appends the user's message to an owned conversation and
// answers it. The summary is left untouched.
func (s *ChatService) ContinueConversation(ctx context.Context, user *store.User, conversationID int64, in MessageIn) (reply *ChatReply, err error) {
	defer func() { observeTurn(entryContinue, err) }()

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, lookupError(err)
	}
	if user == nil || conv.OwnerID != user.ID {
		return nil, newError(KindForbidden, DetailNotAllowed, nil)
	}
	if role, err := store.ParseRole(in.Role); err != nil || role != store.RoleUser {
		return nil, newError(KindForbidden, DetailNotAllowed, err)
	}
	if in.Content == "" {
		return nil, newError(KindValidation, DetailEmptyContent, nil)
	}

	question, err := s.store.CreateMessage(ctx, store.MessageCreate{
		ConversationID: conv.ID,
		OwnerID:        user.ID,
		Role:           store.RoleUser,
		Content:        in.Content,
	})
	if err != nil {
		return nil, persistenceError(err)
	}

	answer, err := s.generateAnswer(ctx, user.ID, conv.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("conversation_id", conv.ID).Int64("answer_id", answer.ID).Msg("conversation continued")

	return &ChatReply{
		ConversationID: conv.ID,
		Content:        answer.Content,
		QuestionID:     question.ID,
		AnswerID:       answer.ID,
	}, nil
}

func observeTurn(entry string, err error) {
	outcome := metrics.StatusSuccess
	if err != nil {
		outcome = KindOf(err).String()
	}
	metrics.ChatTurnsTotal.WithLabelValues(entry, outcome).Inc()
}

// lookupError maps a failed conversation lookup.
func lookupError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return newError(KindNotFound, DetailConversationNotFound, err)
	}
	return persistenceError(err)
}

func persistenceError(err error) error {
	switch {
	case errors.Is(err, store.ErrMissingID):
		return newError(KindInternal, DetailMissingIdentifier, err)
	case errors.Is(err, store.ErrNotFound):
		return newError(KindNotFound, DetailConversationNotFound, err)
	default:
		return newError(KindInternal, DetailPersistenceFailure, err)
	}
}
