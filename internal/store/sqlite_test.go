package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestUser(t *testing.T, s *SQLiteStore, email string) *User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), UserCreate{Email: email, HashedPassword: "hash"})
	require.NoError(t, err)
	return u
}

func TestParseRole(t *testing.T) {
	for _, in := range []string{"user", "assistant", "system"} {
		r, err := ParseRole(in)
		require.NoError(t, err)
		assert.Equal(t, Role(in), r)
	}

	_, err := ParseRole("model")
	assert.Error(t, err)
	_, err = ParseRole("")
	assert.Error(t, err)
}

func TestCreateUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	name := "Ada"
	u, err := s.CreateUser(ctx, UserCreate{Email: "ada@example.com", HashedPassword: "hash", FullName: &name})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.True(t, u.IsActive)
	assert.False(t, u.IsSuperuser)
	require.NotNil(t, u.FullName)
	assert.Equal(t, "Ada", *u.FullName)

	byEmail, err := s.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = s.CreateUser(ctx, UserCreate{Email: "ada@example.com", HashedPassword: "other"})
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = s.GetUserByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateConversationStartsEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := newTestUser(t, s, "owner@example.com")

	conv, err := s.CreateConversation(ctx, owner.ID)
	require.NoError(t, err)
	assert.NotZero(t, conv.ID)
	assert.Nil(t, conv.Summary)
	assert.True(t, conv.CreatedAt.Equal(conv.ModifiedAt))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, got.OwnerID)
	assert.Empty(t, got.Messages)
	assert.True(t, conv.CreatedAt.Equal(got.CreatedAt))
}

func TestMessagesKeepInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := newTestUser(t, s, "owner@example.com")

	conv, err := s.CreateConversation(ctx, owner.ID)
	require.NoError(t, err)

	_, err = s.CreateMessage(ctx, MessageCreate{ConversationID: conv.ID, OwnerID: owner.ID, Role: RoleUser, Content: "hello_from_user"})
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, MessageCreate{ConversationID: conv.ID, OwnerID: owner.ID, Role: RoleAssistant, Content: "hello_from_assistant"})
	require.NoError(t, err)

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleUser, got.Messages[0].Role)
	assert.Equal(t, "hello_from_user", got.Messages[0].Content)
	assert.Equal(t, RoleAssistant, got.Messages[1].Role)
	assert.Equal(t, "hello_from_assistant", got.Messages[1].Content)
	assert.Less(t, got.Messages[0].ID, got.Messages[1].ID)
}

func TestMessagesKeepInsertionOrderWhenClockStepsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := newTestUser(t, s, "owner@example.com")

	conv, err := s.CreateConversation(ctx, owner.ID)
	require.NoError(t, err)

	clock := []time.Time{
		time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 11, 59, 0, 0, time.UTC),
	}
	s.now = func() time.Time {
		next := clock[0]
		clock = clock[1:]
		return next
	}

	_, err = s.CreateMessage(ctx, MessageCreate{ConversationID: conv.ID, OwnerID: owner.ID, Role: RoleUser, Content: "first"})
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, MessageCreate{ConversationID: conv.ID, OwnerID: owner.ID, Role: RoleAssistant, Content: "second"})
	require.NoError(t, err)

	got, err := s.GetMessagesByConversationID(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Content)
	assert.Equal(t, "second", got[1].Content)
	assert.True(t, got[1].CreatedAt.Before(got[0].CreatedAt))
}

func TestCreateMessageRequiresConversation(t *testing.T) {
	s := newTestStore(t)
	owner := newTestUser(t, s, "owner@example.com")

	_, err := s.CreateMessage(context.Background(), MessageCreate{ConversationID: 42, OwnerID: owner.ID, Role: RoleUser, Content: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateMessageRejectsUnknownRole(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := newTestUser(t, s, "owner@example.com")
	conv, err := s.CreateConversation(ctx, owner.ID)
	require.NoError(t, err)

	_, err = s.CreateMessage(ctx, MessageCreate{ConversationID: conv.ID, OwnerID: owner.ID, Role: Role("model"), Content: "hi"})
	assert.Error(t, err)

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
}

func TestStartConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := newTestUser(t, s, "owner@example.com")

	conv, msg, err := s.StartConversation(ctx, owner.ID, RoleUser, "first question")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, msg.ConversationID)
	assert.Equal(t, owner.ID, msg.OwnerID)

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, msg.ID, got.Messages[0].ID)
}

func TestStartConversationRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := newTestUser(t, s, "owner@example.com")

	// The role CHECK constraint fails the second insert.
	_, _, err := s.StartConversation(ctx, owner.ID, Role("bogus"), "first question")
	require.Error(t, err)

	convs, count, err := s.ListConversations(ctx, owner.ID, 0, 100)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, convs)
}

func TestUpdateConversationIsPartial(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := newTestUser(t, s, "owner@example.com")
	conv, err := s.CreateConversation(ctx, owner.ID)
	require.NoError(t, err)

	summary := "Greetings and small talk"
	updated, err := s.UpdateConversation(ctx, conv.ID, ConversationUpdate{Summary: &summary})
	require.NoError(t, err)
	require.NotNil(t, updated.Summary)
	assert.Equal(t, summary, *updated.Summary)
	assert.False(t, updated.ModifiedAt.Before(conv.ModifiedAt))

	updated, err = s.UpdateConversation(ctx, conv.ID, ConversationUpdate{})
	require.NoError(t, err)
	require.NotNil(t, updated.Summary)
	assert.Equal(t, summary, *updated.Summary)

	_, err = s.UpdateConversation(ctx, 9999, ConversationUpdate{Summary: &summary})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := newTestUser(t, s, "owner@example.com")

	conv, _, err := s.StartConversation(ctx, owner.ID, RoleUser, "question")
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, MessageCreate{ConversationID: conv.ID, OwnerID: owner.ID, Role: RoleAssistant, Content: "answer"})
	require.NoError(t, err)

	other, _, err := s.StartConversation(ctx, owner.ID, RoleUser, "unrelated")
	require.NoError(t, err)

	require.NoError(t, s.DeleteConversation(ctx, conv.ID))

	_, err = s.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	orphans, err := s.GetMessagesByConversationID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, orphans)

	kept, err := s.GetConversation(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, kept.Messages, 1)

	assert.ErrorIs(t, s.DeleteConversation(ctx, conv.ID), ErrNotFound)
}

func TestListConversationsIsScopedAndPaginated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := newTestUser(t, s, "owner@example.com")
	stranger := newTestUser(t, s, "stranger@example.com")

	var ids []int64
	for i := 0; i < 3; i++ {
		conv, err := s.CreateConversation(ctx, owner.ID)
		require.NoError(t, err)
		ids = append(ids, conv.ID)
	}
	_, err := s.CreateConversation(ctx, stranger.ID)
	require.NoError(t, err)

	page, count, err := s.ListConversations(ctx, owner.ID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)

	all, count, err := s.ListConversations(ctx, owner.ID, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Len(t, all, 3)

	none, count, err := s.ListConversations(ctx, 9999, 0, 100)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
