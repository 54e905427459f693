package sqlite

import (
	"context"
	"testing"
	"time"

	"ragchat-backend/internal/models"
	"ragchat-backend/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type SQLiteStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *SQLiteStore
	user  *models.User
	now   time.Time
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, new(SQLiteStoreSuite))
}

func (s *SQLiteStoreSuite) SetupTest() {
	s.ctx = context.Background()
	st, err := Open(s.ctx, ":memory:", zap.NewNop())
	s.Require().NoError(err)
	s.store = st

	s.now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.user = &models.User{
		ID:             uuid.New(),
		Username:       "alice",
		HashedPassword: "hash",
		CreatedAt:      s.now,
		UpdatedAt:      s.now,
	}
	s.Require().NoError(s.store.CreateUser(s.ctx, s.user))
}

func (s *SQLiteStoreSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *SQLiteStoreSuite) newConversation(name string, at time.Time) *models.Conversation {
	conv, err := s.store.CreateConversation(s.ctx, store.CreateConversationParams{
		ID:        uuid.New(),
		UserID:    s.user.ID,
		Name:      name,
		CreatedAt: at,
	})
	s.Require().NoError(err)
	return conv
}

func (s *SQLiteStoreSuite) TestUserRoundTrip() {
	got, err := s.store.GetUserByUsername(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(s.user.ID, got.ID)
	s.Nil(got.Age)
	s.True(s.now.Equal(got.CreatedAt))

	_, err = s.store.GetUserByUsername(s.ctx, "bob")
	s.ErrorIs(err, store.ErrNotFound)

	age := int32(31)
	dup := &models.User{ID: uuid.New(), Username: "alice", HashedPassword: "x", Age: &age, CreatedAt: s.now, UpdatedAt: s.now}
	s.ErrorIs(s.store.CreateUser(s.ctx, dup), store.ErrDuplicate)
}

func (s *SQLiteStoreSuite) TestUpdateUsernameAndPassword() {
	later := s.now.Add(time.Minute)
	updated, err := s.store.UpdateUsername(s.ctx, s.user.ID, "alicia", later)
	s.Require().NoError(err)
	s.Equal("alicia", updated.Username)
	s.True(later.Equal(updated.UpdatedAt))

	s.Require().NoError(s.store.UpdateUserPassword(s.ctx, s.user.ID, "new-hash", later))
	got, err := s.store.GetUserByID(s.ctx, s.user.ID)
	s.Require().NoError(err)
	s.Equal("new-hash", got.HashedPassword)

	s.ErrorIs(s.store.UpdateUserPassword(s.ctx, uuid.New(), "x", later), store.ErrNotFound)
}

func (s *SQLiteStoreSuite) TestConversationListOrderedByUpdatedAt() {
	first := s.newConversation("first", s.now)
	second := s.newConversation("second", s.now.Add(time.Second))

	_, err := s.store.CreateMessage(s.ctx, store.CreateMessageParams{
		ID:             uuid.New(),
		ConversationID: first.ID,
		Role:           models.RoleUser,
		Body:           "hi",
		CreatedAt:      s.now.Add(time.Minute),
	})
	s.Require().NoError(err)

	list, err := s.store.ListConversationsByUser(s.ctx, s.user.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(first.ID, list[0].ID)
	s.Equal(second.ID, list[1].ID)
	s.True(s.now.Add(time.Minute).Equal(list[0].UpdatedAt))

	empty, err := s.store.ListConversationsByUser(s.ctx, uuid.New())
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *SQLiteStoreSuite) TestUpdateConversationNameScopedToOwner() {
	conv := s.newConversation("old", s.now)

	_, err := s.store.UpdateConversationName(s.ctx, store.UpdateConversationNameParams{
		ID: conv.ID, UserID: uuid.New(), Name: "stolen", UpdatedAt: s.now,
	})
	s.ErrorIs(err, store.ErrNotFound)

	renamed, err := s.store.UpdateConversationName(s.ctx, store.UpdateConversationNameParams{
		ID: conv.ID, UserID: s.user.ID, Name: "new", UpdatedAt: s.now.Add(time.Hour),
	})
	s.Require().NoError(err)
	s.Equal("new", renamed.Name)
	s.Equal(s.user.ID, renamed.UserID)
	s.True(conv.CreatedAt.Equal(renamed.CreatedAt))
}

func (s *SQLiteStoreSuite) TestMessagesKeepInsertionOrderOnTimestampTies() {
	conv := s.newConversation("c", s.now)
	bodies := []string{"one", "two", "three", "four"}
	for _, b := range bodies {
		_, err := s.store.CreateMessage(s.ctx, store.CreateMessageParams{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			Role:           models.RoleUser,
			Body:           b,
			CreatedAt:      s.now, // identical timestamps
		})
		s.Require().NoError(err)
	}

	all, err := s.store.ListMessagesByConversation(s.ctx, conv.ID)
	s.Require().NoError(err)
	s.Require().Len(all, 4)
	for i, m := range all {
		s.Equal(bodies[i], m.Body)
	}

	recent, err := s.store.ListRecentMessages(s.ctx, conv.ID, 2)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal("three", recent[0].Body)
	s.Equal("four", recent[1].Body)

	none, err := s.store.ListRecentMessages(s.ctx, conv.ID, 0)
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *SQLiteStoreSuite) TestCreateMessageUnknownConversation() {
	_, err := s.store.CreateMessage(s.ctx, store.CreateMessageParams{
		ID:             uuid.New(),
		ConversationID: uuid.New(),
		Role:           models.RoleUser,
		Body:           "orphan",
		CreatedAt:      s.now,
	})
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *SQLiteStoreSuite) TestContextSourcesRoundTrip() {
	conv := s.newConversation("c", s.now)

	created, err := s.store.CreateContext(s.ctx, store.CreateContextParams{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Content:        "retrieved text",
		Sources:        []string{"b.pdf", "a.pdf"},
		CreatedAt:      s.now,
	})
	s.Require().NoError(err)
	s.Equal([]string{"b.pdf", "a.pdf"}, created.Sources)

	_, err = s.store.CreateContext(s.ctx, store.CreateContextParams{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Content:        "no sources",
		CreatedAt:      s.now,
	})
	s.Require().NoError(err)

	list, err := s.store.ListContextsByConversation(s.ctx, conv.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal([]string{"b.pdf", "a.pdf"}, list[0].Sources)
	s.Equal([]string{}, list[1].Sources)
}

func (s *SQLiteStoreSuite) TestDeleteConversationCascades() {
	conv := s.newConversation("doomed", s.now)
	keep := s.newConversation("keep", s.now)

	for _, id := range []uuid.UUID{conv.ID, keep.ID} {
		_, err := s.store.CreateMessage(s.ctx, store.CreateMessageParams{
			ID: uuid.New(), ConversationID: id, Role: models.RoleUser, Body: "q", CreatedAt: s.now,
		})
		s.Require().NoError(err)
		_, err = s.store.CreateContext(s.ctx, store.CreateContextParams{
			ID: uuid.New(), ConversationID: id, Content: "ctx", CreatedAt: s.now,
		})
		s.Require().NoError(err)
	}

	s.ErrorIs(s.store.DeleteConversation(s.ctx, conv.ID, uuid.New()), store.ErrNotFound)
	s.Require().NoError(s.store.DeleteConversation(s.ctx, conv.ID, s.user.ID))

	_, err := s.store.GetConversationByID(s.ctx, conv.ID)
	s.ErrorIs(err, store.ErrNotFound)

	msgs, err := s.store.ListMessagesByConversation(s.ctx, conv.ID)
	s.Require().NoError(err)
	s.Empty(msgs)
	ctxs, err := s.store.ListContextsByConversation(s.ctx, conv.ID)
	s.Require().NoError(err)
	s.Empty(ctxs)

	kept, err := s.store.ListMessagesByConversation(s.ctx, keep.ID)
	s.Require().NoError(err)
	s.Len(kept, 1)

	s.ErrorIs(s.store.DeleteConversation(s.ctx, conv.ID, s.user.ID), store.ErrNotFound)
}

func (s *SQLiteStoreSuite) TestDeleteConversationRollsBackOnFailure() {
	conv := s.newConversation("sticky", s.now)
	_, err := s.store.CreateMessage(s.ctx, store.CreateMessageParams{
		ID: uuid.New(), ConversationID: conv.ID, Role: models.RoleUser, Body: "q", CreatedAt: s.now,
	})
	s.Require().NoError(err)
	_, err = s.store.CreateContext(s.ctx, store.CreateContextParams{
		ID: uuid.New(), ConversationID: conv.ID, Content: "ctx", CreatedAt: s.now,
	})
	s.Require().NoError(err)

	// Children are deleted first, so aborting the last statement exercises the rollback.
	_, err = s.store.db.ExecContext(s.ctx, `
		CREATE TRIGGER block_conversation_delete BEFORE DELETE ON conversations
		BEGIN
			SELECT RAISE(ABORT, 'conversation delete blocked');
		END`)
	s.Require().NoError(err)

	err = s.store.DeleteConversation(s.ctx, conv.ID, s.user.ID)
	s.Require().Error(err)
	s.NotErrorIs(err, store.ErrNotFound)

	_, err = s.store.GetConversationByID(s.ctx, conv.ID)
	s.NoError(err)
	msgs, err := s.store.ListMessagesByConversation(s.ctx, conv.ID)
	s.Require().NoError(err)
	s.Len(msgs, 1)
	ctxs, err := s.store.ListContextsByConversation(s.ctx, conv.ID)
	s.Require().NoError(err)
	s.Len(ctxs, 1)
}

func TestWithForeignKeys(t *testing.T) {
	assert.Equal(t, ":memory:?_foreign_keys=on", withForeignKeys(":memory:"))
	assert.Equal(t, "file:x.db?cache=shared&_foreign_keys=on", withForeignKeys("file:x.db?cache=shared"))
	require.Equal(t, "x.db?_fk=1", withForeignKeys("x.db?_fk=1"))
}
