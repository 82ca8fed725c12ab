package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/social-inbox/internal/apperr"
	"github.com/capitalize-ai/social-inbox/internal/model"
	"github.com/capitalize-ai/social-inbox/internal/predicate"
	"github.com/capitalize-ai/social-inbox/internal/store"
)

func intPtr(v int) *int { return &v }

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", store.Seed{
		Fields: []model.ConversationField{
			{ID: 1, Name: "Status", DataType: model.DataTypeOption, Kind: model.KindStatus, IsSystem: true},
			{ID: 2, Name: "Agent Assignee", DataType: model.DataTypeOption, Kind: model.KindAgentAssignee,
				Options: []model.FieldOption{{Value: "7", Name: "Alice"}}},
		},
		Agents: []model.Agent{
			{ID: 7, Name: "Alice", DepartmentID: intPtr(20)},
			{ID: 9, Name: "Dan", DepartmentID: intPtr(20)},
			{ID: 8, Name: "Bob"},
		},
		Departments: []model.Department{{ID: 20, Name: "Support"}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConversationRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	repo := s.Stores().Conversations
	sent := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	c := &model.Conversation{
		Source:              model.SourceFacebookMessage,
		Status:              model.StatusPendingExternal,
		Priority:            model.PriorityHigh,
		Subject:             "Order late",
		AgentID:             intPtr(7),
		LastMessageSentTime: sent,
		CreatedTime:         sent,
		Messages: []model.Message{
			{SenderID: 100, ReceiverID: intPtr(1), Content: "where is it", SendTime: sent},
			{SenderID: 1, SenderIsIntegrationAccount: true, ReceiverID: intPtr(100), SendAgentID: intPtr(7), Content: "checking", SendTime: sent},
		},
	}
	require.NoError(t, repo.Insert(ctx, c))
	require.NotZero(t, c.ID)
	require.NotZero(t, c.Messages[1].ID)

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Order late", got.Subject)
	assert.Equal(t, model.PriorityHigh, got.Priority)
	require.NotNil(t, got.AgentID)
	assert.Equal(t, 7, *got.AgentID)
	assert.Nil(t, got.DepartmentID)
	require.Len(t, got.Messages, 2)
	assert.True(t, got.Messages[1].SenderIsIntegrationAccount)
	assert.Equal(t, 7, *got.Messages[1].SendAgentID)
	assert.True(t, sent.Equal(got.LastMessageSentTime))

	_, err = repo.Get(ctx, 999)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestFindAppliesPredicateAndOrder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	repo := s.Stores().Conversations
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	for i, status := range []model.ConversationStatus{model.StatusClosed, model.StatusPendingInternal, model.StatusPendingInternal} {
		require.NoError(t, repo.Insert(ctx, &model.Conversation{
			Source:              model.SourceTwitterTweet,
			Status:              status,
			Priority:            model.PriorityNormal,
			LastMessageSentTime: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	open := func(c *model.Conversation) bool { return c.Status != model.StatusClosed }
	found, err := repo.Find(ctx, open, store.FindOptions{})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, 3, found[0].ID)
	assert.Equal(t, 2, found[1].ID)

	limited, err := repo.Find(ctx, predicate.True(), store.FindOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, 3, limited[0].ID)

	first, err := repo.FindFirst(ctx, open)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 2, first.ID)

	n, err := repo.Count(ctx, open)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSaveAppendsLogs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	repo := s.Stores().Conversations
	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

	c := &model.Conversation{Source: model.SourceTwitterTweet, Status: model.StatusPendingInternal, Priority: model.PriorityNormal,
		Messages: []model.Message{{SenderID: 5, Content: "hello"}}}
	require.NoError(t, repo.Insert(ctx, c))

	c.Status = model.StatusClosed
	c.ModifiedTime = &now
	c.Logs = append(c.Logs, model.ConversationLog{Type: model.LogChangeStatus, Content: "closed", CreatedBy: 7, CreatedTime: now})
	require.NoError(t, repo.Save(ctx, c))
	require.NotZero(t, c.Logs[0].ID)

	c.Messages = nil
	c.Logs = append(c.Logs, model.ConversationLog{Type: model.LogChangeNote, Content: "note", CreatedBy: 7, CreatedTime: now.Add(time.Minute)})
	require.NoError(t, repo.Save(ctx, c))

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, got.Status)
	require.NotNil(t, got.ModifiedTime)
	assert.True(t, now.Equal(*got.ModifiedTime))
	assert.Len(t, got.Messages, 1)
	assert.Len(t, got.Logs, 2)

	logs, err := repo.Logs(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "note", logs[0].Content)
	assert.Equal(t, c.Logs[1].ID, logs[0].ID)

	assert.True(t, errors.Is(repo.Save(ctx, &model.Conversation{ID: 404}), apperr.ErrNotFound))
	_, err = repo.Logs(ctx, 404)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestWithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	c := &model.Conversation{Source: model.SourceTwitterTweet, Status: model.StatusPendingInternal, Priority: model.PriorityNormal, Subject: "before"}
	require.NoError(t, s.Stores().Conversations.Insert(ctx, c))

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, st store.Stores) error {
		conv, err := st.Conversations.Get(ctx, c.ID)
		if err != nil {
			return err
		}
		conv.Subject = "after"
		if err := st.Conversations.Save(ctx, conv); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Stores().Conversations.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "before", got.Subject)
}

func TestFilterRepository(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	repo := s.Stores().Filters

	f := &model.Filter{
		Name: "Mine", Index: 2, CreatedBy: 7, Type: model.FilterLogicalExpression, LogicalExpression: "1 OR 2",
		Conditions: []model.FilterCondition{
			{Index: 1, FieldID: 2, MatchType: model.MatchIs, Value: "@Me"},
			{Index: 2, FieldID: 1, MatchType: model.MatchIs, Value: "closed"},
		},
	}
	require.NoError(t, repo.Create(ctx, f))
	require.NotZero(t, f.ID)
	require.NotZero(t, f.Conditions[1].ID)
	require.NoError(t, repo.Create(ctx, &model.Filter{Name: "First", Index: 1, IfPublic: true, Type: model.FilterAll}))

	got, err := repo.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "1 OR 2", got.LogicalExpression)
	require.Len(t, got.Conditions, 2)
	assert.Equal(t, "@Me", got.Conditions[0].Value)
	assert.Equal(t, f.ID, got.Conditions[0].FilterID)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "First", list[0].Name)

	got.Type = model.FilterAll
	got.Conditions = got.Conditions[:1]
	require.NoError(t, repo.Update(ctx, got))
	got, err = repo.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FilterAll, got.Type)
	assert.Len(t, got.Conditions, 1)

	require.NoError(t, repo.Delete(ctx, f.ID))
	_, err = repo.Get(ctx, f.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.True(t, errors.Is(repo.Delete(ctx, f.ID), apperr.ErrNotFound))
	assert.True(t, errors.Is(repo.Update(ctx, &model.Filter{ID: f.ID, Type: model.FilterAll}), apperr.ErrNotFound))
}

func TestSeededReferenceData(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	st := s.Stores()

	fields, err := st.Fields.List(ctx)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, []model.FieldOption{{Value: "7", Name: "Alice"}}, fields[1].Options)
	assert.True(t, fields[0].IsSystem)

	_, err = st.Fields.Get(ctx, 3)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	name, err := st.Directory.AgentName(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, "Bob", name)

	dep, err := st.Directory.DepartmentName(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, "Support", dep)

	members, err := st.Directory.DepartmentMembers(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 9}, members)

	_, err = st.Directory.DepartmentName(ctx, 21)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestReopenUpdatesSeed(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "inbox.db")
	seed := func(agent, department string) store.Seed {
		return store.Seed{
			Fields:      []model.ConversationField{{ID: 1, Name: "Status", DataType: model.DataTypeOption, Kind: model.KindStatus}},
			Departments: []model.Department{{ID: 20, Name: department}},
			Agents:      []model.Agent{{ID: 7, Name: agent, DepartmentID: intPtr(20)}},
		}
	}

	first, err := Open(dsn, seed("Alice", "Support"))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	s, err := Open(dsn, seed("Alicia", "Care"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	dir := s.Stores().Directory

	name, err := dir.AgentName(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Alicia", name)

	dep, err := dir.DepartmentName(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, "Care", dep)

	members, err := dir.DepartmentMembers(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, members)
}
