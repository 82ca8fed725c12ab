package condition

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/social-inbox/internal/apperr"
	"github.com/capitalize-ai/social-inbox/internal/macro"
	"github.com/capitalize-ai/social-inbox/internal/model"
	"github.com/capitalize-ai/social-inbox/internal/predicate"
)

var now = time.Date(2024, 3, 15, 13, 30, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

var (
	lastMessageSent = &model.ConversationField{ID: 1, Name: "Last Message Sent", DataType: model.DataTypeDateTime, Kind: model.KindLastMessageSent}
	socialAccounts  = &model.ConversationField{ID: 2, Name: "Social Page/Account", DataType: model.DataTypeOption, Kind: model.KindSocialAccount}
	agentAssignee   = &model.ConversationField{ID: 3, Name: "Agent Assignee", DataType: model.DataTypeOption, Kind: model.KindAgentAssignee,
		Options: []model.FieldOption{{Value: "3", Name: "Ann"}, {Value: "4", Name: "Bob"}}}
	departmentAssignee = &model.ConversationField{ID: 4, Name: "Department Assignee", DataType: model.DataTypeOption, Kind: model.KindDepartmentAssignee}
	statusField        = &model.ConversationField{ID: 5, Name: "Status", DataType: model.DataTypeOption, Kind: model.KindStatus}
	totalMessages      = &model.ConversationField{ID: 6, Name: "Total Messages", DataType: model.DataTypeNumber, Kind: model.KindTotalMessages}
	subjectField       = &model.ConversationField{ID: 7, Name: "Subject", DataType: model.DataTypeText, Kind: model.KindSubject}
	messageContent     = &model.ConversationField{ID: 8, Name: "Message", DataType: model.DataTypeText, Kind: model.KindMessageContent}
	repliedAgentsField = &model.ConversationField{ID: 9, Name: "Replied Agents", DataType: model.DataTypeOption, Kind: model.KindRepliedAgents}
)

func matchingIDs(t *testing.T, p predicate.Predicate, convs []*model.Conversation) []int {
	t.Helper()
	var ids []int
	for _, c := range predicate.Apply(convs, p) {
		ids = append(ids, c.ID)
	}
	return ids
}

func build(t *testing.T, field *model.ConversationField, match model.MatchType, value string, ec macro.EvalContext) predicate.Predicate {
	t.Helper()
	p, err := Build(model.FilterCondition{FieldID: field.ID, Field: field, MatchType: match, Value: value}, ec)
	require.NoError(t, err)
	return p
}

func sentAt() []*model.Conversation {
	return []*model.Conversation{
		{ID: 1, LastMessageSentTime: now},
		{ID: 2, LastMessageSentTime: now.AddDate(0, 0, -2)},
	}
}

func TestLastMessageSent(t *testing.T) {
	ec := macro.EvalContext{Now: now}
	layout := "2006-01-02 15:04:05"

	tests := []struct {
		name  string
		match model.MatchType
		value string
		want  []int
	}{
		{"is today", model.MatchIs, macro.Today, []int{1}},
		{"before today", model.MatchBefore, macro.Today, []int{2}},
		{"after yesterday", model.MatchAfter, macro.Yesterday, []int{1}},
		{"between literals", model.MatchBetween, now.AddDate(0, 0, -3).Format(layout) + "|" + now.AddDate(0, 0, -1).Format(layout), []int{2}},
		{"between macros", model.MatchBetween, macro.Yesterday + "|" + macro.Today, []int{1}},
		{"is date literal", model.MatchIs, now.AddDate(0, 0, -2).Format("2006-01-02"), []int{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := build(t, lastMessageSent, tt.match, tt.value, ec)
			assert.Equal(t, tt.want, matchingIDs(t, p, sentAt()))
		})
	}
}

func TestDateTimeRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		match model.MatchType
		value string
	}{
		{"number", model.MatchIs, "0"},
		{"between with one bound", model.MatchBetween, "2024-01-01"},
		{"between with bad upper bound", model.MatchBetween, "2024-01-01|soon"},
		{"between with three bounds", model.MatchBetween, "2024-01-01|2024-01-02|2024-01-03"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(model.FilterCondition{Field: lastMessageSent, MatchType: tt.match, Value: tt.value}, macro.EvalContext{Now: now})
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrValidation))
			assert.Contains(t, err.Error(), "date time is invalid")
		})
	}
}

func TestSocialAccount(t *testing.T) {
	convs := []*model.Conversation{
		{ID: 1, Messages: []model.Message{{SenderID: 1}}},
		{ID: 2, Messages: []model.Message{{SenderID: 2}}},
	}

	assert.Equal(t, []int{1}, matchingIDs(t, build(t, socialAccounts, model.MatchIs, "1", macro.EvalContext{}), convs))
	assert.Equal(t, []int{2}, matchingIDs(t, build(t, socialAccounts, model.MatchIsNot, "1", macro.EvalContext{}), convs))

	_, err := Build(model.FilterCondition{Field: socialAccounts, MatchType: model.MatchIs, Value: "facebook"}, macro.EvalContext{})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestAgentAssigneeMacros(t *testing.T) {
	dept := 20
	ec := macro.EvalContext{ActorID: 3, DepartmentID: &dept, DepartmentMemberIDs: []int{3, 4}}
	convs := []*model.Conversation{
		{ID: 1, AgentID: intPtr(3)},
		{ID: 2, AgentID: intPtr(4)},
		{ID: 3},
		{ID: 4, AgentID: intPtr(5)},
	}

	tests := []struct {
		name  string
		match model.MatchType
		value string
		want  []int
	}{
		{"me", model.MatchIs, macro.Me, []int{1}},
		{"not me", model.MatchIsNot, macro.Me, []int{2, 3, 4}},
		{"blank", model.MatchIs, macro.Blank, []int{3}},
		{"not blank", model.MatchIsNot, macro.Blank, []int{1, 2, 4}},
		{"my department member", model.MatchIs, macro.MyDepartmentMember, []int{1, 2}},
		{"declared option", model.MatchIs, "4", []int{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := build(t, agentAssignee, tt.match, tt.value, ec)
			assert.Equal(t, tt.want, matchingIDs(t, p, convs))
		})
	}
}

func TestOptionWhitelist(t *testing.T) {
	tests := []struct {
		name  string
		field *model.ConversationField
		value string
		ok    bool
	}{
		{"department macro on department field", departmentAssignee, macro.MyDepartment, true},
		{"blank on department field", departmentAssignee, macro.Blank, true},
		{"agent macro on department field", departmentAssignee, macro.Me, false},
		{"department macro on agent field", agentAssignee, macro.MyDepartment, false},
		{"undeclared option on agent field", agentAssignee, "99", false},
		{"macro on status field", statusField, macro.Blank, false},
		{"valid status", statusField, string(model.StatusClosed), true},
		{"unknown status", statusField, "archived", false},
		{"date macro on agent field", agentAssignee, macro.Today, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(model.FilterCondition{Field: tt.field, MatchType: model.MatchIs, Value: tt.value})
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
		})
	}
}

func TestDepartmentAssignee(t *testing.T) {
	dept := 20
	convs := []*model.Conversation{
		{ID: 1, DepartmentID: intPtr(20)},
		{ID: 2, DepartmentID: intPtr(21)},
		{ID: 3},
	}

	assert.Equal(t, []int{1}, matchingIDs(t, build(t, departmentAssignee, model.MatchIs, macro.MyDepartment, macro.EvalContext{DepartmentID: &dept}), convs))
	assert.Empty(t, matchingIDs(t, build(t, departmentAssignee, model.MatchIs, macro.MyDepartment, macro.EvalContext{}), convs))
	assert.Equal(t, []int{3}, matchingIDs(t, build(t, departmentAssignee, model.MatchIs, macro.Blank, macro.EvalContext{}), convs))
}

func TestNumberAndText(t *testing.T) {
	convs := []*model.Conversation{
		{ID: 1, Subject: "Refund request", Messages: []model.Message{{Content: "where is my refund"}}},
		{ID: 2, Subject: "Hello", Messages: []model.Message{{Content: "hi"}, {Content: "thanks"}}},
	}

	assert.Equal(t, []int{2}, matchingIDs(t, build(t, totalMessages, model.MatchGreaterThan, "1", macro.EvalContext{}), convs))
	assert.Equal(t, []int{1}, matchingIDs(t, build(t, totalMessages, model.MatchIs, "1", macro.EvalContext{}), convs))
	assert.Equal(t, []int{1}, matchingIDs(t, build(t, subjectField, model.MatchContain, "refund", macro.EvalContext{}), convs))
	assert.Equal(t, []int{2}, matchingIDs(t, build(t, subjectField, model.MatchIs, "hello", macro.EvalContext{}), convs))
	assert.Equal(t, []int{1}, matchingIDs(t, build(t, messageContent, model.MatchContain, "REFUND", macro.EvalContext{}), convs))
	assert.Equal(t, []int{2}, matchingIDs(t, build(t, messageContent, model.MatchNotContain, "refund", macro.EvalContext{}), convs))

	_, err := Build(model.FilterCondition{Field: totalMessages, MatchType: model.MatchIs, Value: "two"}, macro.EvalContext{})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestRepliedAgents(t *testing.T) {
	convs := []*model.Conversation{
		{ID: 1, Messages: []model.Message{{SenderID: 10}, {SenderID: 1, SendAgentID: intPtr(3)}}},
		{ID: 2, Messages: []model.Message{{SenderID: 10}}},
	}

	assert.Equal(t, []int{1}, matchingIDs(t, build(t, repliedAgentsField, model.MatchIs, macro.Me, macro.EvalContext{ActorID: 3}), convs))
	assert.Equal(t, []int{2}, matchingIDs(t, build(t, repliedAgentsField, model.MatchIs, macro.Blank, macro.EvalContext{}), convs))
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(model.FilterCondition{FieldID: 42, MatchType: model.MatchIs, Value: "1"}, macro.EvalContext{})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	mismatched := &model.ConversationField{Name: "Subject", DataType: model.DataTypeNumber, Kind: model.KindSubject}
	_, err = Build(model.FilterCondition{Field: mismatched, MatchType: model.MatchIs, Value: "1"}, macro.EvalContext{})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	unknown := &model.ConversationField{Name: "Mood", DataType: model.DataTypeText, Kind: "mood"}
	_, err = Build(model.FilterCondition{Field: unknown, MatchType: model.MatchIs, Value: "1"}, macro.EvalContext{})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.False(t, Supported("mood"))

	_, err = Build(model.FilterCondition{Field: statusField, MatchType: model.MatchBefore, Value: "closed"}, macro.EvalContext{})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}
