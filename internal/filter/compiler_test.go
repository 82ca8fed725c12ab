package filter

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

var (
	statusField   = &model.ConversationField{ID: 1, Name: "Status", DataType: model.DataTypeOption, Kind: model.KindStatus}
	priorityField = &model.ConversationField{ID: 2, Name: "Priority", DataType: model.DataTypeOption, Kind: model.KindPriority}
	subjectField  = &model.ConversationField{ID: 3, Name: "Subject", DataType: model.DataTypeText, Kind: model.KindSubject}
)

func cond(index int, field *model.ConversationField, match model.MatchType, value string) model.FilterCondition {
	return model.FilterCondition{Index: index, FieldID: field.ID, Field: field, MatchType: match, Value: value}
}

// conversations covers the four combinations of "closed" and "urgent".
func conversations() []*model.Conversation {
	return []*model.Conversation{
		{ID: 1, Status: model.StatusClosed, Priority: model.PriorityUrgent, Subject: "refund"},
		{ID: 2, Status: model.StatusClosed, Priority: model.PriorityLow},
		{ID: 3, Status: model.StatusPendingInternal, Priority: model.PriorityUrgent},
		{ID: 4, Status: model.StatusPendingExternal, Priority: model.PriorityNormal, Subject: "refund"},
	}
}

func ids(convs []*model.Conversation, p predicate.Predicate) []int {
	var out []int
	for _, c := range predicate.Apply(convs, p) {
		out = append(out, c.ID)
	}
	return out
}

func twoConditions(t model.FilterType) model.Filter {
	return model.Filter{
		ID:   7,
		Type: t,
		Conditions: []model.FilterCondition{
			cond(1, statusField, model.MatchIs, string(model.StatusClosed)),
			cond(2, priorityField, model.MatchIs, string(model.PriorityUrgent)),
		},
	}
}

func TestAllMatchesSubsetOfAny(t *testing.T) {
	c := NewCompiler()
	ec := macro.EvalContext{Now: time.Now()}

	all, err := c.Compile(twoConditions(model.FilterAll), ec)
	require.NoError(t, err)
	anyOf, err := c.Compile(twoConditions(model.FilterAny), ec)
	require.NoError(t, err)

	convs := conversations()
	assert.Equal(t, []int{1}, ids(convs, all))
	assert.Equal(t, []int{1, 2, 3}, ids(convs, anyOf))

	for _, conv := range convs {
		if all(conv) {
			assert.True(t, anyOf(conv), "conversation %d matched ALL but not ANY", conv.ID)
		}
	}
}

func TestLogicalExpressionPrecedence(t *testing.T) {
	c := NewCompiler()
	f := model.Filter{
		Type: model.FilterLogicalExpression,
		Conditions: []model.FilterCondition{
			cond(1, statusField, model.MatchIs, string(model.StatusPendingExternal)),
			cond(2, priorityField, model.MatchIs, string(model.PriorityUrgent)),
			cond(3, subjectField, model.MatchContain, "refund"),
		},
	}

	f.LogicalExpression = "1 OR 2 AND 3"
	implicit, err := c.Compile(f, macro.EvalContext{})
	require.NoError(t, err)

	f.LogicalExpression = "1 OR (2 AND 3)"
	explicit, err := c.Compile(f, macro.EvalContext{})
	require.NoError(t, err)

	convs := conversations()
	assert.Equal(t, ids(convs, explicit), ids(convs, implicit))
	assert.Equal(t, []int{1, 4}, ids(convs, implicit))

	f.LogicalExpression = "NOT 1 AND (2 OR 3)"
	p, err := c.Compile(f, macro.EvalContext{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, ids(convs, p))
}

func TestEmptyConditionsMatchEverything(t *testing.T) {
	c := NewCompiler()
	for _, ft := range []model.FilterType{model.FilterAll, model.FilterAny, model.FilterLogicalExpression} {
		t.Run(string(ft), func(t *testing.T) {
			p, err := c.Compile(model.Filter{Type: ft, LogicalExpression: "1 AND"}, macro.EvalContext{})
			require.NoError(t, err)
			assert.Len(t, ids(conversations(), p), 4)
		})
	}
}

func TestParsePolicy(t *testing.T) {
	f := twoConditions(model.FilterLogicalExpression)
	f.LogicalExpression = "1 AND (2"

	_, err := NewCompiler().Compile(f, macro.EvalContext{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrParse))

	p, err := NewCompiler(WithPolicy(PolicyLenient)).Compile(f, macro.EvalContext{})
	require.NoError(t, err)
	assert.Len(t, ids(conversations(), p), 4)

	f.LogicalExpression = "1 AND 3"
	_, err = NewCompiler().Compile(f, macro.EvalContext{})
	assert.True(t, errors.Is(err, apperr.ErrParse))
}

func TestParsePolicyFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    ParsePolicy
		wantErr bool
	}{
		{"", PolicyStrict, false},
		{"strict", PolicyStrict, false},
		{"Lenient", PolicyLenient, false},
		{"loose", PolicyStrict, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicyFromString(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	c := NewCompiler()

	_, err := c.Compile(model.Filter{Type: "some"}, macro.EvalContext{})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	bad := model.Filter{Type: model.FilterAll, Conditions: []model.FilterCondition{
		cond(1, statusField, model.MatchIs, "archived"),
	}}
	_, err = c.Compile(bad, macro.EvalContext{})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	dup := model.Filter{Type: model.FilterLogicalExpression, LogicalExpression: "1", Conditions: []model.FilterCondition{
		cond(1, statusField, model.MatchIs, string(model.StatusClosed)),
		cond(1, priorityField, model.MatchIs, string(model.PriorityLow)),
	}}
	_, err = c.Compile(dup, macro.EvalContext{})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestCompileAny(t *testing.T) {
	c := NewCompiler()

	none, err := c.CompileAny(nil, macro.EvalContext{})
	require.NoError(t, err)
	assert.Empty(t, ids(conversations(), none))

	closed := model.Filter{Type: model.FilterAll, Conditions: []model.FilterCondition{
		cond(1, statusField, model.MatchIs, string(model.StatusClosed)),
	}}
	external := model.Filter{Type: model.FilterAll, Conditions: []model.FilterCondition{
		cond(1, statusField, model.MatchIs, string(model.StatusPendingExternal)),
	}}
	p, err := c.CompileAny([]model.Filter{closed, external}, macro.EvalContext{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 4}, ids(conversations(), p))
}

func TestValidateExpression(t *testing.T) {
	assert.NoError(t, ValidateExpression("1 AND NOT 2", []int{1, 2}))
	assert.True(t, errors.Is(ValidateExpression("1 AND 3", []int{1, 2}), apperr.ErrParse))
	assert.True(t, errors.Is(ValidateExpression("", []int{1}), apperr.ErrParse))
}
