// Package condition turns a single filter condition into a predicate.
//
// Dispatch is a closed switch over model.FieldKind: every kind the catalog can
// declare has exactly one builder here, so two builders can never claim the
// same field.
package condition

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/capitalize-ai/social-inbox/internal/apperr"
	"github.com/capitalize-ai/social-inbox/internal/macro"
	"github.com/capitalize-ai/social-inbox/internal/model"
	"github.com/capitalize-ai/social-inbox/internal/predicate"
)

const invalidDateTime = "date time is invalid"

// kindDataType is the data type each kind expects its field to declare.
var kindDataType = map[model.FieldKind]model.FieldDataType{
	model.KindLastMessageSent:    model.DataTypeDateTime,
	model.KindCreatedTime:        model.DataTypeDateTime,
	model.KindTotalMessages:      model.DataTypeNumber,
	model.KindStatus:             model.DataTypeOption,
	model.KindPriority:           model.DataTypeOption,
	model.KindSource:             model.DataTypeOption,
	model.KindAgentAssignee:      model.DataTypeOption,
	model.KindLastRepliedAgent:   model.DataTypeOption,
	model.KindRepliedAgents:      model.DataTypeOption,
	model.KindDepartmentAssignee: model.DataTypeOption,
	model.KindSocialAccount:      model.DataTypeOption,
	model.KindSubject:            model.DataTypeText,
	model.KindNote:               model.DataTypeText,
	model.KindMessageContent:     model.DataTypeText,
}

// Supported reports whether the kind has a builder.
func Supported(kind model.FieldKind) bool {
	_, ok := kindDataType[kind]
	return ok
}

// Build compiles the condition into a predicate, resolving macros against ec.
// The condition's Field must be populated.
func Build(cond model.FilterCondition, ec macro.EvalContext) (predicate.Predicate, error) {
	f := cond.Field
	if f == nil {
		return nil, apperr.NotFound("conversation field", cond.FieldID)
	}
	want, ok := kindDataType[f.Kind]
	if !ok {
		return nil, invalid(cond, fmt.Sprintf("unsupported field kind %q", f.Kind))
	}
	if f.DataType != want {
		return nil, invalid(cond, fmt.Sprintf("field kind %q requires data type %q, got %q", f.Kind, want, f.DataType))
	}

	switch f.Kind {
	case model.KindLastMessageSent:
		return dateTime(cond, ec, func(c *model.Conversation) time.Time { return c.LastMessageSentTime })
	case model.KindCreatedTime:
		return dateTime(cond, ec, func(c *model.Conversation) time.Time { return c.CreatedTime })
	case model.KindTotalMessages:
		return number(cond, func(c *model.Conversation) int { return len(c.Messages) })
	case model.KindStatus:
		return enumOption(cond, func(v string) bool { return model.ConversationStatus(v).Valid() },
			func(c *model.Conversation) string { return string(c.Status) })
	case model.KindPriority:
		return enumOption(cond, func(v string) bool { return model.ConversationPriority(v).Valid() },
			func(c *model.Conversation) string { return string(c.Priority) })
	case model.KindSource:
		return enumOption(cond, func(v string) bool { return model.ConversationSource(v).Valid() },
			func(c *model.Conversation) string { return string(c.Source) })
	case model.KindAgentAssignee:
		return idOption(cond, ec, func(c *model.Conversation) *int { return c.AgentID })
	case model.KindLastRepliedAgent:
		return idOption(cond, ec, func(c *model.Conversation) *int { return c.LastRepliedAgentID })
	case model.KindDepartmentAssignee:
		return idOption(cond, ec, func(c *model.Conversation) *int { return c.DepartmentID })
	case model.KindRepliedAgents:
		return repliedAgents(cond, ec)
	case model.KindSocialAccount:
		return socialAccount(cond, ec)
	case model.KindSubject:
		return text(cond, func(c *model.Conversation) string { return c.Subject })
	case model.KindNote:
		return text(cond, func(c *model.Conversation) string { return c.Note })
	case model.KindMessageContent:
		return messageText(cond)
	}
	return nil, invalid(cond, fmt.Sprintf("unsupported field kind %q", f.Kind))
}

// Validate checks the condition the way Build would, without a caller context.
func Validate(cond model.FilterCondition) error {
	_, err := Build(cond, macro.EvalContext{})
	return err
}

func invalid(cond model.FilterCondition, reason string) error {
	name := ""
	if cond.Field != nil {
		name = cond.Field.Name
	}
	return apperr.Validation(name, cond.Value, reason)
}

func unsupportedMatch(cond model.FilterCondition) error {
	return invalid(cond, fmt.Sprintf("match type %q is not supported", cond.MatchType))
}

func dateTime(cond model.FilterCondition, ec macro.EvalContext, get func(*model.Conversation) time.Time) (predicate.Predicate, error) {
	now := ec.Clock()

	if cond.MatchType == model.MatchBetween {
		parts := strings.Split(cond.Value, "|")
		if len(parts) != 2 {
			return nil, invalid(cond, invalidDateTime)
		}
		lower, err := macro.ResolveDate(parts[0], now)
		if err != nil {
			return nil, invalid(cond, invalidDateTime)
		}
		upper, err := macro.ResolveDate(parts[1], now)
		if err != nil {
			return nil, invalid(cond, invalidDateTime)
		}
		return func(c *model.Conversation) bool {
			t := get(c)
			return !t.Before(lower.Start) && t.Before(upper.End)
		}, nil
	}

	r, err := macro.ResolveDate(cond.Value, now)
	if err != nil {
		return nil, invalid(cond, invalidDateTime)
	}
	switch cond.MatchType {
	case model.MatchIs:
		return func(c *model.Conversation) bool { return r.Contains(get(c)) }, nil
	case model.MatchBefore:
		return func(c *model.Conversation) bool { return get(c).Before(r.Start) }, nil
	case model.MatchAfter:
		return func(c *model.Conversation) bool { return !get(c).Before(r.End) }, nil
	}
	return nil, unsupportedMatch(cond)
}

func number(cond model.FilterCondition, get func(*model.Conversation) int) (predicate.Predicate, error) {
	n, err := strconv.Atoi(strings.TrimSpace(cond.Value))
	if err != nil {
		return nil, invalid(cond, "value is not a number")
	}
	switch cond.MatchType {
	case model.MatchIs:
		return func(c *model.Conversation) bool { return get(c) == n }, nil
	case model.MatchIsNot:
		return func(c *model.Conversation) bool { return get(c) != n }, nil
	case model.MatchGreaterThan:
		return func(c *model.Conversation) bool { return get(c) > n }, nil
	case model.MatchLessThan:
		return func(c *model.Conversation) bool { return get(c) < n }, nil
	}
	return nil, unsupportedMatch(cond)
}

// checkOption enforces the declared options and the category macro whitelist.
func checkOption(cond model.FilterCondition) error {
	f := cond.Field
	if f.HasOption(cond.Value) || macro.IsAllowed(f.Kind.Category(), cond.Value) {
		return nil
	}
	if macro.IsMacro(cond.Value) {
		return invalid(cond, "macro is not allowed for this field")
	}
	if len(f.Options) > 0 {
		return invalid(cond, "value is not one of the field options")
	}
	return nil
}

func negateIf(cond model.FilterCondition, p predicate.Predicate) (predicate.Predicate, error) {
	switch cond.MatchType {
	case model.MatchIs:
		return p, nil
	case model.MatchIsNot:
		return predicate.Not(p), nil
	}
	return nil, unsupportedMatch(cond)
}

func enumOption(cond model.FilterCondition, valid func(string) bool, get func(*model.Conversation) string) (predicate.Predicate, error) {
	if err := checkOption(cond); err != nil {
		return nil, err
	}
	if !valid(cond.Value) {
		return nil, invalid(cond, "value is not a valid option")
	}
	want := cond.Value
	return negateIf(cond, func(c *model.Conversation) bool { return get(c) == want })
}

func resolveTarget(cond model.FilterCondition, ec macro.EvalContext) (macro.Target, error) {
	if err := checkOption(cond); err != nil {
		return macro.Target{}, err
	}
	target, err := macro.ResolveIDs(cond.Value, ec)
	if err != nil {
		return macro.Target{}, invalid(cond, "value is not a valid option")
	}
	return target, nil
}

func idOption(cond model.FilterCondition, ec macro.EvalContext, get func(*model.Conversation) *int) (predicate.Predicate, error) {
	target, err := resolveTarget(cond, ec)
	if err != nil {
		return nil, err
	}
	return negateIf(cond, func(c *model.Conversation) bool { return target.Matches(get(c)) })
}

func repliedAgents(cond model.FilterCondition, ec macro.EvalContext) (predicate.Predicate, error) {
	target, err := resolveTarget(cond, ec)
	if err != nil {
		return nil, err
	}
	var p predicate.Predicate
	if target.Blank {
		p = predicate.Not(predicate.AnyMessage(func(m *model.Message) bool { return m.SendAgentID != nil }))
	} else {
		p = predicate.AnyMessage(func(m *model.Message) bool {
			return m.SendAgentID != nil && target.Has(*m.SendAgentID)
		})
	}
	return negateIf(cond, p)
}

// socialAccount matches conversations where the integration account took part.
func socialAccount(cond model.FilterCondition, ec macro.EvalContext) (predicate.Predicate, error) {
	target, err := resolveTarget(cond, ec)
	if err != nil {
		return nil, err
	}
	if target.Blank {
		return nil, invalid(cond, "value is not a valid option")
	}
	p := predicate.AnyMessage(func(m *model.Message) bool { return m.TouchesAny(target.IDs) })
	return negateIf(cond, p)
}

func textMatcher(cond model.FilterCondition) (func(string) bool, error) {
	want := cond.Value
	lower := strings.ToLower(want)
	switch cond.MatchType {
	case model.MatchIs:
		return func(s string) bool { return strings.EqualFold(s, want) }, nil
	case model.MatchIsNot:
		return func(s string) bool { return !strings.EqualFold(s, want) }, nil
	case model.MatchContain:
		return func(s string) bool { return strings.Contains(strings.ToLower(s), lower) }, nil
	case model.MatchNotContain:
		return func(s string) bool { return !strings.Contains(strings.ToLower(s), lower) }, nil
	}
	return nil, unsupportedMatch(cond)
}

func text(cond model.FilterCondition, get func(*model.Conversation) string) (predicate.Predicate, error) {
	match, err := textMatcher(cond)
	if err != nil {
		return nil, err
	}
	return func(c *model.Conversation) bool { return match(get(c)) }, nil
}

// messageText negates at the conversation level: "not contain" means no
// message contains the value.
func messageText(cond model.FilterCondition) (predicate.Predicate, error) {
	switch cond.MatchType {
	case model.MatchIsNot, model.MatchNotContain:
		positive := cond
		if cond.MatchType == model.MatchIsNot {
			positive.MatchType = model.MatchIs
		} else {
			positive.MatchType = model.MatchContain
		}
		p, err := messageText(positive)
		if err != nil {
			return nil, err
		}
		return predicate.Not(p), nil
	}
	match, err := textMatcher(cond)
	if err != nil {
		return nil, err
	}
	return predicate.AnyMessage(func(m *model.Message) bool { return match(m.Content) }), nil
}
