package model

// FilterType selects how the conditions of a filter are combined.
type FilterType string

const (
	FilterAll               FilterType = "all"
	FilterAny               FilterType = "any"
	FilterLogicalExpression FilterType = "logical_expression"
)

// Valid reports whether t is a known filter type.
func (t FilterType) Valid() bool {
	return t == FilterAll || t == FilterAny || t == FilterLogicalExpression
}

// MatchType is the comparison a condition applies to its field.
type MatchType string

const (
	MatchIs          MatchType = "is"
	MatchIsNot       MatchType = "is_not"
	MatchBefore      MatchType = "before"
	MatchAfter       MatchType = "after"
	MatchBetween     MatchType = "between"
	MatchContain     MatchType = "contain"
	MatchNotContain  MatchType = "not_contain"
	MatchGreaterThan MatchType = "greater_than"
	MatchLessThan    MatchType = "less_than"
)

// FieldDataType is the value shape a conversation field accepts.
type FieldDataType string

const (
	DataTypeDateTime FieldDataType = "datetime"
	DataTypeNumber   FieldDataType = "number"
	DataTypeOption   FieldDataType = "option"
	DataTypeText     FieldDataType = "text"
)

// FieldKind is the stable identifier of what a field filters on.
// Condition building dispatches on it and macro whitelists are keyed by it.
type FieldKind string

const (
	KindLastMessageSent    FieldKind = "last_message_sent"
	KindCreatedTime        FieldKind = "created_time"
	KindTotalMessages      FieldKind = "total_messages"
	KindStatus             FieldKind = "status"
	KindPriority           FieldKind = "priority"
	KindSource             FieldKind = "source"
	KindAgentAssignee      FieldKind = "agent_assignee"
	KindLastRepliedAgent   FieldKind = "last_replied_agent"
	KindRepliedAgents      FieldKind = "replied_agents"
	KindDepartmentAssignee FieldKind = "department_assignee"
	KindSocialAccount      FieldKind = "social_account"
	KindSubject            FieldKind = "subject"
	KindNote               FieldKind = "note"
	KindMessageContent     FieldKind = "message_content"
)

// FieldCategory groups kinds that share macro whitelists.
type FieldCategory string

const (
	CategoryNone       FieldCategory = ""
	CategoryAgent      FieldCategory = "agent"
	CategoryDepartment FieldCategory = "department"
)

// Category returns the macro category of the kind.
func (k FieldKind) Category() FieldCategory {
	switch k {
	case KindAgentAssignee, KindLastRepliedAgent, KindRepliedAgents:
		return CategoryAgent
	case KindDepartmentAssignee:
		return CategoryDepartment
	default:
		return CategoryNone
	}
}

// FieldOption is one legal value of an option field.
type FieldOption struct {
	Value string `json:"value" yaml:"value"`
	Name  string `json:"name" yaml:"name"`
}

// ConversationField defines what a condition may test and with which values.
type ConversationField struct {
	ID       int           `json:"id" yaml:"id"`
	Name     string        `json:"name" yaml:"name"`
	DataType FieldDataType `json:"data_type" yaml:"data_type"`
	Kind     FieldKind     `json:"kind" yaml:"kind"`
	IsSystem bool          `json:"is_system" yaml:"is_system"`
	Options  []FieldOption `json:"options,omitempty" yaml:"options,omitempty"`
}

// HasOption reports whether value is one of the declared options.
func (f *ConversationField) HasOption(value string) bool {
	for _, o := range f.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// FilterCondition is one atomic test within a filter.
type FilterCondition struct {
	ID        int                `json:"id"`
	FilterID  int                `json:"filter_id"`
	Index     int                `json:"index"`
	FieldID   int                `json:"field_id"`
	Field     *ConversationField `json:"field,omitempty"`
	MatchType MatchType          `json:"match_type"`
	Value     string             `json:"value"`
}

// Filter is a saved, reusable boolean query over conversations.
type Filter struct {
	ID                int               `json:"id"`
	Name              string            `json:"name"`
	Index             int               `json:"index"`
	IfPublic          bool              `json:"if_public"`
	CreatedBy         int               `json:"created_by"`
	Type              FilterType        `json:"type"`
	LogicalExpression string            `json:"logical_expression,omitempty"`
	Conditions        []FilterCondition `json:"conditions"`
}

// VisibleTo reports whether the actor may use the filter.
func (f *Filter) VisibleTo(actorID int) bool {
	return f.IfPublic || f.CreatedBy == actorID
}

// UsesKind reports whether any condition references a field of the given kind.
func (f *Filter) UsesKind(kind FieldKind) bool {
	for _, c := range f.Conditions {
		if c.Field != nil && c.Field.Kind == kind {
			return true
		}
	}
	return false
}

// CreateFilterRequest is the request to create or replace a filter.
type CreateFilterRequest struct {
	Name              string                   `json:"name"`
	Index             int                      `json:"index"`
	IfPublic          bool                     `json:"if_public"`
	Type              FilterType               `json:"type"`
	LogicalExpression string                   `json:"logical_expression,omitempty"`
	Conditions        []FilterConditionRequest `json:"conditions"`
}

// FilterConditionRequest is one condition of a filter request.
type FilterConditionRequest struct {
	Index     int       `json:"index"`
	FieldID   int       `json:"field_id"`
	MatchType MatchType `json:"match_type"`
	Value     string    `json:"value"`
}

// FilterCountResponse is the response for counting a filter's conversations.
type FilterCountResponse struct {
	FilterID int `json:"filter_id"`
	Count    int `json:"count"`
}

// Clone returns a deep copy of the filter. Condition fields are shared.
func (f *Filter) Clone() *Filter {
	if f == nil {
		return nil
	}
	out := *f
	if f.Conditions != nil {
		out.Conditions = append([]FilterCondition(nil), f.Conditions...)
	}
	return &out
}

// ConditionIndices returns the index of every condition, in order.
func (f *Filter) ConditionIndices() []int {
	out := make([]int, len(f.Conditions))
	for i, c := range f.Conditions {
		out[i] = c.Index
	}
	return out
}
