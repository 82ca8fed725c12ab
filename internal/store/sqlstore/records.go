package sqlstore

import (
	"time"

	"github.com/capitalize-ai/social-inbox/internal/model"
)

// conversationRecord is the conversations table.
type conversationRecord struct {
	ID                  int    `gorm:"primaryKey;autoIncrement"`
	Source              string `gorm:"size:40;index;not null"`
	OriginalID          string `gorm:"size:200;index"`
	Status              string `gorm:"size:20;index;not null"`
	IfRead              bool   `gorm:"not null;default:false"`
	AgentID             *int   `gorm:"index"`
	DepartmentID        *int   `gorm:"index"`
	LastRepliedAgentID  *int
	Priority            string `gorm:"size:20;not null"`
	Subject             string `gorm:"size:500"`
	Note                string `gorm:"type:text"`
	LastMessageSenderID int
	LastMessageSentTime time.Time `gorm:"index"`
	IsHidden            bool      `gorm:"not null;default:false"`
	IsDeleted           bool      `gorm:"index;not null;default:false"`
	CreatedTime         time.Time
	ModifiedTime        *time.Time

	Messages []messageRecord         `gorm:"foreignKey:ConversationID"`
	Logs     []conversationLogRecord `gorm:"foreignKey:ConversationID"`
}

func (conversationRecord) TableName() string {
	return "conversations"
}

// messageRecord is the messages table.
type messageRecord struct {
	ID                         int    `gorm:"primaryKey;autoIncrement"`
	ConversationID             int    `gorm:"index;not null"`
	SenderID                   int    `gorm:"index"`
	SenderName                 string `gorm:"size:200"`
	SenderIsIntegrationAccount bool
	ReceiverID                 *int   `gorm:"index"`
	ReceiverName               string `gorm:"size:200"`
	ParentID                   *int
	OriginalID                 string `gorm:"size:200;index"`
	SendAgentID                *int
	Content                    string `gorm:"type:text"`
	OriginalLink               string `gorm:"size:500"`
	SendTime                   time.Time
	Source                     string `gorm:"size:40"`
}

func (messageRecord) TableName() string {
	return "messages"
}

// conversationLogRecord is the conversation_logs table.
type conversationLogRecord struct {
	ID             int    `gorm:"primaryKey;autoIncrement"`
	ConversationID int    `gorm:"index;not null"`
	Type           string `gorm:"size:40;not null"`
	Content        string `gorm:"type:text"`
	CreatedBy      int
	CreatedTime    time.Time `gorm:"index"`
}

func (conversationLogRecord) TableName() string {
	return "conversation_logs"
}

// filterRecord is the filters table.
type filterRecord struct {
	ID                int    `gorm:"primaryKey;autoIncrement"`
	Name              string `gorm:"size:200;not null"`
	Index             int    `gorm:"column:sort_index"`
	IfPublic          bool
	CreatedBy         int    `gorm:"index"`
	Type              string `gorm:"size:30;not null"`
	LogicalExpression string `gorm:"size:500"`

	Conditions []filterConditionRecord `gorm:"foreignKey:FilterID;constraint:OnDelete:CASCADE"`
}

func (filterRecord) TableName() string {
	return "filters"
}

// filterConditionRecord is the filter_conditions table.
type filterConditionRecord struct {
	ID        int    `gorm:"primaryKey;autoIncrement"`
	FilterID  int    `gorm:"index;not null"`
	Index     int    `gorm:"column:condition_index"`
	FieldID   int    `gorm:"not null"`
	MatchType string `gorm:"size:30;not null"`
	Value     string `gorm:"size:500"`
}

func (filterConditionRecord) TableName() string {
	return "filter_conditions"
}

// fieldRecord is the conversation_fields table. Options are stored as JSON.
type fieldRecord struct {
	ID       int                 `gorm:"primaryKey"`
	Name     string              `gorm:"size:200;not null"`
	DataType string              `gorm:"size:20;not null"`
	Kind     string              `gorm:"size:40;not null;uniqueIndex"`
	IsSystem bool                `gorm:"not null;default:false"`
	Options  []model.FieldOption `gorm:"serializer:json"`
}

func (fieldRecord) TableName() string {
	return "conversation_fields"
}

// agentRecord is the agents table.
type agentRecord struct {
	ID           int    `gorm:"primaryKey"`
	Name         string `gorm:"size:200;not null"`
	DepartmentID *int   `gorm:"index"`
}

func (agentRecord) TableName() string {
	return "agents"
}

// departmentRecord is the departments table.
type departmentRecord struct {
	ID   int    `gorm:"primaryKey"`
	Name string `gorm:"size:200;not null"`
}

func (departmentRecord) TableName() string {
	return "departments"
}

func toConversationRecord(c *model.Conversation) *conversationRecord {
	r := &conversationRecord{
		ID:                  c.ID,
		Source:              string(c.Source),
		OriginalID:          c.OriginalID,
		Status:              string(c.Status),
		IfRead:              c.IfRead,
		AgentID:             c.AgentID,
		DepartmentID:        c.DepartmentID,
		LastRepliedAgentID:  c.LastRepliedAgentID,
		Priority:            string(c.Priority),
		Subject:             c.Subject,
		Note:                c.Note,
		LastMessageSenderID: c.LastMessageSenderID,
		LastMessageSentTime: c.LastMessageSentTime,
		IsHidden:            c.IsHidden,
		IsDeleted:           c.IsDeleted,
		CreatedTime:         c.CreatedTime,
		ModifiedTime:        c.ModifiedTime,
	}
	for _, m := range c.Messages {
		r.Messages = append(r.Messages, toMessageRecord(c.ID, m))
	}
	for _, l := range c.Logs {
		r.Logs = append(r.Logs, toLogRecord(c.ID, l))
	}
	return r
}

func toMessageRecord(conversationID int, m model.Message) messageRecord {
	return messageRecord{
		ID:                         m.ID,
		ConversationID:             conversationID,
		SenderID:                   m.SenderID,
		SenderName:                 m.SenderName,
		SenderIsIntegrationAccount: m.SenderIsIntegrationAccount,
		ReceiverID:                 m.ReceiverID,
		ReceiverName:               m.ReceiverName,
		ParentID:                   m.ParentID,
		OriginalID:                 m.OriginalID,
		SendAgentID:                m.SendAgentID,
		Content:                    m.Content,
		OriginalLink:               m.OriginalLink,
		SendTime:                   m.SendTime,
		Source:                     string(m.Source),
	}
}

func toLogRecord(conversationID int, l model.ConversationLog) conversationLogRecord {
	return conversationLogRecord{
		ID:             l.ID,
		ConversationID: conversationID,
		Type:           string(l.Type),
		Content:        l.Content,
		CreatedBy:      l.CreatedBy,
		CreatedTime:    l.CreatedTime,
	}
}

func (r *conversationRecord) toModel() *model.Conversation {
	c := &model.Conversation{
		ID:                  r.ID,
		Source:              model.ConversationSource(r.Source),
		OriginalID:          r.OriginalID,
		Status:              model.ConversationStatus(r.Status),
		IfRead:              r.IfRead,
		AgentID:             r.AgentID,
		DepartmentID:        r.DepartmentID,
		LastRepliedAgentID:  r.LastRepliedAgentID,
		Priority:            model.ConversationPriority(r.Priority),
		Subject:             r.Subject,
		Note:                r.Note,
		LastMessageSenderID: r.LastMessageSenderID,
		LastMessageSentTime: r.LastMessageSentTime.UTC(),
		IsHidden:            r.IsHidden,
		IsDeleted:           r.IsDeleted,
		CreatedTime:         r.CreatedTime.UTC(),
	}
	if r.ModifiedTime != nil {
		t := r.ModifiedTime.UTC()
		c.ModifiedTime = &t
	}
	for _, m := range r.Messages {
		c.Messages = append(c.Messages, m.toModel())
	}
	for _, l := range r.Logs {
		c.Logs = append(c.Logs, l.toModel())
	}
	return c
}

func (m messageRecord) toModel() model.Message {
	return model.Message{
		ID:                         m.ID,
		ConversationID:             m.ConversationID,
		SenderID:                   m.SenderID,
		SenderName:                 m.SenderName,
		SenderIsIntegrationAccount: m.SenderIsIntegrationAccount,
		ReceiverID:                 m.ReceiverID,
		ReceiverName:               m.ReceiverName,
		ParentID:                   m.ParentID,
		OriginalID:                 m.OriginalID,
		SendAgentID:                m.SendAgentID,
		Content:                    m.Content,
		OriginalLink:               m.OriginalLink,
		SendTime:                   m.SendTime.UTC(),
		Source:                     model.MessageSource(m.Source),
	}
}

func (l conversationLogRecord) toModel() model.ConversationLog {
	return model.ConversationLog{
		ID:             l.ID,
		ConversationID: l.ConversationID,
		Type:           model.ConversationLogType(l.Type),
		Content:        l.Content,
		CreatedBy:      l.CreatedBy,
		CreatedTime:    l.CreatedTime.UTC(),
	}
}

func toFilterRecord(f *model.Filter) *filterRecord {
	r := &filterRecord{
		ID:                f.ID,
		Name:              f.Name,
		Index:             f.Index,
		IfPublic:          f.IfPublic,
		CreatedBy:         f.CreatedBy,
		Type:              string(f.Type),
		LogicalExpression: f.LogicalExpression,
	}
	for _, c := range f.Conditions {
		r.Conditions = append(r.Conditions, filterConditionRecord{
			FilterID:  f.ID,
			Index:     c.Index,
			FieldID:   c.FieldID,
			MatchType: string(c.MatchType),
			Value:     c.Value,
		})
	}
	return r
}

func (r *filterRecord) toModel() *model.Filter {
	f := &model.Filter{
		ID:                r.ID,
		Name:              r.Name,
		Index:             r.Index,
		IfPublic:          r.IfPublic,
		CreatedBy:         r.CreatedBy,
		Type:              model.FilterType(r.Type),
		LogicalExpression: r.LogicalExpression,
	}
	for _, c := range r.Conditions {
		f.Conditions = append(f.Conditions, model.FilterCondition{
			ID:        c.ID,
			FilterID:  c.FilterID,
			Index:     c.Index,
			FieldID:   c.FieldID,
			MatchType: model.MatchType(c.MatchType),
			Value:     c.Value,
		})
	}
	return f
}

func (r fieldRecord) toModel() model.ConversationField {
	return model.ConversationField{
		ID:       r.ID,
		Name:     r.Name,
		DataType: model.FieldDataType(r.DataType),
		Kind:     model.FieldKind(r.Kind),
		IsSystem: r.IsSystem,
		Options:  append([]model.FieldOption(nil), r.Options...),
	}
}
