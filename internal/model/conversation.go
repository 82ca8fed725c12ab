// Package model defines data structures for the social inbox.
package model

import (
	"strconv"
	"time"
)

// ConversationSource identifies the channel a conversation came from.
type ConversationSource string

const (
	SourceFacebookMessage      ConversationSource = "facebook_message"
	SourceFacebookWallPost     ConversationSource = "facebook_wall_post"
	SourceFacebookPostComment  ConversationSource = "facebook_post_comment"
	SourceTwitterDirectMessage ConversationSource = "twitter_direct_message"
	SourceTwitterTweet         ConversationSource = "twitter_tweet"
	SourceTwitterQuoteTweet    ConversationSource = "twitter_quote_tweet"
)

// IsDirect reports whether the source is a private one-to-one channel.
func (s ConversationSource) IsDirect() bool {
	return s == SourceFacebookMessage || s == SourceTwitterDirectMessage
}

// Valid reports whether s is a known source.
func (s ConversationSource) Valid() bool {
	switch s {
	case SourceFacebookMessage, SourceFacebookWallPost, SourceFacebookPostComment,
		SourceTwitterDirectMessage, SourceTwitterTweet, SourceTwitterQuoteTweet:
		return true
	}
	return false
}

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusPendingExternal ConversationStatus = "pending_external"
	StatusPendingInternal ConversationStatus = "pending_internal"
	StatusClosed          ConversationStatus = "closed"
)

// Valid reports whether s is a known status.
func (s ConversationStatus) Valid() bool {
	return s == StatusPendingExternal || s == StatusPendingInternal || s == StatusClosed
}

// DisplayName returns the human readable status used in conversation logs.
func (s ConversationStatus) DisplayName() string {
	switch s {
	case StatusPendingExternal:
		return "Pending External"
	case StatusPendingInternal:
		return "Pending Internal"
	case StatusClosed:
		return "Closed"
	default:
		return string(s)
	}
}

// ConversationPriority orders conversations for agents.
type ConversationPriority string

const (
	PriorityLow    ConversationPriority = "low"
	PriorityNormal ConversationPriority = "normal"
	PriorityHigh   ConversationPriority = "high"
	PriorityUrgent ConversationPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p ConversationPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// DisplayName returns the human readable priority used in conversation logs.
func (p ConversationPriority) DisplayName() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityNormal:
		return "Normal"
	case PriorityHigh:
		return "High"
	case PriorityUrgent:
		return "Urgent"
	default:
		return string(p)
	}
}

// Conversation represents a conversation thread with an external participant.
type Conversation struct {
	ID         int                `json:"id"`
	Source     ConversationSource `json:"source"`
	OriginalID string             `json:"original_id,omitempty"`
	Status     ConversationStatus `json:"status"`
	IfRead     bool               `json:"if_read"`

	AgentID            *int                 `json:"agent_id,omitempty"`
	DepartmentID       *int                 `json:"department_id,omitempty"`
	LastRepliedAgentID *int                 `json:"last_replied_agent_id,omitempty"`
	Priority           ConversationPriority `json:"priority"`
	Subject            string               `json:"subject"`
	Note               string               `json:"note,omitempty"`

	LastMessageSenderID int       `json:"last_message_sender_id"`
	LastMessageSentTime time.Time `json:"last_message_sent_time"`

	IsHidden  bool `json:"is_hidden"`
	IsDeleted bool `json:"-"`

	CreatedTime  time.Time  `json:"created_time"`
	ModifiedTime *time.Time `json:"modified_time,omitempty"`

	Messages []Message         `json:"messages,omitempty"`
	Logs     []ConversationLog `json:"logs,omitempty"`
}

// Number returns the display number of the conversation, e.g. "S42".
func (c *Conversation) Number() string {
	return "S" + strconv.Itoa(c.ID)
}

// MaxLogID returns the highest log id recorded on the conversation, or 0.
func (c *Conversation) MaxLogID() int {
	maxID := 0
	for _, l := range c.Logs {
		if l.ID > maxID {
			maxID = l.ID
		}
	}
	return maxID
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.AgentID = cloneInt(c.AgentID)
	out.DepartmentID = cloneInt(c.DepartmentID)
	out.LastRepliedAgentID = cloneInt(c.LastRepliedAgentID)
	if c.ModifiedTime != nil {
		t := *c.ModifiedTime
		out.ModifiedTime = &t
	}
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		for i, m := range c.Messages {
			out.Messages[i] = m.clone()
		}
	}
	if c.Logs != nil {
		out.Logs = append([]ConversationLog(nil), c.Logs...)
	}
	return &out
}

// ConversationLogType categorises audit log entries.
type ConversationLogType string

const (
	LogChangePriority           ConversationLogType = "change_priority"
	LogChangeStatus             ConversationLogType = "change_status"
	LogChangeAgentAssignee      ConversationLogType = "change_agent_assignee"
	LogChangeDepartmentAssignee ConversationLogType = "change_department_assignee"
	LogChangeNote               ConversationLogType = "change_note"
	LogChangeSubject            ConversationLogType = "change_subject"
)

// ConversationLog is an immutable audit entry owned by its conversation.
type ConversationLog struct {
	ID             int                 `json:"id"`
	ConversationID int                 `json:"conversation_id"`
	Type           ConversationLogType `json:"type"`
	Content        string              `json:"content"`
	CreatedBy      int                 `json:"created_by"`
	CreatedTime    time.Time           `json:"created_time"`
}

// SearchConversationsRequest is the request to search conversations.
type SearchConversationsRequest struct {
	FilterID              *int       `json:"filter_id,omitempty"`
	Keyword               string     `json:"keyword,omitempty"`
	UserID                *int       `json:"user_id,omitempty"`
	SinceID               *int       `json:"since_id,omitempty"`
	MaxID                 *int       `json:"max_id,omitempty"`
	LastMessageSentBefore *time.Time `json:"last_message_sent_before,omitempty"`
	Limit                 int        `json:"limit,omitempty"`
}

// UpdateConversationRequest is the request to update a conversation.
type UpdateConversationRequest struct {
	Status       *ConversationStatus   `json:"status,omitempty"`
	Priority     *ConversationPriority `json:"priority,omitempty"`
	AgentID      *int                  `json:"agent_id,omitempty"`
	DepartmentID *int                  `json:"department_id,omitempty"`
	Subject      *string               `json:"subject,omitempty"`
	Note         *string               `json:"note,omitempty"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
