package model

import (
	"time"
)

// MessageSource identifies the kind of social message.
type MessageSource string

const (
	MessageFacebookMessage     MessageSource = "facebook_message"
	MessageFacebookPost        MessageSource = "facebook_post"
	MessageFacebookPostComment MessageSource = "facebook_post_comment"
	MessageFacebookReply       MessageSource = "facebook_post_reply_comment"
	MessageTwitterDirect       MessageSource = "twitter_direct_message"
	MessageTwitterTweet        MessageSource = "twitter_tweet"
	MessageTwitterQuoteTweet   MessageSource = "twitter_quote_tweet"
)

// Message represents a single social message inside a conversation.
type Message struct {
	ID             int `json:"id"`
	ConversationID int `json:"conversation_id"`

	// Participants
	SenderID                   int    `json:"sender_id"`
	SenderName                 string `json:"sender_name,omitempty"`
	SenderIsIntegrationAccount bool   `json:"sender_is_integration_account"`
	ReceiverID                 *int   `json:"receiver_id,omitempty"`
	ReceiverName               string `json:"receiver_name,omitempty"`

	// Threading
	ParentID   *int   `json:"parent_id,omitempty"`
	OriginalID string `json:"original_id,omitempty"`

	// Set when an agent replied through an integration account.
	SendAgentID *int `json:"send_agent_id,omitempty"`

	Content      string        `json:"content"`
	OriginalLink string        `json:"original_link,omitempty"`
	SendTime     time.Time     `json:"send_time"`
	Source       MessageSource `json:"source"`
}

// TouchesAny reports whether the message was sent by or to one of ids.
func (m *Message) TouchesAny(ids map[int]struct{}) bool {
	if _, ok := ids[m.SenderID]; ok {
		return true
	}
	if m.ReceiverID != nil {
		if _, ok := ids[*m.ReceiverID]; ok {
			return true
		}
	}
	return false
}

func (m Message) clone() Message {
	m.ReceiverID = cloneInt(m.ReceiverID)
	m.ParentID = cloneInt(m.ParentID)
	m.SendAgentID = cloneInt(m.SendAgentID)
	return m
}
