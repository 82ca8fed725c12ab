package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventTypeUpdated EventType = "updated"
	EventTypeTaken   EventType = "taken"
	EventTypeClosed  EventType = "closed"
	EventTypeReopen  EventType = "reopened"
	EventTypeRead    EventType = "read"
	EventTypeUnread  EventType = "unread"
)

// ConversationEvent notifies subscribers that a conversation changed.
// Subscribers fetch the logs written after OldMaxLogID.
type ConversationEvent struct {
	ID             string    `json:"id"`
	ConversationID int       `json:"conversation_id"`
	Type           EventType `json:"type"`
	OldMaxLogID    int       `json:"old_max_log_id"`
	ActorID        int       `json:"actor_id"`
	CreatedAt      time.Time `json:"created_at"`
}
