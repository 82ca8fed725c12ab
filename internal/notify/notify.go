package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/social-inbox/internal/model"
	"github.com/capitalize-ai/social-inbox/pkg/logger"
	"github.com/capitalize-ai/social-inbox/pkg/metrics"
)

var (
	_ Notifier = (*StreamManager)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Feed     = (*StreamManager)(nil)
)

// Notifier delivers conversation events.
type Notifier interface {
	Notify(ctx context.Context, event *model.ConversationEvent) error
}

// Feed replays stored events in publish order.
type Feed interface {
	Events(ctx context.Context, afterSequence uint64, limit int) ([]SequencedEvent, error)
}

// SequencedEvent is an event with its stream sequence.
type SequencedEvent struct {
	model.ConversationEvent
	Sequence uint64 `json:"sequence"`
}

// NewEvent builds an event with a fresh time-ordered id.
func NewEvent(conversationID int, eventType model.EventType, oldMaxLogID, actorID int, at time.Time) *model.ConversationEvent {
	return &model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Type:           eventType,
		OldMaxLogID:    oldMaxLogID,
		ActorID:        actorID,
		CreatedAt:      at,
	}
}

// LogNotifier writes events to the log. It is used when NATS is disabled.
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.OrNop(log).Named("notify")}
}

// Notify logs the event.
func (n *LogNotifier) Notify(_ context.Context, event *model.ConversationEvent) error {
	metrics.RecordEvent(string(event.Type), nil)
	n.logger.Info("conversation event",
		zap.String("event_id", event.ID),
		zap.Int("conversation_id", event.ConversationID),
		zap.String("type", string(event.Type)),
		zap.Int("old_max_log_id", event.OldMaxLogID),
		zap.Int("actor_id", event.ActorID),
	)
	return nil
}
