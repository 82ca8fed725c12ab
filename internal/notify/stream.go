package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/social-inbox/internal/model"
	"github.com/capitalize-ai/social-inbox/pkg/logger"
	"github.com/capitalize-ai/social-inbox/pkg/metrics"
)

const (
	// StreamName is the name of the conversation events stream.
	StreamName = "CONVERSATION_EVENTS"

	// SubjectPrefix is the prefix for all conversation event subjects.
	SubjectPrefix = "inbox.conversation"
)

// publisher is the part of jetstream.JetStream used to publish.
type publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// StreamManager publishes conversation events to JetStream and replays them.
type StreamManager struct {
	js     jetstream.JetStream
	logger *logger.Logger
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client, log *logger.Logger) *StreamManager {
	return &StreamManager{
		js:     client.JetStream(),
		logger: logger.OrNop(log).Named("notify"),
	}
}

// EnsureStream ensures the events stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	if _, err := m.js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := m.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Duplicates:  2 * time.Minute,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Conversation workflow events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	m.logger.Info("created stream", zap.String("stream", StreamName))
	return nil
}

// RecordState exports the stream size to Prometheus.
func (m *StreamManager) RecordState(ctx context.Context) error {
	stream, err := m.js.Stream(ctx, StreamName)
	if err != nil {
		return fmt.Errorf("failed to look up stream: %w", err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stream info: %w", err)
	}
	metrics.RecordStreamState(StreamName, info.State.Msgs, info.State.Bytes)
	return nil
}

// EventSubject returns the subject for an event.
func EventSubject(conversationID int, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, strconv.Itoa(conversationID), eventType)
}

// Notify publishes the event. The event id doubles as the JetStream message
// id so retried publishes are deduplicated.
func (m *StreamManager) Notify(ctx context.Context, event *model.ConversationEvent) error {
	seq, err := publishEvent(ctx, m.js, event)
	metrics.RecordEvent(string(event.Type), err)
	if err != nil {
		return err
	}
	m.logger.Debug("event published",
		zap.Int("conversation_id", event.ConversationID),
		zap.String("type", string(event.Type)),
		zap.Uint64("sequence", seq),
	)
	return nil
}

func publishEvent(ctx context.Context, pub publisher, event *model.ConversationEvent) (uint64, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := pub.Publish(ctx, EventSubject(event.ConversationID, event.Type), data, jetstream.WithMsgID(event.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}
	return ack.Sequence, nil
}

// Events returns up to limit events stored after afterSequence.
func (m *StreamManager) Events(ctx context.Context, afterSequence uint64, limit int) ([]SequencedEvent, error) {
	cfg := jetstream.ConsumerConfig{
		FilterSubject:     SubjectPrefix + ".>",
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: 30 * time.Second,
	}
	if afterSequence > 0 {
		cfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cfg.OptStartSeq = afterSequence + 1
	}

	consumer, err := m.js.CreateConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	defer func() {
		name := consumer.CachedInfo().Name
		if err := m.js.DeleteConsumer(context.WithoutCancel(ctx), StreamName, name); err != nil {
			m.logger.Debug("failed to delete consumer", zap.String("consumer", name), zap.Error(err))
		}
	}()

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	var events []SequencedEvent
	for msg := range batch.Messages() {
		var ev SequencedEvent
		if err := json.Unmarshal(msg.Data(), &ev.ConversationEvent); err != nil {
			m.logger.Warn("skipping malformed event", zap.String("subject", msg.Subject()), zap.Error(err))
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			ev.Sequence = meta.Sequence.Stream
		}
		events = append(events, ev)
	}

	if err := batch.Error(); err != nil && !isFetchTimeout(err) {
		return nil, fmt.Errorf("batch error: %w", err)
	}
	return events, nil
}

func isFetchTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout)
}
