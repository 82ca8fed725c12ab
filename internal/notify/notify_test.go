package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/capitalize-ai/social-inbox/internal/model"
	"github.com/capitalize-ai/social-inbox/pkg/logger"
)

type fakePublisher struct {
	subject string
	payload []byte
	opts    int
	err     error
}

func (p *fakePublisher) Publish(_ context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.subject = subject
	p.payload = payload
	p.opts = len(opts)
	return &jetstream.PubAck{Stream: StreamName, Sequence: 42}, nil
}

func TestEventSubject(t *testing.T) {
	assert.Equal(t, "inbox.conversation.17.closed", EventSubject(17, model.EventTypeClosed))
	assert.Equal(t, "inbox.conversation.3.reopened", EventSubject(3, model.EventTypeReopen))
}

func TestNewEvent(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	a := NewEvent(5, model.EventTypeTaken, 12, 7, at)
	b := NewEvent(5, model.EventTypeTaken, 12, 7, at)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 5, a.ConversationID)
	assert.Equal(t, 12, a.OldMaxLogID)
	assert.Equal(t, 7, a.ActorID)
	assert.Equal(t, at, a.CreatedAt)
}

func TestPublishEvent(t *testing.T) {
	ev := NewEvent(9, model.EventTypeRead, 3, 7, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))

	t.Run("publishes json with message id", func(t *testing.T) {
		pub := &fakePublisher{}
		seq, err := publishEvent(context.Background(), pub, ev)
		require.NoError(t, err)
		assert.Equal(t, uint64(42), seq)
		assert.Equal(t, "inbox.conversation.9.read", pub.subject)
		assert.Equal(t, 1, pub.opts)

		var decoded model.ConversationEvent
		require.NoError(t, json.Unmarshal(pub.payload, &decoded))
		assert.Equal(t, ev.ID, decoded.ID)
		assert.Equal(t, 3, decoded.OldMaxLogID)
	})

	t.Run("wraps publish errors", func(t *testing.T) {
		boom := errors.New("no responders")
		_, err := publishEvent(context.Background(), &fakePublisher{err: boom}, ev)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "failed to publish event")
	})
}

func TestSequencedEventJSON(t *testing.T) {
	ev := SequencedEvent{ConversationEvent: model.ConversationEvent{ID: "x", ConversationID: 4, Type: model.EventTypeClosed}, Sequence: 8}
	b, err := json.Marshal(ev)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(b, &flat))
	assert.Equal(t, float64(8), flat["sequence"])
	assert.Equal(t, float64(4), flat["conversation_id"])
	assert.Equal(t, "closed", flat["type"])
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := NewLogNotifier(&logger.Logger{Logger: zap.New(core)})

	require.NoError(t, n.Notify(context.Background(), &model.ConversationEvent{ID: "e1", ConversationID: 2, Type: model.EventTypeUnread}))

	entries := logs.FilterMessage("conversation event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(2), fields["conversation_id"])
	assert.Equal(t, "unread", fields["type"])
	assert.Equal(t, "notify", entries[0].LoggerName)
}
