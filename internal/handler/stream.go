package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/social-inbox/internal/middleware"
	"github.com/capitalize-ai/social-inbox/internal/notify"
	"github.com/capitalize-ai/social-inbox/pkg/logger"
	"github.com/capitalize-ai/social-inbox/pkg/metrics"
)

const streamBatchSize = 50

// StreamHandler serves the conversation event feed over SSE.
type StreamHandler struct {
	feed      notify.Feed
	logger    *logger.Logger
	poll      time.Duration
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler. A nil feed answers 503.
func NewStreamHandler(feed notify.Feed, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		feed:      feed,
		logger:    logger.OrNop(log).Named("stream"),
		poll:      time.Second,
		heartbeat: 30 * time.Second,
	}
}

// ReplayCompleteEvent marks the end of the replayed backlog.
type ReplayCompleteEvent struct {
	LastSequence uint64 `json:"last_sequence"`
	EventCount   int    `json:"event_count"`
}

// HeartbeatEvent keeps idle connections open.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent reports a feed failure to the client before the stream ends.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stream handles GET /api/v1/events
// Supports ?after_sequence=N (or the Last-Event-ID header) for resuming and
// ?conversation_id=N to follow a single conversation.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.feed == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream is not enabled")
		return
	}

	afterSequence, err := resumeSequence(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	conversationFilter, err := middleware.ParseOptionalID(r.URL.Query().Get("conversation_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "conversation_id: "+err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	log := h.logger.With(zap.String("correlation_id", middleware.GetCorrelationID(ctx)))
	sendSSEEvent(w, flusher, "connected", "", map[string]uint64{"after_sequence": afterSequence})

	// forward sends every event after the cursor and reports how many were sent.
	forward := func() (int, error) {
		sent := 0
		for {
			events, err := h.feed.Events(ctx, afterSequence, streamBatchSize)
			if err != nil {
				return sent, err
			}
			for _, ev := range events {
				afterSequence = ev.Sequence
				if conversationFilter != nil && ev.ConversationID != *conversationFilter {
					continue
				}
				if err := sendSSEEvent(w, flusher, string(ev.Type), strconv.FormatUint(ev.Sequence, 10), ev); err != nil {
					return sent, err
				}
				sent++
			}
			if len(events) < streamBatchSize {
				return sent, nil
			}
		}
	}

	replayed, err := forward()
	if err != nil {
		h.fail(w, flusher, log, err)
		return
	}
	sendSSEEvent(w, flusher, "replay_complete", "", &ReplayCompleteEvent{
		LastSequence: afterSequence,
		EventCount:   replayed,
	})
	log.Debug("event replay complete",
		zap.Int("events_replayed", replayed),
		zap.Uint64("last_sequence", afterSequence),
	)

	poll := time.NewTicker(h.poll)
	defer poll.Stop()
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE client disconnected", zap.Uint64("last_sequence", afterSequence))
			return
		case <-poll.C:
			if _, err := forward(); err != nil {
				if ctx.Err() != nil {
					return
				}
				h.fail(w, flusher, log, err)
				return
			}
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", "", &HeartbeatEvent{Timestamp: time.Now().UTC()})
		}
	}
}

func (h *StreamHandler) fail(w http.ResponseWriter, flusher http.Flusher, log *logger.Logger, err error) {
	log.Error("event feed failed", zap.Error(err))
	sendSSEEvent(w, flusher, "error", "", &ErrorEvent{
		Code:    "feed_error",
		Message: "failed to read conversation events",
	})
}

func resumeSequence(r *http.Request) (uint64, error) {
	raw := r.URL.Query().Get("after_sequence")
	if raw == "" {
		raw = r.Header.Get("Last-Event-ID")
	}
	if raw == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("after_sequence must be a non-negative integer")
	}
	return seq, nil
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event, id string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	fmt.Fprintf(w, "event: %s\n", event)
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
