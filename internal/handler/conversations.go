// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/social-inbox/internal/middleware"
	"github.com/capitalize-ai/social-inbox/internal/model"
	"github.com/capitalize-ai/social-inbox/internal/service"
	"github.com/capitalize-ai/social-inbox/pkg/logger"
)

const maxSearchLimit = 500

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  logger.OrNop(log).Named("conversations"),
	}
}

// Search handles GET /api/v1/conversations
func (h *ConversationHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, err := searchRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.Search(r.Context(), actor(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func searchRequest(r *http.Request) (*model.SearchConversationsRequest, error) {
	q := r.URL.Query()
	req := &model.SearchConversationsRequest{Keyword: q.Get("keyword")}
	if err := middleware.ValidateKeyword(req.Keyword); err != nil {
		return nil, err
	}

	var err error
	for _, p := range []struct {
		name string
		dst  **int
	}{
		{"filter_id", &req.FilterID},
		{"user_id", &req.UserID},
		{"since_id", &req.SinceID},
		{"max_id", &req.MaxID},
	} {
		if *p.dst, err = middleware.ParseOptionalID(q.Get(p.name)); err != nil {
			return nil, fmt.Errorf("%s: %w", p.name, err)
		}
	}

	if v := q.Get("last_message_sent_before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, errors.New("last_message_sent_before: expected RFC 3339 time")
		}
		req.LastMessageSentBefore = &t
	}
	if v := q.Get("limit"); v != "" {
		if req.Limit, err = strconv.Atoi(v); err != nil {
			return nil, errors.New("limit: expected an integer")
		}
		if err := middleware.ValidateLimit(req.Limit, maxSearchLimit); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// UnreadCount handles GET /api/v1/conversations/unread-count
func (h *ConversationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.UnreadCount(r.Context(), actor(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// Lookup handles GET /api/v1/conversations/lookup. It accepts either
// source and original_id, or twitter_sender_id and twitter_recipient_id.
func (h *ConversationHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var (
		conv *model.Conversation
		err  error
	)
	switch {
	case q.Get("original_id") != "":
		source := model.ConversationSource(q.Get("source"))
		if !source.Valid() {
			writeError(w, http.StatusBadRequest, "unknown source")
			return
		}
		conv, err = h.service.GetUnclosedByOriginalID(ctx, source, q.Get("original_id"))
	case q.Get("twitter_sender_id") != "":
		sender, perr := middleware.ParseID(q.Get("twitter_sender_id"))
		if perr != nil {
			writeError(w, http.StatusBadRequest, "twitter_sender_id: "+perr.Error())
			return
		}
		recipient, perr := middleware.ParseID(q.Get("twitter_recipient_id"))
		if perr != nil {
			writeError(w, http.StatusBadRequest, "twitter_recipient_id: "+perr.Error())
			return
		}
		conv, err = h.service.GetTwitterDirectMessageConversation(ctx, sender, recipient)
	default:
		writeError(w, http.StatusBadRequest, "original_id or twitter_sender_id is required")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "no open conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	conv, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Update handles PUT /api/v1/conversations/{id}
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.UpdateConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.service.Update(r.Context(), id, actor(r), &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type workflowOp func(ctx context.Context, id int, a service.Actor) (*model.Conversation, error)

// Take handles POST /api/v1/conversations/{id}/take
func (h *ConversationHandler) Take(w http.ResponseWriter, r *http.Request) {
	h.workflow(w, r, h.service.Take)
}

// Close handles POST /api/v1/conversations/{id}/close
func (h *ConversationHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.workflow(w, r, h.service.Close)
}

// Reopen handles POST /api/v1/conversations/{id}/reopen
func (h *ConversationHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	h.workflow(w, r, h.service.Reopen)
}

// MarkRead handles POST /api/v1/conversations/{id}/read
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.workflow(w, r, h.service.MarkRead)
}

// MarkUnread handles POST /api/v1/conversations/{id}/unread
func (h *ConversationHandler) MarkUnread(w http.ResponseWriter, r *http.Request) {
	h.workflow(w, r, h.service.MarkUnread)
}

func (h *ConversationHandler) workflow(w http.ResponseWriter, r *http.Request, op workflowOp) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	conv, err := op(r.Context(), id, actor(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// CanReopen handles GET /api/v1/conversations/{id}/can-reopen
func (h *ConversationHandler) CanReopen(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	allowed, err := h.service.CanReopen(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"can_reopen": allowed})
}

// CheckReply handles GET /api/v1/conversations/{id}/reply-check. It answers
// 204 when a reply may reopen the conversation and 409 when it may not.
func (h *ConversationHandler) CheckReply(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	if err := h.service.CheckIfCanReopenWhenReply(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Logs handles GET /api/v1/conversations/{id}/logs
// Supports ?after=N to return only logs newer than log N.
func (h *ConversationHandler) Logs(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var (
		logs []model.ConversationLog
		err  error
	)
	if after := r.URL.Query().Get("after"); after != "" {
		afterID, perr := strconv.Atoi(after)
		if perr != nil || afterID < 0 {
			writeError(w, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		logs, err = h.service.NewLogs(r.Context(), id, afterID)
	} else {
		logs, err = h.service.Logs(r.Context(), id)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if logs == nil {
		logs = []model.ConversationLog{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}

func conversationID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return 0, false
	}
	return id, true
}
