package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/social-inbox/internal/apperr"
	"github.com/capitalize-ai/social-inbox/internal/filter"
	"github.com/capitalize-ai/social-inbox/internal/model"
	"github.com/capitalize-ai/social-inbox/internal/notify"
	"github.com/capitalize-ai/social-inbox/internal/predicate"
	"github.com/capitalize-ai/social-inbox/internal/store"
	"github.com/capitalize-ai/social-inbox/internal/workflow"
	"github.com/capitalize-ai/social-inbox/pkg/logger"
	"github.com/capitalize-ai/social-inbox/pkg/tracing"
)

// ConversationService handles conversation queries and workflow operations.
type ConversationService struct {
	store    store.Store
	engine   *workflow.Engine
	compiler *filter.Compiler
	notifier notify.Notifier
	logger   *logger.Logger
	opts     options
}

// NewConversationService creates a new conversation service. A nil notifier
// only logs events.
func NewConversationService(st store.Store, compiler *filter.Compiler, notifier notify.Notifier, log *logger.Logger, opts ...Option) *ConversationService {
	log = logger.OrNop(log)
	o := newOptions(opts)
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}
	stores := st.Stores()
	return &ConversationService{
		store: st,
		engine: workflow.NewEngine(stores.Conversations, stores.Directory,
			workflow.WithClock(o.now),
			workflow.WithLogger(log),
		),
		compiler: compiler,
		notifier: notifier,
		logger:   log.Named("conversations"),
		opts:     o,
	}
}

// Get returns a conversation that is not deleted.
func (s *ConversationService) Get(ctx context.Context, id int) (*model.Conversation, error) {
	return getActive(ctx, s.store.Stores().Conversations, id)
}

// CheckIfExists returns a NotFoundError when the conversation is missing or deleted.
func (s *ConversationService) CheckIfExists(ctx context.Context, id int) error {
	_, err := s.Get(ctx, id)
	return err
}

// Search returns visible conversations matching req, newest message first.
func (s *ConversationService) Search(ctx context.Context, actor Actor, req *model.SearchConversationsRequest) (resp *model.ListConversationsResponse, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "ConversationService.Search")
	defer func() { tracing.End(span, err) }()

	st := s.store.Stores()
	preds := []predicate.Predicate{predicate.Visible()}

	if req.FilterID != nil {
		f, err := visibleFilter(ctx, st, actor, *req.FilterID, s.opts.departmentsEnabled)
		if err != nil {
			return nil, err
		}
		ec, err := evalContext(ctx, st.Directory, actor, s.opts.now())
		if err != nil {
			return nil, err
		}
		p, err := s.compiler.Compile(*f, ec)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
		span.SetAttributes(attribute.Int("filter.id", f.ID))
	}
	if req.Keyword != "" {
		preds = append(preds, keywordPredicate(req.Keyword))
	}
	if req.UserID != nil {
		preds = append(preds, participantPredicate(*req.UserID))
	}
	if req.SinceID != nil {
		since := *req.SinceID
		preds = append(preds, func(c *model.Conversation) bool { return c.ID > since })
	}
	if req.MaxID != nil {
		maxID := *req.MaxID
		preds = append(preds, func(c *model.Conversation) bool { return c.ID <= maxID })
	}
	if req.LastMessageSentBefore != nil {
		before := *req.LastMessageSentBefore
		preds = append(preds, func(c *model.Conversation) bool { return c.LastMessageSentTime.Before(before) })
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.opts.searchLimit
	}

	p := predicate.And(preds...)
	found, err := st.Conversations.Find(ctx, p, store.FindOptions{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("searching conversations: %w", err)
	}
	total, err := st.Conversations.Count(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("counting conversations: %w", err)
	}

	resp = &model.ListConversationsResponse{
		Conversations: make([]model.Conversation, len(found)),
		Total:         total,
	}
	for i, c := range found {
		resp.Conversations[i] = *c
	}
	return resp, nil
}

// UnreadCount counts unread, visible conversations matched by any filter the
// actor can see.
func (s *ConversationService) UnreadCount(ctx context.Context, actor Actor) (n int, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "ConversationService.UnreadCount")
	defer func() { tracing.End(span, err) }()

	st := s.store.Stores()
	filters, err := visibleFilters(ctx, st, actor, s.opts.departmentsEnabled)
	if err != nil {
		return 0, err
	}
	ec, err := evalContext(ctx, st.Directory, actor, s.opts.now())
	if err != nil {
		return 0, err
	}
	p, err := s.compiler.CompileAny(filters, ec)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("filters", len(filters)))
	return st.Conversations.Count(ctx, predicate.And(predicate.Visible(), predicate.Unread(), p))
}

// Take assigns the conversation to the actor.
func (s *ConversationService) Take(ctx context.Context, id int, actor Actor) (*model.Conversation, error) {
	return s.apply(ctx, "Take", model.EventTypeTaken, id, actor, (*workflow.Engine).Take)
}

// Close closes the conversation.
func (s *ConversationService) Close(ctx context.Context, id int, actor Actor) (*model.Conversation, error) {
	return s.apply(ctx, "Close", model.EventTypeClosed, id, actor, (*workflow.Engine).Close)
}

// Reopen reopens a closed conversation.
func (s *ConversationService) Reopen(ctx context.Context, id int, actor Actor) (*model.Conversation, error) {
	return s.apply(ctx, "Reopen", model.EventTypeReopen, id, actor, (*workflow.Engine).Reopen)
}

// MarkRead marks the conversation as read.
func (s *ConversationService) MarkRead(ctx context.Context, id int, actor Actor) (*model.Conversation, error) {
	return s.apply(ctx, "MarkRead", model.EventTypeRead, id, actor, (*workflow.Engine).MarkRead)
}

// MarkUnread marks the conversation as unread.
func (s *ConversationService) MarkUnread(ctx context.Context, id int, actor Actor) (*model.Conversation, error) {
	return s.apply(ctx, "MarkUnread", model.EventTypeUnread, id, actor, (*workflow.Engine).MarkUnread)
}

// Update applies the non-nil fields of req and writes change logs.
func (s *ConversationService) Update(ctx context.Context, id int, actor Actor, req *model.UpdateConversationRequest) (*model.Conversation, error) {
	if req.Status != nil && !req.Status.Valid() {
		return nil, apperr.Validation("status", string(*req.Status), "unknown status")
	}
	if req.Priority != nil && !req.Priority.Valid() {
		return nil, apperr.Validation("priority", string(*req.Priority), "unknown priority")
	}
	return s.apply(ctx, "Update", model.EventTypeUpdated, id, actor,
		func(e *workflow.Engine, ctx context.Context, conv *model.Conversation, actorID int) error {
			applyUpdate(conv, req)
			return e.UpdateWithLog(ctx, conv, actorID)
		})
}

func applyUpdate(conv *model.Conversation, req *model.UpdateConversationRequest) {
	if req.Status != nil {
		conv.Status = *req.Status
	}
	if req.Priority != nil {
		conv.Priority = *req.Priority
	}
	if req.AgentID != nil {
		conv.AgentID = idOrNil(*req.AgentID)
	}
	if req.DepartmentID != nil {
		conv.DepartmentID = idOrNil(*req.DepartmentID)
	}
	if req.Subject != nil {
		conv.Subject = *req.Subject
	}
	if req.Note != nil {
		conv.Note = *req.Note
	}
}

// idOrNil maps the "unassign" value 0 to nil.
func idOrNil(id int) *int {
	if id <= 0 {
		return nil
	}
	return &id
}

type operation func(e *workflow.Engine, ctx context.Context, conv *model.Conversation, actorID int) error

// apply runs op inside a transaction and publishes an event once it commits.
func (s *ConversationService) apply(ctx context.Context, name string, eventType model.EventType, id int, actor Actor, op operation) (conv *model.Conversation, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "ConversationService."+name, trace.WithAttributes(
		attribute.Int("conversation.id", id),
		attribute.Int("actor.id", actor.ID),
	))
	defer func() { tracing.End(span, err) }()

	var oldMaxLogID int
	err = s.store.WithinTx(ctx, func(ctx context.Context, st store.Stores) error {
		c, err := getActive(ctx, st.Conversations, id)
		if err != nil {
			return err
		}
		oldMaxLogID = c.MaxLogID()
		if err := op(s.engine.Bind(st.Conversations, st.Directory), ctx, c, actor.ID); err != nil {
			return err
		}
		conv = c
		return nil
	})
	if err != nil {
		s.logger.Debug("workflow operation rejected",
			zap.String("operation", name),
			zap.Int("conversation_id", id),
			zap.Int("actor_id", actor.ID),
			zap.Error(err),
		)
		return nil, err
	}

	event := notify.NewEvent(id, eventType, oldMaxLogID, actor.ID, s.opts.now())
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Warn("failed to publish conversation event",
			zap.Int("conversation_id", id),
			zap.String("type", string(eventType)),
			zap.Error(err),
		)
	}
	return conv, nil
}

// CanReopen reports whether a closed conversation may be reopened.
func (s *ConversationService) CanReopen(ctx context.Context, id int) (bool, error) {
	st := s.store.Stores()
	conv, err := getActive(ctx, st.Conversations, id)
	if err != nil {
		return false, err
	}
	return s.engine.Bind(st.Conversations, st.Directory).CanReopen(ctx, conv)
}

// CheckIfCanReopenWhenReply fails with a ConflictError when replying would
// reopen a conversation that must stay closed.
func (s *ConversationService) CheckIfCanReopenWhenReply(ctx context.Context, id int) error {
	st := s.store.Stores()
	conv, err := getActive(ctx, st.Conversations, id)
	if err != nil {
		return err
	}
	return s.engine.Bind(st.Conversations, st.Directory).CheckIfCanReopenWhenReply(ctx, conv)
}

// Logs returns the conversation's change logs, newest first.
func (s *ConversationService) Logs(ctx context.Context, id int) ([]model.ConversationLog, error) {
	st := s.store.Stores()
	if _, err := getActive(ctx, st.Conversations, id); err != nil {
		return nil, err
	}
	return st.Conversations.Logs(ctx, id)
}

// NewLogs returns the logs written after afterLogID, newest first.
func (s *ConversationService) NewLogs(ctx context.Context, id, afterLogID int) ([]model.ConversationLog, error) {
	logs, err := s.Logs(ctx, id)
	if err != nil {
		return nil, err
	}
	out := logs[:0]
	for _, l := range logs {
		if l.ID > afterLogID {
			out = append(out, l)
		}
	}
	return out, nil
}

// GetUnclosedByOriginalID returns the open conversation created from the
// given social thread, or nil.
func (s *ConversationService) GetUnclosedByOriginalID(ctx context.Context, source model.ConversationSource, originalID string) (*model.Conversation, error) {
	return s.store.Stores().Conversations.FindFirst(ctx, predicate.And(
		predicate.Active(),
		func(c *model.Conversation) bool {
			return c.Source == source && c.OriginalID == originalID && c.Status != model.StatusClosed
		},
	))
}

// GetTwitterDirectMessageConversation returns the open direct message
// conversation between the two accounts, or nil.
func (s *ConversationService) GetTwitterDirectMessageConversation(ctx context.Context, senderID, recipientID int) (*model.Conversation, error) {
	return s.store.Stores().Conversations.FindFirst(ctx, predicate.And(
		predicate.Active(),
		func(c *model.Conversation) bool {
			return c.Source == model.SourceTwitterDirectMessage && c.Status != model.StatusClosed
		},
		predicate.AnyMessage(func(m *model.Message) bool {
			if m.ReceiverID == nil {
				return false
			}
			return (m.SenderID == senderID && *m.ReceiverID == recipientID) ||
				(m.SenderID == recipientID && *m.ReceiverID == senderID)
		}),
	))
}

func getActive(ctx context.Context, repo store.ConversationRepository, id int) (*model.Conversation, error) {
	c, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsDeleted {
		return nil, apperr.NotFound("conversation", id)
	}
	return c, nil
}
