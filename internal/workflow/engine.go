// Package workflow enforces the conversation lifecycle: status transitions,
// the single-open-conversation rule on direct channels, and change logs.
//
// The engine does no locking. Hosts run each operation inside a transaction
// and hand the engine stores bound to it (see Bind).
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/social-inbox/internal/apperr"
	"github.com/capitalize-ai/social-inbox/internal/model"
	"github.com/capitalize-ai/social-inbox/internal/predicate"
	"github.com/capitalize-ai/social-inbox/pkg/logger"
	"github.com/capitalize-ai/social-inbox/pkg/metrics"
)

// Repository is the persistence the engine needs.
type Repository interface {
	// Get returns a detached snapshot of the persisted conversation.
	Get(ctx context.Context, id int) (*model.Conversation, error)
	// FindFirst returns the first conversation matching p, or nil.
	FindFirst(ctx context.Context, p predicate.Predicate) (*model.Conversation, error)
	// Save persists the conversation and appends logs that have no id yet.
	Save(ctx context.Context, c *model.Conversation) error
}

// Directory resolves display names used in change logs.
type Directory interface {
	AgentName(ctx context.Context, id int) (string, error)
	DepartmentName(ctx context.Context, id int) (string, error)
}

// Engine applies workflow operations to conversations.
type Engine struct {
	repo   Repository
	dir    Directory
	now    func() time.Time
	logger *logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for log and modification times.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a workflow engine.
func NewEngine(repo Repository, dir Directory, opts ...Option) *Engine {
	e := &Engine{
		repo: repo,
		dir:  dir,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logger.OrNop(e.logger).Named("workflow")
	return e
}

// Bind returns a copy of the engine using repo and dir, typically
// transaction-scoped ones. A nil dir keeps the current directory.
func (e *Engine) Bind(repo Repository, dir Directory) *Engine {
	cp := *e
	cp.repo = repo
	if dir != nil {
		cp.dir = dir
	}
	return &cp
}

// Take assigns the conversation to the actor.
func (e *Engine) Take(ctx context.Context, conv *model.Conversation, actorID int) error {
	conv.AgentID = &actorID
	return e.record("take", e.UpdateWithLog(ctx, conv, actorID))
}

// Close moves the conversation to closed.
func (e *Engine) Close(ctx context.Context, conv *model.Conversation, actorID int) error {
	conv.Status = model.StatusClosed
	return e.record("close", e.UpdateWithLog(ctx, conv, actorID))
}

// Reopen moves a closed conversation back to pending internal.
func (e *Engine) Reopen(ctx context.Context, conv *model.Conversation, actorID int) error {
	if conv.Status != model.StatusClosed {
		return e.record("reopen", apperr.Conflict(apperr.CodeConversationNotClosed,
			fmt.Sprintf("conversation %d is %s", conv.ID, conv.Status)))
	}
	allowed, err := e.IsReopenAllowed(ctx, conv)
	if err != nil {
		return e.record("reopen", err)
	}
	if !allowed {
		return e.record("reopen", e.reopenConflict(conv))
	}
	conv.Status = model.StatusPendingInternal
	return e.record("reopen", e.UpdateWithLog(ctx, conv, actorID))
}

// MarkRead flags the conversation as read.
func (e *Engine) MarkRead(ctx context.Context, conv *model.Conversation, actorID int) error {
	conv.IfRead = true
	return e.record("mark_read", e.UpdateWithLog(ctx, conv, actorID))
}

// MarkUnread flags the conversation as unread.
func (e *Engine) MarkUnread(ctx context.Context, conv *model.Conversation, actorID int) error {
	conv.IfRead = false
	return e.record("mark_unread", e.UpdateWithLog(ctx, conv, actorID))
}

// UpdateWithLog persists conv, appending a change log for every tracked
// field that differs from the persisted snapshot.
func (e *Engine) UpdateWithLog(ctx context.Context, conv *model.Conversation, actorID int) error {
	return e.update(ctx, conv, actorID, true)
}

// Update persists conv without writing change logs. The reopen guard still applies.
func (e *Engine) Update(ctx context.Context, conv *model.Conversation) error {
	return e.update(ctx, conv, 0, false)
}

func (e *Engine) update(ctx context.Context, conv *model.Conversation, actorID int, withLog bool) error {
	old, err := e.repo.Get(ctx, conv.ID)
	if err != nil {
		return err
	}
	if old.IsDeleted {
		return apperr.NotFound("conversation", conv.ID)
	}

	if old.Status == model.StatusClosed && conv.Status != model.StatusClosed {
		allowed, err := e.IsReopenAllowed(ctx, old)
		if err != nil {
			return err
		}
		if !allowed {
			return e.reopenConflict(old)
		}
	}

	now := e.now()
	if withLog {
		logs, err := e.diff(ctx, old, conv, actorID, now)
		if err != nil {
			return err
		}
		conv.Logs = append(conv.Logs, logs...)
		for _, l := range logs {
			metrics.RecordLog(string(l.Type))
		}
	}
	conv.ModifiedTime = &now

	if err := e.repo.Save(ctx, conv); err != nil {
		return fmt.Errorf("saving conversation %d: %w", conv.ID, err)
	}
	e.logger.Debug("conversation updated",
		zap.Int("conversation_id", conv.ID),
		zap.String("status", string(conv.Status)),
		zap.Int("actor_id", actorID),
	)
	return nil
}

// IsReopenAllowed reports whether conv may become non-closed without a
// second open conversation existing for one of its external participants.
// Only direct channels are restricted.
func (e *Engine) IsReopenAllowed(ctx context.Context, conv *model.Conversation) (bool, error) {
	if !conv.Source.IsDirect() {
		return true, nil
	}
	participants := Participants(conv)
	if len(participants) == 0 {
		return true, nil
	}

	source, id := conv.Source, conv.ID
	open := predicate.And(
		predicate.Active(),
		func(c *model.Conversation) bool {
			return c.Source == source && c.ID != id && c.Status != model.StatusClosed
		},
		predicate.AnyMessage(func(m *model.Message) bool { return m.TouchesAny(participants) }),
	)
	other, err := e.repo.FindFirst(ctx, open)
	if err != nil {
		return false, fmt.Errorf("looking up open conversations: %w", err)
	}
	return other == nil, nil
}

// CheckIfCanReopenWhenReply fails when replying would implicitly reopen a
// closed conversation that may not be reopened.
func (e *Engine) CheckIfCanReopenWhenReply(ctx context.Context, conv *model.Conversation) error {
	if conv.Status != model.StatusClosed {
		return nil
	}
	allowed, err := e.IsReopenAllowed(ctx, conv)
	if err != nil {
		return err
	}
	if !allowed {
		return e.reopenConflict(conv)
	}
	return nil
}

// CanReopen reports whether Reopen would succeed. Conversations that are not
// closed cannot be reopened.
func (e *Engine) CanReopen(ctx context.Context, conv *model.Conversation) (bool, error) {
	if conv.Status != model.StatusClosed {
		return false, nil
	}
	return e.IsReopenAllowed(ctx, conv)
}

// Participants returns the customer side of a conversation: senders that are
// not integration accounts, plus the receivers of integration account messages.
func Participants(conv *model.Conversation) map[int]struct{} {
	ids := make(map[int]struct{})
	for _, m := range conv.Messages {
		if !m.SenderIsIntegrationAccount {
			ids[m.SenderID] = struct{}{}
			continue
		}
		if m.ReceiverID != nil {
			ids[*m.ReceiverID] = struct{}{}
		}
	}
	return ids
}

func (e *Engine) reopenConflict(conv *model.Conversation) error {
	metrics.RecordReopenConflict(string(conv.Source))
	e.logger.Info("reopen refused, participant has another open conversation",
		zap.Int("conversation_id", conv.ID),
		zap.String("source", string(conv.Source)),
	)
	return apperr.Conflict(apperr.CodeOnlyOneOpenConversation,
		"only one open conversation is allowed per participant on "+string(conv.Source))
}

func (e *Engine) record(action string, err error) error {
	metrics.RecordTransition(action, err)
	return err
}

// diff builds one log per tracked field that changed. No logs are written
// for anonymous actors.
func (e *Engine) diff(ctx context.Context, old, cur *model.Conversation, actorID int, now time.Time) ([]model.ConversationLog, error) {
	if actorID <= 0 {
		return nil, nil
	}
	agent, err := e.name(ctx, &actorID, e.dir.AgentName)
	if err != nil {
		return nil, err
	}

	var logs []model.ConversationLog
	add := func(t model.ConversationLogType, content string) {
		logs = append(logs, model.ConversationLog{
			ConversationID: cur.ID,
			Type:           t,
			Content:        content,
			CreatedBy:      actorID,
			CreatedTime:    now,
		})
	}

	if cur.Priority != old.Priority {
		add(model.LogChangePriority, fmt.Sprintf("Agent %s changed Priority from %s to %s.",
			agent, old.Priority.DisplayName(), cur.Priority.DisplayName()))
	}
	if cur.Status != old.Status {
		add(model.LogChangeStatus, fmt.Sprintf("Agent %s changed Status from %s to %s.",
			agent, old.Status.DisplayName(), cur.Status.DisplayName()))
	}
	if !sameID(cur.AgentID, old.AgentID) {
		from, err := e.name(ctx, old.AgentID, e.dir.AgentName)
		if err != nil {
			return nil, err
		}
		to, err := e.name(ctx, cur.AgentID, e.dir.AgentName)
		if err != nil {
			return nil, err
		}
		add(model.LogChangeAgentAssignee, fmt.Sprintf("Agent %s changed Agent Assignee from %s to %s", agent, from, to))
	}
	if !sameID(cur.DepartmentID, old.DepartmentID) {
		from, err := e.name(ctx, old.DepartmentID, e.dir.DepartmentName)
		if err != nil {
			return nil, err
		}
		to, err := e.name(ctx, cur.DepartmentID, e.dir.DepartmentName)
		if err != nil {
			return nil, err
		}
		add(model.LogChangeDepartmentAssignee, fmt.Sprintf("Agent %s changed Department Assignee from %s to %s", agent, from, to))
	}
	if cur.Note != old.Note {
		add(model.LogChangeNote, fmt.Sprintf("Agent %s updated Note.", agent))
	}
	if cur.Subject != old.Subject {
		add(model.LogChangeSubject, fmt.Sprintf("Agent %s updated Subject.", agent))
	}
	return logs, nil
}

// name renders a nullable id as a display name. Unknown ids fall back to
// the id itself; nil renders as "null".
func (e *Engine) name(ctx context.Context, id *int, lookup func(context.Context, int) (string, error)) (string, error) {
	if id == nil {
		return "null", nil
	}
	n, err := lookup(ctx, *id)
	if errors.Is(err, apperr.ErrNotFound) {
		return strconv.Itoa(*id), nil
	}
	if err != nil {
		return "", fmt.Errorf("resolving display name for %d: %w", *id, err)
	}
	return n, nil
}

func sameID(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
