// Package store defines the persistence interfaces the services depend on.
// Implementations live in the memory and sqlstore subpackages.
package store

import (
	"context"
	"sort"

	"github.com/capitalize-ai/social-inbox/internal/model"
	"github.com/capitalize-ai/social-inbox/internal/predicate"
)

// FindOptions controls Find.
type FindOptions struct {
	// Limit caps the result size; zero or negative means no limit.
	Limit int
}

// ConversationRepository stores conversations with their messages and logs.
// Every returned conversation is a detached deep copy.
type ConversationRepository interface {
	Get(ctx context.Context, id int) (*model.Conversation, error)
	// Find returns matches ordered by last message time, newest first.
	Find(ctx context.Context, p predicate.Predicate, opts FindOptions) ([]*model.Conversation, error)
	// FindFirst returns the matching conversation with the lowest id, or nil.
	FindFirst(ctx context.Context, p predicate.Predicate) (*model.Conversation, error)
	Count(ctx context.Context, p predicate.Predicate) (int, error)
	// Insert assigns ids to the conversation, its messages and its logs.
	Insert(ctx context.Context, c *model.Conversation) error
	// Save updates the conversation's own fields and appends logs with no id.
	// Messages and existing logs are never rewritten.
	Save(ctx context.Context, c *model.Conversation) error
	// Logs returns the conversation's logs, newest first.
	Logs(ctx context.Context, conversationID int) ([]model.ConversationLog, error)
}

// FilterRepository stores filters with their conditions. Condition fields
// are not hydrated.
type FilterRepository interface {
	Get(ctx context.Context, id int) (*model.Filter, error)
	// List returns all filters ordered by index, then id.
	List(ctx context.Context) ([]model.Filter, error)
	Create(ctx context.Context, f *model.Filter) error
	Update(ctx context.Context, f *model.Filter) error
	Delete(ctx context.Context, id int) error
}

// FieldRepository exposes the conversation field catalog.
type FieldRepository interface {
	Get(ctx context.Context, id int) (*model.ConversationField, error)
	List(ctx context.Context) ([]model.ConversationField, error)
}

// Directory resolves agents and departments.
type Directory interface {
	AgentName(ctx context.Context, id int) (string, error)
	DepartmentName(ctx context.Context, id int) (string, error)
	// DepartmentMembers returns the ids of the department's agents, ascending.
	DepartmentMembers(ctx context.Context, departmentID int) ([]int, error)
}

// Stores bundles the repositories that share one transaction.
type Stores struct {
	Conversations ConversationRepository
	Filters       FilterRepository
	Fields        FieldRepository
	Directory     Directory
}

// Transactor runs fn atomically. Stores handed to fn are bound to the
// transaction; an error returned by fn rolls it back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}

// Seed is the reference data a store is created with.
type Seed struct {
	Fields      []model.ConversationField
	Agents      []model.Agent
	Departments []model.Department
}

// Store is a complete storage backend.
type Store interface {
	Transactor
	Stores() Stores
	Close() error
}

// SortNewestFirst orders conversations by last message time descending,
// breaking ties by id descending.
func SortNewestFirst(convs []*model.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		a, b := convs[i], convs[j]
		if !a.LastMessageSentTime.Equal(b.LastMessageSentTime) {
			return a.LastMessageSentTime.After(b.LastMessageSentTime)
		}
		return a.ID > b.ID
	})
}

// SortLogsNewestFirst orders logs by creation time descending, then id descending.
func SortLogsNewestFirst(logs []model.ConversationLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		if !logs[i].CreatedTime.Equal(logs[j].CreatedTime) {
			return logs[i].CreatedTime.After(logs[j].CreatedTime)
		}
		return logs[i].ID > logs[j].ID
	})
}

// SortFilters orders filters by index, then id.
func SortFilters(filters []model.Filter) {
	sort.SliceStable(filters, func(i, j int) bool {
		if filters[i].Index != filters[j].Index {
			return filters[i].Index < filters[j].Index
		}
		return filters[i].ID < filters[j].ID
	})
}
