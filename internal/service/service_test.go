package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/social-inbox/internal/catalog"
	"github.com/capitalize-ai/social-inbox/internal/filter"
	"github.com/capitalize-ai/social-inbox/internal/model"
	"github.com/capitalize-ai/social-inbox/internal/store/memory"
)

// Field ids of the default catalog.
const (
	fieldStatus        = 4
	fieldAgentAssignee = 7
	fieldDepartment    = 10
	fieldSubject       = 12
)

var fixedNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

// support is agent 2 of department 1 in the default catalog.
var support = Actor{ID: 2, DepartmentID: intPtr(1)}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*model.ConversationEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event *model.ConversationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

type fixture struct {
	store    *memory.Store
	convs    *ConversationService
	filters  *FilterService
	notifier *recordingNotifier
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	seed, err := catalog.Default()
	require.NoError(t, err)

	st := memory.New(seed)
	compiler := filter.NewCompiler()
	notifier := &recordingNotifier{}
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return &fixture{
		store:    st,
		convs:    NewConversationService(st, compiler, notifier, nil, opts...),
		filters:  NewFilterService(st, compiler, nil, opts...),
		notifier: notifier,
	}
}

func (f *fixture) insert(t *testing.T, c *model.Conversation) *model.Conversation {
	t.Helper()
	if c.Priority == "" {
		c.Priority = model.PriorityNormal
	}
	if c.Status == "" {
		c.Status = model.StatusPendingInternal
	}
	require.NoError(t, f.store.Stores().Conversations.Insert(context.Background(), c))
	return c
}

func (f *fixture) saveFilter(t *testing.T, flt *model.Filter) *model.Filter {
	t.Helper()
	require.NoError(t, f.store.Stores().Filters.Create(context.Background(), flt))
	return flt
}

func mine(createdBy int, public bool) *model.Filter {
	return &model.Filter{
		Name:      "Mine",
		CreatedBy: createdBy,
		IfPublic:  public,
		Type:      model.FilterAll,
		Conditions: []model.FilterCondition{
			{Index: 1, FieldID: fieldAgentAssignee, MatchType: model.MatchIs, Value: "@Me"},
		},
	}
}
