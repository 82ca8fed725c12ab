package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/social-inbox/internal/apperr"
	"github.com/capitalize-ai/social-inbox/internal/condition"
	"github.com/capitalize-ai/social-inbox/internal/filter"
	"github.com/capitalize-ai/social-inbox/internal/model"
	"github.com/capitalize-ai/social-inbox/internal/predicate"
	"github.com/capitalize-ai/social-inbox/internal/store"
	"github.com/capitalize-ai/social-inbox/pkg/logger"
	"github.com/capitalize-ai/social-inbox/pkg/tracing"
)

const maxFilterNameLength = 200

// FilterService manages saved filters.
type FilterService struct {
	store    store.Store
	compiler *filter.Compiler
	logger   *logger.Logger
	opts     options
}

// NewFilterService creates a new filter service.
func NewFilterService(st store.Store, compiler *filter.Compiler, log *logger.Logger, opts ...Option) *FilterService {
	return &FilterService{
		store:    st,
		compiler: compiler,
		logger:   logger.OrNop(log).Named("filters"),
		opts:     newOptions(opts),
	}
}

// List returns the filters visible to the actor, ordered by index.
func (s *FilterService) List(ctx context.Context, actor Actor) ([]model.Filter, error) {
	return visibleFilters(ctx, s.store.Stores(), actor, s.opts.departmentsEnabled)
}

// Get returns a filter visible to the actor with its condition fields populated.
func (s *FilterService) Get(ctx context.Context, actor Actor, id int) (*model.Filter, error) {
	return visibleFilter(ctx, s.store.Stores(), actor, id, s.opts.departmentsEnabled)
}

// Create validates and stores a new filter owned by the actor.
func (s *FilterService) Create(ctx context.Context, actor Actor, req *model.CreateFilterRequest) (f *model.Filter, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "FilterService.Create")
	defer func() { tracing.End(span, err) }()

	f = filterFromRequest(req)
	f.CreatedBy = actor.ID
	err = s.store.WithinTx(ctx, func(ctx context.Context, st store.Stores) error {
		if err := validateFilter(ctx, st.Fields, f); err != nil {
			return err
		}
		return st.Filters.Create(ctx, f)
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("filter.id", f.ID))
	s.logger.Info("filter created",
		zap.Int("filter_id", f.ID),
		zap.Int("actor_id", actor.ID),
		zap.String("type", string(f.Type)),
	)
	return f, nil
}

// Update replaces a filter's definition. Ownership is kept.
func (s *FilterService) Update(ctx context.Context, actor Actor, id int, req *model.CreateFilterRequest) (f *model.Filter, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "FilterService.Update", trace.WithAttributes(attribute.Int("filter.id", id)))
	defer func() { tracing.End(span, err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, st store.Stores) error {
		existing, err := visibleFilter(ctx, st, actor, id, s.opts.departmentsEnabled)
		if err != nil {
			return err
		}
		f = filterFromRequest(req)
		f.ID = existing.ID
		f.CreatedBy = existing.CreatedBy
		if err := validateFilter(ctx, st.Fields, f); err != nil {
			return err
		}
		return st.Filters.Update(ctx, f)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("filter updated", zap.Int("filter_id", id), zap.Int("actor_id", actor.ID))
	return f, nil
}

// Delete removes a filter visible to the actor.
func (s *FilterService) Delete(ctx context.Context, actor Actor, id int) (err error) {
	ctx, span := s.opts.tracer.Start(ctx, "FilterService.Delete", trace.WithAttributes(attribute.Int("filter.id", id)))
	defer func() { tracing.End(span, err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, st store.Stores) error {
		if _, err := visibleFilter(ctx, st, actor, id, s.opts.departmentsEnabled); err != nil {
			return err
		}
		return st.Filters.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("filter deleted", zap.Int("filter_id", id), zap.Int("actor_id", actor.ID))
	return nil
}

// ConversationCount returns the number of unread, visible conversations the
// filter matches for the actor.
func (s *FilterService) ConversationCount(ctx context.Context, actor Actor, id int) (n int, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "FilterService.ConversationCount", trace.WithAttributes(attribute.Int("filter.id", id)))
	defer func() { tracing.End(span, err) }()

	st := s.store.Stores()
	p, err := s.predicate(ctx, st, actor, id)
	if err != nil {
		return 0, err
	}
	return st.Conversations.Count(ctx, predicate.And(predicate.Visible(), predicate.Unread(), p))
}

// HasConversation reports whether the filter matches the conversation.
func (s *FilterService) HasConversation(ctx context.Context, actor Actor, filterID, conversationID int) (bool, error) {
	st := s.store.Stores()
	conv, err := getActive(ctx, st.Conversations, conversationID)
	if err != nil {
		return false, err
	}
	p, err := s.predicate(ctx, st, actor, filterID)
	if err != nil {
		return false, err
	}
	return p(conv), nil
}

func (s *FilterService) predicate(ctx context.Context, st store.Stores, actor Actor, id int) (predicate.Predicate, error) {
	f, err := visibleFilter(ctx, st, actor, id, s.opts.departmentsEnabled)
	if err != nil {
		return nil, err
	}
	ec, err := evalContext(ctx, st.Directory, actor, s.opts.now())
	if err != nil {
		return nil, err
	}
	return s.compiler.Compile(*f, ec)
}

// visibleFilter loads a filter and reports it missing when the actor may not
// see it.
func visibleFilter(ctx context.Context, st store.Stores, actor Actor, id int, departmentsEnabled bool) (*model.Filter, error) {
	f, err := loadFilter(ctx, st, id)
	if err != nil {
		return nil, err
	}
	if !f.VisibleTo(actor.ID) || !departmentsAllow(f, departmentsEnabled) {
		return nil, apperr.NotFound("filter", id)
	}
	return f, nil
}

// loadFilter returns a filter with its condition fields populated.
func loadFilter(ctx context.Context, st store.Stores, id int) (*model.Filter, error) {
	f, err := st.Filters.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := hydrate(ctx, st.Fields, f); err != nil {
		return nil, err
	}
	return f, nil
}

func visibleFilters(ctx context.Context, st store.Stores, actor Actor, departmentsEnabled bool) ([]model.Filter, error) {
	all, err := st.Filters.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing filters: %w", err)
	}
	out := make([]model.Filter, 0, len(all))
	for i := range all {
		f := &all[i]
		if !f.VisibleTo(actor.ID) {
			continue
		}
		if err := hydrate(ctx, st.Fields, f); err != nil {
			return nil, fmt.Errorf("filter %d: %w", f.ID, err)
		}
		if departmentsAllow(f, departmentsEnabled) {
			out = append(out, *f)
		}
	}
	return out, nil
}

func departmentsAllow(f *model.Filter, enabled bool) bool {
	return enabled || !f.UsesKind(model.KindDepartmentAssignee)
}

// hydrate populates the Field of every condition.
func hydrate(ctx context.Context, fields store.FieldRepository, f *model.Filter) error {
	for i := range f.Conditions {
		field, err := fields.Get(ctx, f.Conditions[i].FieldID)
		if err != nil {
			return err
		}
		f.Conditions[i].Field = field
	}
	return nil
}

func filterFromRequest(req *model.CreateFilterRequest) *model.Filter {
	f := &model.Filter{
		Name:              strings.TrimSpace(req.Name),
		Index:             req.Index,
		IfPublic:          req.IfPublic,
		Type:              req.Type,
		LogicalExpression: strings.TrimSpace(req.LogicalExpression),
		Conditions:        make([]model.FilterCondition, 0, len(req.Conditions)),
	}
	for _, c := range req.Conditions {
		f.Conditions = append(f.Conditions, model.FilterCondition{
			Index:     c.Index,
			FieldID:   c.FieldID,
			MatchType: c.MatchType,
			Value:     c.Value,
		})
	}
	if f.Type != model.FilterLogicalExpression {
		f.LogicalExpression = ""
	}
	return f
}

// validateFilter hydrates the filter's conditions and checks everything a
// compile would reject, so stored filters always compile.
func validateFilter(ctx context.Context, fields store.FieldRepository, f *model.Filter) error {
	if f.Name == "" {
		return apperr.Validation("name", f.Name, "name is required")
	}
	if len(f.Name) > maxFilterNameLength {
		return apperr.Validation("name", f.Name, "name exceeds maximum length")
	}
	if !f.Type.Valid() {
		return apperr.Validation("type", string(f.Type), "unknown filter type")
	}

	seen := make(map[int]bool, len(f.Conditions))
	for _, c := range f.Conditions {
		if c.Index <= 0 {
			return apperr.Validation("index", strconv.Itoa(c.Index), "condition index must be positive")
		}
		if seen[c.Index] {
			return apperr.Validation("index", strconv.Itoa(c.Index), "condition index is used twice")
		}
		seen[c.Index] = true
	}

	if err := hydrate(ctx, fields, f); err != nil {
		return err
	}
	for _, c := range f.Conditions {
		if err := condition.Validate(c); err != nil {
			return fmt.Errorf("condition %d: %w", c.Index, err)
		}
	}

	if f.Type == model.FilterLogicalExpression && len(f.Conditions) > 0 {
		if err := filter.ValidateExpression(f.LogicalExpression, f.ConditionIndices()); err != nil {
			return fmt.Errorf("logical expression: %w", err)
		}
	}
	return nil
}
