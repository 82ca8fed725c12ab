// Package service provides business logic for the social inbox: conversation
// search and workflow, filter management and unread counts.
package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/capitalize-ai/social-inbox/internal/macro"
	"github.com/capitalize-ai/social-inbox/internal/store"
	"github.com/capitalize-ai/social-inbox/pkg/tracing"
)

const defaultSearchLimit = 100

// Actor is the authenticated agent a request runs as.
type Actor struct {
	ID           int
	DepartmentID *int
}

type options struct {
	now                func() time.Time
	departmentsEnabled bool
	searchLimit        int
	tracer             trace.Tracer
}

// Option configures a service.
type Option func(*options)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithDepartments toggles department support. When disabled, filters that
// test the department assignee are hidden.
func WithDepartments(enabled bool) Option {
	return func(o *options) { o.departmentsEnabled = enabled }
}

// WithSearchLimit sets the page size used when a search names none.
func WithSearchLimit(limit int) Option {
	return func(o *options) {
		if limit > 0 {
			o.searchLimit = limit
		}
	}
}

// WithTracer sets the tracer used for service spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

func newOptions(opts []Option) options {
	o := options{
		now:                func() time.Time { return time.Now().UTC() },
		departmentsEnabled: true,
		searchLimit:        defaultSearchLimit,
		tracer:             tracing.Tracer("github.com/capitalize-ai/social-inbox/internal/service"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// evalContext resolves the macro context for actor at the current instant.
func evalContext(ctx context.Context, dir store.Directory, actor Actor, now time.Time) (macro.EvalContext, error) {
	ec := macro.EvalContext{
		ActorID:      actor.ID,
		DepartmentID: actor.DepartmentID,
		Now:          now,
	}
	if actor.DepartmentID != nil {
		members, err := dir.DepartmentMembers(ctx, *actor.DepartmentID)
		if err != nil {
			return macro.EvalContext{}, fmt.Errorf("loading members of department %d: %w", *actor.DepartmentID, err)
		}
		ec.DepartmentMemberIDs = members
	}
	return ec, nil
}
