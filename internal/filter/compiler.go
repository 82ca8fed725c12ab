// Package filter compiles saved filters into conversation predicates.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/social-inbox/internal/apperr"
	"github.com/capitalize-ai/social-inbox/internal/condition"
	"github.com/capitalize-ai/social-inbox/internal/logicexpr"
	"github.com/capitalize-ai/social-inbox/internal/macro"
	"github.com/capitalize-ai/social-inbox/internal/model"
	"github.com/capitalize-ai/social-inbox/internal/predicate"
	"github.com/capitalize-ai/social-inbox/pkg/logger"
	"github.com/capitalize-ai/social-inbox/pkg/metrics"
)

// ParsePolicy decides what happens when a logical expression does not parse.
type ParsePolicy int

const (
	// PolicyStrict returns the parse error to the caller.
	PolicyStrict ParsePolicy = iota
	// PolicyLenient logs a warning and matches every conversation.
	PolicyLenient
)

func (p ParsePolicy) String() string {
	if p == PolicyLenient {
		return "lenient"
	}
	return "strict"
}

// ParsePolicyFromString maps "strict" / "lenient" to a policy.
func ParsePolicyFromString(s string) (ParsePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return PolicyStrict, nil
	case "lenient":
		return PolicyLenient, nil
	}
	return PolicyStrict, fmt.Errorf("unknown filter parse policy %q", s)
}

// Compiler turns filters into predicates. It holds no mutable state and is
// safe for concurrent use.
type Compiler struct {
	policy ParsePolicy
	logger *logger.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithPolicy sets the parse policy for logical expressions.
func WithPolicy(p ParsePolicy) Option {
	return func(c *Compiler) { c.policy = p }
}

// WithLogger sets the logger used for lenient fallbacks.
func WithLogger(l *logger.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// NewCompiler creates a compiler. The default policy is PolicyStrict.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{policy: PolicyStrict}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.OrNop(c.logger).Named("filter")
	return c
}

// Policy returns the configured parse policy.
func (c *Compiler) Policy() ParsePolicy { return c.policy }

// Compile builds the predicate for f. Conditions must have their Field set.
// A filter without conditions matches every conversation.
func (c *Compiler) Compile(f model.Filter, ec macro.EvalContext) (predicate.Predicate, error) {
	p, result, err := c.compile(f, ec)
	metrics.RecordCompilation(string(f.Type), result)
	return p, err
}

func (c *Compiler) compile(f model.Filter, ec macro.EvalContext) (predicate.Predicate, string, error) {
	if !f.Type.Valid() {
		return nil, "error", apperr.Validation("type", string(f.Type), "unknown filter type")
	}
	if len(f.Conditions) == 0 {
		return predicate.True(), "ok", nil
	}

	preds := make([]predicate.Predicate, 0, len(f.Conditions))
	byIndex := make(map[int]predicate.Predicate, len(f.Conditions))
	for _, cond := range f.Conditions {
		p, err := condition.Build(cond, ec)
		if err != nil {
			return nil, "error", fmt.Errorf("filter %d condition %d: %w", f.ID, cond.Index, err)
		}
		if _, dup := byIndex[cond.Index]; dup {
			return nil, "error", apperr.Validation("index", strconv.Itoa(cond.Index), "condition index is used twice")
		}
		byIndex[cond.Index] = p
		preds = append(preds, p)
	}

	switch f.Type {
	case model.FilterAll:
		return predicate.And(preds...), "ok", nil
	case model.FilterAny:
		return predicate.Or(preds...), "ok", nil
	}

	p, err := logicexpr.Build(byIndex, f.LogicalExpression)
	if err == nil {
		return p, "ok", nil
	}
	if c.policy == PolicyLenient {
		c.logger.Warn("logical expression rejected, filter matches everything",
			zap.Int("filter_id", f.ID),
			zap.String("expression", f.LogicalExpression),
			zap.Error(err),
		)
		return predicate.True(), "fallback", nil
	}
	return nil, "error", fmt.Errorf("filter %d: %w", f.ID, err)
}

// CompileAny ORs the predicates of all filters. An empty list matches nothing.
func (c *Compiler) CompileAny(filters []model.Filter, ec macro.EvalContext) (predicate.Predicate, error) {
	preds := make([]predicate.Predicate, 0, len(filters))
	for _, f := range filters {
		p, err := c.Compile(f, ec)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return predicate.Or(preds...), nil
}

// ValidateExpression checks that expr parses and only references the given
// condition indices.
func ValidateExpression(expr string, indices []int) error {
	n, err := logicexpr.Parse(expr)
	if err != nil {
		return err
	}
	known := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		known[i] = struct{}{}
	}
	return logicexpr.CheckIndices(n, known)
}
