// Package macro resolves context-dependent filter values such as @Today or @Me.
//
// Resolution happens when a predicate is built, never when it is evaluated:
// callers rebuild predicates to pick up a new "now" or a different actor.
package macro

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/capitalize-ai/social-inbox/internal/model"
)

// Macro literals accepted in condition values.
const (
	Today              = "@Today"
	Yesterday          = "@Yesterday"
	Me                 = "@Me"
	MyDepartment       = "@My Department"
	MyDepartmentMember = "@My Department Member"
	Blank              = "Blank"
)

var (
	agentMacros      = []string{Me, Blank, MyDepartmentMember}
	departmentMacros = []string{MyDepartment, Blank}
)

// EvalContext carries everything macros may depend on.
type EvalContext struct {
	ActorID             int
	DepartmentID        *int
	DepartmentMemberIDs []int
	Now                 time.Time
}

// Clock returns the evaluation instant in UTC, defaulting to the wall clock.
func (ec EvalContext) Clock() time.Time {
	if ec.Now.IsZero() {
		return time.Now().UTC()
	}
	return ec.Now.UTC()
}

// AllowedFor returns the macros legal for a field category.
func AllowedFor(category model.FieldCategory) []string {
	switch category {
	case model.CategoryAgent:
		return agentMacros
	case model.CategoryDepartment:
		return departmentMacros
	default:
		return nil
	}
}

// IsAllowed reports whether value is a macro legal for the category.
func IsAllowed(category model.FieldCategory, value string) bool {
	for _, m := range AllowedFor(category) {
		if m == value {
			return true
		}
	}
	return false
}

// IsMacro reports whether value is any known macro literal.
func IsMacro(value string) bool {
	switch value {
	case Today, Yesterday, Me, MyDepartment, MyDepartmentMember, Blank:
		return true
	}
	return false
}

// IsDateMacro reports whether value is a relative day macro.
func IsDateMacro(value string) bool {
	return value == Today || value == Yesterday
}

// Range is a half-open UTC interval [Start, End).
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// DayRange resolves @Today or @Yesterday to the matching UTC day.
func DayRange(value string, now time.Time) (Range, bool) {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch value {
	case Today:
		return Range{Start: midnight, End: midnight.AddDate(0, 0, 1)}, true
	case Yesterday:
		return Range{Start: midnight.AddDate(0, 0, -1), End: midnight}, true
	}
	return Range{}, false
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
}

// ResolveDate turns a macro or a literal into a range. Date-only literals and
// macros span a whole UTC day; literals with a time of day span that second.
func ResolveDate(value string, now time.Time) (Range, error) {
	value = strings.TrimSpace(value)
	if r, ok := DayRange(value, now); ok {
		return r, nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC().Truncate(time.Second)
			return Range{Start: t, End: t.Add(time.Second)}, nil
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return Range{Start: t, End: t.AddDate(0, 0, 1)}, nil
		}
	}
	return Range{}, fmt.Errorf("unrecognised date %q", value)
}

// Target is the set of ids an id-valued condition compares against.
// Blank targets the null value.
type Target struct {
	Blank bool
	IDs   map[int]struct{}
}

// Matches reports whether the nullable id hits the target.
func (t Target) Matches(id *int) bool {
	if id == nil {
		return t.Blank
	}
	_, ok := t.IDs[*id]
	return ok
}

// Has reports whether id is part of the target set.
func (t Target) Has(id int) bool {
	_, ok := t.IDs[id]
	return ok
}

// ResolveIDs resolves an id-valued condition value. Plain integers resolve to
// themselves; macros resolve against the evaluation context.
func ResolveIDs(value string, ec EvalContext) (Target, error) {
	value = strings.TrimSpace(value)
	switch value {
	case Blank:
		return Target{Blank: true}, nil
	case Me:
		return idTarget(ec.ActorID), nil
	case MyDepartment:
		if ec.DepartmentID == nil {
			return Target{IDs: map[int]struct{}{}}, nil
		}
		return idTarget(*ec.DepartmentID), nil
	case MyDepartmentMember:
		return idTarget(ec.DepartmentMemberIDs...), nil
	}
	id, err := strconv.Atoi(value)
	if err != nil {
		return Target{}, fmt.Errorf("value %q is not an id", value)
	}
	return idTarget(id), nil
}

func idTarget(ids ...int) Target {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Target{IDs: set}
}
