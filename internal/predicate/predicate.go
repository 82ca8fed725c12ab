// Package predicate provides immutable boolean matchers over conversations.
package predicate

import (
	"github.com/capitalize-ai/social-inbox/internal/model"
)

// Predicate reports whether a conversation matches.
type Predicate func(c *model.Conversation) bool

// True matches every conversation.
func True() Predicate {
	return func(*model.Conversation) bool { return true }
}

// False matches no conversation.
func False() Predicate {
	return func(*model.Conversation) bool { return false }
}

// And matches when every predicate matches, evaluated left to right.
// An empty And matches everything.
func And(ps ...Predicate) Predicate {
	switch len(ps) {
	case 0:
		return True()
	case 1:
		return ps[0]
	}
	ps = append([]Predicate(nil), ps...)
	return func(c *model.Conversation) bool {
		for _, p := range ps {
			if !p(c) {
				return false
			}
		}
		return true
	}
}

// Or matches when any predicate matches, evaluated left to right.
// An empty Or matches nothing.
func Or(ps ...Predicate) Predicate {
	switch len(ps) {
	case 0:
		return False()
	case 1:
		return ps[0]
	}
	ps = append([]Predicate(nil), ps...)
	return func(c *model.Conversation) bool {
		for _, p := range ps {
			if p(c) {
				return true
			}
		}
		return false
	}
}

// Not negates p.
func Not(p Predicate) Predicate {
	return func(c *model.Conversation) bool { return !p(c) }
}

// AnyMessage matches when at least one message satisfies fn.
func AnyMessage(fn func(m *model.Message) bool) Predicate {
	return func(c *model.Conversation) bool {
		for i := range c.Messages {
			if fn(&c.Messages[i]) {
				return true
			}
		}
		return false
	}
}

// Active excludes soft-deleted conversations.
func Active() Predicate {
	return func(c *model.Conversation) bool { return !c.IsDeleted }
}

// Visible excludes hidden and soft-deleted conversations.
func Visible() Predicate {
	return func(c *model.Conversation) bool { return !c.IsDeleted && !c.IsHidden }
}

// Unread matches conversations not yet read.
func Unread() Predicate {
	return func(c *model.Conversation) bool { return !c.IfRead }
}

// Apply returns the conversations matching p, preserving order.
func Apply(convs []*model.Conversation, p Predicate) []*model.Conversation {
	var out []*model.Conversation
	for _, c := range convs {
		if p(c) {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many conversations match p.
func Count(convs []*model.Conversation, p Predicate) int {
	n := 0
	for _, c := range convs {
		if p(c) {
			n++
		}
	}
	return n
}
