package service

import (
	"strconv"
	"strings"

	"github.com/capitalize-ai/social-inbox/internal/model"
	"github.com/capitalize-ai/social-inbox/internal/predicate"
)

// keywordPredicate searches subject, note, message content and participant
// names case-insensitively. A conversation number ("S42" or "s42") also
// matches that conversation.
func keywordPredicate(keyword string) predicate.Predicate {
	keyword = strings.TrimSpace(keyword)
	needle := strings.ToLower(keyword)
	contains := func(s string) bool { return strings.Contains(strings.ToLower(s), needle) }
	text := predicate.Or(
		func(c *model.Conversation) bool { return contains(c.Subject) || contains(c.Note) },
		predicate.AnyMessage(func(m *model.Message) bool {
			return contains(m.Content) || contains(m.SenderName) || contains(m.ReceiverName)
		}),
	)
	if id, ok := conversationNumber(keyword); ok {
		return predicate.Or(func(c *model.Conversation) bool { return c.ID == id }, text)
	}
	return text
}

// conversationNumber accepts an S or s followed by decimal digits only.
func conversationNumber(keyword string) (int, bool) {
	if len(keyword) < 2 || (keyword[0] != 'S' && keyword[0] != 's') {
		return 0, false
	}
	for _, r := range keyword[1:] {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(keyword[1:])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// participantPredicate matches conversations with a message sent by or to userID.
func participantPredicate(userID int) predicate.Predicate {
	ids := map[int]struct{}{userID: {}}
	return predicate.AnyMessage(func(m *model.Message) bool { return m.TouchesAny(ids) })
}
