package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelsMatchWrappedErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", Validation("Last Message Sent", "0", "date time is invalid"), ErrValidation},
		{"not found", NotFound("filter", 7), ErrNotFound},
		{"conflict", Conflict(CodeOnlyOneOpenConversation, ""), ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.sentinel))
			for _, other := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrParse} {
				if other != tt.sentinel {
					assert.False(t, errors.Is(wrapped, other))
				}
			}
		})
	}
}

func TestConflictCode(t *testing.T) {
	err := fmt.Errorf("reopen: %w", Conflict(CodeConversationNotClosed, "conversation 3 is open"))
	assert.Equal(t, CodeConversationNotClosed, ConflictCode(err))
	assert.Equal(t, "", ConflictCode(errors.New("plain")))
	assert.Contains(t, err.Error(), "conversation 3 is open")
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "filter 7 not found", NotFound("filter", 7).Error())
	assert.Contains(t, Validation("Last Message Sent", "0", "date time is invalid").Error(), "date time is invalid")
	assert.Equal(t, "validation failed: empty", Validation("", "", "empty").Error())
}
