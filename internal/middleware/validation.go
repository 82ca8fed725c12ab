package middleware

import (
	"errors"
	"strconv"
	"unicode/utf8"
)

const maxKeywordLength = 256

// ParseID parses a positive numeric path parameter.
func ParseID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}

// ParseOptionalID parses an optional positive numeric query parameter.
func ParseOptionalID(raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := ParseID(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// ValidateKeyword validates a search keyword.
func ValidateKeyword(keyword string) error {
	if len(keyword) > maxKeywordLength {
		return errors.New("keyword exceeds maximum length")
	}
	if !utf8.ValidString(keyword) {
		return errors.New("keyword must be valid UTF-8")
	}
	return nil
}

// ValidateLimit validates a page size.
func ValidateLimit(limit, max int) error {
	if limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if limit > max {
		return errors.New("limit exceeds maximum")
	}
	return nil
}
