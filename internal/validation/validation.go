package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	// Grant identifiers are opaque upstream tokens; accept UUIDs and other
	// URL-safe token shapes but nothing that could break out of a path
	// segment.
	grantRegex = regexp.MustCompile(`^[0-9A-Za-z._~-]{8,128}$`)
	uuidRegex  = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{3,4}-[0-9a-f]{3,4}-[0-9a-f]{12}$`)
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// SanitizeString strips control characters and surrounding whitespace.
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

// ValidateEmail checks an email address for the connect request.
func ValidateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Message: "is required"}
	}

	email = SanitizeString(email)

	if len(email) > 254 {
		return &ValidationError{Field: "email", Message: "is too long"}
	}

	if !emailRegex.MatchString(email) {
		return &ValidationError{Field: "email", Message: "must be a valid email address"}
	}

	return nil
}

// ValidateGrantID checks the identifier passed back by the OAuth redirect.
func ValidateGrantID(grantID string) error {
	if grantID == "" {
		return &ValidationError{Field: "grant_id", Message: "is required"}
	}

	grantID = SanitizeString(grantID)

	if !grantRegex.MatchString(grantID) {
		return &ValidationError{Field: "grant_id", Message: "must be a valid grant identifier"}
	}

	return nil
}

// ValidateUUID checks a field that must be a UUID, such as session ids.
func ValidateUUID(id, fieldName string) error {
	if id == "" {
		return &ValidationError{Field: fieldName, Message: "is required"}
	}

	id = SanitizeString(id)

	if !uuidRegex.MatchString(strings.ToLower(id)) {
		return &ValidationError{Field: fieldName, Message: "must be a valid UUID"}
	}

	return nil
}
