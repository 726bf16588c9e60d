// Package validation checks HTTP input before it reaches the star manager.
package validation

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/starledger/internal/dialog"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 10000

// MaxPageLimit caps the limit of a history page.
const MaxPageLimit = 100

// MaxOffsetLength caps the opaque history offset.
const MaxOffsetLength = 512

// MaxPasswordLength caps the two-step verification password.
const MaxPasswordLength = 1024

// chargeIDRegex matches payment charge identifiers: printable, no spaces.
var chargeIDRegex = regexp.MustCompile(`^[\x21-\x7e]{1,256}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidChargeID checks a payment charge identifier.
func IsValidChargeID(s string) bool {
	return chargeIDRegex.MatchString(s)
}

// SanitizeString trims whitespace, drops null bytes and limits length.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs every validator and collects the failures.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// ValidChargeID checks a payment charge identifier.
func ValidChargeID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidChargeID(value) {
			return &ValidationError{Field: field, Message: "must be 1-256 printable characters without spaces"}
		}
		return nil
	}
}

// Positive checks that an identifier is greater than zero.
func Positive(field string, value int64) func() *ValidationError {
	return func() *ValidationError {
		if value <= 0 {
			return &ValidationError{Field: field, Message: "must be positive"}
		}
		return nil
	}
}

// InRange checks lo <= value <= hi.
func InRange(field string, value, lo, hi int64) func() *ValidationError {
	return func() *ValidationError {
		if value < lo || value > hi {
			return &ValidationError{Field: field, Message: "must be between " + strconv.FormatInt(lo, 10) + " and " + strconv.FormatInt(hi, 10)}
		}
		return nil
	}
}

// ValidSender checks that exactly one of user_id and chat_id is set.
func ValidSender(s dialog.Sender) func() *ValidationError {
	return func() *ValidationError {
		if err := s.Validate(); err != nil {
			return &ValidationError{Field: "owner", Message: "exactly one positive user_id or chat_id is required"}
		}
		return nil
	}
}

// SenderFromQuery reads user_id and chat_id query parameters. Malformed
// numbers are reported as a validation error.
func SenderFromQuery(c *gin.Context) (dialog.Sender, *ValidationError) {
	var s dialog.Sender
	for _, p := range []struct {
		name string
		dst  *int64
	}{{"user_id", &s.UserID}, {"chat_id", &s.ChatID}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return dialog.Sender{}, &ValidationError{Field: p.name, Message: "must be an integer"}
		}
		*p.dst = v
	}
	return s, nil
}

// IntQuery parses an optional integer query parameter.
func IntQuery(c *gin.Context, name string, def int64) (int64, *ValidationError) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &ValidationError{Field: name, Message: "must be an integer"}
	}
	return v, nil
}
