package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kinna/kinna-backend/pkg/auth"
)

var (
	ErrConflict            = errors.New("username or email already taken")
	ErrNotFound            = errors.New("not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrCodeNotFound        = errors.New("invalid verification code")
	ErrCodeAlreadyUsed     = errors.New("verification code has already been used")
	ErrCodeExpired         = errors.New("verification code has expired")
	ErrAlreadyVerified     = errors.New("email is already verified")
	ErrEmailDispatchFailed = errors.New("failed to send verification email")
	ErrCannotFollowSelf    = errors.New("you cannot follow yourself")

	// ErrNotificationNotFound covers both missing rows and rows owned by
	// someone else.
	ErrNotificationNotFound = errors.New("notification not found")

	ErrUnauthenticated  = auth.ErrUnauthenticated
	ErrInvalidOrExpired = auth.ErrInvalidOrExpired
)

// RateLimitedError reports how long the caller must wait before asking for
// another verification code.
type RateLimitedError struct {
	Wait time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("please wait %d seconds before requesting a new code", e.Seconds())
}

// Seconds is the wait rounded up to whole seconds, never less than one.
func (e *RateLimitedError) Seconds() int {
	s := int(math.Ceil(e.Wait.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
