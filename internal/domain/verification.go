package domain

import (
	"time"

	"github.com/google/uuid"
)

// VerificationCode is a single issued email code. Rows are never deleted;
// a code is pending until it is consumed or its expiry passes.
type VerificationCode struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Code      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	IsUsed    bool      `json:"is_used"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired is true only when now is strictly after the expiry instant.
func (c *VerificationCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
