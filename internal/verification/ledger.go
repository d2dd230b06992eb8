// Package verification issues and redeems the six digit email codes.
package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kinna/kinna-backend/internal/domain"
	"github.com/kinna/kinna-backend/internal/repository"
)

const (
	DefaultCodeTTL        = 15 * time.Minute
	DefaultResendInterval = 60 * time.Second

	maxIssueAttempts = 5
)

type Ledger struct {
	codes          repository.VerificationRepository
	ttl            time.Duration
	resendInterval time.Duration
	generate       func() string
	now            func() time.Time
}

func NewLedger(codes repository.VerificationRepository, ttl, resendInterval time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	if resendInterval <= 0 {
		resendInterval = DefaultResendInterval
	}
	return &Ledger{
		codes:          codes,
		ttl:            ttl,
		resendInterval: resendInterval,
		generate:       GenerateCode,
		now:            time.Now,
	}
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) WithGenerator(generate func() string) *Ledger {
	l.generate = generate
	return l
}

// Issue stores a fresh pending code for the user. Earlier codes stay valid.
func (l *Ledger) Issue(ctx context.Context, userID uuid.UUID, email string) (*domain.VerificationCode, error) {
	return l.issue(ctx, userID, email, l.now(), l.codes.Create)
}

// Resend issues a new code unless the newest one for the email is younger
// than the resend interval, in which case it returns *domain.RateLimitedError.
// The check and the insert happen under the owner's row lock.
func (l *Ledger) Resend(ctx context.Context, userID uuid.UUID, email string) (*domain.VerificationCode, error) {
	now := l.now()
	return l.issue(ctx, userID, email, now, func(ctx context.Context, code *domain.VerificationCode) error {
		return l.codes.CreateChecked(ctx, code, func(latest *domain.VerificationCode) error {
			return l.resendWait(latest, now)
		})
	})
}

func (l *Ledger) issue(
	ctx context.Context,
	userID uuid.UUID,
	email string,
	now time.Time,
	create func(context.Context, *domain.VerificationCode) error,
) (*domain.VerificationCode, error) {
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		code := &domain.VerificationCode{
			UserID:    userID,
			Email:     email,
			Code:      l.generate(),
			ExpiresAt: now.Add(l.ttl),
			CreatedAt: now,
		}
		err := create(ctx, code)
		if errors.Is(err, repository.ErrCodeCollision) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return code, nil
	}
	return nil, fmt.Errorf("issue verification code: %d attempts collided", maxIssueAttempts)
}

// Verify redeems the newest code matching (email, code) and marks the owner
// verified. The checks run against the locked row, so two concurrent
// submissions cannot both succeed.
func (l *Ledger) Verify(ctx context.Context, email, code string) (*domain.User, error) {
	now := l.now()
	return l.codes.Consume(ctx, email, code, func(c *domain.VerificationCode) error {
		switch {
		case c == nil:
			return domain.ErrCodeNotFound
		case c.IsUsed:
			return domain.ErrCodeAlreadyUsed
		case c.IsExpired(now):
			return domain.ErrCodeExpired
		}
		return nil
	})
}

// CheckResend returns *domain.RateLimitedError when the newest code for the
// email was issued less than the resend interval ago.
func (l *Ledger) CheckResend(ctx context.Context, email string) error {
	latest, err := l.codes.Latest(ctx, email)
	if err != nil {
		return err
	}
	return l.resendWait(latest, l.now())
}

func (l *Ledger) resendWait(latest *domain.VerificationCode, now time.Time) error {
	if latest == nil {
		return nil
	}

	elapsed := now.Sub(latest.CreatedAt)
	if elapsed >= l.resendInterval {
		return nil
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return &domain.RateLimitedError{Wait: l.resendInterval - elapsed}
}
