package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kinna/kinna-backend/internal/domain"
)

// ErrCodeCollision means the user already holds a row with the same code.
var ErrCodeCollision = errors.New("verification code already issued to this user")

// CodeCheck inspects the newest matching code while the relevant row is
// locked. A nil code means nothing matched. Returning an error aborts the
// write.
type CodeCheck func(code *domain.VerificationCode) error

type VerificationRepository interface {
	Create(ctx context.Context, code *domain.VerificationCode) error
	// CreateChecked locks the owning user row, passes the newest code for the
	// email to check and inserts only if check returns nil. Concurrent calls
	// for one user run one at a time.
	CreateChecked(ctx context.Context, code *domain.VerificationCode, check CodeCheck) error
	// Latest returns the most recently issued code for the email, or nil.
	Latest(ctx context.Context, email string) (*domain.VerificationCode, error)
	// Consume locks the newest (email, code) row, runs check, then marks the
	// row used and the owner verified in the same transaction.
	Consume(ctx context.Context, email, code string, check CodeCheck) (*domain.User, error)
}

type verificationRepository struct {
	db DBTX
}

func NewVerificationRepository(db DBTX) VerificationRepository {
	return &verificationRepository{db: db}
}

const codeCols = `id, user_id, email, code, expires_at, is_used, created_at`

func scanCode(row scanner) (*domain.VerificationCode, error) {
	var c domain.VerificationCode
	if err := row.Scan(&c.ID, &c.UserID, &c.Email, &c.Code, &c.ExpiresAt, &c.IsUsed, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *verificationRepository) Create(ctx context.Context, code *domain.VerificationCode) error {
	const q = `
		INSERT INTO email_verification_codes (user_id, email, code, expires_at, is_used, created_at)
		VALUES ($1, $2, $3, $4, false, $5)
		RETURNING id`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := r.db.QueryRow(ctx, q, code.UserID, code.Email, code.Code, code.ExpiresAt, code.CreatedAt).Scan(&code.ID)
	if isUniqueViolation(err) {
		return ErrCodeCollision
	}
	if err != nil {
		return fmt.Errorf("insert verification code: %w", err)
	}
	return nil
}

func (r *verificationRepository) CreateChecked(ctx context.Context, code *domain.VerificationCode, check CodeCheck) error {
	const lockUser = `SELECT id FROM users WHERE id = $1 FOR UPDATE`
	const latest = `
		SELECT ` + codeCols + `
		FROM email_verification_codes
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT 1`
	const insert = `
		INSERT INTO email_verification_codes (user_id, email, code, expires_at, is_used, created_at)
		VALUES ($1, $2, $3, $4, false, $5)
		RETURNING id`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		var owner uuid.UUID
		err := tx.QueryRow(ctx, lockUser, code.UserID).Scan(&owner)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}

		prev, err := scanCode(tx.QueryRow(ctx, latest, code.Email))
		if errors.Is(err, pgx.ErrNoRows) {
			prev, err = nil, nil
		}
		if err != nil {
			return fmt.Errorf("latest verification code: %w", err)
		}
		if err := check(prev); err != nil {
			return err
		}

		return tx.QueryRow(ctx, insert, code.UserID, code.Email, code.Code, code.ExpiresAt, code.CreatedAt).Scan(&code.ID)
	})
	if isUniqueViolation(err) {
		return ErrCodeCollision
	}
	return err
}

func (r *verificationRepository) Latest(ctx context.Context, email string) (*domain.VerificationCode, error) {
	const q = `
		SELECT ` + codeCols + `
		FROM email_verification_codes
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	c, err := scanCode(r.db.QueryRow(ctx, q, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest verification code: %w", err)
	}
	return c, nil
}

func (r *verificationRepository) Consume(ctx context.Context, email, code string, check CodeCheck) (*domain.User, error) {
	const selectCode = `
		SELECT ` + codeCols + `
		FROM email_verification_codes
		WHERE email = $1 AND code = $2
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE`
	const markUsed = `UPDATE email_verification_codes SET is_used = true WHERE id = $1 AND is_used = false`
	const markVerified = `
		UPDATE users SET is_verified = true, updated_at = now()
		WHERE id = $1
		RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var user *domain.User
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		c, err := scanCode(tx.QueryRow(ctx, selectCode, email, code))
		if errors.Is(err, pgx.ErrNoRows) {
			c, err = nil, nil
		}
		if err != nil {
			return fmt.Errorf("lock verification code: %w", err)
		}
		if err := check(c); err != nil {
			return err
		}
		if c == nil {
			return domain.ErrCodeNotFound
		}

		tag, err := tx.Exec(ctx, markUsed, c.ID)
		if err != nil {
			return fmt.Errorf("mark code used: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrCodeAlreadyUsed
		}

		u, err := scanUser(tx.QueryRow(ctx, markVerified, c.UserID))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("mark user verified: %w", err)
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
