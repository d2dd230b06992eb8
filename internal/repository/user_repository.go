package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kinna/kinna-backend/internal/domain"
)

type UserRepository interface {
	// Create inserts the user, its preferences and default privacy settings
	// in one transaction. Duplicate username or email yields domain.ErrConflict.
	Create(ctx context.Context, acct *domain.NewAccount) (*domain.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	// UpdateProfile applies the non-nil fields of upd to an active user and
	// returns the result, or nil when no active user has that id.
	UpdateProfile(ctx context.Context, id uuid.UUID, upd *domain.UpdateProfileRequest) (*domain.User, error)
}

type userRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) UserRepository {
	return &userRepository{db: db}
}

const userCols = `id, username, email, password_hash, name, age, gender, profile_picture, bio,
	is_verified, is_active, created_at, last_login`

func scanUser(row scanner) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Name, &u.Age, &u.Gender, &u.ProfilePicture, &u.Bio,
		&u.IsVerified, &u.IsActive, &u.CreatedAt, &u.LastLogin,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) Create(ctx context.Context, acct *domain.NewAccount) (*domain.User, error) {
	const insertUser = `
		INSERT INTO users (username, email, password_hash, name, age, gender, profile_picture)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + userCols
	const insertPreference = `
		INSERT INTO user_preferences (user_id, preference_type, preference_value)
		VALUES ($1, $2, $3)`
	const insertPrivacy = `INSERT INTO privacy_settings (user_id) VALUES ($1)`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var user *domain.User
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		u, err := scanUser(tx.QueryRow(ctx, insertUser,
			acct.Username, acct.Email, acct.PasswordHash, acct.Name, acct.Age, acct.Gender, acct.ProfilePicture,
		))
		if err != nil {
			return err
		}
		for _, p := range acct.Preferences {
			if _, err := tx.Exec(ctx, insertPreference, u.ID, p.Type, p.Value); err != nil {
				return fmt.Errorf("insert preference: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, insertPrivacy, u.ID); err != nil {
			return fmt.Errorf("insert privacy settings: %w", err)
		}
		user = u
		return nil
	})
	if isUniqueViolation(err) {
		return nil, domain.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (r *userRepository) findOne(ctx context.Context, q string, arg any) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	u, err := scanUser(r.db.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id = $1`
	u, err := r.findOne(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE email = $1`
	u, err := r.findOne(ctx, q, email)
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE username = $1`
	u, err := r.findOne(ctx, q, username)
	if err != nil {
		return nil, fmt.Errorf("find user by username: %w", err)
	}
	return u, nil
}

func (r *userRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR email = $2)`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var exists bool
	if err := r.db.QueryRow(ctx, q, username, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

func (r *userRepository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE users SET last_login = $2, updated_at = $2 WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := r.db.Exec(ctx, q, id, at); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id uuid.UUID, upd *domain.UpdateProfileRequest) (*domain.User, error) {
	const q = `
		UPDATE users SET
			name = COALESCE($2, name),
			bio = COALESCE($3, bio),
			age = COALESCE($4, age),
			gender = COALESCE($5, gender),
			profile_picture = COALESCE($6, profile_picture),
			updated_at = now()
		WHERE id = $1 AND is_active = true
		RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	u, err := scanUser(r.db.QueryRow(ctx, q, id, upd.Name, upd.Bio, upd.Age, upd.Gender, upd.ProfilePicture))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}
