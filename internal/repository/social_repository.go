package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kinna/kinna-backend/internal/domain"
)

type SocialRepository interface {
	// Profile loads the public profile. viewer is nil for anonymous callers,
	// in which case IsFollowing stays unset.
	Profile(ctx context.Context, username string, viewer *uuid.UUID) (*domain.Profile, error)
	// Follow reports whether a new edge was created; a notification row is
	// written only in that case.
	Follow(ctx context.Context, followerID, followingID uuid.UUID) (bool, error)
	Unfollow(ctx context.Context, followerID, followingID uuid.UUID) error
	// PrivacySettings and UpdatePrivacy return nil when the user has no row.
	PrivacySettings(ctx context.Context, userID uuid.UUID) (*domain.PrivacySettings, error)
	UpdatePrivacy(ctx context.Context, userID uuid.UUID, upd *domain.UpdatePrivacyRequest) (*domain.PrivacySettings, error)
}

type socialRepository struct {
	db DBTX
}

func NewSocialRepository(db DBTX) SocialRepository {
	return &socialRepository{db: db}
}

const profileCols = `
	u.id, u.username, u.name, u.profile_picture, u.bio, u.is_verified, u.created_at,
	(SELECT COUNT(*) FROM follows WHERE following_id = u.id) AS follower_count,
	(SELECT COUNT(*) FROM follows WHERE follower_id = u.id) AS following_count`

func (r *socialRepository) Profile(ctx context.Context, username string, viewer *uuid.UUID) (*domain.Profile, error) {
	const anonymous = `SELECT ` + profileCols + `
		FROM users u
		WHERE u.username = $1 AND u.is_active = true`
	const authenticated = `SELECT ` + profileCols + `,
		EXISTS (SELECT 1 FROM follows WHERE follower_id = $2 AND following_id = u.id) AS is_following
		FROM users u
		WHERE u.username = $1 AND u.is_active = true`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p domain.Profile
	dest := []any{&p.ID, &p.Username, &p.Name, &p.ProfilePicture, &p.Bio, &p.IsVerified, &p.CreatedAt,
		&p.FollowerCount, &p.FollowingCount}

	var row pgx.Row
	if viewer != nil {
		var following bool
		p.IsFollowing = &following
		dest = append(dest, p.IsFollowing)
		row = r.db.QueryRow(ctx, authenticated, username, *viewer)
	} else {
		row = r.db.QueryRow(ctx, anonymous, username)
	}

	err := row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return &p, nil
}

func (r *socialRepository) Follow(ctx context.Context, followerID, followingID uuid.UUID) (bool, error) {
	const insertFollow = `
		INSERT INTO follows (follower_id, following_id)
		VALUES ($1, $2)
		ON CONFLICT (follower_id, following_id) DO NOTHING`
	const insertNotification = `
		INSERT INTO notifications (user_id, type, content, related_user_id)
		VALUES ($1, 'follow', 'started following you', $2)`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var created bool
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, insertFollow, followerID, followingID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		created = true
		if _, err := tx.Exec(ctx, insertNotification, followingID, followerID); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
		return nil
	})
	if isForeignKeyViolation(err) {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("follow user: %w", err)
	}
	return created, nil
}

func (r *socialRepository) Unfollow(ctx context.Context, followerID, followingID uuid.UUID) error {
	const q = `DELETE FROM follows WHERE follower_id = $1 AND following_id = $2`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := r.db.Exec(ctx, q, followerID, followingID); err != nil {
		return fmt.Errorf("unfollow user: %w", err)
	}
	return nil
}

const privacyCols = `user_id, profile_visibility, show_email, show_age, allow_messages, allow_tags,
	show_activity, updated_at`

func scanPrivacy(row scanner) (*domain.PrivacySettings, error) {
	var p domain.PrivacySettings
	err := row.Scan(&p.UserID, &p.ProfileVisibility, &p.ShowEmail, &p.ShowAge, &p.AllowMessages, &p.AllowTags,
		&p.ShowActivity, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *socialRepository) PrivacySettings(ctx context.Context, userID uuid.UUID) (*domain.PrivacySettings, error) {
	const q = `SELECT ` + privacyCols + ` FROM privacy_settings WHERE user_id = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	p, err := scanPrivacy(r.db.QueryRow(ctx, q, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load privacy settings: %w", err)
	}
	return p, nil
}

func (r *socialRepository) UpdatePrivacy(ctx context.Context, userID uuid.UUID, upd *domain.UpdatePrivacyRequest) (*domain.PrivacySettings, error) {
	const q = `
		UPDATE privacy_settings SET
			profile_visibility = COALESCE($2, profile_visibility),
			show_email = COALESCE($3, show_email),
			show_age = COALESCE($4, show_age),
			allow_messages = COALESCE($5, allow_messages),
			allow_tags = COALESCE($6, allow_tags),
			show_activity = COALESCE($7, show_activity),
			updated_at = now()
		WHERE user_id = $1
		RETURNING ` + privacyCols

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	p, err := scanPrivacy(r.db.QueryRow(ctx, q, userID, upd.ProfileVisibility, upd.ShowEmail, upd.ShowAge,
		upd.AllowMessages, upd.AllowTags, upd.ShowActivity))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update privacy settings: %w", err)
	}
	return p, nil
}
