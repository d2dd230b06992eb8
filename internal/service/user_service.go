package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/kinna/kinna-backend/internal/domain"
	"github.com/kinna/kinna-backend/internal/repository"
	"github.com/kinna/kinna-backend/pkg/events"
	"github.com/kinna/kinna-backend/pkg/logger"
)

type UserService interface {
	Me(ctx context.Context, id uuid.UUID) (*domain.User, error)
	// Profile looks a user up by username. viewer is nil for anonymous callers.
	Profile(ctx context.Context, username string, viewer *uuid.UUID) (*domain.Profile, error)
	Follow(ctx context.Context, followerID, followingID uuid.UUID) error
	Unfollow(ctx context.Context, followerID, followingID uuid.UUID) error
	UpdateProfile(ctx context.Context, id uuid.UUID, req *domain.UpdateProfileRequest) (*domain.User, error)
	PrivacySettings(ctx context.Context, id uuid.UUID) (*domain.PrivacySettings, error)
	UpdatePrivacy(ctx context.Context, id uuid.UUID, req *domain.UpdatePrivacyRequest) (*domain.PrivacySettings, error)
}

type userService struct {
	users  repository.UserRepository
	social repository.SocialRepository
	events events.Publisher
}

func NewUserService(users repository.UserRepository, social repository.SocialRepository, bus events.Publisher) UserService {
	if bus == nil {
		bus = events.NopPublisher{}
	}
	return &userService{users: users, social: social, events: bus}
}

func (s *userService) Me(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.IsActive {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

func (s *userService) Profile(ctx context.Context, username string, viewer *uuid.UUID) (*domain.Profile, error) {
	p, err := s.social.Profile(ctx, username, viewer)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (s *userService) Follow(ctx context.Context, followerID, followingID uuid.UUID) error {
	if followerID == followingID {
		return domain.ErrCannotFollowSelf
	}

	target, err := s.users.FindByID(ctx, followingID)
	if err != nil {
		return err
	}
	if target == nil || !target.IsActive {
		return domain.ErrNotFound
	}

	created, err := s.social.Follow(ctx, followerID, followingID)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	logger.InfoContext(ctx, "User followed", "follower_id", followerID, "following_id", followingID)
	if err := s.events.Publish(ctx, events.SubjectUserFollowed, events.UserFollowed{
		FollowerID:  followerID,
		FollowingID: followingID,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "subject", events.SubjectUserFollowed, "error", err)
	}
	return nil
}

func (s *userService) Unfollow(ctx context.Context, followerID, followingID uuid.UUID) error {
	return s.social.Unfollow(ctx, followerID, followingID)
}

func (s *userService) UpdateProfile(ctx context.Context, id uuid.UUID, req *domain.UpdateProfileRequest) (*domain.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	u, err := s.users.UpdateProfile(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.ErrNotFound
	}
	logger.InfoContext(ctx, "Profile updated", "user_id", id)
	return u, nil
}

func (s *userService) PrivacySettings(ctx context.Context, id uuid.UUID) (*domain.PrivacySettings, error) {
	p, err := s.social.PrivacySettings(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (s *userService) UpdatePrivacy(ctx context.Context, id uuid.UUID, req *domain.UpdatePrivacyRequest) (*domain.PrivacySettings, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.social.UpdatePrivacy(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	logger.InfoContext(ctx, "Privacy settings updated", "user_id", id)
	return p, nil
}
