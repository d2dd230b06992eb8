package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/kinna/kinna-backend/internal/domain"
	"github.com/kinna/kinna-backend/internal/repository"
)

// NotificationPageSize is the fixed page length of List.
const NotificationPageSize = 20

type NotificationService interface {
	// List returns one page of the user's inbox. Pages start at 1; anything
	// lower is treated as the first page.
	List(ctx context.Context, userID uuid.UUID, page int) (*domain.NotificationPage, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
}

type notificationService struct {
	notifications repository.NotificationRepository
}

func NewNotificationService(notifications repository.NotificationRepository) NotificationService {
	return &notificationService{notifications: notifications}
}

func (s *notificationService) List(ctx context.Context, userID uuid.UUID, page int) (*domain.NotificationPage, error) {
	if page < 1 {
		page = 1
	}
	items, err := s.notifications.List(ctx, userID, NotificationPageSize, (page-1)*NotificationPageSize)
	if err != nil {
		return nil, err
	}
	return &domain.NotificationPage{Notifications: items, Page: page, Limit: NotificationPageSize}, nil
}

func (s *notificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	ok, err := s.notifications.MarkRead(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.notifications.MarkAllRead(ctx, userID)
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.notifications.UnreadCount(ctx, userID)
}
