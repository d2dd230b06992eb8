// Package memory is a process-local implementation of the repositories. It
// backs STORE_DRIVER=memory for local runs and the service and handler tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kinna/kinna-backend/internal/domain"
	"github.com/kinna/kinna-backend/internal/repository"
)

type edge struct {
	follower, following uuid.UUID
}

// Store holds every table behind one mutex, which makes each operation
// behave like a serializable transaction.
type Store struct {
	mu            sync.Mutex
	now           func() time.Time
	users         map[uuid.UUID]*domain.User
	preferences   map[uuid.UUID][]domain.Preference
	privacy       map[uuid.UUID]*domain.PrivacySettings
	codes         []*domain.VerificationCode
	follows       map[edge]time.Time
	notifications []*domain.Notification
}

func New() *Store {
	return &Store{
		now:         time.Now,
		users:       make(map[uuid.UUID]*domain.User),
		preferences: make(map[uuid.UUID][]domain.Preference),
		privacy:     make(map[uuid.UUID]*domain.PrivacySettings),
		follows:     make(map[edge]time.Time),
	}
}

func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Users() repository.UserRepository         { return userRepo{s} }
func (s *Store) Codes() repository.VerificationRepository { return codeRepo{s} }
func (s *Store) Social() repository.SocialRepository     { return socialRepo{s} }

func (s *Store) Notifications() repository.NotificationRepository { return notificationRepo{s} }

// CodesFor returns copies of every code issued to email, oldest first.
func (s *Store) CodesFor(email string) []domain.VerificationCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.VerificationCode
	for _, c := range s.codes {
		if c.Email == email {
			out = append(out, *c)
		}
	}
	return out
}

func (s *Store) Preferences(userID uuid.UUID) []domain.Preference {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Preference(nil), s.preferences[userID]...)
}

func (s *Store) HasPrivacySettings(userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.privacy[userID] != nil
}

// NotificationsFor returns copies of the user's notifications, oldest first.
func (s *Store) NotificationsFor(userID uuid.UUID) []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	return out
}

func clone(u *domain.User) *domain.User {
	c := *u
	return &c
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, acct *domain.NewAccount) (*domain.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == acct.Username || u.Email == acct.Email {
			return nil, domain.ErrConflict
		}
	}

	u := &domain.User{
		ID:             uuid.New(),
		Username:       acct.Username,
		Email:          acct.Email,
		PasswordHash:   acct.PasswordHash,
		Name:           acct.Name,
		Age:            acct.Age,
		Gender:         acct.Gender,
		ProfilePicture: acct.ProfilePicture,
		IsActive:       true,
		CreatedAt:      s.now(),
	}
	s.users[u.ID] = u
	s.preferences[u.ID] = append([]domain.Preference(nil), acct.Preferences...)
	s.privacy[u.ID] = domain.DefaultPrivacySettings(u.ID, u.CreatedAt)
	return clone(u), nil
}

func (r userRepo) find(match func(*domain.User) bool) *domain.User {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if match(u) {
			return clone(u)
		}
	}
	return nil
}

func (r userRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.ID == id }), nil
}

func (r userRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Email == email }), nil
}

func (r userRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Username == username }), nil
}

func (r userRepo) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	u := r.find(func(u *domain.User) bool { return u.Username == username || u.Email == email })
	return u != nil, nil
}

func (r userRepo) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		t := at
		u.LastLogin = &t
	}
	return nil
}

func (r userRepo) UpdateProfile(_ context.Context, id uuid.UUID, upd *domain.UpdateProfileRequest) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok || !u.IsActive {
		return nil, nil
	}
	upd.Apply(u)
	return clone(u), nil
}

type codeRepo struct{ s *Store }

func (r codeRepo) Create(_ context.Context, code *domain.VerificationCode) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.insertCode(code)
}

func (r codeRepo) CreateChecked(_ context.Context, code *domain.VerificationCode, check repository.CodeCheck) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[code.UserID]; !ok {
		return domain.ErrNotFound
	}
	var snapshot *domain.VerificationCode
	if c := s.newest(func(c *domain.VerificationCode) bool { return c.Email == code.Email }); c != nil {
		cp := *c
		snapshot = &cp
	}
	if err := check(snapshot); err != nil {
		return err
	}
	return s.insertCode(code)
}

func (s *Store) insertCode(code *domain.VerificationCode) error {
	for _, c := range s.codes {
		if c.UserID == code.UserID && c.Code == code.Code {
			return repository.ErrCodeCollision
		}
	}
	code.ID = uuid.New()
	stored := *code
	s.codes = append(s.codes, &stored)
	return nil
}

// newest returns the most recent code satisfying match. Ties on created_at
// go to the later insert.
func (s *Store) newest(match func(*domain.VerificationCode) bool) *domain.VerificationCode {
	var found []*domain.VerificationCode
	for _, c := range s.codes {
		if match(c) {
			found = append(found, c)
		}
	}
	if len(found) == 0 {
		return nil
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].CreatedAt.Before(found[j].CreatedAt)
	})
	return found[len(found)-1]
}

func (r codeRepo) Latest(_ context.Context, email string) (*domain.VerificationCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := r.s.newest(func(c *domain.VerificationCode) bool { return c.Email == email })
	if c == nil {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r codeRepo) Consume(_ context.Context, email, code string, check repository.CodeCheck) (*domain.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.newest(func(c *domain.VerificationCode) bool { return c.Email == email && c.Code == code })
	var snapshot *domain.VerificationCode
	if c != nil {
		cp := *c
		snapshot = &cp
	}
	if err := check(snapshot); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrCodeNotFound
	}
	if c.IsUsed {
		return nil, domain.ErrCodeAlreadyUsed
	}

	u, ok := s.users[c.UserID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c.IsUsed = true
	u.IsVerified = true
	return clone(u), nil
}

type socialRepo struct{ s *Store }

func (r socialRepo) Profile(_ context.Context, username string, viewer *uuid.UUID) (*domain.Profile, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var u *domain.User
	for _, candidate := range s.users {
		if candidate.Username == username && candidate.IsActive {
			u = candidate
			break
		}
	}
	if u == nil {
		return nil, nil
	}

	p := &domain.Profile{
		ID:             u.ID,
		Username:       u.Username,
		Name:           u.Name,
		ProfilePicture: u.ProfilePicture,
		Bio:            u.Bio,
		IsVerified:     u.IsVerified,
		CreatedAt:      u.CreatedAt,
	}
	for e := range s.follows {
		if e.following == u.ID {
			p.FollowerCount++
		}
		if e.follower == u.ID {
			p.FollowingCount++
		}
	}
	if viewer != nil {
		_, following := s.follows[edge{follower: *viewer, following: u.ID}]
		p.IsFollowing = &following
	}
	return p, nil
}

func (r socialRepo) Follow(_ context.Context, followerID, followingID uuid.UUID) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[followingID]; !ok {
		return false, domain.ErrNotFound
	}
	e := edge{follower: followerID, following: followingID}
	if _, exists := s.follows[e]; exists {
		return false, nil
	}
	now := s.now()
	s.follows[e] = now
	related := followerID
	s.notifications = append(s.notifications, &domain.Notification{
		ID:            uuid.New(),
		UserID:        followingID,
		Type:          domain.NotificationFollow,
		Content:       "started following you",
		RelatedUserID: &related,
		CreatedAt:     now,
	})
	return true, nil
}

func (r socialRepo) Unfollow(_ context.Context, followerID, followingID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.follows, edge{follower: followerID, following: followingID})
	return nil
}

func (r socialRepo) PrivacySettings(_ context.Context, userID uuid.UUID) (*domain.PrivacySettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.privacy[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r socialRepo) UpdatePrivacy(_ context.Context, userID uuid.UUID, upd *domain.UpdatePrivacyRequest) (*domain.PrivacySettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.privacy[userID]
	if !ok {
		return nil, nil
	}
	upd.Apply(p)
	p.UpdatedAt = r.s.now()
	cp := *p
	return &cp, nil
}

type notificationRepo struct{ s *Store }

func (r notificationRepo) List(_ context.Context, userID uuid.UUID, limit, offset int) ([]domain.Notification, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	// Walk backwards so equal timestamps keep the later insert in front.
	var mine []domain.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.UserID != userID {
			continue
		}
		cp := *n
		if cp.RelatedUserID != nil {
			if u, ok := s.users[*cp.RelatedUserID]; ok {
				username, name := u.Username, u.Name
				cp.RelatedUsername, cp.RelatedName, cp.RelatedProfilePicture = &username, &name, u.ProfilePicture
			}
		}
		mine = append(mine, cp)
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })

	out := make([]domain.Notification, 0, limit)
	for i := offset; i < len(mine) && len(out) < limit; i++ {
		out = append(out, mine[i])
	}
	return out, nil
}

func (r notificationRepo) MarkRead(_ context.Context, userID, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, n := range r.s.notifications {
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			return true, nil
		}
	}
	return false, nil
}

func (r notificationRepo) MarkAllRead(_ context.Context, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, note := range r.s.notifications {
		if note.UserID == userID && !note.IsRead {
			note.IsRead = true
			n++
		}
	}
	return n, nil
}

func (r notificationRepo) UnreadCount(_ context.Context, userID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for _, note := range r.s.notifications {
		if note.UserID == userID && !note.IsRead {
			n++
		}
	}
	return n, nil
}
