package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kinna/kinna-backend/internal/domain"
	"github.com/kinna/kinna-backend/internal/mailer"
	"github.com/kinna/kinna-backend/internal/repository"
	"github.com/kinna/kinna-backend/internal/verification"
	"github.com/kinna/kinna-backend/pkg/events"
	"github.com/kinna/kinna-backend/pkg/logger"
)

type AuthService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*RegisterResult, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*Session, error)
	VerifyEmail(ctx context.Context, req *domain.VerifyEmailRequest) (*domain.User, error)
	ResendVerification(ctx context.Context, req *domain.ResendVerificationRequest) error
	CheckUsername(ctx context.Context, username string) (bool, error)
}

// SessionIssuer mints the bearer token handed back after register and login.
type SessionIssuer interface {
	Issue(id uuid.UUID, username, email string) (string, error)
}

type Session struct {
	User  *domain.User
	Token string
}

// RegisterResult carries the new session and whether the verification email
// left the building.
type RegisterResult struct {
	Session
	EmailSent bool
}

type authService struct {
	users       repository.UserRepository
	ledger      *verification.Ledger
	mailer      mailer.Service
	sessions    SessionIssuer
	events      events.Publisher
	mailTimeout time.Duration
	hashParams  *argon2id.Params
	now         func() time.Time
}

type Option func(*authService)

func WithHashParams(p *argon2id.Params) Option {
	return func(s *authService) { s.hashParams = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *authService) { s.now = now }
}

func NewAuthService(
	users repository.UserRepository,
	ledger *verification.Ledger,
	mail mailer.Service,
	sessions SessionIssuer,
	bus events.Publisher,
	mailTimeout time.Duration,
	opts ...Option,
) AuthService {
	if bus == nil {
		bus = events.NopPublisher{}
	}
	if mailTimeout <= 0 {
		mailTimeout = 10 * time.Second
	}
	s := &authService{
		users:       users,
		ledger:      ledger,
		mailer:      mail,
		sessions:    sessions,
		events:      bus,
		mailTimeout: mailTimeout,
		hashParams:  argon2id.DefaultParams,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *authService) Register(ctx context.Context, req *domain.RegisterRequest) (*RegisterResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	taken, err := s.users.ExistsByUsernameOrEmail(ctx, req.Username, req.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.ErrConflict
	}

	hash, err := argon2id.CreateHash(req.Password, s.hashParams)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	// A concurrent registration can still win between the check and the
	// insert; the unique constraints turn that into ErrConflict as well.
	user, err := s.users.Create(ctx, &domain.NewAccount{
		Username:       req.Username,
		Email:          req.Email,
		PasswordHash:   hash,
		Name:           req.Name,
		Age:            req.Age,
		Gender:         req.Gender,
		ProfilePicture: req.ProfilePicture,
		Preferences:    req.Preferences,
	})
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "User registered", "user_id", user.ID, "username", user.Username)

	emailSent := s.issueAndSend(ctx, user) == nil

	token, err := s.sessions.Issue(user.ID, user.Username, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	s.publish(ctx, events.SubjectUserRegistered, events.UserRegistered{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	})

	return &RegisterResult{Session: Session{User: user, Token: token}, EmailSent: emailSent}, nil
}

// issueAndSend issues a code for the user and mails it. Failures are logged
// here; callers decide whether they are fatal.
func (s *authService) issueAndSend(ctx context.Context, user *domain.User) error {
	code, err := s.ledger.Issue(ctx, user.ID, user.Email)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to issue verification code", "error", err, "user_id", user.ID)
		return err
	}
	return s.sendCode(ctx, user, code)
}

func (s *authService) sendCode(ctx context.Context, user *domain.User, code *domain.VerificationCode) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.mailTimeout)
	defer cancel()

	if err := s.mailer.SendVerification(sendCtx, user.Email, code.Code, user.Username); err != nil {
		if errors.Is(err, mailer.ErrDisabled) {
			logger.WarnContext(ctx, "Verification email not sent, mailer disabled", "user_id", user.ID)
		} else {
			logger.ErrorContext(ctx, "Failed to send verification email", "error", err, "user_id", user.ID)
		}
		return err
	}
	return nil
}

func (s *authService) Login(ctx context.Context, req *domain.LoginRequest) (*Session, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		user *domain.User
		err  error
	)
	if req.IsEmail() {
		user, err = s.users.FindByEmail(ctx, domain.NormalizeEmail(req.Login))
	} else {
		user, err = s.users.FindByUsername(ctx, req.Login)
	}
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, domain.ErrInvalidCredentials
	}

	ok, err := checkPassword(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		logger.WarnContext(ctx, "Failed to record last login", "error", err, "user_id", user.ID)
	} else {
		user.LastLogin = &now
	}

	token, err := s.sessions.Issue(user.ID, user.Username, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	return &Session{User: user, Token: token}, nil
}

// checkPassword accepts argon2id hashes and bcrypt hashes carried over from
// the previous backend.
func checkPassword(password, hash string) (bool, error) {
	if strings.HasPrefix(hash, "$2") {
		err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return err == nil, err
	}
	return argon2id.ComparePasswordAndHash(password, hash)
}

func (s *authService) VerifyEmail(ctx context.Context, req *domain.VerifyEmailRequest) (*domain.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.ledger.Verify(ctx, req.Email, req.Code)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Email verified", "user_id", user.ID)

	s.publish(ctx, events.SubjectUserVerified, events.UserVerified{UserID: user.ID, Email: user.Email})

	sendCtx, cancel := context.WithTimeout(ctx, s.mailTimeout)
	defer cancel()
	if err := s.mailer.SendWelcome(sendCtx, user.Email, user.Username); err != nil && !errors.Is(err, mailer.ErrDisabled) {
		logger.WarnContext(ctx, "Failed to send welcome email", "error", err, "user_id", user.ID)
	}

	return user, nil
}

func (s *authService) ResendVerification(ctx context.Context, req *domain.ResendVerificationRequest) error {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return err
	}
	if user == nil {
		return domain.ErrNotFound
	}
	if user.IsVerified {
		return domain.ErrAlreadyVerified
	}

	// Cheap unlocked check first; Resend repeats it under the row lock.
	if err := s.ledger.CheckResend(ctx, user.Email); err != nil {
		return err
	}

	code, err := s.ledger.Resend(ctx, user.ID, user.Email)
	if err != nil {
		return err
	}
	if err := s.sendCode(ctx, user, code); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEmailDispatchFailed, err)
	}
	logger.InfoContext(ctx, "Verification code resent", "user_id", user.ID)
	return nil
}

func (s *authService) CheckUsername(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if !domain.ValidUsername(username) {
		return false, nil
	}
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	return u == nil, nil
}

func (s *authService) publish(ctx context.Context, subject string, payload any) {
	if err := s.events.Publish(ctx, subject, payload); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}
