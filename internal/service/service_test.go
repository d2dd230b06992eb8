package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kinna/kinna-backend/internal/domain"
	"github.com/kinna/kinna-backend/internal/repository/memory"
	"github.com/kinna/kinna-backend/internal/verification"
	"github.com/kinna/kinna-backend/pkg/auth"
)

var cheapHash = &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type sentMail struct {
	kind, to, code, username string
}

type fakeMailer struct {
	mu   sync.Mutex
	fail error
	sent []sentMail
}

func (m *fakeMailer) SendVerification(_ context.Context, to, code, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, sentMail{"verification", to, code, username})
	return nil
}

func (m *fakeMailer) SendWelcome(_ context.Context, to, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, sentMail{kind: "welcome", to: to, username: username})
	return nil
}

func (m *fakeMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *fakePublisher) Publish(_ context.Context, subject string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type env struct {
	store  *memory.Store
	mail   *fakeMailer
	bus    *fakePublisher
	clock  *testClock
	issuer *auth.Issuer
	auth   AuthService
	users  UserService
	inbox  NotificationService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clk := &testClock{t: time.Now().Truncate(time.Second)}
	store := memory.New().WithClock(clk.Now)
	mail := &fakeMailer{}
	bus := &fakePublisher{}
	issuer := auth.NewIssuer("test-secret", 7*24*time.Hour).WithClock(clk.Now)
	ledger := verification.NewLedger(store.Codes(), 15*time.Minute, 60*time.Second).WithClock(clk.Now)

	return &env{
		store:  store,
		mail:   mail,
		bus:    bus,
		clock:  clk,
		issuer: issuer,
		auth: NewAuthService(store.Users(), ledger, mail, issuer, bus, time.Second,
			WithHashParams(cheapHash), WithClock(clk.Now)),
		users: NewUserService(store.Users(), store.Social(), bus),
		inbox: NewNotificationService(store.Notifications()),
	}
}

func aliceRequest() *domain.RegisterRequest {
	return &domain.RegisterRequest{
		Username:    "alice",
		Email:       "Alice@Example.com",
		Password:    "correct horse",
		Name:        "Alice",
		Age:         29,
		Preferences: []domain.Preference{{Type: "genre", Value: "fantasy"}},
	}
}

func TestRegisterCreatesUnverifiedUserWithOnePendingCode(t *testing.T) {
	e := newEnv(t)

	res, err := e.auth.Register(context.Background(), aliceRequest())
	require.NoError(t, err)

	assert.False(t, res.User.IsVerified)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.True(t, res.EmailSent)

	codes := e.store.CodesFor("alice@example.com")
	require.Len(t, codes, 1)
	assert.False(t, codes[0].IsUsed)
	assert.Equal(t, e.clock.Now().Add(15*time.Minute), codes[0].ExpiresAt)
	assert.Equal(t, codes[0].Code, e.mail.last().code)

	id, err := e.issuer.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, id.ID)

	assert.Len(t, e.store.Preferences(res.User.ID), 1)
	assert.True(t, e.store.HasPrivacySettings(res.User.ID))
	assert.Contains(t, e.bus.subjects, "user.registered")
}

func TestRegisterSucceedsWhenEmailFails(t *testing.T) {
	e := newEnv(t)
	e.mail.fail = errors.New("smtp down")

	res, err := e.auth.Register(context.Background(), aliceRequest())
	require.NoError(t, err)

	assert.False(t, res.EmailSent)
	assert.NotEmpty(t, res.Token)
	assert.Len(t, e.store.CodesFor("alice@example.com"), 1)
}

func TestRegisterConflicts(t *testing.T) {
	e := newEnv(t)
	_, err := e.auth.Register(context.Background(), aliceRequest())
	require.NoError(t, err)

	sameName := aliceRequest()
	sameName.Email = "other@example.com"
	_, err = e.auth.Register(context.Background(), sameName)
	assert.ErrorIs(t, err, domain.ErrConflict)

	sameEmail := aliceRequest()
	sameEmail.Username = "alice2"
	sameEmail.Email = " ALICE@example.com "
	_, err = e.auth.Register(context.Background(), sameEmail)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRegisterValidation(t *testing.T) {
	e := newEnv(t)
	req := aliceRequest()
	req.Age = 10

	_, err := e.auth.Register(context.Background(), req)
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "age", verr.Fields[0].Field)
}

func TestConcurrentDuplicateRegistration(t *testing.T) {
	e := newEnv(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.auth.Register(context.Background(), aliceRequest())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflict int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrConflict):
			conflict++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflict)
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	_, err := e.auth.Register(context.Background(), aliceRequest())
	require.NoError(t, err)

	for _, login := range []string{"alice", "ALICE@example.com"} {
		s, err := e.auth.Login(context.Background(), &domain.LoginRequest{Login: login, Password: "correct horse"})
		require.NoError(t, err, login)
		assert.Equal(t, "alice", s.User.Username)
		require.NotNil(t, s.User.LastLogin)
		assert.NotEmpty(t, s.Token)
	}

	_, err = e.auth.Login(context.Background(), &domain.LoginRequest{Login: "alice", Password: "wrong password"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = e.auth.Login(context.Background(), &domain.LoginRequest{Login: "nobody", Password: "whatever1"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLoginAcceptsLegacyBcryptHash(t *testing.T) {
	e := newEnv(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("old password"), bcrypt.MinCost)
	require.NoError(t, err)

	_, err = e.store.Users().Create(context.Background(), &domain.NewAccount{
		Username: "legacy", Email: "legacy@example.com", PasswordHash: string(hash), Name: "Legacy", Age: 40,
	})
	require.NoError(t, err)

	_, err = e.auth.Login(context.Background(), &domain.LoginRequest{Login: "legacy", Password: "old password"})
	assert.NoError(t, err)

	_, err = e.auth.Login(context.Background(), &domain.LoginRequest{Login: "legacy", Password: "new password"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestVerifyEmail(t *testing.T) {
	e := newEnv(t)
	_, err := e.auth.Register(context.Background(), aliceRequest())
	require.NoError(t, err)
	code := e.mail.last().code

	u, err := e.auth.VerifyEmail(context.Background(), &domain.VerifyEmailRequest{Email: "alice@example.com", Code: code})
	require.NoError(t, err)
	assert.True(t, u.IsVerified)
	assert.Equal(t, "welcome", e.mail.last().kind)
	assert.Contains(t, e.bus.subjects, "user.verified")

	_, err = e.auth.VerifyEmail(context.Background(), &domain.VerifyEmailRequest{Email: "alice@example.com", Code: code})
	assert.ErrorIs(t, err, domain.ErrCodeAlreadyUsed)
}

func TestVerifyEmailIgnoresWelcomeFailure(t *testing.T) {
	e := newEnv(t)
	_, err := e.auth.Register(context.Background(), aliceRequest())
	require.NoError(t, err)
	code := e.mail.last().code
	e.mail.fail = errors.New("smtp down")

	u, err := e.auth.VerifyEmail(context.Background(), &domain.VerifyEmailRequest{Email: "alice@example.com", Code: code})
	require.NoError(t, err)
	assert.True(t, u.IsVerified)
}

func TestVerifyEmailExpired(t *testing.T) {
	e := newEnv(t)
	_, err := e.auth.Register(context.Background(), aliceRequest())
	require.NoError(t, err)
	code := e.mail.last().code

	e.clock.Advance(16 * time.Minute)
	_, err = e.auth.VerifyEmail(context.Background(), &domain.VerifyEmailRequest{Email: "alice@example.com", Code: code})
	assert.ErrorIs(t, err, domain.ErrCodeExpired)
}

func TestResendVerification(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.auth.Register(ctx, aliceRequest())
	require.NoError(t, err)
	first := e.mail.last().code

	req := &domain.ResendVerificationRequest{Email: "alice@example.com"}

	var rl *domain.RateLimitedError
	err = e.auth.ResendVerification(ctx, req)
	require.True(t, errors.As(err, &rl), "got %v", err)
	assert.LessOrEqual(t, rl.Seconds(), 60)
	assert.GreaterOrEqual(t, rl.Seconds(), 1)

	e.clock.Advance(61 * time.Second)
	require.NoError(t, e.auth.ResendVerification(ctx, req))

	codes := e.store.CodesFor("alice@example.com")
	require.Len(t, codes, 2)
	assert.NotEqual(t, first, codes[1].Code)
	assert.Equal(t, codes[1].Code, e.mail.last().code)

	err = e.auth.ResendVerification(ctx, req)
	assert.True(t, errors.As(err, &rl), "second resend inside the window is limited")
}

func TestResendVerificationErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	err := e.auth.ResendVerification(ctx, &domain.ResendVerificationRequest{Email: "ghost@example.com"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.auth.Register(ctx, aliceRequest())
	require.NoError(t, err)

	e.clock.Advance(2 * time.Minute)
	e.mail.fail = errors.New("smtp down")
	err = e.auth.ResendVerification(ctx, &domain.ResendVerificationRequest{Email: "alice@example.com"})
	assert.ErrorIs(t, err, domain.ErrEmailDispatchFailed)

	e.mail.fail = nil
	code := e.store.CodesFor("alice@example.com")[0].Code
	_, err = e.auth.VerifyEmail(ctx, &domain.VerifyEmailRequest{Email: "alice@example.com", Code: code})
	require.NoError(t, err)

	before := len(e.store.CodesFor("alice@example.com"))
	e.clock.Advance(2 * time.Minute)
	err = e.auth.ResendVerification(ctx, &domain.ResendVerificationRequest{Email: "alice@example.com"})
	assert.ErrorIs(t, err, domain.ErrAlreadyVerified)
	assert.Len(t, e.store.CodesFor("alice@example.com"), before, "no code issued for a verified account")
}

func TestCheckUsername(t *testing.T) {
	e := newEnv(t)
	_, err := e.auth.Register(context.Background(), aliceRequest())
	require.NoError(t, err)

	available, err := e.auth.CheckUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, available)

	available, err = e.auth.CheckUsername(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, available)

	available, err = e.auth.CheckUsername(context.Background(), "no spaces")
	require.NoError(t, err)
	assert.False(t, available)
}

func TestFollow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, err := e.auth.Register(ctx, aliceRequest())
	require.NoError(t, err)
	bobReq := aliceRequest()
	bobReq.Username, bobReq.Email = "bob", "bob@example.com"
	bob, err := e.auth.Register(ctx, bobReq)
	require.NoError(t, err)

	assert.ErrorIs(t, e.users.Follow(ctx, alice.User.ID, alice.User.ID), domain.ErrCannotFollowSelf)
	assert.ErrorIs(t, e.users.Follow(ctx, alice.User.ID, uuid.New()), domain.ErrNotFound)

	require.NoError(t, e.users.Follow(ctx, alice.User.ID, bob.User.ID))
	require.NoError(t, e.users.Follow(ctx, alice.User.ID, bob.User.ID), "following twice is a no-op")
	require.Len(t, e.store.NotificationsFor(bob.User.ID), 1)
	assert.Equal(t, domain.NotificationFollow, e.store.NotificationsFor(bob.User.ID)[0].Type)

	p, err := e.users.Profile(ctx, "bob", &alice.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.FollowerCount)
	require.NotNil(t, p.IsFollowing)
	assert.True(t, *p.IsFollowing)

	anon, err := e.users.Profile(ctx, "bob", nil)
	require.NoError(t, err)
	assert.Nil(t, anon.IsFollowing)

	require.NoError(t, e.users.Unfollow(ctx, alice.User.ID, bob.User.ID))
	p, err = e.users.Profile(ctx, "bob", &alice.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, p.FollowerCount)
	assert.False(t, *p.IsFollowing)

	_, err = e.users.Profile(ctx, "nobody", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMe(t *testing.T) {
	e := newEnv(t)
	res, err := e.auth.Register(context.Background(), aliceRequest())
	require.NoError(t, err)

	u, err := e.users.Me(context.Background(), res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = e.users.Me(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentResendSendsOneCode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.auth.Register(ctx, aliceRequest())
	require.NoError(t, err)
	e.clock.Advance(2 * time.Minute)

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		limited int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := e.auth.ResendVerification(ctx, &domain.ResendVerificationRequest{Email: "alice@example.com"})
			var rl *domain.RateLimitedError
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.As(err, &rl):
				limited++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, limited)
	assert.Len(t, e.store.CodesFor("alice@example.com"), 2)
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
func intPtr(i int) *int       { return &i }

func TestUpdateProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res, err := e.auth.Register(ctx, aliceRequest())
	require.NoError(t, err)

	u, err := e.users.UpdateProfile(ctx, res.User.ID, &domain.UpdateProfileRequest{
		Bio: strPtr("  Reads everything by Le Guin  "),
		Age: intPtr(30),
	})
	require.NoError(t, err)
	assert.Equal(t, "Reads everything by Le Guin", u.Bio)
	assert.Equal(t, 30, u.Age)
	assert.Equal(t, "Alice", u.Name, "fields left out keep their value")

	u, err = e.users.UpdateProfile(ctx, res.User.ID, &domain.UpdateProfileRequest{Name: strPtr("   "), Bio: strPtr("")})
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name, "blank name is ignored")
	assert.Equal(t, "", u.Bio, "empty bio clears it")

	_, err = e.users.UpdateProfile(ctx, res.User.ID, &domain.UpdateProfileRequest{Age: intPtr(9)})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "age", verr.Fields[0].Field)

	_, err = e.users.UpdateProfile(ctx, uuid.New(), &domain.UpdateProfileRequest{Age: intPtr(40)})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPrivacySettings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res, err := e.auth.Register(ctx, aliceRequest())
	require.NoError(t, err)

	p, err := e.users.PrivacySettings(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "public", p.ProfileVisibility)
	assert.False(t, p.ShowEmail)
	assert.True(t, p.ShowAge)

	p, err = e.users.UpdatePrivacy(ctx, res.User.ID, &domain.UpdatePrivacyRequest{
		ProfileVisibility: strPtr(" Followers "),
		ShowEmail:         boolPtr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, "followers", p.ProfileVisibility)
	assert.True(t, p.ShowEmail)
	assert.True(t, p.AllowMessages, "unset fields are untouched")

	_, err = e.users.UpdatePrivacy(ctx, res.User.ID, &domain.UpdatePrivacyRequest{ProfileVisibility: strPtr("everyone")})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "profile_visibility", verr.Fields[0].Field)

	_, err = e.users.PrivacySettings(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNotifications(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, err := e.auth.Register(ctx, aliceRequest())
	require.NoError(t, err)

	var followers []uuid.UUID
	for _, name := range []string{"bob", "carol", "dave"} {
		req := aliceRequest()
		req.Username, req.Email = name, name+"@example.com"
		res, err := e.auth.Register(ctx, req)
		require.NoError(t, err)
		e.clock.Advance(time.Second)
		require.NoError(t, e.users.Follow(ctx, res.User.ID, alice.User.ID))
		followers = append(followers, res.User.ID)
	}

	n, err := e.inbox.UnreadCount(ctx, alice.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	page, err := e.inbox.List(ctx, alice.User.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, NotificationPageSize, page.Limit)
	require.Len(t, page.Notifications, 3)
	assert.Equal(t, "dave", *page.Notifications[0].RelatedUsername, "newest first")
	assert.Equal(t, followers[2], *page.Notifications[0].RelatedUserID)

	empty, err := e.inbox.List(ctx, alice.User.ID, 2)
	require.NoError(t, err)
	assert.Empty(t, empty.Notifications)

	require.NoError(t, e.inbox.MarkRead(ctx, alice.User.ID, page.Notifications[0].ID))
	assert.ErrorIs(t, e.inbox.MarkRead(ctx, followers[0], page.Notifications[1].ID), domain.ErrNotificationNotFound,
		"cannot mark someone else's notification")

	n, err = e.inbox.UnreadCount(ctx, alice.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	updated, err := e.inbox.MarkAllRead(ctx, alice.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	n, err = e.inbox.UnreadCount(ctx, alice.User.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}
