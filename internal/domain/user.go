package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID  `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	Name           string     `json:"name"`
	Age            int        `json:"age"`
	Gender         *string    `json:"gender,omitempty"`
	ProfilePicture *string    `json:"profile_picture,omitempty"`
	Bio            string     `json:"bio"`
	IsVerified     bool       `json:"is_verified"`
	IsActive       bool       `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
}

type Preference struct {
	Type  string `json:"type" validate:"required,max=50"`
	Value string `json:"value" validate:"required,max=255"`
}

// NewAccount is everything needed to insert a user and its satellite rows.
type NewAccount struct {
	Username       string
	Email          string
	PasswordHash   string
	Name           string
	Age            int
	Gender         *string
	ProfilePicture *string
	Preferences    []Preference
}

// Profile is the public view of a user. IsFollowing is only set when the
// viewer is authenticated.
type Profile struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	Name           string    `json:"name"`
	ProfilePicture *string   `json:"profile_picture,omitempty"`
	Bio            string    `json:"bio"`
	IsVerified     bool      `json:"is_verified"`
	CreatedAt      time.Time `json:"created_at"`
	FollowerCount  int       `json:"follower_count"`
	FollowingCount int       `json:"following_count"`
	IsFollowing    *bool     `json:"is_following,omitempty"`
}

type RegisterRequest struct {
	Username       string       `json:"username" validate:"required,min=3,max=50,username"`
	Email          string       `json:"email" validate:"required,email,max=255"`
	Password       string       `json:"password" validate:"required,min=8,max=128"`
	Name           string       `json:"name" validate:"required,max=100"`
	Age            int          `json:"age" validate:"required,min=13,max=120"`
	Gender         *string      `json:"gender,omitempty" validate:"omitempty,max=20"`
	ProfilePicture *string      `json:"profile_picture,omitempty" validate:"omitempty,max=2048"`
	Preferences    []Preference `json:"preferences,omitempty" validate:"omitempty,max=50,dive"`
}

func (r *RegisterRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	r.Gender = trimOptional(r.Gender)
	r.ProfilePicture = trimOptional(r.ProfilePicture)
	for i := range r.Preferences {
		r.Preferences[i].Type = strings.TrimSpace(r.Preferences[i].Type)
		r.Preferences[i].Value = strings.TrimSpace(r.Preferences[i].Value)
	}
}

func (r *RegisterRequest) Validate() error { return validateStruct(r) }

// LoginRequest accepts either an email address or a username in Login.
type LoginRequest struct {
	Login    string `json:"login" validate:"required,max=255"`
	Password string `json:"password" validate:"required"`
}

func (r *LoginRequest) Normalize() {
	r.Login = strings.TrimSpace(r.Login)
}

func (r *LoginRequest) Validate() error { return validateStruct(r) }

// IsEmail reports whether Login should be matched against the email column.
func (r *LoginRequest) IsEmail() bool {
	return strings.Contains(r.Login, "@")
}

type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

func (r *VerifyEmailRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.Code = strings.TrimSpace(r.Code)
}

func (r *VerifyEmailRequest) Validate() error { return validateStruct(r) }

type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (r *ResendVerificationRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

func (r *ResendVerificationRequest) Validate() error { return validateStruct(r) }

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
