package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PrivacySettings is the per-user privacy row created at registration.
type PrivacySettings struct {
	UserID            uuid.UUID `json:"user_id"`
	ProfileVisibility string    `json:"profile_visibility"`
	ShowEmail         bool      `json:"show_email"`
	ShowAge           bool      `json:"show_age"`
	AllowMessages     bool      `json:"allow_messages"`
	AllowTags         bool      `json:"allow_tags"`
	ShowActivity      bool      `json:"show_activity"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DefaultPrivacySettings mirrors the column defaults of privacy_settings.
func DefaultPrivacySettings(userID uuid.UUID, at time.Time) *PrivacySettings {
	return &PrivacySettings{
		UserID:            userID,
		ProfileVisibility: "public",
		ShowEmail:         false,
		ShowAge:           true,
		AllowMessages:     true,
		AllowTags:         true,
		ShowActivity:      true,
		UpdatedAt:         at,
	}
}

// UpdatePrivacyRequest is a partial update: nil fields keep their value.
type UpdatePrivacyRequest struct {
	ProfileVisibility *string `json:"profile_visibility" validate:"omitempty,oneof=public followers private"`
	ShowEmail         *bool   `json:"show_email"`
	ShowAge           *bool   `json:"show_age"`
	AllowMessages     *bool   `json:"allow_messages"`
	AllowTags         *bool   `json:"allow_tags"`
	ShowActivity      *bool   `json:"show_activity"`
}

func (r *UpdatePrivacyRequest) Normalize() {
	r.ProfileVisibility = trimOptional(r.ProfileVisibility)
	if r.ProfileVisibility != nil {
		v := strings.ToLower(*r.ProfileVisibility)
		r.ProfileVisibility = &v
	}
}

func (r *UpdatePrivacyRequest) Validate() error { return validateStruct(r) }

// Apply copies the non-nil fields onto s.
func (r *UpdatePrivacyRequest) Apply(s *PrivacySettings) {
	if r.ProfileVisibility != nil {
		s.ProfileVisibility = *r.ProfileVisibility
	}
	setBool(&s.ShowEmail, r.ShowEmail)
	setBool(&s.ShowAge, r.ShowAge)
	setBool(&s.AllowMessages, r.AllowMessages)
	setBool(&s.AllowTags, r.AllowTags)
	setBool(&s.ShowActivity, r.ShowActivity)
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// UpdateProfileRequest is a partial profile update. An empty name or gender
// is ignored; an empty bio clears it.
type UpdateProfileRequest struct {
	Name           *string `json:"name" validate:"omitempty,max=100"`
	Bio            *string `json:"bio" validate:"omitempty,max=500"`
	Age            *int    `json:"age" validate:"omitempty,min=13,max=120"`
	Gender         *string `json:"gender" validate:"omitempty,max=20"`
	ProfilePicture *string `json:"profile_picture" validate:"omitempty,max=2048"`
}

func (r *UpdateProfileRequest) Normalize() {
	r.Name = trimOptional(r.Name)
	r.Gender = trimOptional(r.Gender)
	r.ProfilePicture = trimOptional(r.ProfilePicture)
	if r.Bio != nil {
		b := strings.TrimSpace(*r.Bio)
		r.Bio = &b
	}
}

func (r *UpdateProfileRequest) Validate() error { return validateStruct(r) }

// Apply copies the non-nil fields onto u.
func (r *UpdateProfileRequest) Apply(u *User) {
	if r.Name != nil {
		u.Name = *r.Name
	}
	if r.Bio != nil {
		u.Bio = *r.Bio
	}
	if r.Age != nil {
		u.Age = *r.Age
	}
	if r.Gender != nil {
		u.Gender = r.Gender
	}
	if r.ProfilePicture != nil {
		u.ProfilePicture = r.ProfilePicture
	}
}

const NotificationFollow = "follow"

// Notification is an inbox entry. The related_* fields describe the user who
// triggered it, when there is one.
type Notification struct {
	ID                    uuid.UUID  `json:"id"`
	UserID                uuid.UUID  `json:"user_id"`
	Type                  string     `json:"type"`
	Content               string     `json:"content"`
	RelatedUserID         *uuid.UUID `json:"related_user_id,omitempty"`
	RelatedUsername       *string    `json:"related_username,omitempty"`
	RelatedName           *string    `json:"related_name,omitempty"`
	RelatedProfilePicture *string    `json:"related_profile_picture,omitempty"`
	IsRead                bool       `json:"is_read"`
	CreatedAt             time.Time  `json:"created_at"`
}

type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	Page          int            `json:"page"`
	Limit         int            `json:"limit"`
}
