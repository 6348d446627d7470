package models

import (
	"strings"
	"time"
)

const (
	RoleFreelancer = "freelancer"
	RoleClient     = "client"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	FirstName *string   `json:"first_name,omitempty"`
	LastName  *string   `json:"last_name,omitempty"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName is "First Last" when both parts are present, otherwise the username.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	first := trimmed(u.FirstName)
	last := trimmed(u.LastName)
	if first != "" && last != "" {
		return first + " " + last
	}
	return u.Username
}

func trimmed(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

type Presence struct {
	IsOnline   bool       `json:"is_online"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

type ParticipantIdentity struct {
	UserID      int64   `json:"user_id"`
	DisplayName string  `json:"display_name"`
	Username    string  `json:"username"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	Role        string  `json:"role"`
	Presence
}

func NewParticipantIdentity(user *User) ParticipantIdentity {
	if user == nil {
		return ParticipantIdentity{}
	}
	return ParticipantIdentity{
		UserID:      user.ID,
		DisplayName: user.DisplayName(),
		Username:    user.Username,
		AvatarURL:   user.AvatarURL,
		Role:        user.Role,
	}
}
