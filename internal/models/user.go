package models

import (
	"time"
)

type UserRole string

const (
	RoleStudent   UserRole = "student"
	RoleAssistant UserRole = "assistant"
	RoleAdmin     UserRole = "admin"
)

// User is resolved from Casdoor; it is never stored by this service.
type User struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	FullName string   `json:"full_name"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`

	// Subject scope for assistants, from the Casdoor property "assistant_subject"
	AssistantSubject string `json:"assistant_subject,omitempty"`

	AvatarURL     *string `json:"avatar_url"`
	EmailVerified bool    `json:"email_verified"`

	// CreatedAt is the account creation time; zero when the provider did not report it.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) IsStaff() bool {
	return u != nil && (u.Role == RoleAssistant || u.Role == RoleAdmin)
}
