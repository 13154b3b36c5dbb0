package store

import (
	"fmt"
	"time"
)

// Role tags the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole accepts only the closed set of message roles.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleAssistant, RoleSystem:
		return r, nil
	}
	return "", fmt.Errorf("unknown message role %q", s)
}

type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"` // Do not expose this in JSON responses
	FullName       *string   `json:"full_name"`
	IsActive       bool      `json:"is_active"`
	IsSuperuser    bool      `json:"is_superuser"`
	CreatedAt      time.Time `json:"created_at"`
}

type UserCreate struct {
	Email          string
	HashedPassword string
	FullName       *string
	IsSuperuser    bool
}

type Conversation struct {
	ID         int64     `json:"id"`
	Summary    *string   `json:"summary"` // Nullable
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	OwnerID    int64     `json:"-"`
	Messages   []Message `json:"-"` // Only filled by GetConversation
}

// ConversationUpdate is a partial update; nil fields are left untouched.
type ConversationUpdate struct {
	Summary *string
}

type Message struct {
	ID             int64     `json:"id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	ConversationID int64     `json:"-"`
	OwnerID        int64     `json:"-"`
}

type MessageCreate struct {
	ConversationID int64
	OwnerID        int64
	Role           Role
	Content        string
}
