package auth

import (
	"time"

	"github.com/google/uuid"
)

// User represents an authenticated user account.
type User struct {
	ID           uuid.UUID
	AgencyID     uuid.UUID
	Email        string
	Name         string
	Role         string
	PasswordHash string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LoginResult is returned to the frontend after a successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      UserView  `json:"user"`
}

// UserView is the public projection of User.
type UserView struct {
	ID       uuid.UUID `json:"id"`
	AgencyID uuid.UUID `json:"agencyId"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Role     string    `json:"role"`
}

func (u *User) view() UserView {
	return UserView{ID: u.ID, AgencyID: u.AgencyID, Email: u.Email, Name: u.Name, Role: u.Role}
}
