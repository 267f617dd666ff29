package models

import "time"

// UserRole is the coarse authorization level carried in access tokens.
type UserRole string

const (
	RoleAdmin UserRole = "admin"
	RoleUser  UserRole = "user"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User represents an account stored in the users table.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Name         string    `db:"name" json:"name"`
	Role         UserRole  `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Info strips credentials for responses.
func (u *User) Info() UserInfo {
	return UserInfo{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role   UserRole
	Search string
	Page
}

// UpdateUserRequest is the admin payload for editing an account.
type UpdateUserRequest struct {
	Email    *string   `json:"email" validate:"omitempty,email,max=255"`
	Name     *string   `json:"name" validate:"omitempty,max=255"`
	Role     *UserRole `json:"role" validate:"omitempty,oneof=admin user"`
	Password *string   `json:"password" validate:"omitempty,min=6,max=128"`
}
