package users

import (
	"errors"
	"time"
)

type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

func (s Status) Valid() bool { return s == StatusActive || s == StatusInactive }

var (
	ErrNotFound           = errors.New("users: not found")
	ErrValidation         = errors.New("users: validation failed")
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	ErrInactive           = errors.New("users: account is inactive")
	ErrAdminExists        = errors.New("users: an admin already exists")
	ErrBootstrapDisabled  = errors.New("users: admin bootstrap is not configured")
	ErrSelfAction         = errors.New("users: cannot perform this action on your own account")
)

// User is a CRM account. Team users normally sign in by phone; admins by
// email and password. Only Active users may authenticate.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	Status       Status    `json:"status"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u User) Active() bool { return u.Status == StatusActive }
