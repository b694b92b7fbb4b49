package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is a coarse account role. Any user may author and take exams;
// admins additionally manage users and all exams.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// WorkingRole is the hat a user wears in a client session.
type WorkingRole string

const (
	WorkingRoleExaminer WorkingRole = "examiner"
	WorkingRoleExaminee WorkingRole = "examinee"
)

// User represents an account.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RegisterRequest is the payload for creating an account.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

// LoginRequest is the payload for authentication.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

// LoginResponse is returned after successful login or registration.
type LoginResponse struct {
	Token       string   `json:"token"`
	User        User     `json:"user"`
	Permissions []string `json:"permissions"`
}

// MeResponse describes the caller's own account.
type MeResponse struct {
	User        User     `json:"user"`
	Permissions []string `json:"permissions"`
}
