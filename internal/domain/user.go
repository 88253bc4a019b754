package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/utils"
)

type Role string

// Staff roles
const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// RoleAllowed reports whether role is a member of allowed. An empty set admits
// every valid role.
func RoleAllowed(role Role, allowed []Role) bool {
	if !role.Valid() {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	return slices.Contains(allowed, role)
}

type User struct {
	ID             int64      `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email,omitempty"`
	PasswordHash   string     `json:"-"`
	Role           Role       `json:"role"`
	ResetTokenHash string     `json:"-"`
	ResetExpiresAt *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

func (r *LoginRequest) Normalize() {
	r.Username = utils.NormalizeString(r.Username)
}

type LoginResponse struct {
	OK       bool   `json:"ok"`
	Token    string `json:"token"`
	Role     Role   `json:"role"`
	Username string `json:"username"`
}

type RecoverRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

func (r *RecoverRequest) Normalize() {
	r.Email = utils.NormalizeEmail(r.Email)
}

type ResetPasswordRequest struct {
	Token string `json:"token" validate:"required,max=256"`
	// the 72-byte bcrypt limit is enforced by the service; max here counts runes
	Password string `json:"password" validate:"required,max=72"`
}

func (r *ResetPasswordRequest) Normalize() {
	r.Token = strings.TrimSpace(r.Token)
}
