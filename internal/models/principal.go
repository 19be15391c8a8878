package models

import (
	"strings"
	"time"
)

// Role is the kind of principal. It is fixed at registration.
type Role string

const (
	RoleStudent          Role = "student"
	RoleSchoolSupervisor Role = "school_supervisor"
	RoleHostSupervisor   Role = "host_supervisor"
	RoleAdministrator    Role = "administrator"
)

// AllRoles lists every valid role
var AllRoles = []Role{RoleStudent, RoleSchoolSupervisor, RoleHostSupervisor, RoleAdministrator}

// ParseRole normalises s and reports whether it names a known role
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.IsValid()
}

func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleSchoolSupervisor, RoleHostSupervisor, RoleAdministrator:
		return true
	default:
		return false
	}
}

// IsReviewer reports whether the role may review applications
func (r Role) IsReviewer() bool {
	return ReviewerRoles.Contains(r)
}

// RoleSet is an allow-list of roles
type RoleSet map[Role]struct{}

// NewRoleSet builds a RoleSet from roles
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Contains reports whether r is allowed
func (s RoleSet) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}

var (
	// ReviewerRoles may move applications through review
	ReviewerRoles = NewRoleSet(RoleSchoolSupervisor, RoleHostSupervisor, RoleAdministrator)

	// SupervisorRoles may end attachments
	SupervisorRoles = NewRoleSet(RoleSchoolSupervisor, RoleHostSupervisor, RoleAdministrator)
)

// Principal is an identity record of some role
type Principal struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	SecretHash string    `json:"-"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailScope controls which principals must have distinct emails
type EmailScope string

const (
	// EmailScopeRole allows the same email under different roles
	EmailScopeRole EmailScope = "role"
	// EmailScopeGlobal requires emails to be unique across roles
	EmailScopeGlobal EmailScope = "global"
)

func (s EmailScope) IsValid() bool {
	return s == EmailScopeRole || s == EmailScopeGlobal
}

// RegisterRequest is the payload for registration
type RegisterRequest struct {
	Role     string `json:"role" binding:"required,oneof=student school_supervisor host_supervisor administrator"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Secret   string `json:"secret" binding:"required,min=8,max=128"`
	FullName string `json:"fullName" binding:"max=200"`
}

// LoginRequest is the payload for login
type LoginRequest struct {
	Role   string `json:"role" binding:"required"`
	Email  string `json:"email" binding:"required,max=255"`
	Secret string `json:"secret" binding:"required,max=128"`
}

// RefreshRequest is the payload for token refresh
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// ChangeSecretRequest is the payload for a self-service password change
type ChangeSecretRequest struct {
	CurrentSecret string `json:"currentSecret" binding:"required,max=128"`
	NewSecret     string `json:"newSecret" binding:"required,min=8,max=128"`
}

// PrincipalSummary is the public view of a principal
type PrincipalSummary struct {
	ID       string `json:"id"`
	Role     Role   `json:"role"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Active   bool   `json:"active"`
}

// Summary returns the public view of p
func (p *Principal) Summary() PrincipalSummary {
	return PrincipalSummary{
		ID:       p.ID,
		Role:     p.Role,
		Email:    p.Email,
		FullName: p.FullName,
		Active:   p.Active,
	}
}
