package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents user roles in the system
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleTechnician Role = "technician"
	RoleViewer     Role = "viewer"
)

// Capability action names consulted across the system.
const (
	ActionManagePlans      = "manage_plans"
	ActionGenerateRequests = "generate_requests"
	ActionCreateRequest    = "create_request"
	ActionUpdateRequest    = "update_request"
	ActionTrackTime        = "track_time"
	ActionAssignStage      = "assign_stage"
	ActionConfirmTerminal  = "confirm_terminal_stage" // technical-admin only
	ActionManageUsers      = "manage_users"
	ActionDeleteUser       = "delete_user"
	ActionViewRequests     = "view_requests"
	ActionViewPlans        = "view_plans"
	ActionViewSegments     = "view_segments"
)

// User represents a user in the system
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	Role         Role               `bson:"role" json:"role"`
	// TechnicalAdmin grants the elevated capability required to move a
	// request into a terminal stage. Assigned per deployment, not implied
	// by Role (admins hold it implicitly).
	TechnicalAdmin bool       `bson:"technical_admin" json:"technical_admin"`
	FirstName      string     `bson:"first_name" json:"first_name"`
	LastName       string     `bson:"last_name" json:"last_name"`
	IsActive       bool       `bson:"is_active" json:"is_active"`
	LastLogin      *time.Time `bson:"last_login,omitempty" json:"last_login,omitempty"`
	CreatedAt      time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at" json:"updated_at"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
	// TechnicalAdmin is honored only when an administrator registers
	// the account.
	TechnicalAdmin bool `json:"technical_admin"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Claims represents JWT claims
type Claims struct {
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	Role           Role   `json:"role"`
	TechnicalAdmin bool   `json:"technical_admin"`
	Exp            int64  `json:"exp"`
}

// HasCapability checks the claims against a capability action, so request
// handlers can consult permissions without a user lookup.
func (c *Claims) HasCapability(action string) bool {
	user := &User{Role: c.Role, TechnicalAdmin: c.TechnicalAdmin}
	return user.HasPermission(action)
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleTechnician, RoleViewer:
		return true
	default:
		return false
	}
}

// HasPermission checks if a user has permission for a specific action
func (u *User) HasPermission(action string) bool {
	if action == ActionConfirmTerminal {
		return u.Role == RoleAdmin || u.TechnicalAdmin
	}
	switch u.Role {
	case RoleAdmin:
		return true
	case RoleManager:
		return action != ActionDeleteUser && action != ActionManageUsers
	case RoleTechnician:
		return action == ActionTrackTime || action == ActionAssignStage ||
			action == ActionCreateRequest || action == ActionUpdateRequest ||
			action == ActionViewRequests || action == ActionViewPlans ||
			action == ActionViewSegments
	case RoleViewer:
		return action == ActionViewRequests || action == ActionViewPlans ||
			action == ActionViewSegments
	default:
		return false
	}
}
