package auth

import "time"

type Role string

const (
	RoleChild  Role = "child"
	RoleParent Role = "parent"
)

// Member is a person belonging to a family account. It mirrors the
// family_members table and carries no JSON annotations so presentation layers
// can shape it themselves.
type Member struct {
	ID           string
	FamilyID     string
	Email        string
	FullName     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is what a verified token asserts about the caller.
type Identity struct {
	UserID   string
	FamilyID string
	Role     Role
}

// RegisterRequest contains member registration data supplied by callers.
type RegisterRequest struct {
	FamilyID string `json:"family_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// LoginRequest contains member login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
