package models

import "github.com/golang-jwt/jwt/v5"

// Application permissions
const (
	// Admin permissions
	PermissionReadAdmin  = "admin:read"
	PermissionWriteAdmin = "admin:write"

	// Customer permissions
	PermissionTransactionRead  = "transaction:read"
	PermissionTransactionWrite = "transaction:write"
	PermissionDisputeWrite     = "dispute:write"
	PermissionReviewWrite      = "review:write"
	PermissionChangePassword   = "user:change-password"

	// Agent permissions
	PermissionOfferRead  = "offer:read"
	PermissionOfferWrite = "offer:write"
)

type UserClaims struct {
	jwt.RegisteredClaims
	UserID       uint     `json:"user_id"`
	Email        string   `json:"email"`
	Role         string   `json:"role"`
	Permissions  []string `json:"permissions"`
	TokenVersion int      `json:"token_version"`
}

// HasPermission checks if the claims include a specific permission
func (c *UserClaims) HasPermission(permission string) bool {
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// AdminClaims returns synthetic admin claims for internal reads that are
// not scoped to a user.
func AdminClaims() *UserClaims {
	return &UserClaims{
		Role:        RoleAdmin,
		Permissions: GetDefaultPermissions(RoleAdmin),
	}
}

// GetDefaultPermissions returns default permissions based on role
func GetDefaultPermissions(role string) []string {
	switch role {
	case RoleAdmin:
		return []string{
			PermissionTransactionRead,
			PermissionTransactionWrite,
			PermissionDisputeWrite,
			PermissionOfferRead,
			PermissionChangePassword,
			PermissionReadAdmin,
			PermissionWriteAdmin,
		}
	case RoleAgent:
		return []string{
			PermissionTransactionRead,
			PermissionTransactionWrite,
			PermissionDisputeWrite,
			PermissionOfferRead,
			PermissionOfferWrite,
			PermissionChangePassword,
		}
	case RoleCustomer:
		return []string{
			PermissionTransactionRead,
			PermissionTransactionWrite,
			PermissionDisputeWrite,
			PermissionReviewWrite,
			PermissionOfferRead,
			PermissionChangePassword,
		}
	default:
		return []string{}
	}
}
