package security

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/storefront/internal/security/auth"
)

// Role represents an operator role
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleStoreOwner Role = "store_owner"
	RoleEditor     Role = "editor"
)

// Permission represents an action permission
type Permission string

const (
	PermInstallTheme    Permission = "install_theme"
	PermInvalidateCache Permission = "invalidate_cache"
	PermViewCacheStats  Permission = "view_cache_stats"
	PermUseStudio       Permission = "use_studio"
)

// RolePermissions maps roles to their permissions
var RolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermInstallTheme,
		PermInvalidateCache,
		PermViewCacheStats,
		PermUseStudio,
	},
	RoleStoreOwner: {
		PermInstallTheme,
		PermInvalidateCache,
		PermUseStudio,
	},
	RoleEditor: {
		PermUseStudio,
	},
}

// AuthorizationService handles authorization checks
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{
		logger: logger,
	}
}

// HasPermission checks if a role has a specific permission
func (as *AuthorizationService) HasPermission(role Role, permission Permission) bool {
	for _, p := range RolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// ValidatePermission validates that a role has a specific permission
func (as *AuthorizationService) ValidatePermission(role Role, permission Permission) error {
	if !as.HasPermission(role, permission) {
		as.logger.Warn("permission denied",
			slog.String("role", string(role)),
			slog.String("permission", string(permission)),
		)
		return fmt.Errorf("permission denied: %s role cannot %s", role, permission)
	}
	return nil
}

// ValidateStoreAccess checks a token scoped to tokenStoreID may act on
// storeID. Admins reach every store.
func (as *AuthorizationService) ValidateStoreAccess(role Role, tokenStoreID, storeID string) error {
	if role == RoleAdmin {
		return nil
	}
	if tokenStoreID == "" || tokenStoreID != storeID {
		as.logger.Warn("store access denied",
			slog.String("token_store", tokenStoreID),
			slog.String("requested_store", storeID),
		)
		return fmt.Errorf("access denied: token is not valid for store %s", storeID)
	}
	return nil
}

// Authorize combines the permission and store checks for claims
func (as *AuthorizationService) Authorize(claims *auth.Claims, permission Permission, storeID string) error {
	if claims == nil {
		return errors.New("access denied: no credentials")
	}
	role := Role(claims.Role)
	if err := as.ValidatePermission(role, permission); err != nil {
		return err
	}
	if storeID == "" {
		return nil
	}
	return as.ValidateStoreAccess(role, claims.StoreID, storeID)
}
