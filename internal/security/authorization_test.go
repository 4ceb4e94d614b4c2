package security

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aryan0dhankhar/storefront/internal/security/auth"
)

func TestAuthorize(t *testing.T) {
	as := NewAuthorizationService(nil)
	claims := func(store string, role Role) *auth.Claims {
		return &auth.Claims{StoreID: store, Role: string(role)}
	}

	cases := []struct {
		name    string
		claims  *auth.Claims
		perm    Permission
		storeID string
		allowed bool
	}{
		{"admin reaches any store", claims("", RoleAdmin), PermInstallTheme, "s9", true},
		{"owner installs own theme", claims("s1", RoleStoreOwner), PermInstallTheme, "s1", true},
		{"owner cannot touch other stores", claims("s1", RoleStoreOwner), PermInvalidateCache, "s2", false},
		{"owner cannot read global stats", claims("s1", RoleStoreOwner), PermViewCacheStats, "", false},
		{"editor uses studio", claims("s1", RoleEditor), PermUseStudio, "s1", true},
		{"editor cannot install", claims("s1", RoleEditor), PermInstallTheme, "s1", false},
		{"unknown role", claims("s1", "guest"), PermUseStudio, "s1", false},
		{"no claims", nil, PermUseStudio, "s1", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := as.Authorize(tc.claims, tc.perm, tc.storeID)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
