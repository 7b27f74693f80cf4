package auth

import "context"

// EnsureSellerScope checks that the caller may read data for sellerID.
// Seller tokens are limited to their own seller; finance and admin see all.
func EnsureSellerScope(ctx context.Context, sellerID string) error {
	role := RoleFromContext(ctx)
	switch role {
	case RoleFinance, RoleAdmin:
		return nil
	case RoleSeller:
		if sellerID != "" && sellerID == SellerIDFromContext(ctx) {
			return nil
		}
		return ErrForbidden
	default:
		// Requests that bypassed the middleware carry no identity.
		if role == "" && SubjectFromContext(ctx) == "" {
			return nil
		}
		return ErrForbidden
	}
}

// ScopedSellerID returns the seller id a request should be narrowed to.
// Seller tokens always resolve to their own seller id.
func ScopedSellerID(ctx context.Context, requested string) string {
	if RoleFromContext(ctx) == RoleSeller {
		return SellerIDFromContext(ctx)
	}
	return requested
}
