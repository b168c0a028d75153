package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/medianest/gateway/internal/core"
	"github.com/medianest/gateway/internal/store"
)

// Verifier resolves a bearer credential to a live user identity. Pure
// verification: it never mints credentials and has no side effects.
type Verifier struct {
	users     store.UserStore
	jwtConfig *JWTConfig
}

// NewVerifier builds a verifier over the user-lookup collaborator.
func NewVerifier(users store.UserStore, jwtConfig *JWTConfig) *Verifier {
	return &Verifier{users: users, jwtConfig: jwtConfig}
}

// Verify validates the credential and resolves it to an identity.
// An absent, malformed, expired, or wrongly signed token yields
// core.ErrUnauthenticated; a valid token whose user is missing or
// inactive yields core.ErrIdentityRejected.
func (v *Verifier) Verify(ctx context.Context, credential string) (*core.Identity, error) {
	if credential == "" {
		return nil, core.ErrUnauthenticated
	}

	claims, err := ValidateToken(v.jwtConfig, credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}

	user, err := v.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.ErrIdentityRejected
		}
		return nil, fmt.Errorf("lookup user %d: %w", claims.UserID, err)
	}
	if !user.IsActive {
		return nil, core.ErrIdentityRejected
	}

	role := core.RoleUser
	if user.IsAdmin {
		role = core.RoleAdmin
	}
	return &core.Identity{
		UserID: user.ID,
		Role:   role,
		Email:  user.Email,
	}, nil
}
