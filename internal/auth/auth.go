package auth

import (
	"context"
	"strings"
)

// Identity is who is making a request, as asserted by the upstream gateway.
// A zero UserID means the caller is anonymous.
type Identity struct {
	UserID int64
	Email  string
}

func (i Identity) Authenticated() bool {
	return i.UserID > 0
}

// AuthorizationContext decides whether an identity may bypass scheduling
// restrictions (holidays, blocked dates, working hours, booking windows).
type AuthorizationContext interface {
	HasSchedulingBypass(ctx context.Context, id Identity) bool
}

// Caller is an identity with its bypass capability already resolved. It is
// built once per request and passed down explicitly.
type Caller struct {
	Identity
	Bypass bool
}

func ResolveCaller(ctx context.Context, authz AuthorizationContext, id Identity) Caller {
	id.Email = strings.TrimSpace(id.Email)
	caller := Caller{Identity: id}
	if authz != nil && id.Authenticated() {
		caller.Bypass = authz.HasSchedulingBypass(ctx, id)
	}
	return caller
}

// Anonymous is a caller with no identity and no privileges.
func Anonymous() Caller {
	return Caller{}
}
