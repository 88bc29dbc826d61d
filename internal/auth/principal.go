// SPDX-License-Identifier: MIT

package auth

import "context"

// Principal is the authenticated caller derived from a verified token.
type Principal struct {
	Subject  string
	Username string
	Roles    []string
}

// HasRoles reports whether the principal holds every required role. The
// check is conjunctive: one missing role denies access.
func (p Principal) HasRoles(required ...string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(p.Roles))
	for _, r := range p.Roles {
		have[r] = struct{}{}
	}
	for _, r := range required {
		if _, ok := have[r]; !ok {
			return false
		}
	}
	return true
}

type principalKey struct{}

// ContextWithPrincipal stores the authenticated principal in the context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext extracts the principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
