// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package core

import (
	"context"
)

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

// the predefined context key
const (
	contextKeyPrincipal contextKey = "_principal_"
)

/*Principal is the resolved identity associated with the current request.

A principal is added to a request context with

  ctx = ContextWithPrincipal(ctx, principal)

and retrieved with

  principal := PrincipalFromContext(ctx)

Principals are added to the context by an authentication middleware,
for example the JWT middleware from this package. The CRUD views use
the principal for access control checks and audit logging. A nil
principal means the request is anonymous.
*/
type Principal interface {
	// Identity returns a stable identifier for this principal,
	// suitable for audit logs and ownership comparisons.
	Identity() string
}

// ContextWithPrincipal returns a new context with the principal added to it
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal, p)
}

// PrincipalFromContext retrieves a principal from the context. It returns
// nil if the request carries no identity.
func PrincipalFromContext(ctx context.Context) Principal {
	p, ok := ctx.Value(contextKeyPrincipal).(Principal)
	if ok {
		return p
	}
	return nil
}
