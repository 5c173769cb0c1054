// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package core

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"

	"github.com/crudkit-tech/crudkit/core/logger"
)

// JwtMiddlewareBuilder is a helper builder for the JWT middleware
type JwtMiddlewareBuilder struct {
	// Secret is the HMAC signing secret shared with the token issuer. This is mandatory.
	Secret []byte
}

type jwtPrincipal struct {
	identity string
}

func (p jwtPrincipal) Identity() string {
	return p.identity
}

type jwtClaims struct {
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

// MustNewJwtMiddleware returns a middleware handler that verifies a JWT
// bearer token and adds the token's principal to the request context.
//
// The middleware only establishes identity; it never authorizes anything.
// Requests without a bearer token are rejected with 401. Requests which
// already carry a principal in their context pass through unchanged, so an
// in-process client can inject authorizations directly.
func MustNewJwtMiddleware(jmb *JwtMiddlewareBuilder) mux.MiddlewareFunc {
	if len(jmb.Secret) == 0 {
		panic("jwt middleware: Secret is missing")
	}

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return jmb.Secret, nil
	}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if PrincipalFromContext(r.Context()) != nil { // we are already authenticated
				h.ServeHTTP(w, r)
				return
			}

			bearer := r.Header.Get("Authorization")
			if len(bearer) < 8 || strings.ToLower(bearer[:7]) != "bearer " {
				http.Error(w, "bearer token missing", http.StatusUnauthorized)
				return
			}
			tokenString := bearer[7:]

			claims := jwtClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, keyFunc)
			if err != nil || !token.Valid {
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}

			identity := claims.Identity
			if identity == "" {
				identity = claims.Subject
			}
			if identity == "" {
				http.Error(w, "token carries no identity", http.StatusUnauthorized)
				return
			}

			ctx := ContextWithPrincipal(r.Context(), jwtPrincipal{identity: identity})
			ctx, _ = logger.ContextWithLoggerIdentity(ctx, identity)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
