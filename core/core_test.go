// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"

	"github.com/goccy/go-json"
)

func TestOperationsJSONUnmarshalling(t *testing.T) {
	type Object struct {
		Operations []Operation `json:"operations"`
	}
	var object Object
	jsonRead := `{"operations":["create","read","update","delete","list"]}`
	if err := json.Unmarshal([]byte(jsonRead), &object); err != nil {
		t.Fatal(err)
	}

	jsonRead = `{"operations":["invalid"]}`
	if err := json.Unmarshal([]byte(jsonRead), &object); err == nil {
		t.Fatal("invalid operation accepted")
	}
}

func TestPlural(t *testing.T) {
	cases := map[string]string{
		"pet":        "pets",
		"human":      "humans",
		"entity":     "entities",
		"grandchild": "grandchildren",
	}
	for singular, plural := range cases {
		if got := Plural(singular); got != plural {
			t.Fatalf("Plural(%s) = %s, want %s", singular, got, plural)
		}
	}
}

type corePrincipal string

func (p corePrincipal) Identity() string { return string(p) }

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	if PrincipalFromContext(ctx) != nil {
		t.Fatal("empty context carries a principal")
	}
	ctx = ContextWithPrincipal(ctx, corePrincipal("alice"))
	p := PrincipalFromContext(ctx)
	if p == nil || p.Identity() != "alice" {
		t.Fatalf("principal round trip: %v", p)
	}
}

func TestConfigurationError(t *testing.T) {
	err := Configurationf("type %s is incomplete", "pet")
	if !IsConfigurationError(err) {
		t.Fatal("IsConfigurationError")
	}
	if IsConfigurationError(ErrNotFound) {
		t.Fatal("sentinel misdetected as configuration error")
	}
	wrapped := fmt.Errorf("while serving: %w", err)
	if !IsConfigurationError(wrapped) {
		t.Fatal("wrapped configuration error not detected")
	}
	if errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotFound) {
		t.Fatal("configuration error matches a client sentinel")
	}
}

func jwtTestRouter(secret []byte) *mux.Router {
	router := mux.NewRouter()
	router.Use(MustNewJwtMiddleware(&JwtMiddlewareBuilder{Secret: secret}))
	router.HandleFunc("/whoami", func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFromContext(r.Context())
		if p == nil {
			http.Error(w, "no principal", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(p.Identity()))
	})
	return router
}

func TestJwtMiddleware(t *testing.T) {
	secret := []byte("test-secret")
	router := jwtTestRouter(secret)

	// no token
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	// valid token with identity claim
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"identity": "alice",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "alice" {
		t.Fatalf("expected alice, got %d %q", rec.Code, rec.Body.String())
	}

	// token signed with the wrong secret
	signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"identity": "mallory",
	}).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatal(err)
	}
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestJwtMiddlewareSubjectFallback(t *testing.T) {
	secret := []byte("test-secret")
	router := jwtTestRouter(secret)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "bob",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "bob" {
		t.Fatalf("expected bob, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestJwtMiddlewarePassesExistingPrincipal(t *testing.T) {
	router := jwtTestRouter([]byte("test-secret"))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req = req.WithContext(ContextWithPrincipal(req.Context(), corePrincipal("injected")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "injected" {
		t.Fatalf("expected injected principal, got %d %q", rec.Code, rec.Body.String())
	}
}
