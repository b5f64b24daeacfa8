package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSignAndVerifyJWT(t *testing.T) {
	token, err := SignJWT("secret", 42, true, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := VerifyJWT("secret", token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UID != 42 {
		t.Fatalf("uid = %d, want 42", claims.UID)
	}
	if !claims.IsAdmin {
		t.Fatalf("is_admin = false, want true")
	}
}

func TestVerifyJWTWrongSecret(t *testing.T) {
	token, err := SignJWT("secret", 1, false, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := VerifyJWT("other", token); err == nil {
		t.Fatalf("expected error for wrong secret")
	}
}

func TestVerifyJWTExpired(t *testing.T) {
	token, err := SignJWT("secret", 1, false, -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := VerifyJWT("secret", token); err != ErrTokenExpired {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyJWTMalformed(t *testing.T) {
	cases := []string{
		"",
		"a.b",
		"a.b.c.d",
		"not-a-token",
	}
	for _, tc := range cases {
		if _, err := VerifyJWT("secret", tc); err == nil {
			t.Fatalf("expected error for %q", tc)
		}
	}
}

func TestAuthJWTMiddleware(t *testing.T) {
	token, err := SignJWT("secret", 7, false, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	var gotID Identity
	handler := AuthJWT("secret", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			t.Fatalf("identity missing from context")
		}
		gotID = id
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotID.UserID != 7 {
		t.Fatalf("user id = %d, want 7", gotID.UserID)
	}
}

func TestAuthJWTMissingToken(t *testing.T) {
	handler := AuthJWT("secret", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthJWTBlacklistedToken(t *testing.T) {
	token, err := SignJWT("secret", 7, false, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	blacklist := func(ctx context.Context, tok string) (bool, error) {
		return tok == token, nil
	}

	handler := AuthJWT("secret", blacklist)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid token") {
		t.Fatalf("body = %q, want invalid token message", rec.Body.String())
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"", ""},
		{"Bearer", ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if got := BearerToken(req); got != tc.want {
			t.Fatalf("BearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
