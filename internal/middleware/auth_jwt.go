package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

type ctxKey string

const identityKey ctxKey = "identity"

const (
	jwtIssuer   = "pastexam"
	jwtAudience = "pastexam-web"
)

// TokenClaims is the payload carried inside access tokens.
type TokenClaims struct {
	UID      int64  `json:"uid"`
	IsAdmin  bool   `json:"is_admin"`
	Exp      int64  `json:"exp"`
	Issuer   string `json:"iss"`
	Audience string `json:"aud"`
}

// Identity is the authenticated principal stored in the request context.
type Identity struct {
	UserID  int64
	IsAdmin bool
	Token   string
	Exp     time.Time
}

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

func b64(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// SignJWT creates a compact HS256 token for the given user.
func SignJWT(secret string, uid int64, isAdmin bool, ttl time.Duration) (string, error) {
	header := b64([]byte(`{"alg":"HS256","typ":"JWT"}`))

	claims := TokenClaims{
		UID:      uid,
		IsAdmin:  isAdmin,
		Exp:      time.Now().Add(ttl).Unix(),
		Issuer:   jwtIssuer,
		Audience: jwtAudience,
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	signingInput := header + "." + b64(payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signingInput))
	return signingInput + "." + b64(mac.Sum(nil)), nil
}

// VerifyJWT validates signature, expiry, issuer, and audience.
func VerifyJWT(secret, token string) (*TokenClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrTokenInvalid
	}

	signingInput := parts[0] + "." + parts[1]
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signingInput))
	expected := b64(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return nil, ErrTokenInvalid
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrTokenInvalid
	}

	var claims TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrTokenInvalid
	}
	if claims.Issuer != jwtIssuer || claims.Audience != jwtAudience {
		return nil, ErrTokenInvalid
	}
	if time.Now().Unix() >= claims.Exp {
		return nil, ErrTokenExpired
	}
	return &claims, nil
}

// BlacklistChecker reports whether a token has been revoked by logout.
type BlacklistChecker func(ctx context.Context, token string) (bool, error)

// AuthJWT authenticates requests via the Authorization bearer header and
// rejects blacklisted tokens. The identity lands in the request context.
func AuthJWT(secret string, isBlacklisted BlacklistChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				unauthorized(w, "missing token")
				return
			}

			claims, err := VerifyJWT(secret, token)
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}

			if isBlacklisted != nil {
				revoked, err := isBlacklisted(r.Context(), token)
				if err != nil || revoked {
					unauthorized(w, "invalid token")
					return
				}
			}

			id := Identity{
				UserID:  claims.UID,
				IsAdmin: claims.IsAdmin,
				Token:   token,
				Exp:     time.Unix(claims.Exp, 0),
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// BearerToken extracts a bearer token from the Authorization header.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// WithIdentity stores the authenticated principal in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom retrieves the authenticated principal, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   "unauthorized",
		"message": msg,
	})
}
