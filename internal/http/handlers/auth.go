package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/iach526526/pastexam/internal/infra"
	"github.com/iach526526/pastexam/internal/middleware"
	"github.com/iach526526/pastexam/internal/sqlinline"
)

const (
	// Blacklisted tokens stay on the deny list long enough to outlive any
	// token that was valid when it got revoked.
	blacklistTTL = 2 * time.Hour

	oauthStateTTL = 10 * time.Minute
)

func blacklistKey(token string) string {
	return "blacklist:" + token
}

// IsTokenBlacklisted satisfies middleware.BlacklistChecker.
func (a *App) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := a.Redis.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string  `json:"access_token"`
	Type  string  `json:"token_type"`
	User  userDTO `json:"user"`
}

// Login authenticates a local account by username and password.
func (a *App) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Username == "" || req.Password == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "username and password required")
		return
	}

	var (
		id                              int64
		username, name, nickname, email string
		passwordHash                    string
		isAdmin                         bool
	)
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSelectUserByUsername, req.Username)
	err := row.Scan(&id, &username, &name, &nickname, &email, &passwordHash, &isAdmin)
	if infra.IsNoRows(err) || (err == nil && passwordHash == "") {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Msg("load user failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load user")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)) != nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}

	if _, err := a.SQL.Exec(r.Context(), sqlinline.QTouchLastLogin, id); err != nil {
		a.Logger.Warn().Err(err).Msg("touch last login failed")
	}

	token, err := middleware.SignJWT(a.Cfg.JWTSecret, id, isAdmin, a.Cfg.TokenTTL)
	if err != nil {
		a.Logger.Error().Err(err).Msg("sign jwt failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}

	a.json(w, http.StatusOK, loginResponse{
		Token: token,
		Type:  "bearer",
		User: userDTO{
			ID:       id,
			Username: username,
			Name:     name,
			Nickname: nickname,
			Email:    email,
			IsAdmin:  isAdmin,
		},
	})
}

// OAuthLogin redirects the browser to the identity provider.
func (a *App) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	if a.Cfg.OAuthAuthURL == "" || a.Cfg.OAuthClientID == "" {
		a.error(w, http.StatusServiceUnavailable, "oauth_disabled", "oauth login is not configured")
		return
	}

	state := uuid.NewString()
	if err := a.Redis.Set(r.Context(), "oauth_state:"+state, "1", oauthStateTTL).Err(); err != nil {
		a.Logger.Error().Err(err).Msg("store oauth state failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to start oauth flow")
		return
	}

	q := url.Values{}
	q.Set("client_id", a.Cfg.OAuthClientID)
	q.Set("redirect_uri", a.Cfg.OAuthRedirectURI)
	q.Set("response_type", "code")
	q.Set("state", state)
	http.Redirect(w, r, a.Cfg.OAuthAuthURL+"?"+q.Encode(), http.StatusFound)
}

type oauthTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type oauthUserinfo struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// OAuthCallback exchanges the authorization code, upserts the user, and
// returns a signed token.
func (a *App) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "code and state required")
		return
	}

	n, err := a.Redis.Del(r.Context(), "oauth_state:"+state).Result()
	if err != nil || n == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "unknown oauth state")
		return
	}

	token, err := a.exchangeCode(r.Context(), code)
	if err != nil {
		a.Logger.Error().Err(err).Msg("oauth code exchange failed")
		a.error(w, http.StatusUnauthorized, "unauthorized", "oauth exchange failed")
		return
	}

	info, err := a.fetchUserinfo(r.Context(), token)
	if err != nil {
		a.Logger.Error().Err(err).Msg("oauth userinfo failed")
		a.error(w, http.StatusUnauthorized, "unauthorized", "oauth userinfo failed")
		return
	}
	if info.Sub == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "oauth userinfo missing subject")
		return
	}

	var (
		id      int64
		isAdmin bool
	)
	row := a.SQL.QueryRow(r.Context(), sqlinline.QUpsertOAuthUser, info.Sub, info.Name, info.Email)
	if err := row.Scan(&id, &isAdmin); err != nil {
		a.Logger.Error().Err(err).Msg("upsert oauth user failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to persist user")
		return
	}

	signed, err := middleware.SignJWT(a.Cfg.JWTSecret, id, isAdmin, a.Cfg.TokenTTL)
	if err != nil {
		a.Logger.Error().Err(err).Msg("sign jwt failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}

	a.json(w, http.StatusOK, map[string]string{
		"access_token": signed,
		"token_type":   "bearer",
	})
}

func (a *App) exchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", a.Cfg.OAuthClientID)
	form.Set("client_secret", a.Cfg.OAuthClientSecret)
	form.Set("redirect_uri", a.Cfg.OAuthRedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Cfg.OAuthTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("token endpoint status %d", resp.StatusCode)
	}

	var tok oauthTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token")
	}
	return tok.AccessToken, nil
}

func (a *App) fetchUserinfo(ctx context.Context, accessToken string) (*oauthUserinfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.Cfg.OAuthUserinfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("userinfo endpoint status %d", resp.StatusCode)
	}

	var info oauthUserinfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Logout revokes the presented token until it would have expired anyway.
func (a *App) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := a.currentUser(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if err := a.Redis.Set(r.Context(), blacklistKey(id.Token), "1", blacklistTTL).Err(); err != nil {
		a.Logger.Error().Err(err).Msg("blacklist token failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to revoke token")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"message": "logged out"})
}
