package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/garden-companion/internal/apperror"
	"github.com/sakif/garden-companion/internal/auth"
	"github.com/sakif/garden-companion/internal/model"
	"github.com/sakif/garden-companion/internal/service"
)

const stateCookieName = "oauth_state"

// AuthService is the part of service.AuthService the handler calls.
type AuthService interface {
	SignUp(ctx context.Context, email, password, displayName string) (*service.AuthResult, error)
	SignIn(ctx context.Context, email, password string) (*service.AuthResult, error)
	SignOut(ctx context.Context, userID string) error
	LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*service.AuthResult, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// GitHubAuthenticator is implemented by *auth.GitHubProvider.
type GitHubAuthenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthHandler serves sign-up, sign-in, sign-out, the GitHub OAuth flow and
// /api/me.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSignUp / HandleSignIn → JSON credentials in, {user, token} out
//   - HandleSignOut               → announce the sign-out, clear the cookie
//   - HandleGitHubLogin           → redirect the browser to GitHub
//   - HandleGitHubCallback        → exchange the code, issue the JWT cookie
//   - HandleMe                    → the signed-in user's profile
//
// The token is returned in the body for the mobile client and set as an
// HttpOnly cookie for browsers. auth.RequireAuth accepts either.
type AuthHandler struct {
	auth     AuthService
	github   GitHubAuthenticator // nil when GitHub sign-in is not configured
	tokenTTL time.Duration
	logger   *slog.Logger
}

func NewAuthHandler(svc AuthService, github GitHubAuthenticator, tokenTTL time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     svc,
		github:   github,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleSignUp creates an email/password account.
//
// HTTP: POST /auth/signup
// REQUEST BODY: {"email": "...", "password": "...", "displayName": "..."}
// RESPONSE: 201 {"user": {...}, "token": "..."}
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, result.Token)
	writeJSON(w, http.StatusCreated, result)
}

// HandleSignIn checks an email/password pair.
//
// HTTP: POST /auth/signin
// REQUEST BODY: {"email": "...", "password": "..."}
// RESPONSE: 200 {"user": {...}, "token": "..."}, or 401 for bad credentials
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, result.Token)
	writeJSON(w, http.StatusOK, result)
}

// HandleSignOut clears the JWT cookie.
//
// HTTP: POST /auth/signout
// Auth: Required
//
// WHY POST AND NOT GET?
// Sign-out changes state. A GET could be triggered by CSRF or by a browser
// pre-fetching the URL.
//
// Tokens are stateless, so the token itself stays valid until it expires;
// the client is expected to drop it.
func (h *AuthHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if err := h.auth.SignOut(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}

	clearCookie(w, auth.CookieName)
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived cookie and into the redirect.
// HandleGitHubCallback only proceeds when GitHub hands the same value back.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.NotFound("sign-in method", "github"))
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub user profile
//  3. Find or create the linked account
//  4. Issue a JWT access token stored in an HttpOnly cookie
//  5. Redirect to the app home page
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.NotFound("sign-in method", "github"))
		return
	}

	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// The state cookie is single-use.
	clearCookie(w, stateCookieName)

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	// --- Step 2: Exchange code for GitHub user profile ---
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		writeError(w, apperror.Unauthorized("GitHub authentication failed"))
		return
	}

	// --- Step 3: Find or create the account ---
	result, err := h.auth.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("auth callback: login failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	// --- Step 4 and 5: Issue JWT cookie and go home ---
	h.setTokenCookie(w, result.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleMe returns the currently authenticated user's profile.
//
// HTTP: GET /api/me
// Auth: Required (RequireAuth middleware sets userID in context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	user, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// setTokenCookie stores the JWT for browser clients.
// HttpOnly = JavaScript cannot read this cookie (XSS protection).
// SameSite=Lax = sent on top-level navigations but not cross-site POSTs.
func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // tells the browser to delete the cookie immediately
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
