package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/sakif/garden-companion/internal/apperror"
	"github.com/sakif/garden-companion/internal/auth"
	"github.com/sakif/garden-companion/internal/model"
	"github.com/sakif/garden-companion/internal/repository"
)

const MaxDisplayNameLength = 60

// badCredentials is the message for every sign-in failure, so callers cannot
// tell an unknown email from a wrong password.
const badCredentials = "invalid email or password"

// AuthService handles the authentication business logic.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                               ↘ TokenService (JWT)
//	                               ↘ SessionPublisher (session events)
//
// Every successful transition (sign-up, sign-in, sign-out) is published as a
// SessionEvent. Nothing in this service holds a "current user": identity
// travels with each request as a token.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	sessions  *SessionPublisher
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	sessions *SessionPublisher,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		sessions:  sessions,
		logger:    orDiscard(logger),
	}
}

// AuthResult bundles the user and the issued JWT so the handler can set the
// cookie and respond in one step.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// SignUp creates an email/password account and signs it in.
func (s *AuthService) SignUp(ctx context.Context, email, password, displayName string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	displayName = strings.TrimSpace(displayName)
	if len(displayName) > MaxDisplayNameLength {
		return nil, apperror.ValidationFailed("displayName",
			fmt.Sprintf("display name must be %d characters or less", MaxDisplayNameLength))
	}
	if displayName == "" {
		displayName, _, _ = strings.Cut(email, "@")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:                email,
		PasswordHash:         hash,
		DisplayName:          displayName,
		ExperienceLevel:      model.ExperienceBeginner,
		NotificationsEnabled: true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.Conflict("account", email)
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user signed up", slog.String("userID", user.ID))
	return s.issue(ctx, user, SessionSignedUp, MethodPassword)
}

// SignIn checks an email/password pair.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperror.Unauthorized(badCredentials)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(badCredentials)
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}
	// GitHub-only accounts have no password hash.
	if user.PasswordHash == "" {
		return nil, apperror.Unauthorized(badCredentials)
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.Unauthorized(badCredentials)
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	s.logger.Info("user signed in", slog.String("userID", user.ID))
	return s.issue(ctx, user, SessionSignedIn, MethodPassword)
}

// SignOut announces the transition. Tokens are stateless, so the handler
// clearing the cookie (and the client dropping its token) is the rest of it.
func (s *AuthService) SignOut(ctx context.Context, userID string) error {
	if userID == "" {
		return apperror.Unauthorized("not signed in")
	}
	s.sessions.Publish(ctx, SessionSignedOut, userID, "")
	s.logger.Info("user signed out", slog.String("userID", userID))
	return nil
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback: the account
// linked to the GitHub ID is created on first login and refreshed after.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	ghID := ghUser.ID
	user := &model.User{
		Email:                strings.ToLower(strings.TrimSpace(ghUser.Email)),
		GitHubID:             &ghID,
		DisplayName:          ghUser.DisplayName(),
		ProfileImage:         ghUser.AvatarURL,
		ExperienceLevel:      model.ExperienceBeginner,
		NotificationsEnabled: true,
	}

	if err := s.users.UpsertGitHub(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			// The GitHub email already belongs to a password account.
			return nil, apperror.Conflict("account", user.Email)
		}
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", ghUser.Login),
	)
	return s.issue(ctx, user, SessionSignedIn, MethodGitHub)
}

// GetUserByID backs /api/me.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("not signed in")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// ValidateToken returns the user ID a token was issued for.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", apperror.Unauthorized(err.Error())
	}
	return userID, nil
}

func (s *AuthService) issue(ctx context.Context, user *model.User, kind SessionEventKind, method string) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	s.sessions.Publish(ctx, kind, user.ID, method)
	return &AuthResult{User: user, Token: token}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "email address is not valid")
	}
	return email, nil
}
