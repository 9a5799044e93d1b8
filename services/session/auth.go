package session

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"estately/models"
	"estately/utils"

	"go.uber.org/zap"
)

// Requester is the API surface the auth service needs.
type Requester interface {
	GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error
	PostPublicJSON(ctx context.Context, path string, in, out interface{}) error
}

// AuthService owns the login/logout lifecycle of the single client session.
type AuthService interface {
	Login(ctx context.Context, username, password string) (*models.UserProfile, error)
	Register(ctx context.Context, input RegisterInput) (*models.UserProfile, error)
	Logout() error
	Restore() models.Session
}

// RegisterInput is the registration payload; the server validates it.
type RegisterInput struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	Phone           string `json:"phone,omitempty"`
	Address         string `json:"address,omitempty"`
}

type DefaultAuthService struct {
	Client Requester
	Store  Store
	Logger *zap.Logger
}

// Login exchanges credentials for a token pair, fetches the profile snapshot
// and persists the assembled session. The role is derived here, once; every
// later authorization decision reads it off the session.
func (s *DefaultAuthService) Login(ctx context.Context, username, password string) (*models.UserProfile, error) {
	var tokens struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	payload := map[string]string{"username": username, "password": password}
	if err := s.Client.PostPublicJSON(ctx, "/users/login/", payload, &tokens); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if tokens.Access == "" || tokens.Refresh == "" {
		return nil, fmt.Errorf("login response missing tokens")
	}

	// Store the tokens first so the profile fetch goes out authorized.
	sess := models.Session{AccessToken: tokens.Access, RefreshToken: tokens.Refresh}
	if err := s.Store.Set(sess); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	profile := &models.UserProfile{}
	if err := s.Client.GetJSON(ctx, "/users/me/", nil, profile); err != nil {
		// Tokens are valid even if the profile fetch failed; fall back to the
		// claims embedded in the access token so role gating still works.
		s.logger().Warn("profile fetch after login failed, using token claims", zap.Error(err))
		profile = profileFromClaims(tokens.Access)
		if profile == nil {
			return nil, fmt.Errorf("failed to fetch profile: %w", err)
		}
	}

	sess.Profile = profile
	if err := s.Store.Set(sess); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	s.logger().Info("logged in",
		zap.String("username", profile.Username),
		zap.String("role", string(profile.RoleOf())))
	return profile, nil
}

// Register creates an account. The server's validation errors (password
// mismatch, taken username) surface verbatim.
func (s *DefaultAuthService) Register(ctx context.Context, input RegisterInput) (*models.UserProfile, error) {
	profile := &models.UserProfile{}
	if err := s.Client.PostPublicJSON(ctx, "/users/", input, profile); err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}
	return profile, nil
}

// Logout clears the credential store; tokens and profile go together.
func (s *DefaultAuthService) Logout() error {
	if err := s.Store.Clear(); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	s.logger().Info("logged out")
	return nil
}

// Restore returns the persisted session. A session restored with tokens but
// no cached profile gets a profile hint rebuilt from the access token's
// claims; the server remains authoritative on every subsequent call.
func (s *DefaultAuthService) Restore() models.Session {
	sess := s.Store.Get()
	if !sess.Authenticated() || sess.Profile != nil {
		return sess
	}
	if profile := profileFromClaims(sess.AccessToken); profile != nil {
		sess.Profile = profile
		if err := s.Store.Set(sess); err != nil {
			s.logger().Warn("failed to persist restored profile", zap.Error(err))
		}
	}
	return sess
}

func (s *DefaultAuthService) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return utils.GetLogger()
}

func profileFromClaims(accessToken string) *models.UserProfile {
	claims, err := utils.PeekClaims(accessToken)
	if err != nil {
		return nil
	}
	id, _ := strconv.ParseInt(claims.Subject, 10, 64)
	return &models.UserProfile{
		ID:       id,
		Username: claims.Username,
		Email:    claims.Email,
		IsAdmin:  claims.IsAdmin,
	}
}
