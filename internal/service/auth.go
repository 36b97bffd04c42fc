// Package service implements the application-facing operations: session and
// identity, and reading-data mutations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	gosync "sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/readwellapp/readwell-sync/internal/auth"
	"github.com/readwellapp/readwell-sync/internal/domain"
	domainerrors "github.com/readwellapp/readwell-sync/internal/errors"
	"github.com/readwellapp/readwell-sync/internal/id"
	"github.com/readwellapp/readwell-sync/internal/store"
)

// validate is a shared validator instance for request validation.
var validate = func() *validator.Validate {
	v := validator.New()
	// Use JSON tag names for field names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("json")
		if name == "" {
			return fld.Name
		}
		// Remove any options (like omitempty, -)
		for i := range len(name) {
			if name[i] == ',' {
				return name[:i]
			}
		}
		return name
	})
	return v
}()

// AuthListener receives session transitions. The user is nil unless the
// status is authenticated.
type AuthListener func(status domain.AuthStatus, user *domain.User)

// AuthService owns the device session: who is signed in, their access token,
// and the loading -> authenticated/unauthenticated state machine. Consumers
// subscribe rather than poll; a new subscriber immediately receives the
// current state.
type AuthService struct {
	store  *store.Store
	tokens *auth.TokenService
	logger *slog.Logger

	mu          gosync.Mutex
	status      domain.AuthStatus
	user        *domain.User
	accessToken string
	listeners   map[int]AuthListener
	nextID      int
}

// NewAuthService creates an auth service in the loading state. Call Hydrate
// to resolve it against the stored session.
func NewAuthService(s *store.Store, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		store:     s,
		tokens:    tokens,
		logger:    logger,
		status:    domain.AuthStatusLoading,
		listeners: make(map[int]AuthListener),
	}
}

// RegisterRequest contains user registration data.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=1024"`
	Nickname string `json:"nickname" validate:"required,min=2,max=64"`
}

// LoginRequest contains user credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileRequest contains editable profile fields.
type UpdateProfileRequest struct {
	Nickname string `json:"nickname" validate:"omitempty,min=2,max=64"`
	Avatar   string `json:"avatar" validate:"omitempty,max=2048"`
}

// AuthResponse contains the signed-in user and their access token.
type AuthResponse struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
}

// Hydrate resolves the loading state from the stored current-user record.
// Runs once at startup; every outcome leaves the service out of loading.
func (s *AuthService) Hydrate(ctx context.Context) error {
	user, err := s.store.CurrentUser(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNoCurrentUser) && s.logger != nil {
			// A broken session record degrades to signed-out, not to a crash.
			s.logger.Warn("failed to restore session", "error", err)
		}
		s.transition(domain.AuthStatusUnauthenticated, nil, "")
		return nil
	}

	token, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return fmt.Errorf("mint access token: %w", err)
	}

	s.transition(domain.AuthStatusAuthenticated, user, token)
	if s.logger != nil {
		s.logger.Info("session restored", "user_id", user.ID)
	}
	return nil
}

// Register creates an account and signs it in.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	req.Nickname = strings.TrimSpace(req.Nickname)
	if err := validate.Struct(req); err != nil {
		return nil, formatValidationError(err)
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	userID, err := id.Generate("user")
	if err != nil {
		return nil, fmt.Errorf("generate user ID: %w", err)
	}

	user := &domain.User{
		ID:           userID,
		Email:        req.Email,
		Nickname:     req.Nickname,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	return s.signIn(ctx, user)
}

// Login verifies credentials and signs the user in. The error never reveals
// whether the email or the password was the wrong half.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, formatValidationError(err)
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, domainerrors.InvalidCredentials("invalid email or password")
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	valid, err := auth.VerifyPassword(user.PasswordHash, req.Password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !valid {
		return nil, domainerrors.InvalidCredentials("invalid email or password")
	}

	return s.signIn(ctx, user)
}

// Logout clears the session. Reading data stays on the device.
func (s *AuthService) Logout(ctx context.Context) error {
	if err := s.store.ClearCurrentUser(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	userID := ""
	if s.user != nil {
		userID = s.user.ID
	}
	s.mu.Unlock()

	s.transition(domain.AuthStatusUnauthenticated, nil, "")
	if s.logger != nil && userID != "" {
		s.logger.Info("user logged out", "user_id", userID)
	}
	return nil
}

// UpdateProfile edits the signed-in user's nickname or avatar.
func (s *AuthService) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*domain.User, error) {
	req.Nickname = strings.TrimSpace(req.Nickname)
	if err := validate.Struct(req); err != nil {
		return nil, formatValidationError(err)
	}

	s.mu.Lock()
	current := s.user
	s.mu.Unlock()
	if current == nil {
		return nil, domainerrors.Unauthorized("not signed in")
	}

	user, err := s.store.GetUser(ctx, current.ID)
	if err != nil {
		return nil, err
	}
	if req.Nickname != "" {
		user.Nickname = req.Nickname
	}
	if req.Avatar != "" {
		user.Avatar = req.Avatar
	}
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()

	return user.Sanitized(), nil
}

// Status returns the current session status.
func (s *AuthService) Status() domain.AuthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsAuthenticated reports whether a user is signed in.
func (s *AuthService) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == domain.AuthStatusAuthenticated
}

// CurrentUser returns the signed-in user, or nil.
func (s *AuthService) CurrentUser() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	return s.user.Sanitized()
}

// AccessToken returns the session's bearer token. Satisfies the gateway's
// token source.
func (s *AuthService) AccessToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accessToken == "" {
		return "", domainerrors.Unauthorized("not signed in")
	}
	return s.accessToken, nil
}

// OnAuthChange registers a listener and immediately replays the current
// state to it. The returned function unsubscribes.
func (s *AuthService) OnAuthChange(listener AuthListener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	status, user := s.status, s.user
	s.mu.Unlock()

	listener(status, user)

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// signIn records the session and notifies subscribers.
func (s *AuthService) signIn(ctx context.Context, user *domain.User) (*AuthResponse, error) {
	if err := s.store.SetCurrentUser(ctx, user.ID); err != nil {
		return nil, err
	}

	token, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}

	s.transition(domain.AuthStatusAuthenticated, user, token)
	if s.logger != nil {
		s.logger.Info("user logged in", "user_id", user.ID)
	}

	return &AuthResponse{User: user.Sanitized(), AccessToken: token}, nil
}

// transition swaps the session state and fans out to listeners outside the
// lock.
func (s *AuthService) transition(status domain.AuthStatus, user *domain.User, token string) {
	s.mu.Lock()
	s.status = status
	s.user = user
	s.accessToken = token
	targets := make([]AuthListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		targets = append(targets, l)
	}
	s.mu.Unlock()

	for _, l := range targets {
		l(status, user)
	}
}

// formatValidationError converts validator errors into user-facing domain
// errors, reporting the first failed field.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, e := range validationErrs {
			field := e.Field()
			switch e.Tag() {
			case "required":
				return domainerrors.Validationf("%s is required", field)
			case "email":
				return domainerrors.Validationf("%s must be a valid email address", field)
			case "min":
				return domainerrors.Validationf("%s must be at least %s characters", field, e.Param())
			case "max":
				return domainerrors.Validationf("%s exceeds maximum length of %s characters", field, e.Param())
			default:
				return domainerrors.Validationf("%s is invalid", field)
			}
		}
	}
	return err
}
