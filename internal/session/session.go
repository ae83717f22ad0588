// Package session holds the signed-in user's bearer token and cached profile
// and implements the GitHub OAuth authorization-code handshake.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/folio-blog/folioctl/internal/apiclient"
	"github.com/folio-blog/folioctl/internal/apierr"
	"github.com/folio-blog/folioctl/internal/config"
	"github.com/folio-blog/folioctl/internal/logging"
	"github.com/folio-blog/folioctl/internal/models"
	"github.com/folio-blog/folioctl/internal/state"
)

// Storage keys. Token and user live in durable storage; the OAuth values live
// in session-scoped storage and are removed once the handshake finishes.
const (
	KeyToken      = "folio.auth.token"
	KeyUser       = "folio.auth.user"
	KeyOAuthState = "folio.oauth.state"
	KeyReturnPath = "folio.oauth.return_path"
)

// ErrAuthorizationDenied is returned by Login when the provider redirected
// back with an error instead of a code, typically because the user declined.
var ErrAuthorizationDenied = errors.New("authorization denied by provider")

// API is the subset of the folio API used by the session.
type API interface {
	ExchangeGitHubCode(ctx context.Context, code, state string) (apiclient.TokenResponse, error)
	FetchProfile(ctx context.Context, token string) (models.Profile, error)
}

// Authenticator is what the comment and reaction stores need from a session.
type Authenticator interface {
	Token() string
	Profile() (models.Profile, bool)
	Logout(ctx context.Context) error
}

// Options configures a Session.
type Options struct {
	// API performs the code exchange and profile lookups.
	API API
	// Durable persists token and profile across processes.
	Durable state.Store
	// Scoped holds the OAuth state token and return path for this process.
	Scoped state.Store
	// OAuth describes the provider authorization endpoint.
	OAuth  *oauth2.Config
	Logger *slog.Logger
	// Now is the clock used for token expiry checks.
	Now func() time.Time
	// NewState generates anti-forgery tokens.
	NewState func() string
}

// Session is the single source of truth for authentication state. It is
// injected into every store that performs authenticated calls.
type Session struct {
	api      API
	durable  state.Store
	scoped   state.Store
	oauth    *oauth2.Config
	logger   *slog.Logger
	now      func() time.Time
	newState func() string

	mu    sync.RWMutex
	token string
	user  *models.Profile
}

var _ Authenticator = (*Session)(nil)

// LoginResult describes the outcome of Login.
type LoginResult struct {
	// AuthorizeURL is set when the caller must redirect to the provider.
	AuthorizeURL string
	// Completed is true when the handshake finished and the session is populated.
	Completed bool
	// ReturnPath is the path saved before the redirect, "/" when none was saved.
	ReturnPath string
	// Profile is the signed-in user after a completed handshake.
	Profile models.Profile
}

// New constructs a Session. Call Init to hydrate it from durable storage.
func New(opts Options) (*Session, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("session requires an API client")
	}
	if opts.Durable == nil {
		return nil, fmt.Errorf("session requires durable storage")
	}
	if opts.Scoped == nil {
		opts.Scoped = state.NewMemory()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewState == nil {
		opts.NewState = uuid.NewString
	}
	return &Session{
		api:      opts.API,
		durable:  opts.Durable,
		scoped:   opts.Scoped,
		oauth:    opts.OAuth,
		logger:   opts.Logger,
		now:      opts.Now,
		newState: opts.NewState,
	}, nil
}

// NewOAuthConfig builds the provider description from configuration.
// Empty endpoints fall back to GitHub.
func NewOAuthConfig(cfg config.OAuthConfig) *oauth2.Config {
	endpoint := github.Endpoint
	if cfg.AuthorizeURL != "" {
		endpoint.AuthURL = cfg.AuthorizeURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	return &oauth2.Config{
		ClientID:    cfg.ClientID,
		Endpoint:    endpoint,
		RedirectURL: cfg.CallbackURL,
		Scopes:      append([]string(nil), cfg.Scopes...),
	}
}

// Init hydrates the session from durable storage and opportunistically
// refreshes the profile. A failed refresh keeps the stored data, except for a
// 401 which ends the session. Tokens that are JWTs past their exp are dropped
// without a request.
func (s *Session) Init(ctx context.Context) error {
	token, _, err := s.durable.Get(ctx, KeyToken)
	if err != nil {
		return fmt.Errorf("load session token: %w", err)
	}
	var user models.Profile
	hasUser, err := state.GetJSON(ctx, s.durable, KeyUser, &user)
	if err != nil {
		s.logger.Warn("discarding unreadable cached profile", "error", err)
		hasUser = false
	}

	s.mu.Lock()
	s.token = token
	s.user = nil
	if hasUser {
		s.user = &user
	}
	s.mu.Unlock()

	if token == "" {
		return nil
	}

	if expired, exp := tokenExpired(token, s.now()); expired {
		s.logger.Info("stored session token expired", "expiredAt", exp)
		return s.Logout(ctx)
	}

	if _, err := s.RefreshUser(ctx); err != nil {
		if apierr.IsAuthRequired(err) {
			s.logger.Info("stored session rejected by server, logging out")
			return s.Logout(ctx)
		}
		s.logger.Warn("profile refresh failed, using cached profile", "error", err)
	}
	return nil
}

// Token returns the bearer token, or "" when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Profile returns the cached profile.
func (s *Session) Profile() (models.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return models.Profile{}, false
	}
	return *s.user, true
}

// IsAuthenticated reports whether both a token and a profile are present.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && s.user != nil
}

// Logout clears the token, the cached profile and the anti-forgery token.
// The in-memory state is reset before storage is touched, so the session is
// anonymous even when the returned storage error is non-nil.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	errDurable := s.durable.Delete(ctx, KeyToken, KeyUser)
	errScoped := s.scoped.Delete(ctx, KeyOAuthState)
	if err := errors.Join(errDurable, errScoped); err != nil {
		return fmt.Errorf("clear session storage: %w", err)
	}
	return nil
}

// RefreshUser re-fetches the profile with the current token. A 401 is
// reported as apierr.ErrAuthRequired; the caller is expected to Logout.
func (s *Session) RefreshUser(ctx context.Context) (models.Profile, error) {
	token := s.Token()
	if token == "" {
		return models.Profile{}, apierr.ErrAuthRequired
	}

	profile, err := s.api.FetchProfile(ctx, token)
	if err != nil {
		return models.Profile{}, err
	}

	s.mu.Lock()
	if s.token != token {
		// Logged out or re-logged in while the request was in flight.
		s.mu.Unlock()
		return profile, nil
	}
	s.user = &profile
	s.mu.Unlock()

	if err := state.SetJSON(ctx, s.durable, KeyUser, profile); err != nil {
		return profile, fmt.Errorf("persist profile: %w", err)
	}
	return profile, nil
}

// Login either completes the handshake, when current carries the provider's
// code and state, or starts it and returns the authorization URL to visit.
func (s *Session) Login(ctx context.Context, current *url.URL) (LoginResult, error) {
	if current != nil {
		q := current.Query()
		if providerErr := q.Get("error"); providerErr != "" {
			_ = s.scoped.Delete(ctx, KeyOAuthState, KeyReturnPath)
			desc := q.Get("error_description")
			if desc == "" {
				desc = providerErr
			}
			return LoginResult{}, fmt.Errorf("%w: %s", ErrAuthorizationDenied, desc)
		}
		code, st := q.Get("code"), q.Get("state")
		switch {
		case code != "" && st != "":
			return s.CompleteLogin(ctx, code, st)
		case code != "" || st != "":
			return LoginResult{}, &apierr.SecurityError{Reason: "incomplete oauth callback"}
		}
	}

	returnPath := "/"
	if current != nil && current.Path != "" {
		returnPath = current.RequestURI()
	}
	authURL, err := s.BeginLogin(ctx, returnPath)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{AuthorizeURL: authURL}, nil
}

// BeginLogin stores the return path and a fresh anti-forgery token, and
// returns the provider authorization URL carrying that token as state.
func (s *Session) BeginLogin(ctx context.Context, returnPath string) (string, error) {
	if s.oauth == nil || s.oauth.ClientID == "" {
		return "", fmt.Errorf("oauth client ID is not configured")
	}
	returnPath = sanitizeReturnPath(returnPath)

	token := s.newState()
	if err := s.scoped.Set(ctx, KeyReturnPath, returnPath); err != nil {
		return "", fmt.Errorf("save return path: %w", err)
	}
	if err := s.scoped.Set(ctx, KeyOAuthState, token); err != nil {
		return "", fmt.Errorf("save oauth state: %w", err)
	}

	return s.oauth.AuthCodeURL(token), nil
}

// CompleteLogin verifies the returned state, exchanges the code through the
// backend, loads the profile and persists the new session.
func (s *Session) CompleteLogin(ctx context.Context, code, returnedState string) (LoginResult, error) {
	stored, ok, err := s.scoped.Get(ctx, KeyOAuthState)
	if err != nil {
		return LoginResult{}, fmt.Errorf("load oauth state: %w", err)
	}
	if !ok || stored == "" {
		return LoginResult{}, &apierr.SecurityError{Reason: "no login in progress"}
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(returnedState)) != 1 {
		return LoginResult{}, &apierr.SecurityError{Reason: "oauth state mismatch"}
	}

	resp, err := s.api.ExchangeGitHubCode(ctx, code, returnedState)
	if err != nil {
		return LoginResult{}, err
	}

	profile, err := s.api.FetchProfile(ctx, resp.AccessToken)
	if err != nil {
		if resp.User == nil {
			return LoginResult{}, err
		}
		s.logger.Warn("profile lookup failed after login, using exchange response", "error", err)
		profile = *resp.User
	}

	s.mu.Lock()
	s.token = resp.AccessToken
	s.user = &profile
	s.mu.Unlock()

	if err := s.durable.Set(ctx, KeyToken, resp.AccessToken); err != nil {
		return LoginResult{}, fmt.Errorf("persist session token: %w", err)
	}
	if err := state.SetJSON(ctx, s.durable, KeyUser, profile); err != nil {
		return LoginResult{}, fmt.Errorf("persist profile: %w", err)
	}

	returnPath, _, err := s.scoped.Get(ctx, KeyReturnPath)
	if err != nil {
		s.logger.Warn("failed to read return path", "error", err)
	}
	if err := s.scoped.Delete(ctx, KeyOAuthState, KeyReturnPath); err != nil {
		s.logger.Warn("failed to clear oauth handshake values", "error", err)
	}

	s.logger.Info("logged in", "login", profile.Login)
	return LoginResult{
		Completed:  true,
		ReturnPath: sanitizeReturnPath(returnPath),
		Profile:    profile,
	}, nil
}

// sanitizeReturnPath keeps only site-relative paths so the post-login
// redirect cannot leave the site.
func sanitizeReturnPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return "/"
	}
	return p
}

// tokenExpired reports whether token is a JWT whose exp lies before now.
// Opaque tokens never expire locally.
func tokenExpired(token string, now time.Time) (bool, time.Time) {
	if strings.Count(token, ".") != 2 {
		return false, time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false, time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false, time.Time{}
	}
	return !now.Before(exp.Time), exp.Time
}
