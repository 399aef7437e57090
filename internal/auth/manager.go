// package auth implements the OAuth2 session & token lifecycle for Spotify.
//
// The [Manager] guarantees that every outbound resource call carries a
// currently-valid access token, refreshing transparently when needed. Token
// exchange and refresh speak directly to the provider's token endpoint with
// form-encoded requests; [oauth2.Config] supplies the authorize-URL
// construction and scope handling.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avramelo/spinstats/internal/services"
	"github.com/avramelo/spinstats/internal/shared"
	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"

	// DefaultSkew is the safety margin subtracted from a token's expiry when
	// deciding whether it is still usable.
	DefaultSkew = 60 * time.Second
)

// scopes covers the stats pages, the recently-played feed, and private
// playlist creation.
var scopes = []string{
	"user-read-private",
	"user-top-read",
	"user-read-recently-played",
	"playlist-modify-private",
}

// ProfileResolver resolves the platform identity behind an access token.
// Implemented by [services.SpotifyService].
type ProfileResolver interface {
	Profile(ctx context.Context, token string) (*services.User, error)
}

// tokenResponse is the provider's token-endpoint payload, shared by the
// authorization-code and refresh-token grants.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// Manager owns the OAuth2 token lifecycle for browser sessions.
type Manager struct {
	config     *oauth2.Config
	httpClient *http.Client
	tokenURL   string
	skew       time.Duration
	now        func() time.Time
	profiles   ProfileResolver
	logger     *log.Logger
}

// ManagerOpts contains configuration options for creating a [Manager].
type ManagerOpts struct {
	Spotify    shared.SpotifyConfig
	Profiles   ProfileResolver
	HTTPClient *http.Client
	TokenURL   string        // overrides the provider token endpoint, used in tests
	Skew       time.Duration // defaults to DefaultSkew
	Now        func() time.Time
	Logger     *log.Logger
}

// NewManager creates a new session & token manager with the given credentials.
func NewManager(opts ManagerOpts) (*Manager, error) {
	if opts.Spotify.ClientID == "" {
		return nil, fmt.Errorf("%w: client_id", shared.ErrMissingCredentials)
	}
	if opts.Spotify.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client_secret", shared.ErrMissingCredentials)
	}
	if opts.Profiles == nil {
		return nil, fmt.Errorf("%w: profile resolver required", shared.ErrInvalidConfig)
	}

	redirectURI := opts.Spotify.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:8080/callback"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.TokenURL == "" {
		opts.TokenURL = spotifyTokenURL
	}
	if opts.Skew <= 0 {
		opts.Skew = DefaultSkew
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	config := &oauth2.Config{
		ClientID:     opts.Spotify.ClientID,
		ClientSecret: opts.Spotify.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: opts.TokenURL,
		},
	}

	return &Manager{
		config:     config,
		httpClient: opts.HTTPClient,
		tokenURL:   opts.TokenURL,
		skew:       opts.Skew,
		now:        opts.Now,
		profiles:   opts.Profiles,
		logger:     opts.Logger,
	}, nil
}

// AuthURL returns the provider authorization URL for user login.
//
// The state token should be cryptographically random for CSRF protection.
func (m *Manager) AuthURL(state string) string {
	return m.config.AuthCodeURL(state)
}

// ExchangeCode performs the authorization-code exchange and resolves the user's
// platform identity.
//
// On any failure (missing code, provider error, malformed response, profile
// lookup failure) no partial token state is returned.
func (m *Manager) ExchangeCode(ctx context.Context, code string) (*TokenState, *services.User, error) {
	if code == "" {
		return nil, nil, fmt.Errorf("%w: missing authorization code", shared.ErrAuthFailed)
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", m.config.RedirectURL)

	resp, err := m.tokenRequest(ctx, data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	state := &TokenState{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    m.now().Unix() + resp.ExpiresIn,
	}

	user, err := m.profiles.Profile(ctx, state.AccessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: profile lookup: %v", shared.ErrAuthFailed, err)
	}

	m.logger.Info("authenticated", "user", user.ID)
	return state, user, nil
}

// Valid returns an access token guaranteed to be usable right now.
//
// A fresh cached token is returned without any network call; a stale one
// triggers exactly one refresh. The session mutex is held across the
// check-and-refresh so concurrent requests from the same session serialize.
func (m *Manager) Valid(ctx context.Context, session *Session) (string, error) {
	session.Lock()
	defer session.Unlock()

	if !session.Token.Authenticated() {
		return "", shared.ErrNotAuthenticated
	}

	if session.Token.Fresh(m.now(), m.skew) {
		return session.Token.AccessToken, nil
	}

	return m.refreshLocked(ctx, session)
}

// Refresh forces a token refresh regardless of the cached token's freshness.
func (m *Manager) Refresh(ctx context.Context, session *Session) (string, error) {
	session.Lock()
	defer session.Unlock()
	return m.refreshLocked(ctx, session)
}

// refreshLocked performs a single refresh-token exchange and mutates the
// session's token state in place. Callers must hold the session mutex.
//
// A rejected refresh token is not self-healing, so there is no retry; the
// caller redirects to a fresh login instead.
func (m *Manager) refreshLocked(ctx context.Context, session *Session) (string, error) {
	if session.Token.RefreshToken == "" {
		return "", shared.ErrNoRefreshToken
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", session.Token.RefreshToken)

	resp, err := m.tokenRequest(ctx, data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	session.Token.AccessToken = resp.AccessToken
	session.Token.ExpiresAt = m.now().Unix() + resp.ExpiresIn
	if resp.RefreshToken != "" {
		// The provider may omit a new refresh token; keep the working one.
		session.Token.RefreshToken = resp.RefreshToken
	}

	m.logger.Debug("token refreshed", "expires_at", session.Token.ExpiresAt)
	return session.Token.AccessToken, nil
}

// tokenRequest issues one form-encoded POST to the provider's token endpoint.
func (m *Manager) tokenRequest(ctx context.Context, data url.Values) (*tokenResponse, error) {
	data.Set("client_id", m.config.ClientID)
	data.Set("client_secret", m.config.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		return nil, fmt.Errorf("malformed token response")
	}

	return &tr, nil
}
