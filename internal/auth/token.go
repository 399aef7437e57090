package auth

import (
	"sync"
	"time"
)

// TokenState holds one user's Spotify credentials for the lifetime of their
// browser session.
//
// ExpiresAt is always set together with AccessToken; a token without a known
// expiry is treated as unauthenticated.
type TokenState struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Authenticated reports whether the state carries a usable credential.
func (t *TokenState) Authenticated() bool {
	return t.AccessToken != "" && t.ExpiresAt != 0
}

// Fresh reports whether the access token is still valid at now, leaving a skew
// margin so a token cannot expire mid-flight.
func (t *TokenState) Fresh(now time.Time, skew time.Duration) bool {
	return now.Before(time.Unix(t.ExpiresAt, 0).Add(-skew))
}

// Clear destroys the credentials, returning the state to unauthenticated.
func (t *TokenState) Clear() {
	*t = TokenState{}
}

// Session is the per-browser-session mutable state: the token plus the user's
// resolved platform identity.
//
// The embedded mutex serializes token refreshes within one session, so two
// parallel tabs cannot both spend a single-use refresh token.
type Session struct {
	sync.Mutex

	Token  TokenState
	UserID string
}
