package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/avramelo/spinstats/internal/auth"
	"github.com/avramelo/spinstats/internal/shared"
	"github.com/gorilla/sessions"
)

const (
	sessionKeySID   = "sid"
	sessionKeyState = "oauth_state"

	// sessionTTL bounds both the cookie and the server-side entry, so state
	// for abandoned browsers is reclaimed rather than accumulating.
	sessionTTL = 24 * time.Hour
)

// Sessions maps signed browser cookies to per-session [auth.Session] state.
//
// The cookie carries only an opaque session id; token state lives server-side
// so all tabs of one browser share a single [auth.Session] and its refresh
// mutex. State is ephemeral: a process restart logs everyone out, and entries
// past sessionTTL are evicted on lookup and swept on each new login.
type Sessions struct {
	store *sessions.CookieStore
	name  string
	now   func() time.Time

	mu     sync.Mutex
	active map[string]*sessionEntry
}

type sessionEntry struct {
	session *auth.Session
	expires time.Time
}

// NewSessions creates a cookie-backed session registry.
//
// The secret authenticates cookies; it should be long and random.
func NewSessions(secret, cookieName string) *Sessions {
	if cookieName == "" {
		cookieName = "spinstats_session"
	}

	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	return &Sessions{
		store:  store,
		name:   cookieName,
		now:    time.Now,
		active: make(map[string]*sessionEntry),
	}
}

// Current returns the authenticated session for the request, if any.
func (s *Sessions) Current(r *http.Request) (*auth.Session, bool) {
	cookie, err := s.store.Get(r, s.name)
	if err != nil {
		return nil, false
	}

	sid, ok := cookie.Values[sessionKeySID].(string)
	if !ok || sid == "" {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.active[sid]
	if !ok {
		return nil, false
	}
	if s.now().After(entry.expires) {
		delete(s.active, sid)
		return nil, false
	}
	return entry.session, true
}

// Begin creates a fresh server-side session and binds it to the browser cookie
// in a single cookie write, clearing any stashed OAuth state.
//
// Any previously bound session for this browser is discarded.
func (s *Sessions) Begin(w http.ResponseWriter, r *http.Request) (*auth.Session, error) {
	cookie, _ := s.store.Get(r, s.name)

	sid := shared.GenerateID()
	session := &auth.Session{}

	s.mu.Lock()
	if old, ok := cookie.Values[sessionKeySID].(string); ok && old != "" {
		delete(s.active, old)
	}
	s.prune()
	s.active[sid] = &sessionEntry{session: session, expires: s.now().Add(sessionTTL)}
	s.mu.Unlock()

	cookie.Values[sessionKeySID] = sid
	delete(cookie.Values, sessionKeyState)
	if err := cookie.Save(r, w); err != nil {
		return nil, err
	}

	return session, nil
}

// prune drops expired entries. Callers must hold mu.
func (s *Sessions) prune() {
	now := s.now()
	for sid, entry := range s.active {
		if now.After(entry.expires) {
			delete(s.active, sid)
		}
	}
}

// SetState stashes an OAuth CSRF state token in the browser cookie.
func (s *Sessions) SetState(w http.ResponseWriter, r *http.Request, state string) error {
	cookie, _ := s.store.Get(r, s.name)
	cookie.Values[sessionKeyState] = state
	return cookie.Save(r, w)
}

// State returns the stashed OAuth state token without consuming it. A
// successful [Sessions.Begin] clears it, so a spent state cannot be replayed
// against a logged-in session.
func (s *Sessions) State(r *http.Request) string {
	cookie, err := s.store.Get(r, s.name)
	if err != nil {
		return ""
	}

	state, _ := cookie.Values[sessionKeyState].(string)
	return state
}

// Clear destroys the server-side session and expires the browser cookie.
func (s *Sessions) Clear(w http.ResponseWriter, r *http.Request) {
	cookie, err := s.store.Get(r, s.name)
	if err != nil {
		return
	}

	if sid, ok := cookie.Values[sessionKeySID].(string); ok && sid != "" {
		s.mu.Lock()
		if entry, ok := s.active[sid]; ok {
			entry.session.Lock()
			entry.session.Token.Clear()
			entry.session.Unlock()
			delete(s.active, sid)
		}
		s.mu.Unlock()
	}

	cookie.Options.MaxAge = -1
	_ = cookie.Save(r, w)
}
