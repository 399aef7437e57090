package server

import (
	"fmt"
	"net/http"

	"github.com/avramelo/spinstats/internal/auth"
	"github.com/avramelo/spinstats/internal/shared"
	"github.com/charmbracelet/log"
)

// OAuthHandler handles the browser-facing OAuth2 authorization code flow.
// Implements the [Handler] interface for registration with a [Router].
//
// Login generates a CSRF state token, stashes it in the session cookie, and
// redirects to the provider; the callback validates state, exchanges the code,
// and commits the resulting token state to the server-side session.
type OAuthHandler struct {
	manager  *auth.Manager
	sessions *Sessions
	logger   *log.Logger
}

// NewOAuthHandler creates a new OAuth handler backed by the given token manager
// and session registry.
func NewOAuthHandler(manager *auth.Manager, sessions *Sessions, logger *log.Logger) *OAuthHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &OAuthHandler{manager: manager, sessions: sessions, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"/login", "/callback", "/logout"}
}

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/login":
		h.login(w, r)
	case "/callback":
		h.callback(w, r)
	case "/logout":
		h.logout(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *OAuthHandler) login(w http.ResponseWriter, r *http.Request) {
	state := shared.GenerateID()
	if err := h.sessions.SetState(w, r, state); err != nil {
		h.logger.Error("failed to save session state", "err", err)
		http.Error(w, "Failed to start login", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, h.manager.AuthURL(state), http.StatusFound)
}

// callback validates the state parameter, exchanges the authorization code for
// tokens, and commits the token state plus user identity to a fresh session.
// Begin also consumes the stashed state, so the whole callback writes the
// cookie exactly once.
//
// No partial state is committed: a failed exchange leaves the browser logged out.
func (h *OAuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		h.logger.Warn("authorization denied", "error", errParam, "description", query.Get("error_description"))
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	state := query.Get("state")
	if state == "" || state != h.sessions.State(r) {
		h.logger.Warn("callback state mismatch")
		http.Error(w, fmt.Sprintf("%v", shared.ErrInvalidState), http.StatusBadRequest)
		return
	}

	token, user, err := h.manager.ExchangeCode(r.Context(), query.Get("code"))
	if err != nil {
		h.logger.Error("token exchange failed", "err", err)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	session, err := h.sessions.Begin(w, r)
	if err != nil {
		h.logger.Error("failed to create session", "err", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	session.Lock()
	session.Token = *token
	session.UserID = user.ID
	session.Unlock()

	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (h *OAuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w, r)
	http.Redirect(w, r, "/", http.StatusFound)
}
