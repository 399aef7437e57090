// Package web implements the server-rendered pages of the stats application.
//
// Each page handler obtains a valid access token through the session & token
// manager, issues one resource API call, and renders the result into an
// embedded HTML template. Unauthenticated or refresh-rejected requests
// redirect to the index page, which carries the login link.
package web

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"github.com/avramelo/spinstats/internal/auth"
	"github.com/avramelo/spinstats/internal/server"
	"github.com/avramelo/spinstats/internal/services"
	"github.com/avramelo/spinstats/internal/shared"
	"github.com/avramelo/spinstats/internal/tasks"
	"github.com/charmbracelet/log"
)

//go:embed templates/*.html
var templateFS embed.FS

// Handlers holds the dependencies shared by all page handlers.
type Handlers struct {
	manager   *auth.Manager
	sessions  *server.Sessions
	service   services.Service
	engine    *tasks.PlaylistEngine
	templates *template.Template
	logger    *log.Logger
}

// HandlerOpts contains configuration options for creating [Handlers].
type HandlerOpts struct {
	Manager  *auth.Manager
	Sessions *server.Sessions
	Service  services.Service
	Engine   *tasks.PlaylistEngine
	Logger   *log.Logger
}

// NewHandlers parses the embedded templates and creates the page handler set.
func NewHandlers(opts HandlerOpts) (*Handlers, error) {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Handlers{
		manager:   opts.Manager,
		sessions:  opts.Sessions,
		service:   opts.Service,
		engine:    opts.Engine,
		templates: templates,
		logger:    opts.Logger,
	}, nil
}

// Register wires every page route into the router.
func (h *Handlers) Register(router server.Router) {
	router.Handle(http.MethodGet, "/{$}", http.HandlerFunc(h.Index))
	router.Handle(http.MethodGet, "/dashboard", http.HandlerFunc(h.Dashboard))
	router.Handle(http.MethodGet, "/top-tracks", http.HandlerFunc(h.TopTracks))
	router.Handle(http.MethodGet, "/top-artists", http.HandlerFunc(h.TopArtists))
	router.Handle(http.MethodGet, "/recently-played", http.HandlerFunc(h.RecentlyPlayed))
	router.Handle(http.MethodGet, "/bracket", http.HandlerFunc(h.Bracket))
	router.Handle(http.MethodGet, "/bracket/album", http.HandlerFunc(h.BracketAlbum))
	router.Handle(http.MethodPost, "/playlists", http.HandlerFunc(h.CreatePlaylist))
}

// token resolves a currently-valid access token for the request's session.
//
// On any authentication failure the session is cleared and the browser is
// redirected to the index page; the returned bool reports whether the caller
// should continue.
func (h *Handlers) token(w http.ResponseWriter, r *http.Request) (string, *auth.Session, bool) {
	session, ok := h.sessions.Current(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return "", nil, false
	}

	token, err := h.manager.Valid(r.Context(), session)
	if err != nil {
		h.logger.Warn("session invalid", "err", err)
		h.sessions.Clear(w, r)
		http.Redirect(w, r, "/", http.StatusFound)
		return "", nil, false
	}

	return token, session, true
}

func (h *Handlers) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("template render failed", "template", name, "err", err)
	}
}

// errorPage is the view model for error.html.
type errorPage struct {
	Status  int
	Title   string
	Message string
}

func (h *Handlers) renderError(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, "error.html", errorPage{Status: status, Title: title, Message: message}); err != nil {
		h.logger.Error("template render failed", "template", "error.html", "err", err)
	}
}

// queryInt parses an integer query parameter, falling back to def when absent
// or malformed.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}

// Index renders the landing page, or forwards straight to the dashboard when
// the browser already has an authenticated session.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	if session, ok := h.sessions.Current(r); ok {
		session.Lock()
		authenticated := session.Token.Authenticated()
		session.Unlock()
		if authenticated {
			http.Redirect(w, r, "/dashboard", http.StatusFound)
			return
		}
	}

	h.render(w, "index.html", nil)
}

// Dashboard renders the navigation page.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	_, session, ok := h.token(w, r)
	if !ok {
		return
	}

	session.Lock()
	userID := session.UserID
	session.Unlock()

	h.render(w, "dashboard.html", map[string]any{"UserID": userID})
}

// TopTracks renders the user's top tracks with a playlist-selection form.
func (h *Handlers) TopTracks(w http.ResponseWriter, r *http.Request) {
	token, _, ok := h.token(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 10)
	timeRange := r.URL.Query().Get("time_range")

	items, err := h.service.TopTracks(r.Context(), token, limit, timeRange)
	if err != nil {
		h.logger.Error("top tracks fetch failed", "err", err)
		h.renderError(w, http.StatusBadGateway, "Spotify unavailable", "Could not fetch your top tracks. Try again in a moment.")
		return
	}

	h.render(w, "top_tracks.html", map[string]any{"Tracks": items})
}

// TopArtists renders the user's top artists.
func (h *Handlers) TopArtists(w http.ResponseWriter, r *http.Request) {
	token, _, ok := h.token(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 10)
	timeRange := r.URL.Query().Get("time_range")

	items, err := h.service.TopArtists(r.Context(), token, limit, timeRange)
	if err != nil {
		h.logger.Error("top artists fetch failed", "err", err)
		h.renderError(w, http.StatusBadGateway, "Spotify unavailable", "Could not fetch your top artists. Try again in a moment.")
		return
	}

	h.render(w, "top_artists.html", map[string]any{"Artists": items})
}

// RecentlyPlayed renders the user's listening history.
func (h *Handlers) RecentlyPlayed(w http.ResponseWriter, r *http.Request) {
	token, _, ok := h.token(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 50)

	items, err := h.service.RecentlyPlayed(r.Context(), token, limit)
	if err != nil {
		h.logger.Error("recently played fetch failed", "err", err)
		h.renderError(w, http.StatusBadGateway, "Spotify unavailable", "Could not fetch your listening history. Try again in a moment.")
		return
	}

	h.render(w, "recently_played.html", map[string]any{"Items": items})
}

// Bracket renders the album search page for the bracket feature.
func (h *Handlers) Bracket(w http.ResponseWriter, r *http.Request) {
	token, _, ok := h.token(w, r)
	if !ok {
		return
	}

	query := r.URL.Query().Get("q")
	data := map[string]any{"Query": query}

	if query != "" {
		albums, err := h.service.SearchAlbums(r.Context(), token, query, 10)
		if err != nil {
			h.logger.Error("album search failed", "err", err)
			h.renderError(w, http.StatusBadGateway, "Spotify unavailable", "Album search failed. Try again in a moment.")
			return
		}
		data["Albums"] = albums
	}

	h.render(w, "bracket.html", data)
}

// BracketAlbum returns an album's track listing as JSON for the client-side
// bracket comparison.
func (h *Handlers) BracketAlbum(w http.ResponseWriter, r *http.Request) {
	token, _, ok := h.token(w, r)
	if !ok {
		return
	}

	albumID := r.URL.Query().Get("id")
	if albumID == "" {
		http.Error(w, "Missing album id", http.StatusBadRequest)
		return
	}

	tracks, err := h.service.AlbumTracks(r.Context(), token, albumID)
	if err != nil {
		h.logger.Error("album tracks fetch failed", "album", albumID, "err", err)
		http.Error(w, "Failed to fetch album tracks", http.StatusBadGateway)
		return
	}
	if tracks == nil {
		tracks = []services.Track{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"items": tracks}); err != nil {
		h.logger.Error("failed to encode album tracks", "err", err)
	}
}

// CreatePlaylist handles the playlist submission form.
//
// A track-add failure is the one state with an external side effect the user
// doesn't fully get: the playlist exists but is empty, and the error page says
// so explicitly.
func (h *Handlers) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	token, _, ok := h.token(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		h.renderError(w, http.StatusBadRequest, "Invalid form", "Could not parse the submitted form.")
		return
	}

	created, err := h.engine.CreatePlaylist(r.Context(), token, r.PostForm["uris"])
	if err != nil {
		h.playlistError(w, err)
		return
	}

	h.render(w, "playlist_created.html", created)
}

func (h *Handlers) playlistError(w http.ResponseWriter, err error) {
	var addErr *tasks.TrackAddError
	var createErr *tasks.PlaylistCreateError

	switch {
	case errors.Is(err, tasks.ErrEmptySelection):
		h.renderError(w, http.StatusBadRequest, "No tracks selected",
			"Select at least one track before submitting a playlist.")
	case errors.As(err, &addErr):
		h.renderError(w, http.StatusBadGateway, "Playlist created, but empty",
			"Your playlist was created on Spotify but adding tracks failed, so it is currently empty. You can retry from your stats pages or delete it in Spotify. Playlist id: "+addErr.PlaylistID)
	case errors.As(err, &createErr):
		h.renderError(w, http.StatusBadGateway, "Playlist creation failed",
			"Spotify rejected the playlist creation. Nothing was created.")
	case errors.Is(err, tasks.ErrIdentityResolution):
		h.renderError(w, http.StatusBadGateway, "Profile lookup failed",
			"Could not resolve your Spotify profile. Nothing was created.")
	default:
		h.logger.Error("playlist creation failed", "err", err)
		h.renderError(w, http.StatusInternalServerError, "Playlist creation failed",
			"Something went wrong while creating your playlist.")
	}
}
