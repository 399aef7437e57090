package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/avramelo/spinstats/internal/auth"
	"github.com/avramelo/spinstats/internal/server"
	"github.com/avramelo/spinstats/internal/services"
	"github.com/avramelo/spinstats/internal/shared"
	"github.com/avramelo/spinstats/internal/tasks"
	tu "github.com/avramelo/spinstats/internal/testing"
)

var testNow = time.Unix(1_700_000_000, 0)

type fixture struct {
	router   *server.BasicRouter
	sessions *server.Sessions
	mock     *tu.MockService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := shared.NewLogger(io.Discard)
	mock := &tu.MockService{}

	manager, err := auth.NewManager(auth.ManagerOpts{
		Spotify:  shared.SpotifyConfig{ClientID: "id", ClientSecret: "secret"},
		Profiles: mock,
		TokenURL: "http://127.0.0.1:0/token",
		Now:      func() time.Time { return testNow },
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	sessions := server.NewSessions("test-secret", "test_session")

	handlers, err := NewHandlers(HandlerOpts{
		Manager:  manager,
		Sessions: sessions,
		Service:  mock,
		Engine:   tasks.NewPlaylistEngine(mock, logger),
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("failed to create handlers: %v", err)
	}

	router := server.NewBasicRouter()
	handlers.Register(router)

	return &fixture{router: router, sessions: sessions, mock: mock}
}

// authenticate creates a logged-in session and returns a request factory that
// carries its cookie.
func (f *fixture) authenticate(t *testing.T) func(method, target string, body io.Reader) *http.Request {
	t.Helper()

	rec := httptest.NewRecorder()
	session, err := f.sessions.Begin(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("failed to begin session: %v", err)
	}

	session.Lock()
	session.Token = auth.TokenState{AccessToken: "tok", RefreshToken: "R", ExpiresAt: testNow.Unix() + 3600}
	session.UserID = "u1"
	session.Unlock()

	cookies := rec.Result().Cookies()
	return func(method, target string, body io.Reader) *http.Request {
		req := httptest.NewRequest(method, target, body)
		for _, cookie := range cookies {
			req.AddCookie(cookie)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		return req
	}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestIndex(t *testing.T) {
	t.Run("Anonymous Gets Login Page", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "/login") {
			t.Error("expected index page to link to /login")
		}
	})

	t.Run("Authenticated Redirects To Dashboard", func(t *testing.T) {
		f := newFixture(t)
		request := f.authenticate(t)

		rec := f.do(request(http.MethodGet, "/", nil))
		if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/dashboard" {
			t.Errorf("expected redirect to /dashboard, got %d %s", rec.Code, rec.Header().Get("Location"))
		}
	})
}

func TestProtectedPages(t *testing.T) {
	t.Run("Anonymous Redirects Home", func(t *testing.T) {
		f := newFixture(t)

		for _, path := range []string{"/dashboard", "/top-tracks", "/top-artists", "/recently-played", "/bracket"} {
			rec := f.do(httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/" {
				t.Errorf("%s: expected redirect to /, got %d %s", path, rec.Code, rec.Header().Get("Location"))
			}
		}
	})

	t.Run("Dashboard Shows User", func(t *testing.T) {
		f := newFixture(t)
		request := f.authenticate(t)

		rec := f.do(request(http.MethodGet, "/dashboard", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "u1") {
			t.Error("expected dashboard to show the user id")
		}
	})

	t.Run("Top Tracks Renders Items", func(t *testing.T) {
		f := newFixture(t)
		f.mock.TopTracksFunc = func(ctx context.Context, token string, limit int, timeRange string) ([]services.Track, error) {
			if token != "tok" {
				t.Errorf("expected session token, got %s", token)
			}
			if limit != 5 {
				t.Errorf("expected limit 5, got %d", limit)
			}
			return []services.Track{{Name: "Weird Fishes", URI: "spotify:track:1"}}, nil
		}
		request := f.authenticate(t)

		rec := f.do(request(http.MethodGet, "/top-tracks?limit=5", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Weird Fishes") {
			t.Error("expected track name in page")
		}
		if !strings.Contains(rec.Body.String(), "spotify:track:1") {
			t.Error("expected track URI in selection form")
		}
	})

	t.Run("Top Artists Upstream Failure Renders Error Page", func(t *testing.T) {
		f := newFixture(t)
		f.mock.TopArtistsFunc = func(ctx context.Context, token string, limit int, timeRange string) ([]services.Artist, error) {
			return nil, &services.APIError{Status: 502, Body: "bad gateway"}
		}
		request := f.authenticate(t)

		rec := f.do(request(http.MethodGet, "/top-artists", nil))
		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rec.Code)
		}
	})

	t.Run("Recently Played Renders Items", func(t *testing.T) {
		f := newFixture(t)
		f.mock.RecentlyPlayedFunc = func(ctx context.Context, token string, limit int) ([]services.PlayHistory, error) {
			return []services.PlayHistory{{Track: services.Track{Name: "Nude"}, PlayedAt: "2024-01-01T00:00:00Z"}}, nil
		}
		request := f.authenticate(t)

		rec := f.do(request(http.MethodGet, "/recently-played", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Nude") {
			t.Error("expected track name in page")
		}
	})
}

func TestBracket(t *testing.T) {
	t.Run("Search Renders Albums", func(t *testing.T) {
		f := newFixture(t)
		f.mock.SearchAlbumsFunc = func(ctx context.Context, token, query string, limit int) ([]services.Album, error) {
			if query != "in rainbows" {
				t.Errorf("expected query 'in rainbows', got %q", query)
			}
			return []services.Album{{ID: "a1", Name: "In Rainbows", TotalTracks: 10}}, nil
		}
		request := f.authenticate(t)

		rec := f.do(request(http.MethodGet, "/bracket?q="+url.QueryEscape("in rainbows"), nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "In Rainbows") {
			t.Error("expected album name in page")
		}
	})

	t.Run("Album Tracks As JSON", func(t *testing.T) {
		f := newFixture(t)
		f.mock.AlbumTracksFunc = func(ctx context.Context, token, albumID string) ([]services.Track, error) {
			if albumID != "a1" {
				t.Errorf("expected album a1, got %s", albumID)
			}
			return []services.Track{{ID: "t1", Name: "15 Step"}}, nil
		}
		request := f.authenticate(t)

		rec := f.do(request(http.MethodGet, "/bracket/album?id=a1", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %s", ct)
		}

		var payload struct {
			Items []services.Track `json:"items"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("failed to decode JSON: %v", err)
		}
		if len(payload.Items) != 1 || payload.Items[0].Name != "15 Step" {
			t.Errorf("unexpected payload %+v", payload)
		}
	})

	t.Run("Album Tracks Missing ID", func(t *testing.T) {
		f := newFixture(t)
		request := f.authenticate(t)

		rec := f.do(request(http.MethodGet, "/bracket/album", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestCreatePlaylistPage(t *testing.T) {
	form := func(uris ...string) io.Reader {
		values := url.Values{"uris": uris}
		return strings.NewReader(values.Encode())
	}

	t.Run("Empty Selection", func(t *testing.T) {
		f := newFixture(t)
		request := f.authenticate(t)

		rec := f.do(request(http.MethodPost, "/playlists", form()))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "No tracks selected") {
			t.Error("expected empty-selection message")
		}
	})

	t.Run("Track Add Failure States Partial Result", func(t *testing.T) {
		f := newFixture(t)
		f.mock.CreatePlaylistFunc = func(ctx context.Context, token, ownerID, name, description string, public bool) (*services.Playlist, error) {
			return &services.Playlist{ID: "p1"}, nil
		}
		f.mock.AddTracksFunc = func(ctx context.Context, token, playlistID string, uris []string) error {
			return &services.APIError{Status: 500, Body: "boom"}
		}
		request := f.authenticate(t)

		rec := f.do(request(http.MethodPost, "/playlists", form("spotify:track:1")))
		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rec.Code)
		}

		body := rec.Body.String()
		if !strings.Contains(body, "empty") {
			t.Error("expected page to state the playlist was left empty")
		}
		if !strings.Contains(body, "p1") {
			t.Error("expected page to carry the created playlist id")
		}
	})

	t.Run("Success Renders Playlist Link", func(t *testing.T) {
		f := newFixture(t)
		f.mock.CreatePlaylistFunc = func(ctx context.Context, token, ownerID, name, description string, public bool) (*services.Playlist, error) {
			playlist := &services.Playlist{ID: "p1", Name: name}
			playlist.ExternalURLs.Spotify = "https://open.spotify.com/playlist/p1"
			return playlist, nil
		}
		request := f.authenticate(t)

		rec := f.do(request(http.MethodPost, "/playlists", form("spotify:track:1", "spotify:track:2")))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "https://open.spotify.com/playlist/p1") {
			t.Error("expected playlist URL in page")
		}
	})

	t.Run("GET Not Allowed", func(t *testing.T) {
		f := newFixture(t)
		request := f.authenticate(t)

		rec := f.do(request(http.MethodGet, "/playlists", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})
}

func TestExpiredSessionRedirects(t *testing.T) {
	f := newFixture(t)
	request := f.authenticate(t)

	// Expire the token; the refresh endpoint is unreachable, so the manager
	// reports a failed refresh and the page clears the session.
	session, ok := f.sessions.Current(request(http.MethodGet, "/dashboard", nil))
	if !ok {
		t.Fatal("expected session")
	}
	session.Lock()
	session.Token.ExpiresAt = testNow.Unix() - 10
	session.Unlock()

	rec := f.do(request(http.MethodGet, "/dashboard", nil))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/" {
		t.Errorf("expected redirect to /, got %d %s", rec.Code, rec.Header().Get("Location"))
	}

	if _, ok := f.sessions.Current(request(http.MethodGet, "/", nil)); ok {
		t.Error("expected session to be cleared after failed refresh")
	}
}
