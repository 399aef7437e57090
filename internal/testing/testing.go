// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"net/http"

	"github.com/avramelo/spinstats/internal/services"
)

// MockService is a configurable test double for [services.Service].
//
// Each method records its name in Calls before delegating to the corresponding
// function field; unset fields return zero values.
type MockService struct {
	ProfileFunc        func(ctx context.Context, token string) (*services.User, error)
	TopTracksFunc      func(ctx context.Context, token string, limit int, timeRange string) ([]services.Track, error)
	TopArtistsFunc     func(ctx context.Context, token string, limit int, timeRange string) ([]services.Artist, error)
	RecentlyPlayedFunc func(ctx context.Context, token string, limit int) ([]services.PlayHistory, error)
	SearchAlbumsFunc   func(ctx context.Context, token string, query string, limit int) ([]services.Album, error)
	AlbumTracksFunc    func(ctx context.Context, token string, albumID string) ([]services.Track, error)
	CreatePlaylistFunc func(ctx context.Context, token string, ownerID, name, description string, public bool) (*services.Playlist, error)
	AddTracksFunc      func(ctx context.Context, token string, playlistID string, uris []string) error

	Calls []string
}

func (m *MockService) Profile(ctx context.Context, token string) (*services.User, error) {
	m.Calls = append(m.Calls, "Profile")
	if m.ProfileFunc != nil {
		return m.ProfileFunc(ctx, token)
	}
	return &services.User{ID: "mock-user"}, nil
}

func (m *MockService) TopTracks(ctx context.Context, token string, limit int, timeRange string) ([]services.Track, error) {
	m.Calls = append(m.Calls, "TopTracks")
	if m.TopTracksFunc != nil {
		return m.TopTracksFunc(ctx, token, limit, timeRange)
	}
	return []services.Track{}, nil
}

func (m *MockService) TopArtists(ctx context.Context, token string, limit int, timeRange string) ([]services.Artist, error) {
	m.Calls = append(m.Calls, "TopArtists")
	if m.TopArtistsFunc != nil {
		return m.TopArtistsFunc(ctx, token, limit, timeRange)
	}
	return []services.Artist{}, nil
}

func (m *MockService) RecentlyPlayed(ctx context.Context, token string, limit int) ([]services.PlayHistory, error) {
	m.Calls = append(m.Calls, "RecentlyPlayed")
	if m.RecentlyPlayedFunc != nil {
		return m.RecentlyPlayedFunc(ctx, token, limit)
	}
	return []services.PlayHistory{}, nil
}

func (m *MockService) SearchAlbums(ctx context.Context, token string, query string, limit int) ([]services.Album, error) {
	m.Calls = append(m.Calls, "SearchAlbums")
	if m.SearchAlbumsFunc != nil {
		return m.SearchAlbumsFunc(ctx, token, query, limit)
	}
	return []services.Album{}, nil
}

func (m *MockService) AlbumTracks(ctx context.Context, token string, albumID string) ([]services.Track, error) {
	m.Calls = append(m.Calls, "AlbumTracks")
	if m.AlbumTracksFunc != nil {
		return m.AlbumTracksFunc(ctx, token, albumID)
	}
	return []services.Track{}, nil
}

func (m *MockService) CreatePlaylist(ctx context.Context, token string, ownerID, name, description string, public bool) (*services.Playlist, error) {
	m.Calls = append(m.Calls, "CreatePlaylist")
	if m.CreatePlaylistFunc != nil {
		return m.CreatePlaylistFunc(ctx, token, ownerID, name, description, public)
	}
	return &services.Playlist{ID: "mock-playlist"}, nil
}

func (m *MockService) AddTracks(ctx context.Context, token string, playlistID string, uris []string) error {
	m.Calls = append(m.Calls, "AddTracks")
	if m.AddTracksFunc != nil {
		return m.AddTracksFunc(ctx, token, playlistID, uris)
	}
	return nil
}

func (m *MockService) Name() string { return "mock" }

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}
