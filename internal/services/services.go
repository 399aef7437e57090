// package services defines interface Service for interacting with the Spotify Web API
package services

import (
	"context"
	"fmt"
)

// Service defines the interface for the music platform resource API consumed by the
// web handlers and the playlist engine.
//
// Every method takes the bearer token for the call explicitly; the client holds no
// token state of its own. Token lifecycle is owned by the auth package.
type Service interface {
	// Profile retrieves the authenticated user's profile.
	Profile(ctx context.Context, token string) (*User, error)

	// TopTracks retrieves the user's top tracks for the given time range.
	TopTracks(ctx context.Context, token string, limit int, timeRange string) ([]Track, error)

	// TopArtists retrieves the user's top artists for the given time range.
	TopArtists(ctx context.Context, token string, limit int, timeRange string) ([]Artist, error)

	// RecentlyPlayed retrieves the user's recently played tracks.
	RecentlyPlayed(ctx context.Context, token string, limit int) ([]PlayHistory, error)

	// SearchAlbums searches the catalog for albums matching the query.
	SearchAlbums(ctx context.Context, token string, query string, limit int) ([]Album, error)

	// AlbumTracks retrieves the track listing of an album.
	AlbumTracks(ctx context.Context, token string, albumID string) ([]Track, error)

	// CreatePlaylist creates a new, empty playlist owned by ownerID.
	CreatePlaylist(ctx context.Context, token string, ownerID, name, description string, public bool) (*Playlist, error)

	// AddTracks appends the given track URIs to an existing playlist, in order.
	AddTracks(ctx context.Context, token string, playlistID string, uris []string) error

	// Name returns the name of the service (e.g. "Spotify")
	Name() string
}

// APIError is returned for non-2xx responses from the resource API, preserving the
// provider's status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify API error: status %d: %s", e.Status, e.Body)
}
