// package tasks implements playlist creation against the streaming platform.
//
// The core abstraction is [PlaylistEngine], which orchestrates the two-step
// "create playlist, then populate it" sequence. The platform exposes creation
// and population as separate non-atomic operations, so a failure between the
// two leaves a real, empty playlist behind; that partial state is surfaced to
// the caller as a [*TrackAddError] rather than silently retried or rolled back.
package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/avramelo/spinstats/internal/services"
	"github.com/avramelo/spinstats/internal/shared"
	"github.com/charmbracelet/log"
)

var (
	// ErrEmptySelection is returned when a playlist submission contains no tracks.
	ErrEmptySelection = fmt.Errorf("no tracks selected")

	// ErrIdentityResolution is returned when the owner's profile lookup fails
	// before anything is created.
	ErrIdentityResolution = fmt.Errorf("failed to resolve user identity")
)

// PlaylistCreateError is returned when the create-playlist call is rejected.
// Nothing was created on the platform.
type PlaylistCreateError struct {
	Status int
	Body   string
}

func (e *PlaylistCreateError) Error() string {
	return fmt.Sprintf("playlist creation failed: status %d: %s", e.Status, e.Body)
}

// TrackAddError is returned when the playlist was created but populating it
// failed. The playlist exists on the platform, empty.
type TrackAddError struct {
	Status     int
	Body       string
	PlaylistID string
}

func (e *TrackAddError) Error() string {
	return fmt.Sprintf("failed to add tracks to playlist %s: status %d: %s", e.PlaylistID, e.Status, e.Body)
}

// CreatedPlaylist is the result of a successful playlist creation.
type CreatedPlaylist struct {
	ID   string
	Name string
	URL  string
}

// Fixed defaults for user-submitted playlists.
const (
	playlistName        = "My spinstats mix"
	playlistDescription = "Created with spinstats from your listening stats"
)

// PlaylistEngine turns a user's track selection into a newly created, populated
// playlist on the platform.
type PlaylistEngine struct {
	service services.Service
	logger  *log.Logger
}

// NewPlaylistEngine creates a new engine backed by the given resource API client.
func NewPlaylistEngine(service services.Service, logger *log.Logger) *PlaylistEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &PlaylistEngine{service: service, logger: logger}
}

// CreatePlaylist creates a private playlist for the authenticated user and
// populates it with the given ordered track URIs.
//
// Each external call is at-most-once; there is no retry at any step. The owner
// identity is resolved at submission time, not cached from login.
func (e *PlaylistEngine) CreatePlaylist(ctx context.Context, token string, trackURIs []string) (*CreatedPlaylist, error) {
	if e.service == nil {
		return nil, fmt.Errorf("%w: service not initialized", shared.ErrServiceUnavailable)
	}

	if len(trackURIs) == 0 {
		return nil, ErrEmptySelection
	}

	user, err := e.service.Profile(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityResolution, err)
	}

	playlist, err := e.service.CreatePlaylist(ctx, token, user.ID, playlistName, playlistDescription, false)
	if err != nil {
		var apiErr *services.APIError
		if errors.As(err, &apiErr) {
			return nil, &PlaylistCreateError{Status: apiErr.Status, Body: apiErr.Body}
		}
		return nil, &PlaylistCreateError{Body: err.Error()}
	}

	if err := e.service.AddTracks(ctx, token, playlist.ID, trackURIs); err != nil {
		e.logger.Warn("playlist created but left empty", "playlist", playlist.ID, "tracks", len(trackURIs))
		var apiErr *services.APIError
		if errors.As(err, &apiErr) {
			return nil, &TrackAddError{Status: apiErr.Status, Body: apiErr.Body, PlaylistID: playlist.ID}
		}
		return nil, &TrackAddError{Body: err.Error(), PlaylistID: playlist.ID}
	}

	e.logger.Info("playlist created", "playlist", playlist.ID, "tracks", len(trackURIs))

	url := playlist.ExternalURLs.Spotify
	if url == "" {
		url = playlist.URI
	}

	return &CreatedPlaylist{ID: playlist.ID, Name: playlist.Name, URL: url}, nil
}
