// Spotify API implementation of [Service]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avramelo/spinstats/internal/shared"
	"golang.org/x/time/rate"
)

const (
	spotifyBaseURL = "https://api.spotify.com/v1"

	// DefaultTimeRange is the time window Spotify applies to top-item queries when
	// none is given.
	DefaultTimeRange = "medium_term"
)

type followers struct {
	Total int `json:"total"`
}

// User represents a Spotify user profile.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Country     string    `json:"country"`
	Followers   followers `json:"followers"`
	Images      []Image   `json:"images"`
}

// Image represents an image resource.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// Track represents a Spotify track.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []Artist `json:"artists"`
	Album      Album    `json:"album"`
	DurationMS int      `json:"duration_ms"`
	Explicit   bool     `json:"explicit"`
	Popularity int      `json:"popularity"`
	URI        string   `json:"uri"`
}

// Artist represents a Spotify artist.
type Artist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
	Images []Image  `json:"images"`
	URI    string   `json:"uri"`
}

// Album represents a Spotify album.
type Album struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Artists     []Artist `json:"artists"`
	ReleaseDate string   `json:"release_date"`
	TotalTracks int      `json:"total_tracks"`
	Images      []Image  `json:"images"`
	URI         string   `json:"uri"`
}

// PlayHistory represents a single entry in the user's listening history.
type PlayHistory struct {
	Track    Track  `json:"track"`
	PlayedAt string `json:"played_at"`
}

// Playlist represents a Spotify playlist as returned by the create-playlist endpoint.
type Playlist struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Public       bool   `json:"public"`
	URI          string `json:"uri"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

// page is the generic paginated container used by the top-items and
// recently-played endpoints.
type page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Limit int `json:"limit"`
}

// SpotifyService implements the [Service] interface for Spotify API interactions.
//
// Outbound calls share one [rate.Limiter] so a burst of browser requests cannot
// trip the provider's rate limits, and the HTTP client carries a bounded timeout
// so a slow provider cannot block a request indefinitely.
type SpotifyService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// SpotifyOpts contains optional overrides for creating a [SpotifyService].
type SpotifyOpts struct {
	BaseURL    string
	HTTPClient *http.Client
	RateLimit  float64 // requests per second, default 10
}

// NewSpotifyService creates a new Spotify resource API client.
func NewSpotifyService(opts SpotifyOpts) *SpotifyService {
	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10.0
	}

	return &SpotifyService{
		baseURL:    opts.BaseURL,
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
	}
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// doRequest performs an authenticated HTTP request to the Spotify API.
//
// Non-2xx responses become an [*APIError] carrying the provider's status and body.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint, token string, body any, result any) error {
	if token == "" {
		return shared.ErrNotAuthenticated
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	apiURL := s.baseURL + endpoint

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &APIError{Status: resp.StatusCode, Body: string(data)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
		}
	}

	return nil
}

// clampLimit bounds a page size to Spotify's accepted 1..50 range, falling back
// to def when unset.
func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 50 {
		return 50
	}
	return limit
}

// normalizeTimeRange validates the time_range query value, defaulting unknown
// values rather than failing the request.
func normalizeTimeRange(timeRange string) string {
	switch timeRange {
	case "short_term", "medium_term", "long_term":
		return timeRange
	default:
		return DefaultTimeRange
	}
}

// Profile retrieves the current authenticated user's profile.
func (s *SpotifyService) Profile(ctx context.Context, token string) (*User, error) {
	var user User
	if err := s.doRequest(ctx, http.MethodGet, "/me", token, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// TopTracks retrieves the user's top tracks.
func (s *SpotifyService) TopTracks(ctx context.Context, token string, limit int, timeRange string) ([]Track, error) {
	endpoint := fmt.Sprintf("/me/top/tracks?limit=%d&time_range=%s", clampLimit(limit, 10), normalizeTimeRange(timeRange))

	var response page[Track]
	if err := s.doRequest(ctx, http.MethodGet, endpoint, token, nil, &response); err != nil {
		return nil, err
	}

	return response.Items, nil
}

// TopArtists retrieves the user's top artists.
func (s *SpotifyService) TopArtists(ctx context.Context, token string, limit int, timeRange string) ([]Artist, error) {
	endpoint := fmt.Sprintf("/me/top/artists?limit=%d&time_range=%s", clampLimit(limit, 10), normalizeTimeRange(timeRange))

	var response page[Artist]
	if err := s.doRequest(ctx, http.MethodGet, endpoint, token, nil, &response); err != nil {
		return nil, err
	}

	return response.Items, nil
}

// RecentlyPlayed retrieves the user's recently played tracks.
func (s *SpotifyService) RecentlyPlayed(ctx context.Context, token string, limit int) ([]PlayHistory, error) {
	endpoint := fmt.Sprintf("/me/player/recently-played?limit=%d", clampLimit(limit, 50))

	var response page[PlayHistory]
	if err := s.doRequest(ctx, http.MethodGet, endpoint, token, nil, &response); err != nil {
		return nil, err
	}

	return response.Items, nil
}

// SearchAlbums searches the catalog for albums matching the query.
func (s *SpotifyService) SearchAlbums(ctx context.Context, token string, query string, limit int) ([]Album, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}

	endpoint := fmt.Sprintf("/search?q=%s&type=album&limit=%d", url.QueryEscape(query), clampLimit(limit, 10))

	var response struct {
		Albums page[Album] `json:"albums"`
	}

	if err := s.doRequest(ctx, http.MethodGet, endpoint, token, nil, &response); err != nil {
		return nil, err
	}

	return response.Albums.Items, nil
}

// AlbumTracks retrieves the track listing of an album.
func (s *SpotifyService) AlbumTracks(ctx context.Context, token string, albumID string) ([]Track, error) {
	if albumID == "" {
		return nil, fmt.Errorf("%w: album id", shared.ErrMissingArgument)
	}

	endpoint := fmt.Sprintf("/albums/%s/tracks", albumID)

	var response page[Track]
	if err := s.doRequest(ctx, http.MethodGet, endpoint, token, nil, &response); err != nil {
		return nil, err
	}

	return response.Items, nil
}

// CreatePlaylist creates a new, empty playlist owned by ownerID.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, token string, ownerID, name, description string, public bool) (*Playlist, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id", shared.ErrMissingArgument)
	}

	endpoint := fmt.Sprintf("/users/%s/playlists", ownerID)
	body := map[string]any{
		"name":        name,
		"description": description,
		"public":      public,
	}

	var playlist Playlist
	if err := s.doRequest(ctx, http.MethodPost, endpoint, token, body, &playlist); err != nil {
		return nil, err
	}

	return &playlist, nil
}

// AddTracks appends the given track URIs to an existing playlist, in order.
func (s *SpotifyService) AddTracks(ctx context.Context, token string, playlistID string, uris []string) error {
	if playlistID == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", playlistID)
	body := map[string]any{"uris": uris}

	return s.doRequest(ctx, http.MethodPost, endpoint, token, body, nil)
}
