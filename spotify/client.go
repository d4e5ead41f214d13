package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"tubegrab/tracks"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	spotifyclient "github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	ErrPlaylistNotFound     = errors.New("playlist not found")
	ErrPlaylistInaccessible = errors.New("playlist is private or not accessible")
	ErrInvalidURL           = errors.New("invalid Spotify URL")
)

type SpotifyRequest struct {
	TrackID    string
	PlaylistID string
	ArtistID   string
}

// PlaylistSummary identifies the playlist a search term settled on.
type PlaylistSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// Client reads public playlists with app-only credentials.
type Client struct {
	api    *spotifyclient.Client
	logger *log.Entry
}

func NewClient(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	token, err := config.Token(ctx)
	if err != nil {
		sentry.CaptureException(err)
		return nil, fmt.Errorf("requesting spotify token: %w", err)
	}

	httpClient := spotifyauth.New().Client(ctx, token)
	return newClient(httpClient), nil
}

func newClient(httpClient *http.Client, opts ...spotifyclient.ClientOption) *Client {
	return &Client{
		api:    spotifyclient.New(httpClient, opts...),
		logger: log.WithFields(log.Fields{"module": "spotify"}),
	}
}

// SearchPlaylist accepts either a playlist URL or a free-text term. For a
// term the first playlist the search returns is used.
func (c *Client) SearchPlaylist(ctx context.Context, term string) (*PlaylistSummary, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, ErrPlaylistNotFound
	}

	if strings.HasPrefix(term, "https://open.spotify.com/") {
		request, err := ParseSpotifyURL(term)
		if err != nil {
			return nil, err
		}
		if request.PlaylistID == "" {
			return nil, fmt.Errorf("%w: not a playlist link", ErrInvalidURL)
		}
		return c.getPlaylist(ctx, request.PlaylistID)
	}

	span := sentry.StartSpan(ctx, "spotify.search")
	span.Description = "Search Spotify API"
	span.SetTag("query", term)
	defer span.Finish()

	results, err := c.api.Search(ctx, term, spotifyclient.SearchTypePlaylist, spotifyclient.Limit(5))
	if err != nil {
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("searching playlists: %w", err)
	}

	span.Status = sentry.SpanStatusOK
	if results.Playlists != nil {
		// the search endpoint can return null entries for removed playlists
		for _, playlist := range results.Playlists.Playlists {
			if playlist.ID == "" {
				continue
			}
			c.logger.Debugf("playlist search %q matched %q", term, playlist.Name)
			return &PlaylistSummary{
				ID:    string(playlist.ID),
				Name:  playlist.Name,
				Owner: playlist.Owner.DisplayName,
			}, nil
		}
	}
	return nil, ErrPlaylistNotFound
}

func (c *Client) getPlaylist(ctx context.Context, playlistID string) (*PlaylistSummary, error) {
	span := sentry.StartSpan(ctx, "spotify.get_playlist")
	span.Description = "Get playlist from Spotify API"
	span.SetTag("playlist_id", playlistID)
	defer span.Finish()

	playlist, err := c.api.GetPlaylist(ctx, spotifyclient.ID(playlistID))
	if err != nil {
		c.logger.Errorf("Failed to fetch Spotify playlist %s: %v", playlistID, err)
		span.Status = sentry.SpanStatusInternalError
		return nil, classify(err)
	}

	span.Status = sentry.SpanStatusOK
	return &PlaylistSummary{
		ID:    string(playlist.ID),
		Name:  playlist.Name,
		Owner: playlist.Owner.DisplayName,
	}, nil
}

// Items fetches one window of a playlist. Entries that are not music tracks
// (podcast episodes, removed tracks) are left out of the page.
func (c *Client) Items(ctx context.Context, playlistID string, offset, limit int) (*tracks.Page, error) {
	c.logger.Tracef("Fetching playlist items: %s (offset %d, limit %d)", playlistID, offset, limit)

	span := sentry.StartSpan(ctx, "spotify.playlist_items")
	span.Description = "Get playlist items from Spotify API"
	span.SetTag("playlist_id", playlistID)
	span.SetData("offset", offset)
	defer span.Finish()

	items, err := c.api.GetPlaylistItems(ctx, spotifyclient.ID(playlistID),
		spotifyclient.Limit(limit),
		spotifyclient.Offset(offset))
	if err != nil {
		c.logger.Errorf("Failed to fetch Spotify playlist items %s: %v", playlistID, err)
		span.Status = sentry.SpanStatusInternalError
		return nil, classify(err)
	}

	page := &tracks.Page{
		Tracks:     make([]tracks.Track, 0, len(items.Items)),
		HasNext:    items.Next != "",
		NextOffset: offset + len(items.Items),
		Total:      int(items.Total),
	}
	for _, item := range items.Items {
		if item.Track.Track == nil {
			continue
		}
		track := item.Track.Track
		artists := make([]string, 0, len(track.Artists))
		for _, artist := range track.Artists {
			artists = append(artists, artist.Name)
		}
		page.Tracks = append(page.Tracks, tracks.Track{
			Artist: strings.Join(artists, ", "),
			Title:  track.Name,
		})
	}

	span.Status = sentry.SpanStatusOK
	span.SetData("tracks_count", len(page.Tracks))
	return page, nil
}

func classify(err error) error {
	switch status := errorStatus(err); status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrPlaylistNotFound, err)
	case http.StatusForbidden, http.StatusUnauthorized:
		return fmt.Errorf("%w: %v", ErrPlaylistInaccessible, err)
	}
	sentry.CaptureException(err)
	return err
}

func errorStatus(err error) int {
	var apiErr spotifyclient.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	var apiErrPtr *spotifyclient.Error
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Status
	}
	// older responses only carry the status in the message
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "404") || strings.Contains(msg, "not found"):
		return http.StatusNotFound
	case strings.Contains(msg, "403") || strings.Contains(msg, "forbidden"):
		return http.StatusForbidden
	}
	return 0
}

func ParseSpotifyURL(url string) (SpotifyRequest, error) {
	if strings.HasPrefix(url, "https://open.spotify.com/") {
		parts := strings.Split(url, "/")
		if len(parts) < 5 {
			log.Warnf("Invalid Spotify URL format (too few parts): %s", url)
			return SpotifyRequest{}, ErrInvalidURL
		}

		request := SpotifyRequest{}

		// Strip query parameters from ID (e.g., ?si=tracking_id)
		id := strings.Split(parts[4], "?")[0]

		switch parts[3] {
		case "playlist":
			request.PlaylistID = id
			log.Tracef("Parsed Spotify playlist URL: %s", id)
		case "artist":
			request.ArtistID = id
			log.Tracef("Parsed Spotify artist URL: %s", id)
		case "track":
			request.TrackID = id
			log.Tracef("Parsed Spotify track URL: %s", id)
		}

		return request, nil
	}

	log.Warnf("URL does not start with https://open.spotify.com/: %s", url)
	return SpotifyRequest{}, ErrInvalidURL
}
