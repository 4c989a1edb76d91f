// Package spotify implements the player.Gateway over the Spotify Web
// API. The device-control endpoints need a user token, so the client is
// built from a refresh token rather than client credentials.
package spotify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/juckr/djspot/internal/music"
	"github.com/juckr/djspot/internal/player"
)

type Client struct {
	raw *spotify.Client
}

var _ player.Gateway = (*Client)(nil)

func NewClient(clientID, clientSecret, refreshToken string) (*Client, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("spotify refresh token required")
	}
	auth := spotifyauth.New(
		spotifyauth.WithClientID(clientID),
		spotifyauth.WithClientSecret(clientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPlaybackState,
			spotifyauth.ScopeUserModifyPlaybackState,
		),
	)
	// An already expired token forces a refresh on first use.
	tok := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Hour),
	}
	httpClient := auth.Client(context.Background(), tok)
	return &Client{raw: spotify.New(httpClient, spotify.WithRetry(true))}, nil
}

func (c *Client) Raw() *spotify.Client { return c.raw }

func (c *Client) Search(ctx context.Context, query string, limit int) ([]music.Track, error) {
	if limit <= 0 {
		limit = 10
	}
	res, err := c.raw.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("spotify search: %w", err)
	}
	if res.Tracks == nil {
		return nil, nil
	}
	tracks := res.Tracks.Tracks
	if len(tracks) > limit {
		tracks = tracks[:limit]
	}

	genres := c.artistGenres(ctx, tracks)
	out := make([]music.Track, 0, len(tracks))
	for i := range tracks {
		out = append(out, trackFromFull(&tracks[i], genres))
	}
	return out, nil
}

// artistGenres batch-fetches the full artist records behind the given
// tracks so search results can carry genre metadata. Failures degrade
// to empty genres rather than failing the search.
func (c *Client) artistGenres(ctx context.Context, tracks []spotify.FullTrack) map[spotify.ID][]string {
	var ids []spotify.ID
	seen := make(map[spotify.ID]bool)
	for _, t := range tracks {
		for _, a := range t.Artists {
			if !seen[a.ID] {
				seen[a.ID] = true
				ids = append(ids, a.ID)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}
	artists, err := c.raw.GetArtists(ctx, ids...)
	if err != nil {
		return nil
	}
	genres := make(map[spotify.ID][]string, len(artists))
	for _, a := range artists {
		if a != nil {
			genres[a.ID] = a.Genres
		}
	}
	return genres
}

func (c *Client) Devices(ctx context.Context) ([]player.Device, error) {
	devices, err := c.raw.PlayerDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("spotify devices: %w", err)
	}
	out := make([]player.Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, player.Device{
			ID:     string(d.ID),
			Name:   d.Name,
			Active: d.Active,
		})
	}
	return out, nil
}

func (c *Client) Resume(ctx context.Context, uri, deviceID string) error {
	id := spotify.ID(deviceID)
	err := c.raw.PlayOpt(ctx, &spotify.PlayOptions{
		DeviceID: &id,
		URIs:     []spotify.URI{spotify.URI(uri)},
	})
	if err != nil {
		return fmt.Errorf("spotify play: %w", err)
	}
	return nil
}

func (c *Client) Pause(ctx context.Context) error {
	if err := c.raw.Pause(ctx); err != nil {
		return fmt.Errorf("spotify pause: %w", err)
	}
	return nil
}

func (c *Client) SeekTo(ctx context.Context, positionMs int) error {
	if err := c.raw.Seek(ctx, positionMs); err != nil {
		return fmt.Errorf("spotify seek: %w", err)
	}
	return nil
}

func (c *Client) CurrentPlayback(ctx context.Context) (*player.Playback, error) {
	cp, err := c.raw.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return nil, fmt.Errorf("spotify currently playing: %w", err)
	}
	if cp == nil || cp.Item == nil {
		return nil, nil
	}
	t := trackFromFull(cp.Item, nil)
	return &player.Playback{
		Track:      t,
		IsPlaying:  cp.Playing,
		ProgressMs: int(cp.Progress),
	}, nil
}

func (c *Client) SetVolume(ctx context.Context, percent int) error {
	if err := c.raw.Volume(ctx, percent); err != nil {
		return fmt.Errorf("spotify volume: %w", err)
	}
	return nil
}

func (c *Client) EnqueueNative(ctx context.Context, uri string) error {
	if err := c.raw.QueueSong(ctx, idFromURI(uri)); err != nil {
		return fmt.Errorf("spotify queue: %w", err)
	}
	return nil
}

func (c *Client) SkipNext(ctx context.Context) error {
	if err := c.raw.Next(ctx); err != nil {
		return fmt.Errorf("spotify next: %w", err)
	}
	return nil
}

func (c *Client) SearchPlaylists(ctx context.Context, query string, limit int) ([]player.Playlist, error) {
	if limit <= 0 {
		limit = 10
	}
	res, err := c.raw.Search(ctx, query, spotify.SearchTypePlaylist, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("spotify playlist search: %w", err)
	}
	if res.Playlists == nil {
		return nil, nil
	}
	playlists := res.Playlists.Playlists
	if len(playlists) > limit {
		playlists = playlists[:limit]
	}
	out := make([]player.Playlist, 0, len(playlists))
	for _, pl := range playlists {
		out = append(out, player.Playlist{
			ID:    string(pl.ID),
			Name:  pl.Name,
			Owner: pl.Owner.DisplayName,
		})
	}
	return out, nil
}

func (c *Client) PlaylistTracks(ctx context.Context, playlistID string, limit int) ([]music.Track, error) {
	page, err := c.raw.GetPlaylistItems(ctx, spotify.ID(playlistID))
	if err != nil {
		return nil, fmt.Errorf("spotify playlist items: %w", err)
	}
	var out []music.Track
	add := func(items []spotify.PlaylistItem) {
		for i := range items {
			t := items[i].Track.Track
			if t == nil {
				continue
			}
			if limit > 0 && len(out) >= limit {
				break
			}
			out = append(out, trackFromFull(t, nil))
		}
	}
	add(page.Items)
	for page.Next != "" && (limit == 0 || len(out) < limit) {
		if err := c.raw.NextPage(ctx, page); err != nil {
			break
		}
		add(page.Items)
	}
	return out, nil
}

func trackFromFull(t *spotify.FullTrack, genres map[spotify.ID][]string) music.Track {
	artists := make([]music.Artist, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, music.Artist{
			ID:     string(a.ID),
			Name:   a.Name,
			Genres: genres[a.ID],
		})
	}
	images := make([]string, 0, len(t.Album.Images))
	for _, img := range t.Album.Images {
		images = append(images, img.URL)
	}
	return music.NewTrack(
		string(t.ID),
		t.Name,
		artists,
		music.Album{Name: t.Album.Name, Images: images},
		int(t.Duration),
		string(t.URI),
	)
}

// idFromURI extracts the catalogue ID from a "spotify:track:<id>" URI.
func idFromURI(uri string) spotify.ID {
	if i := strings.LastIndex(uri, ":"); i >= 0 {
		return spotify.ID(uri[i+1:])
	}
	return spotify.ID(uri)
}
