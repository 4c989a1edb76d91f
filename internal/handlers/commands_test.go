package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juckr/djspot/internal/config"
	"github.com/juckr/djspot/internal/music"
	"github.com/juckr/djspot/internal/player"
	"github.com/juckr/djspot/internal/throttle"
)

func interaction(data discordgo.ApplicationCommandInteractionData, member *discordgo.Member, user *discordgo.User) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:   discordgo.InteractionApplicationCommand,
			Data:   data,
			Member: member,
			User:   user,
		},
	}
}

func TestUserIDOfPrefersGuildMember(t *testing.T) {
	i := interaction(discordgo.ApplicationCommandInteractionData{},
		&discordgo.Member{User: &discordgo.User{ID: "member-1"}},
		&discordgo.User{ID: "dm-user"},
	)
	assert.Equal(t, "member-1", userIDOf(i))
}

func TestUserIDOfFallsBackToDMUser(t *testing.T) {
	i := interaction(discordgo.ApplicationCommandInteractionData{}, nil, &discordgo.User{ID: "dm-user"})
	assert.Equal(t, "dm-user", userIDOf(i))

	empty := interaction(discordgo.ApplicationCommandInteractionData{}, nil, nil)
	assert.Equal(t, "", userIDOf(empty))
}

func TestIsAdmin(t *testing.T) {
	admin := interaction(discordgo.ApplicationCommandInteractionData{},
		&discordgo.Member{Permissions: discordgo.PermissionAdministrator}, nil)
	assert.True(t, isAdmin(admin))

	pleb := interaction(discordgo.ApplicationCommandInteractionData{},
		&discordgo.Member{Permissions: discordgo.PermissionSendMessages}, nil)
	assert.False(t, isAdmin(pleb))

	dm := interaction(discordgo.ApplicationCommandInteractionData{}, nil, &discordgo.User{ID: "u"})
	assert.False(t, isAdmin(dm))
}

func TestOptionExtraction(t *testing.T) {
	data := discordgo.ApplicationCommandInteractionData{
		Name: "queue",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "query", Type: discordgo.ApplicationCommandOptionString, Value: "daft punk"},
			{Name: "limit", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(5)},
			{Name: "member", Type: discordgo.ApplicationCommandOptionUser, Value: "12345"},
		},
	}
	i := interaction(data, nil, &discordgo.User{ID: "u"})

	assert.Equal(t, "daft punk", stringOption(i, "query"))
	assert.Equal(t, "", stringOption(i, "missing"))
	assert.Equal(t, 5, intOption(i, "limit", 10))
	assert.Equal(t, 10, intOption(i, "missing", 10))
	assert.Equal(t, "12345", userOption(i, "member"))
	assert.Equal(t, "", userOption(i, "missing"))
}

func TestPrettyDuration(t *testing.T) {
	assert.Equal(t, "10m0s", prettyDuration(10*time.Minute))
	assert.Equal(t, "5s", prettyDuration(4900*time.Millisecond))
}

// stubGateway satisfies player.Gateway with canned search results and
// no-op device control.
type stubGateway struct {
	tracks []music.Track
}

func (g stubGateway) Search(context.Context, string, int) ([]music.Track, error) {
	return g.tracks, nil
}
func (g stubGateway) Devices(context.Context) ([]player.Device, error)          { return nil, nil }
func (g stubGateway) Resume(context.Context, string, string) error              { return nil }
func (g stubGateway) Pause(context.Context) error                               { return nil }
func (g stubGateway) SeekTo(context.Context, int) error                         { return nil }
func (g stubGateway) CurrentPlayback(context.Context) (*player.Playback, error) { return nil, nil }
func (g stubGateway) SetVolume(context.Context, int) error                      { return nil }
func (g stubGateway) EnqueueNative(context.Context, string) error               { return nil }
func (g stubGateway) SkipNext(context.Context) error                            { return nil }
func (g stubGateway) SearchPlaylists(context.Context, string, int) ([]player.Playlist, error) {
	return nil, nil
}
func (g stubGateway) PlaylistTracks(context.Context, string, int) ([]music.Track, error) {
	return nil, nil
}

// stubTransport swallows every REST call the session makes so handler
// tests never leave the process.
type stubTransport struct{}

func (stubTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("{}")),
		Header:     make(http.Header),
	}, nil
}

func stubSession(t *testing.T) *discordgo.Session {
	t.Helper()
	s, err := discordgo.New("Bot test-token")
	require.NoError(t, err)
	s.Client = &http.Client{Transport: stubTransport{}}
	return s
}

func newTestHandler(gw player.Gateway) *CommandHandler {
	cfg := &config.Config{CommandCooldown: time.Minute, OwnerTTL: time.Hour}
	engine := player.NewPlayer(gw, player.Options{})
	return NewCommandHandler(cfg, nil, throttle.New(), engine)
}

func TestCooldownScopedPerCommandAndUser(t *testing.T) {
	h := newTestHandler(stubGateway{})

	_, ok := h.gate("list-queue", "u1")
	require.True(t, ok)
	h.cache.Arm(cooldownKey("list-queue", "u1"), h.cfg.CommandCooldown)

	msg, ok := h.gate("list-queue", "u1")
	assert.False(t, ok)
	assert.Contains(t, msg, "try again in")

	_, ok = h.gate("skip", "u1")
	assert.True(t, ok, "a cooling list-queue must not block skip")
	_, ok = h.gate("list-queue", "u2")
	assert.True(t, ok, "cooldowns are per user")
}

func TestGateDeniesBannedUserEverywhere(t *testing.T) {
	h := newTestHandler(stubGateway{})
	h.cache.Ban("u1", time.Minute)

	for _, cmd := range []string{"queue", "skip", "now-playing"} {
		msg, ok := h.gate(cmd, "u1")
		assert.False(t, ok, cmd)
		assert.Contains(t, msg, "banned")
	}
}

func TestSearchMissDoesNotArmCooldown(t *testing.T) {
	h := newTestHandler(stubGateway{})
	s := stubSession(t)
	ctx := context.Background()

	data := discordgo.ApplicationCommandInteractionData{
		Name: "search",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "query", Type: discordgo.ApplicationCommandOptionString, Value: "tpyo"},
		},
	}
	i := interaction(data, nil, &discordgo.User{ID: "u1"})

	h.throttled("search", s, i, func() bool { return h.cmdSearch(ctx, s, i) })

	_, ok := h.gate("search", "u1")
	assert.True(t, ok, "an empty result must leave the user free to retry")
}

func TestSearchHitArmsCooldown(t *testing.T) {
	gw := stubGateway{tracks: []music.Track{
		music.NewTrack("t1", "Song", nil, music.Album{}, 1000, "spotify:track:t1"),
	}}
	h := newTestHandler(gw)
	s := stubSession(t)
	ctx := context.Background()

	data := discordgo.ApplicationCommandInteractionData{
		Name: "search",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "query", Type: discordgo.ApplicationCommandOptionString, Value: "song"},
		},
	}
	i := interaction(data, nil, &discordgo.User{ID: "u1"})

	h.throttled("search", s, i, func() bool { return h.cmdSearch(ctx, s, i) })

	_, ok := h.gate("search", "u1")
	assert.False(t, ok, "a successful search arms the cooldown")
}
