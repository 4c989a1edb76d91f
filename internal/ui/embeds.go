package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/juckr/djspot/internal/music"
	"github.com/juckr/djspot/internal/player"
	"github.com/juckr/djspot/internal/repository"
)

func trackLine(t music.Track) string {
	return fmt.Sprintf("**%s** - %s by %s", t.Title, t.Album.Name, strings.Join(t.ArtistNames(), ", "))
}

func prettyTime(ms int) string {
	sec := ms / 1000
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func BuildSearchEmbed(query string, tracks []music.Track) *discordgo.MessageEmbed {
	var sb strings.Builder
	for _, t := range tracks {
		fmt.Fprintf(&sb, "%s `[ %s ]`\n", trackLine(t), prettyTime(t.DurationMs))
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Search results for %q", query),
		Description: sb.String(),
		Color:       0x1DB954,
	}
}

func BuildQueueEmbed(tracks []music.Track, total int) *discordgo.MessageEmbed {
	if len(tracks) == 0 {
		return &discordgo.MessageEmbed{
			Title:       "Queue",
			Description: "There is no music in queue",
			Color:       0x992222,
		}
	}
	var sb strings.Builder
	for i, t := range tracks {
		fmt.Fprintf(&sb, "`%d.` %s `[ %s ]`\n", i+1, trackLine(t), prettyTime(t.DurationMs))
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Next %d of %d in queue", len(tracks), total),
		Description: sb.String(),
		Color:       0x1DB954,
	}
}

func BuildHistoryEmbed(rows []repository.PlayedTrack) *discordgo.MessageEmbed {
	var sb strings.Builder
	for _, r := range rows {
		when := time.Unix(r.PlayedAt, 0).Format("Jan 2 15:04")
		fmt.Fprintf(&sb, "**%s** by %s `[ %s ]`\n", r.Title, r.Artists, when)
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Your last %d queued track(s)", len(rows)),
		Description: sb.String(),
		Color:       0x1DB954,
	}
}

func BuildNowPlayingEmbed(current *music.Track, state player.State) *discordgo.MessageEmbed {
	if current == nil {
		return &discordgo.MessageEmbed{
			Title:       "Nothing Playing",
			Description: "No playing track found",
			Color:       0x992222,
		}
	}
	embed := &discordgo.MessageEmbed{
		Title:       "Now Playing",
		Description: fmt.Sprintf("%s `[ %s ]`", trackLine(*current), prettyTime(current.DurationMs)),
		Color:       0x1DB954,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("State: %s", state),
		},
	}
	if len(current.Album.Images) > 0 {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: current.Album.Images[0]}
	}
	return embed
}
