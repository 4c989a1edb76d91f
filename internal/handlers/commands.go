package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/juckr/djspot/internal/config"
	"github.com/juckr/djspot/internal/player"
	"github.com/juckr/djspot/internal/repository"
	"github.com/juckr/djspot/internal/throttle"
	"github.com/juckr/djspot/internal/ui"
)

const interactionTimeout = 15 * time.Second

type CommandHandler struct {
	cfg    *config.Config
	repo   *repository.Repo
	cache  *throttle.Cache
	engine *player.Player
}

func NewCommandHandler(cfg *config.Config, repo *repository.Repo, cache *throttle.Cache, engine *player.Player) *CommandHandler {
	return &CommandHandler{cfg: cfg, repo: repo, cache: cache, engine: engine}
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	var (
		minVolume float64
		maxLimit  = 25
	)
	return []*discordgo.ApplicationCommand{
		{
			Name:        "search",
			Description: "Search tracks without queueing anything",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "What to search for",
					Required:    true,
				},
			},
		},
		{
			Name:        "queue",
			Description: "Queue the best match for a search",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "What to play",
					Required:    true,
				},
			},
		},
		{
			Name:        "list-queue",
			Description: "Show the upcoming tracks",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "limit",
					Description: "How many tracks to show",
					MaxValue:    float64(maxLimit),
				},
			},
		},
		{
			Name:        "skip",
			Description: "Skip the current track (requester only)",
		},
		{
			Name:        "autoplay",
			Description: "Seed playback from the discovery playlist",
		},
		{
			Name:        "now-playing",
			Description: "Show what the bot thinks is playing",
		},
		{
			Name:        "history",
			Description: "Show your recently queued tracks",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "limit",
					Description: "How many tracks to show",
					MaxValue:    float64(maxLimit),
				},
			},
		},
		{
			Name:        "clear",
			Description: "Empty the queue",
		},
		{
			Name:        "mute",
			Description: "Mute the playback device",
		},
		{
			Name:        "unmute",
			Description: "Restore the volume from before the mute",
		},
		{
			Name:        "volume",
			Description: "Set the playback volume",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "level",
					Description: "Volume percent, 0 to 100",
					Required:    true,
					MinValue:    &minVolume,
					MaxValue:    100,
				},
			},
		},
		{
			Name:        "ban",
			Description: "Ban a member from bot commands for a while",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "member",
					Description: "Who to ban",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "minutes",
					Description: "Ban length in minutes",
				},
			},
		},
		{
			Name:        "unban",
			Description: "Lift a command ban early",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "member",
					Description: "Who to unban",
					Required:    true,
				},
			},
		},
	}
}

// RegisterCommands pushes the slash command set to one guild, or
// globally when guildID is empty.
func (h *CommandHandler) RegisterCommands(s *discordgo.Session, appID, guildID string) error {
	_, err := s.ApplicationCommandBulkOverwrite(appID, guildID, commandDefinitions())
	return err
}

func (h *CommandHandler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	name := i.ApplicationCommandData().Name
	switch name {
	case "search":
		h.throttled(name, s, i, func() bool { return h.cmdSearch(ctx, s, i) })
	case "queue":
		h.throttled(name, s, i, func() bool { return h.cmdQueue(ctx, s, i) })
	case "list-queue":
		h.throttled(name, s, i, func() bool { return h.cmdListQueue(s, i) })
	case "skip":
		h.throttled(name, s, i, func() bool { return h.cmdSkip(ctx, s, i) })
	case "autoplay":
		h.throttled(name, s, i, func() bool { return h.cmdAutoPlay(ctx, s, i) })
	case "now-playing":
		h.throttled(name, s, i, func() bool { return h.cmdNowPlaying(s, i) })
	case "history":
		h.throttled(name, s, i, func() bool { return h.cmdHistory(ctx, s, i) })
	case "clear":
		h.throttled(name, s, i, func() bool { return h.cmdClear(s, i) })
	case "mute":
		h.throttled(name, s, i, func() bool { return h.cmdMute(ctx, s, i) })
	case "unmute":
		h.throttled(name, s, i, func() bool { return h.cmdUnmute(ctx, s, i) })
	case "volume":
		h.throttled(name, s, i, func() bool { return h.cmdVolume(ctx, s, i) })
	case "ban":
		h.cmdBan(s, i)
	case "unban":
		h.cmdUnban(s, i)
	default:
		slog.Warn("unknown command", "name", name)
	}
}

// cooldownKey scopes a cooldown to one command and one user, so a
// cooling /queue never blocks an unrelated /skip.
func cooldownKey(command, userID string) string {
	return command + "-" + userID
}

// gate applies the ban and cooldown policy for one command invocation.
// The denial message is returned so it can be sent ephemerally.
func (h *CommandHandler) gate(command, userID string) (string, bool) {
	if rem, banned := h.cache.Banned(userID); banned {
		return fmt.Sprintf("You are banned from the bot for another %s.", prettyDuration(rem)), false
	}
	if rem, hot := h.cache.Throttled(cooldownKey(command, userID)); hot {
		secs := int(math.Ceil(rem.Seconds()))
		return fmt.Sprintf("Easy there, try again in %d second(s).", secs), false
	}
	return "", true
}

// throttled runs fn behind the ban and cooldown checks. The cooldown is
// armed only when fn reports success, so a rejected command can be
// retried right away.
func (h *CommandHandler) throttled(command string, s *discordgo.Session, i *discordgo.InteractionCreate, fn func() bool) {
	userID := userIDOf(i)
	if userID == "" {
		return
	}
	if msg, ok := h.gate(command, userID); !ok {
		h.reply(s, i, msg, true)
		return
	}
	if fn() {
		h.cache.Arm(cooldownKey(command, userID), h.cfg.CommandCooldown)
	}
}

func (h *CommandHandler) cmdSearch(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	query := stringOption(i, "query")
	if query == "" {
		h.reply(s, i, "Give me something to search for.", true)
		return false
	}
	h.deferReply(s, i)

	tracks, err := h.engine.Search(ctx, query, 10)
	if err != nil {
		slog.Error("search failed", "query", query, "err", err)
		h.editReply(s, i, "Search failed, try again later.")
		return false
	}
	if len(tracks) == 0 {
		// No cooldown for a miss, a typo should be retryable at once.
		h.editReply(s, i, fmt.Sprintf("Nothing found for %q.", query))
		return false
	}
	h.editReplyEmbed(s, i, ui.BuildSearchEmbed(query, tracks))
	return true
}

func (h *CommandHandler) cmdQueue(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	query := stringOption(i, "query")
	if query == "" {
		h.reply(s, i, "Give me something to play.", true)
		return false
	}
	userID := userIDOf(i)
	h.deferReply(s, i)

	tracks, err := h.engine.Search(ctx, query, 1)
	if err != nil {
		slog.Error("search failed", "query", query, "err", err)
		h.editReply(s, i, "Search failed, try again later.")
		return false
	}
	if len(tracks) == 0 {
		// No cooldown for a miss, a typo should be retryable at once.
		h.editReply(s, i, fmt.Sprintf("Nothing found for %q.", query))
		return false
	}

	t := tracks[0]
	h.cache.SetOwner(t.CorrelationID, userID, h.cfg.OwnerTTL)
	h.engine.Enqueue(t)

	guildID := i.GuildID
	if err := h.repo.EnsureMember(ctx, userID, guildID); err != nil {
		slog.Warn("ensure member failed", "user", userID, "err", err)
	}
	if err := h.repo.AddPlayedTrack(ctx, userID, t); err != nil {
		slog.Warn("record played track failed", "user", userID, "track", t.ID, "err", err)
	}

	ahead := h.engine.QueueLen() - 1
	h.editReply(s, i, fmt.Sprintf("Queued %s, %d track(s) ahead of it.", t.String(), ahead))
	return true
}

func (h *CommandHandler) cmdListQueue(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	limit := intOption(i, "limit", 10)
	h.replyEmbed(s, i, ui.BuildQueueEmbed(h.engine.UpcomingTracks(limit), h.engine.QueueLen()))
	return true
}

func (h *CommandHandler) cmdSkip(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	userID := userIDOf(i)
	current := h.engine.Current()

	if current == nil && h.engine.QueueLen() == 0 {
		h.reply(s, i, "Nothing is playing and the queue is empty.", true)
		return false
	}
	if current != nil && !h.cache.IsOwner(userID, current.CorrelationID) {
		h.reply(s, i, "Please respect others' rights! Only the requester can skip this one.", true)
		return false
	}

	next, err := h.engine.Next(ctx)
	if err != nil {
		if errors.Is(err, player.ErrNoDevice) {
			h.reply(s, i, "No playback device is available.", true)
			return false
		}
		slog.Error("skip failed", "err", err)
		h.reply(s, i, "Skip failed, try again later.", true)
		return false
	}
	if next == nil {
		h.reply(s, i, "Skipped on the device.", false)
		return true
	}
	h.reply(s, i, fmt.Sprintf("Skipped. Now playing %s.", next.String()), false)
	return true
}

func (h *CommandHandler) cmdAutoPlay(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	h.deferReply(s, i)

	err := h.engine.AutoPlay(ctx)
	switch {
	case err == nil:
		h.editReply(s, i, fmt.Sprintf("Seeded playback from %q.", h.cfg.DiscoveryPlaylist))
		return true
	case errors.Is(err, player.ErrQueueNotEmpty):
		h.editReply(s, i, "The queue is not empty, autoplay only fills silence.")
	case errors.Is(err, player.ErrPlaybackActive):
		h.editReply(s, i, "Something is already playing, autoplay only fills silence.")
	case errors.Is(err, player.ErrNoPlaylist):
		h.editReply(s, i, fmt.Sprintf("Could not find the %q playlist.", h.cfg.DiscoveryPlaylist))
	case errors.Is(err, player.ErrAmbiguousPlaylist):
		h.editReply(s, i, fmt.Sprintf("More than one %q playlist matched, refusing to guess.", h.cfg.DiscoveryPlaylist))
	case errors.Is(err, player.ErrNoDevice):
		h.editReply(s, i, "No playback device is available.")
	default:
		slog.Error("autoplay failed", "err", err)
		h.editReply(s, i, "Autoplay failed, try again later.")
	}
	return false
}

func (h *CommandHandler) cmdNowPlaying(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	h.replyEmbed(s, i, ui.BuildNowPlayingEmbed(h.engine.Current(), h.engine.State()))
	return true
}

func (h *CommandHandler) cmdHistory(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	userID := userIDOf(i)
	limit := intOption(i, "limit", 10)

	rows, err := h.repo.RecentTracks(ctx, userID, limit)
	if err != nil {
		slog.Error("load history failed", "user", userID, "err", err)
		h.reply(s, i, "Could not load your history.", true)
		return false
	}
	if len(rows) == 0 {
		h.reply(s, i, "You have not queued anything yet.", true)
		return true
	}
	h.replyEmbed(s, i, ui.BuildHistoryEmbed(rows))
	return true
}

func (h *CommandHandler) cmdClear(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	h.engine.ClearQueue()
	h.reply(s, i, "Queue cleared.", false)
	return true
}

func (h *CommandHandler) cmdMute(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if err := h.engine.Mute(ctx); err != nil {
		slog.Error("mute failed", "err", err)
		h.reply(s, i, "Mute failed, is a device online?", true)
		return false
	}
	h.reply(s, i, "Muted.", false)
	return true
}

func (h *CommandHandler) cmdUnmute(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if err := h.engine.Unmute(ctx); err != nil {
		slog.Error("unmute failed", "err", err)
		h.reply(s, i, "Unmute failed, is a device online?", true)
		return false
	}
	h.reply(s, i, "Unmuted.", false)
	return true
}

func (h *CommandHandler) cmdVolume(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	level := intOption(i, "level", -1)
	if level < 0 {
		h.reply(s, i, "Give me a volume between 0 and 100.", true)
		return false
	}
	if err := h.engine.SetVolume(ctx, level); err != nil {
		slog.Error("set volume failed", "level", level, "err", err)
		h.reply(s, i, "Setting the volume failed, is a device online?", true)
		return false
	}
	h.reply(s, i, fmt.Sprintf("Volume set to %d%%.", level), false)
	return true
}

func (h *CommandHandler) cmdBan(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !isAdmin(i) {
		h.reply(s, i, "Only administrators can ban members.", true)
		return
	}
	target := userOption(i, "member")
	if target == "" {
		h.reply(s, i, "Tell me who to ban.", true)
		return
	}
	d := h.cfg.BanDefault
	if mins := intOption(i, "minutes", 0); mins > 0 {
		d = time.Duration(mins) * time.Minute
	}
	h.cache.Ban(target, d)
	h.reply(s, i, fmt.Sprintf("<@%s> is banned from the bot for %s.", target, prettyDuration(d)), false)
}

func (h *CommandHandler) cmdUnban(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !isAdmin(i) {
		h.reply(s, i, "Only administrators can unban members.", true)
		return
	}
	target := userOption(i, "member")
	if target == "" {
		h.reply(s, i, "Tell me who to unban.", true)
		return
	}
	h.cache.Unban(target)
	h.reply(s, i, fmt.Sprintf("<@%s> may use the bot again.", target), false)
}

func isAdmin(i *discordgo.InteractionCreate) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator != 0
}

func userIDOf(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func stringOption(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}

func intOption(i *discordgo.InteractionCreate, name string, def int) int {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionInteger {
			return int(opt.IntValue())
		}
	}
	return def
}

func userOption(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionUser {
			if id, ok := opt.Value.(string); ok {
				return id
			}
		}
	}
	return ""
}

func prettyDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}

func (h *CommandHandler) reply(s *discordgo.Session, i *discordgo.InteractionCreate, msg string, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: msg, Flags: flags},
	})
	if err != nil {
		slog.Warn("interaction reply failed", "err", err)
	}
}

func (h *CommandHandler) replyEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}},
	})
	if err != nil {
		slog.Warn("interaction reply failed", "err", err)
	}
}

// deferReply acknowledges within the 3 second interaction deadline so
// slower Spotify round trips can finish in peace.
func (h *CommandHandler) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		slog.Warn("interaction defer failed", "err", err)
	}
}

func (h *CommandHandler) editReply(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &msg}); err != nil {
		slog.Warn("interaction edit failed", "err", err)
	}
}

func (h *CommandHandler) editReplyEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	embeds := []*discordgo.MessageEmbed{embed}
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Embeds: &embeds}); err != nil {
		slog.Warn("interaction edit failed", "err", err)
	}
}
