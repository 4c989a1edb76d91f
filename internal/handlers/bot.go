package handlers

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/juckr/djspot/internal/config"
	"github.com/juckr/djspot/internal/player"
	"github.com/juckr/djspot/internal/repository"
	"github.com/juckr/djspot/internal/throttle"
)

type Bot struct {
	cfg    *config.Config
	repo   *repository.Repo
	cache  *throttle.Cache
	engine *player.Player
	cmd    *CommandHandler
}

func NewBot(cfg *config.Config, repo *repository.Repo, cache *throttle.Cache, engine *player.Player) *Bot {
	cmd := NewCommandHandler(cfg, repo, cache, engine)
	return &Bot{
		cfg: cfg, repo: repo, cache: cache, engine: engine, cmd: cmd,
	}
}

func (b *Bot) Run(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

	// On ready: register commands depending on configuration
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("connected", "user", s.State.User.Username)
		appID := s.State.User.ID

		err := s.UpdateStatusComplex(discordgo.UpdateStatusData{
			Status: b.cfg.BotStatus,
			Activities: []*discordgo.Activity{
				{Name: b.cfg.BotActivity, Type: discordgo.ActivityTypeListening},
			},
		})
		if err != nil {
			slog.Warn("update presence failed", "err", err)
		}

		if b.cfg.RegisterCommandsOnBot {
			if err := b.cmd.RegisterCommands(s, appID, ""); err != nil {
				slog.Error("register global commands", "err", err)
			} else {
				slog.Info("registered global application commands")
			}
		} else {
			var wg sync.WaitGroup
			for _, g := range s.State.Guilds {
				wg.Add(1)
				go func(guildID string) {
					defer wg.Done()
					if err := b.cmd.RegisterCommands(s, appID, guildID); err != nil {
						slog.Error("register guild commands", "guild", guildID, "err", err)
					}
				}(g.ID)
			}
			wg.Wait()
			slog.Info("registered commands on all guilds")
		}
	})

	// Register on new guilds too, and seed the member table so the
	// history repository has rows to hang played tracks off.
	dg.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		if !b.cfg.RegisterCommandsOnBot {
			appID := s.State.User.ID
			if err := b.cmd.RegisterCommands(s, appID, g.ID); err != nil {
				slog.Error("register guild commands on join", "guild", g.ID, "err", err)
			}
		}

		members := make([]repository.Member, 0, len(g.Members))
		for _, m := range g.Members {
			if m.User == nil || m.User.Bot {
				continue
			}
			members = append(members, repository.Member{ID: m.User.ID, GuildID: g.ID})
		}
		if err := b.repo.EnsureMembers(context.Background(), members); err != nil {
			slog.Warn("seed members failed", "guild", g.ID, "err", err)
		}
	})

	dg.AddHandler(func(s *discordgo.Session, e *discordgo.GuildMemberAdd) {
		if e.User == nil || e.User.Bot {
			return
		}
		if err := b.repo.EnsureMember(context.Background(), e.User.ID, e.GuildID); err != nil {
			slog.Warn("ensure member failed", "guild", e.GuildID, "user", e.User.ID, "err", err)
		}
	})

	// Interactions
	dg.AddHandler(b.cmd.HandleInteraction)

	// Presence follows the engine: the status line is the one place a
	// casual server member sees what the bot thinks is playing.
	unsubscribe := b.engine.Subscribe(func(ev player.Event) {
		b.onPlayerEvent(dg, ev)
	})
	defer unsubscribe()

	if err := dg.Open(); err != nil {
		return err
	}
	defer dg.Close()

	b.engine.Start(ctx)
	defer b.engine.Close()

	<-ctx.Done()
	return nil
}

func (b *Bot) onPlayerEvent(s *discordgo.Session, ev player.Event) {
	switch ev.Kind {
	case player.EventPlayStart:
		name := ev.Track.String()
		if len(name) > 128 {
			name = name[:128]
		}
		if err := s.UpdateListeningStatus(name); err != nil {
			slog.Warn("update presence failed", "err", err)
		}
	case player.EventPlayEnd:
		// the requester's skip rights die with the track
		b.cache.EvictOwner(ev.Track.CorrelationID)
		if b.engine.QueueLen() == 0 {
			if err := s.UpdateWatchStatus(0, "the empty queue"); err != nil {
				slog.Warn("update presence failed", "err", err)
			}
		}
	case player.EventOutOfSync:
		slog.Info("playback changed outside the bot", "track", ev.Track.Title)
	case player.EventStateChanged:
		slog.Debug("playback state changed", "state", ev.State)
	}
}
