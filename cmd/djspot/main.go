package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"

	"github.com/juckr/djspot/internal/config"
	"github.com/juckr/djspot/internal/handlers"
	"github.com/juckr/djspot/internal/player"
	"github.com/juckr/djspot/internal/repository"
	"github.com/juckr/djspot/internal/spotify"
	"github.com/juckr/djspot/internal/throttle"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	db, err := repository.OpenDB(cfg)
	if err != nil {
		log.Fatal(err)
	}
	repo := repository.NewRepo(db)

	gw, err := spotify.NewClient(cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.SpotifyRefreshToken)
	if err != nil {
		log.Fatal(err)
	}
	engine := player.NewPlayer(gw, player.Options{
		PollInterval:      cfg.PollInterval,
		DiscoveryPlaylist: cfg.DiscoveryPlaylist,
		DiscoveryOwner:    cfg.DiscoveryOwner,
	})
	cache := throttle.New()
	bot := handlers.NewBot(cfg, repo, cache, engine)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := bot.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
