package config

import "time"

type Config struct {
	DiscordToken        string
	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRefreshToken string

	DataDir string

	PollInterval    time.Duration
	CommandCooldown time.Duration
	OwnerTTL        time.Duration
	BanDefault      time.Duration

	DiscoveryPlaylist string
	DiscoveryOwner    string

	BotStatus             string // online/dnd/idle
	BotActivity           string
	RegisterCommandsOnBot bool
}
