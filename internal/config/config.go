package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func getSeconds(key string, def int) time.Duration {
	i, err := strconv.Atoi(getenv(key, ""))
	if err != nil || i <= 0 {
		i = def
	}
	return time.Duration(i) * time.Second
}

func LoadConfig() (*Config, error) {
	// .env is a convenience for local runs; absence is fine.
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:        os.Getenv("DISCORD_TOKEN"),
		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		SpotifyRefreshToken: os.Getenv("SPOTIFY_REFRESH_TOKEN"),
		DataDir:             getenv("DATA_DIR", "./data"),

		PollInterval:    getSeconds("POLL_INTERVAL", 3),
		CommandCooldown: getSeconds("COMMAND_COOLDOWN", 3),
		OwnerTTL: func() time.Duration {
			i, err := strconv.Atoi(getenv("OWNER_TTL_HOURS", "3"))
			if err != nil || i <= 0 {
				i = 3
			}
			return time.Duration(i) * time.Hour
		}(),
		BanDefault: 10 * time.Minute,

		DiscoveryPlaylist: getenv("DISCOVERY_PLAYLIST", "Discover Weekly"),
		DiscoveryOwner:    getenv("DISCOVERY_PLAYLIST_OWNER", "Spotify"),

		BotStatus:             getenv("BOT_STATUS", "online"),
		BotActivity:           getenv("BOT_ACTIVITY", "music"),
		RegisterCommandsOnBot: getenv("REGISTER_COMMANDS_ON_BOT", "false") == "true",
	}

	if cfg.DiscordToken == "" {
		return nil, ErrConfig("DISCORD_TOKEN required")
	}
	if cfg.SpotifyClientID == "" || cfg.SpotifyClientSecret == "" {
		return nil, ErrConfig("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET required")
	}
	_ = os.MkdirAll(cfg.DataDir, 0o755)
	return cfg, nil
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
