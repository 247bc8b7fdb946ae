// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Secrets are read through a CredentialSource resolved once at startup (see credentials.go);
// missing optional variables disable features (e.g., an adapter without credentials is not enabled).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Monitoring
	Accounts             []Account
	OfflineInterval      time.Duration
	LiveInterval         time.Duration
	PollTimeout          time.Duration
	LiveConfirmations    int
	OfflineConfirmations int

	// Announcement policy (parsed by the announce package at startup)
	LiveMode string
	EndMode  string

	// Twitch (Helix checker)
	TwitchClientID     string
	TwitchClientSecret string

	// YouTube (Data API checker)
	YouTubeAPIKey string

	// Kick (client-credentials checker)
	KickClientID     string
	KickClientSecret string

	// Discord webhook adapter
	DiscordWebhookURL string

	// Mastodon adapter
	MastodonBaseURL     string
	MastodonAccessToken string

	// Bluesky adapter
	BlueskyHost        string
	BlueskyIdentifier  string
	BlueskyAppPassword string

	// Twitch chat adapter
	ChatChannel    string
	ChatUsername   string
	ChatOAuthToken string

	// Rendering
	TemplateLive  string
	TemplateEnded string
	AIBaseURL     string
	AIAPIKey      string
	AIModel       string
	AITimeout     time.Duration

	// Database (empty disables the session history store)
	DBDsn string

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It doesn't fail when platform
// credentials are missing; use the Enabled helpers to find out which adapters and
// checkers can actually run, and Validate for the account list itself.
func Load() (*Config, error) {
	creds, err := ResolveCredentialSource()
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.Accounts, err = loadAccounts()
	if err != nil {
		return nil, err
	}

	cfg.OfflineInterval = envDuration("POLL_OFFLINE_INTERVAL", 2*time.Minute)
	cfg.LiveInterval = envDuration("POLL_LIVE_INTERVAL", 30*time.Second)
	cfg.PollTimeout = envDuration("POLL_TIMEOUT", 15*time.Second)
	cfg.LiveConfirmations = envInt("LIVE_CONFIRMATIONS", 1)
	cfg.OfflineConfirmations = envInt("OFFLINE_CONFIRMATIONS", 2)
	if cfg.LiveConfirmations < 1 {
		cfg.LiveConfirmations = 1
	}
	if cfg.OfflineConfirmations < 1 {
		cfg.OfflineConfirmations = 1
	}

	cfg.LiveMode = os.Getenv("LIVE_MODE")
	if cfg.LiveMode == "" {
		cfg.LiveMode = "separate"
	}
	cfg.EndMode = os.Getenv("END_MODE")
	if cfg.EndMode == "" {
		cfg.EndMode = "separate"
	}

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = lookup(creds, "TWITCH_CLIENT_SECRET")

	cfg.YouTubeAPIKey = lookup(creds, "YT_API_KEY")

	cfg.KickClientID = os.Getenv("KICK_CLIENT_ID")
	cfg.KickClientSecret = lookup(creds, "KICK_CLIENT_SECRET")

	cfg.DiscordWebhookURL = lookup(creds, "DISCORD_WEBHOOK_URL")

	cfg.MastodonBaseURL = os.Getenv("MASTODON_BASE_URL")
	cfg.MastodonAccessToken = lookup(creds, "MASTODON_ACCESS_TOKEN")

	cfg.BlueskyHost = os.Getenv("BLUESKY_HOST")
	if cfg.BlueskyHost == "" {
		cfg.BlueskyHost = "https://bsky.social"
	}
	cfg.BlueskyIdentifier = os.Getenv("BLUESKY_IDENTIFIER")
	cfg.BlueskyAppPassword = lookup(creds, "BLUESKY_APP_PASSWORD")

	cfg.ChatChannel = os.Getenv("TWITCH_CHAT_CHANNEL")
	cfg.ChatUsername = os.Getenv("TWITCH_CHAT_USERNAME")
	cfg.ChatOAuthToken = lookup(creds, "TWITCH_CHAT_OAUTH_TOKEN")

	cfg.TemplateLive = os.Getenv("ANNOUNCE_TEMPLATE_LIVE")
	cfg.TemplateEnded = os.Getenv("ANNOUNCE_TEMPLATE_ENDED")
	cfg.AIBaseURL = os.Getenv("AI_BASE_URL")
	cfg.AIAPIKey = lookup(creds, "AI_API_KEY")
	cfg.AIModel = os.Getenv("AI_MODEL")
	cfg.AITimeout = envDuration("AI_TIMEOUT", 10*time.Second)

	cfg.DBDsn = os.Getenv("DB_DSN")

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

// Validate checks that the account list is non-empty and that every account's
// streaming platform has the credentials it needs.
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("no monitored accounts configured: set ACCOUNTS or ACCOUNTS_FILE")
	}
	for _, a := range c.Accounts {
		switch a.Platform {
		case PlatformTwitch:
			if c.TwitchClientID == "" || c.TwitchClientSecret == "" {
				return fmt.Errorf("account %s requires TWITCH_CLIENT_ID and TWITCH_CLIENT_SECRET", a.Key())
			}
		case PlatformYouTube:
			if c.YouTubeAPIKey == "" {
				return fmt.Errorf("account %s requires YT_API_KEY", a.Key())
			}
		case PlatformKick:
			if c.KickClientID == "" || c.KickClientSecret == "" {
				return fmt.Errorf("account %s requires KICK_CLIENT_ID and KICK_CLIENT_SECRET", a.Key())
			}
		default:
			return fmt.Errorf("account %s: unknown platform %q", a.Handle, a.Platform)
		}
	}
	return nil
}

// DiscordEnabled reports whether the Discord webhook adapter has what it needs.
func (c *Config) DiscordEnabled() bool { return c.DiscordWebhookURL != "" }

// MastodonEnabled reports whether the Mastodon adapter has what it needs.
func (c *Config) MastodonEnabled() bool {
	return c.MastodonBaseURL != "" && c.MastodonAccessToken != ""
}

// BlueskyEnabled reports whether the Bluesky adapter has what it needs.
func (c *Config) BlueskyEnabled() bool {
	return c.BlueskyIdentifier != "" && c.BlueskyAppPassword != ""
}

// ChatEnabled reports whether the Twitch chat announcer has what it needs.
func (c *Config) ChatEnabled() bool {
	return c.ChatChannel != "" && c.ChatUsername != "" && c.ChatOAuthToken != ""
}

// AIEnabled reports whether AI-generated announcement bodies are configured.
func (c *Config) AIEnabled() bool { return c.AIAPIKey != "" }

func envDuration(key string, def time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}
