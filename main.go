// Command stream-herald watches streaming accounts for live/offline
// transitions and republishes them to social platforms. It:
//   - Loads configuration and initializes structured logging.
//   - Optionally connects to Postgres and runs idempotent migrations for the
//     session history store.
//   - Starts one poll loop and one announcement consumer per account.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status,
//     /metrics, and admin poke endpoints.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/stream-herald/announce"
	"github.com/onnwee/stream-herald/blueskyapi"
	"github.com/onnwee/stream-herald/config"
	"github.com/onnwee/stream-herald/db"
	"github.com/onnwee/stream-herald/discordapi"
	"github.com/onnwee/stream-herald/history"
	"github.com/onnwee/stream-herald/kickapi"
	"github.com/onnwee/stream-herald/mastoapi"
	"github.com/onnwee/stream-herald/monitor"
	"github.com/onnwee/stream-herald/render"
	"github.com/onnwee/stream-herald/server"
	"github.com/onnwee/stream-herald/telemetry"
	"github.com/onnwee/stream-herald/twitchapi"
	"github.com/onnwee/stream-herald/twitchchat"
	"github.com/onnwee/stream-herald/youtubeapi"
)

const version = "1.0.0"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	policy, err := announce.ParsePolicy(cfg.LiveMode, cfg.EndMode)
	if err != nil {
		slog.Error("announcement policy invalid", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("stream-herald", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session history store is optional: without DB_DSN the service runs
	// purely in memory.
	var recorder announce.Recorder
	var hist *history.Store
	if cfg.DBDsn != "" {
		database, err := db.Connect(cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.RunMigrations(ctx, database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
		hist = history.NewStore(database)
		recorder = hist
	} else {
		slog.Info("no DB_DSN configured; session history disabled")
	}

	checkers, err := buildCheckers(cfg)
	if err != nil {
		slog.Error("checker setup failed", slog.Any("err", err))
		os.Exit(1)
	}

	adapters, chatAnnouncer := buildAdapters(cfg)
	if len(adapters) == 0 {
		slog.Warn("no announcement adapters configured; transitions will only be logged")
	}
	if chatAnnouncer != nil {
		go chatAnnouncer.Connect(ctx)
	}

	renderer, err := buildRenderer(cfg)
	if err != nil {
		slog.Error("template setup failed", slog.Any("err", err))
		os.Exit(1)
	}

	tracker := announce.NewTracker()
	coordinator := announce.New(policy, adapters, renderer, tracker, recorder)

	// One poll loop and one consumer per account: events for one account are
	// ordered, accounts proceed in parallel.
	registry := monitor.NewRegistry()
	for _, account := range cfg.Accounts {
		checker := checkers[account.Platform]
		m := monitor.New(account, checker, monitor.SettingsFromConfig(cfg, account))
		registry.Add(m)
		events := make(chan monitor.Event, 16)
		go m.Run(ctx, events)
		go coordinator.Consume(ctx, events)
	}
	slog.Info("monitors started",
		slog.Int("accounts", registry.Len()),
		slog.String("policy", policy.String()))

	go trackLiveGauge(ctx, registry)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		go startPprof()
	}

	// HTTP server (health/status/metrics/admin)
	handlers := server.NewHandlers(registry, tracker, policy, hist, version)
	go func() {
		if err := server.Start(ctx, handlers, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}

// setupLogging configures the default slog logger from LOG_LEVEL and
// LOG_FORMAT. Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}

// buildCheckers constructs one status checker per streaming platform that has
// at least one monitored account. Validate already guaranteed credentials.
func buildCheckers(cfg *config.Config) (map[string]monitor.StatusChecker, error) {
	needed := make(map[string]bool)
	for _, a := range cfg.Accounts {
		needed[a.Platform] = true
	}
	checkers := make(map[string]monitor.StatusChecker, len(needed))
	if needed[config.PlatformTwitch] {
		checkers[config.PlatformTwitch] = twitchapi.NewChecker(cfg.TwitchClientID, cfg.TwitchClientSecret)
	}
	if needed[config.PlatformYouTube] {
		checkers[config.PlatformYouTube] = youtubeapi.NewChecker(cfg.YouTubeAPIKey)
	}
	if needed[config.PlatformKick] {
		checkers[config.PlatformKick] = kickapi.NewChecker(cfg.KickClientID, cfg.KickClientSecret)
	}
	return checkers, nil
}

// buildAdapters constructs every social adapter with credentials configured.
// The chat announcer is returned separately because it needs a long-lived
// connection.
func buildAdapters(cfg *config.Config) ([]announce.SocialAdapter, *twitchchat.Announcer) {
	var adapters []announce.SocialAdapter
	if cfg.DiscordEnabled() {
		adapters = append(adapters, discordapi.New(cfg.DiscordWebhookURL))
		slog.Info("discord adapter enabled")
	}
	if cfg.MastodonEnabled() {
		adapters = append(adapters, mastoapi.New(cfg.MastodonBaseURL, cfg.MastodonAccessToken))
		slog.Info("mastodon adapter enabled", slog.String("instance", cfg.MastodonBaseURL))
	}
	if cfg.BlueskyEnabled() {
		adapters = append(adapters, blueskyapi.New(cfg.BlueskyHost, cfg.BlueskyIdentifier, cfg.BlueskyAppPassword))
		slog.Info("bluesky adapter enabled", slog.String("identifier", cfg.BlueskyIdentifier))
	}
	var chatAnnouncer *twitchchat.Announcer
	if cfg.ChatEnabled() {
		chatAnnouncer = twitchchat.New(cfg.ChatChannel, cfg.ChatUsername, cfg.ChatOAuthToken)
		adapters = append(adapters, chatAnnouncer)
		slog.Info("twitch chat announcer enabled", slog.String("channel", cfg.ChatChannel))
	}
	return adapters, chatAnnouncer
}

// buildRenderer assembles the template renderer, wrapped by the AI renderer
// when an API key is configured.
func buildRenderer(cfg *config.Config) (announce.Renderer, error) {
	static, err := render.NewStatic(cfg.TemplateLive, cfg.TemplateEnded)
	if err != nil {
		return nil, err
	}
	if cfg.AIEnabled() {
		slog.Info("ai announcement rendering enabled", slog.String("model", cfg.AIModel))
		return render.NewAI(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, cfg.AITimeout, static), nil
	}
	return static, nil
}

// trackLiveGauge keeps the live-accounts gauge current.
func trackLiveGauge(ctx context.Context, registry *monitor.Registry) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := 0
			for _, s := range registry.Snapshots() {
				if s.State == "live" || s.State == "pending_offline" {
					n++
				}
			}
			telemetry.SetLiveAccounts(n)
		}
	}
}

func startPprof() {
	pprofAddr := os.Getenv("PPROF_ADDR")
	if pprofAddr == "" {
		pprofAddr = "localhost:6060"
	}
	slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
	// An http.Server with timeouts to satisfy G114 and avoid DoS risks.
	srv := &http.Server{
		Addr:              pprofAddr,
		Handler:           nil, // default mux exposes /debug/pprof
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("pprof server error", slog.Any("err", err))
	}
}
