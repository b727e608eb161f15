// ABOUTME: Entry point for the farmhand bot pool daemon.
// ABOUTME: Loads config, constructs every bot from its settings file, and runs until shutdown.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"golang.org/x/time/rate"

	"github.com/farmhand-dev/farmhand/internal/api"
	"github.com/farmhand-dev/farmhand/internal/bot"
	"github.com/farmhand-dev/farmhand/internal/command"
	"github.com/farmhand-dev/farmhand/internal/config"
	"github.com/farmhand-dev/farmhand/internal/farmer"
	"github.com/farmhand-dev/farmhand/internal/input"
	"github.com/farmhand-dev/farmhand/internal/notify"
	"github.com/farmhand-dev/farmhand/internal/redeem"
	"github.com/farmhand-dev/farmhand/internal/store"
	"github.com/farmhand-dev/farmhand/internal/transport"
	"github.com/farmhand-dev/farmhand/internal/websession"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  __                      _                     _
 / _| __ _ _ __ _ __ ___ | |__   __ _ _ __   __| |
| |_ / _' | '__| '_ ' _ \| '_ \ / _' | '_ \ / _' |
|  _| (_| | |  | | | | | | | | | (_| | | | | (_| |
|_|  \__,_|_|  |_| |_| |_|_| |_|\__,_|_| |_|\__,_|
`

// getConfigPath returns the path to the daemon config file.
// Priority: FARMHAND_CONFIG env var > XDG_CONFIG_HOME/farmhand/farmhand.yaml > ~/.config/farmhand/farmhand.yaml
func getConfigPath() string {
	if envPath := os.Getenv("FARMHAND_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "farmhand.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "farmhand", "farmhand.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: farmhand <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the bot pool")
		fmt.Println("  init     Create a starter config file")
		fmt.Println("  health   Check a running daemon's API")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Agents:  %s\n", cfg.Agents.Dir)
	if cfg.API.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("API:     %s\n", cfg.API.Addr)
	}
	fmt.Println()

	var activity *store.Store
	if cfg.Store.Path != "" {
		activity, err = store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("opening activity store: %w", err)
		}
		defer activity.Close()
	}

	var notifier bot.Notifier
	if len(cfg.Notify.URLs) > 0 {
		notifier = notify.New(cfg.Notify.URLs, nil, logger.With("component", "notify"))
	}

	registry := bot.NewRegistry(logger)
	distributor := redeem.NewDistributor(registry, logger)
	dispatcher := command.NewDispatcher(registry, distributor, logger)
	prompter := input.NewConsole()
	connectLimiter := rate.NewLimiter(rate.Every(cfg.Agents.ConnectInterval), 1)

	// stopped fires once when the last bot shuts down or the controller asks
	// the process to exit.
	stopped := make(chan struct{})
	var stopOnce sync.Once

	bots, err := loadBots(cfg, botDeps{
		registry:       registry,
		activity:       activity,
		notifier:       notifier,
		prompter:       prompter,
		connectLimiter: connectLimiter,
		logger:         logger,
	})
	if err != nil {
		return err
	}
	if len(bots) == 0 {
		return fmt.Errorf("no enabled bots found in %s", cfg.Agents.Dir)
	}

	for _, b := range bots {
		b.SetCommandHandler(dispatcher.Handle)
		b.SetOnShutdown(func() {
			if registry.RunningCount() == 0 {
				stopOnce.Do(func() { close(stopped) })
			}
		})
	}

	dispatcher.OnExit = func() {
		for _, b := range bots {
			b.Shutdown()
		}
		stopOnce.Do(func() { close(stopped) })
	}
	dispatcher.OnRestart = func() {
		for _, b := range bots {
			b.Restart()
		}
	}

	if cfg.API.Enabled {
		var activityLog api.ActivityLog
		if activity != nil {
			activityLog = activity
		}
		server := api.NewServer(cfg.API.Addr, api.NewAPI(registry, dispatcher, activityLog), logger)
		go func() {
			if err := server.Run(); err != nil && err != http.ErrServerClosed {
				logger.Error("api server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	for _, b := range bots {
		if b.Settings().StartOnLaunch {
			go b.Start()
		}
	}

	logger.Info("farmhand started", "bots", registry.Len())

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case <-stopped:
		logger.Info("all bots stopped")
	}

	for _, b := range bots {
		b.Shutdown()
	}

	return nil
}

type botDeps struct {
	registry       *bot.Registry
	activity       *store.Store
	notifier       bot.Notifier
	prompter       *input.Console
	connectLimiter *rate.Limiter
	logger         *slog.Logger
}

// loadBots constructs one bot per settings file in the agents directory.
// Disabled and duplicate bots are skipped, not fatal.
func loadBots(cfg *config.Config, deps botDeps) ([]*bot.Bot, error) {
	entries, err := os.ReadDir(cfg.Agents.Dir)
	if err != nil {
		return nil, fmt.Errorf("reading agents directory: %w", err)
	}

	var bots []*bot.Bot
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := config.BotNameFromSettings(entry.Name())
		if name == "" {
			continue
		}

		paths := config.PathsFor(cfg.Agents.Dir, name)
		settings, err := config.LoadBotSettings(paths.Settings)
		if err != nil {
			deps.logger.Warn("skipping bot with unreadable settings", "bot", name, "error", err)
			continue
		}

		client := transport.NewConn(cfg.Service.Addr, deps.logger.With("component", "transport", "bot", name))
		web := websession.New(cfg.Service.WebBaseURL, deps.logger.With("component", "websession", "bot", name))
		web.SetCredentials(settings.Login, settings.Password)

		// The finished hook needs the bot, which needs the farmer; the
		// indirection breaks the construction cycle.
		var constructed *bot.Bot
		onFinished := func(farmed bool) {
			if constructed != nil {
				constructed.OnFarmingFinished(farmed)
			}
		}
		farm := farmer.NewScheduler(client, settings.Blacklist, onFinished, deps.logger.With("component", "farmer", "bot", name))

		var activity bot.ActivityStore
		if deps.activity != nil {
			activity = deps.activity
		}

		b, err := bot.New(bot.Options{
			Name:             name,
			Settings:         settings,
			Paths:            paths,
			Client:           client,
			Web:              web,
			Farm:             farm,
			Registry:         deps.registry,
			Activity:         activity,
			Notifier:         deps.notifier,
			Prompter:         deps.prompter,
			ConnectLimiter:   deps.connectLimiter,
			CallbackInterval: cfg.Agents.CallbackInterval,
			Logger:           deps.logger,
		})
		if err != nil {
			switch err {
			case bot.ErrBotDisabled:
				deps.logger.Info("skipping disabled bot", "bot", name)
			case bot.ErrBotAlreadyRegistered:
				deps.logger.Warn("skipping duplicate bot", "bot", name)
			default:
				deps.logger.Warn("skipping bot", "bot", name, "error", err)
			}
			continue
		}

		constructed = b
		bots = append(bots, b)
	}

	return bots, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.API.Enabled {
		return fmt.Errorf("api is not enabled in config")
	}

	url := fmt.Sprintf("http://%s/ping", cfg.API.Addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	agentsDir := filepath.Join(configDir, "agents")
	if err := os.MkdirAll(agentsDir, 0o755); err != nil {
		return fmt.Errorf("creating agents directory: %w", err)
	}

	content := fmt.Sprintf(`# farmhand configuration
# Generated by farmhand init

service:
  addr: "service.example.com:27017"
  web_base_url: "https://community.example.com"

agents:
  dir: "%s"
  connect_interval: "10s"
  callback_interval: "500ms"

store:
  path: "%s"

api:
  enabled: false
  addr: "localhost:8591"

notify:
  urls: []

logging:
  level: "info"
  format: "text"
`, agentsDir, filepath.Join(configDir, "farmhand.db"))

	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", configPath)
	green.Printf("  ✓ Agents directory: %s\n", agentsDir)
	fmt.Println()
	fmt.Println("Drop one <name>.toml settings file per bot into the agents directory,")
	fmt.Println("then run: farmhand serve")

	return nil
}
