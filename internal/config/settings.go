// ABOUTME: Per-bot settings files in TOML, one file per bot under the agents dir.
// ABOUTME: Unset credentials use the "null" sentinel carried over from older installs.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Unset is the sentinel for credential fields that were never configured;
// the bot prompts the operator for these instead of failing.
const Unset = "null"

// BotSettings holds one bot's persisted configuration.
type BotSettings struct {
	Enabled bool `toml:"enabled"`

	Login       string `toml:"login"`
	Password    string `toml:"password"`
	Nickname    string `toml:"nickname"`
	ParentalPIN string `toml:"parental_pin"`

	MasterID      uint64 `toml:"master_id"`
	MasterGroupID uint64 `toml:"master_group_id"`

	StartOnLaunch         bool `toml:"start_on_launch"`
	FarmOffline           bool `toml:"farm_offline"`
	HandleOfflineMessages bool `toml:"handle_offline_messages"`
	ForwardKeys           bool `toml:"forward_keys"`
	DistributeKeys        bool `toml:"distribute_keys"`
	UseLocalAuthenticator bool `toml:"use_local_authenticator"`
	ShutdownOnFinish      bool `toml:"shutdown_on_finish"`
	SendOnFinish          bool `toml:"send_on_finish"`
	Statistics            bool `toml:"statistics"`

	TradeToken       string `toml:"trade_token"`
	TradePeriodHours int    `toml:"trade_period_hours"`

	Blacklist []uint32 `toml:"blacklist"`
	IdleGames []uint32 `toml:"idle_games"`
}

// DefaultBotSettings returns the settings applied before decoding, matching
// the defaults a bot assumes for absent keys.
func DefaultBotSettings() BotSettings {
	return BotSettings{
		Login:         Unset,
		Password:      Unset,
		Nickname:      Unset,
		ParentalPIN:   "0",
		TradeToken:    Unset,
		StartOnLaunch: true,
		Statistics:    true,
		IdleGames:     []uint32{0},
	}
}

// LoadBotSettings reads a bot settings file, expanding ${VAR} environment
// references so credentials can live outside the file.
func LoadBotSettings(path string) (*BotSettings, error) {
	settings := DefaultBotSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	if _, err := toml.Decode(expandEnvVars(string(data)), &settings); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}

	return &settings, nil
}

// HasCredential reports whether a credential field holds a real value
// rather than the unset sentinel.
func HasCredential(value string) bool {
	return value != "" && !strings.EqualFold(value, Unset)
}

// BotPaths locates one bot's persisted files inside the agents directory.
type BotPaths struct {
	Settings      string
	LoginKey      string
	Sentry        string
	Authenticator string
}

// PathsFor returns the canonical file locations for the named bot.
func PathsFor(dir, name string) BotPaths {
	base := filepath.Join(dir, name)
	return BotPaths{
		Settings:      base + ".toml",
		LoginKey:      base + ".key",
		Sentry:        base + ".sentry",
		Authenticator: base + ".auth",
	}
}

// BotNameFromSettings extracts the bot name from a settings file path, or
// an empty string if the file is not a settings file.
func BotNameFromSettings(path string) string {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".toml") {
		return ""
	}
	return strings.TrimSuffix(base, ".toml")
}
