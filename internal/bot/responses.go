// ABOUTME: Per-bot command responses: status, trades, two-factor, licenses, play.
// ABOUTME: Every method returns the operator-visible reply string.

package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/farmhand-dev/farmhand/internal/config"
	"github.com/farmhand-dev/farmhand/internal/guard"
)

// ResponseStatus describes what the bot is farming right now.
func (b *Bot) ResponseStatus() string {
	farming := b.farm.CurrentlyFarming()
	if len(farming) == 0 {
		return fmt.Sprintf("Bot %s is currently not farming anything.", b.name)
	}
	return fmt.Sprintf("Bot %s is currently farming appIDs: %s and has a total of %d games left to farm.",
		b.name, joinGameIDs(farming), b.farm.QueueCount())
}

// ResponseStart brings the session up on operator request.
func (b *Bot) ResponseStart() string {
	if b.KeepRunning() {
		return "That bot instance is already running!"
	}
	b.Start()
	return "Done!"
}

// ResponseStop shuts the bot down on operator request.
func (b *Bot) ResponseStop() string {
	if !b.KeepRunning() {
		return "That bot instance is already inactive!"
	}
	b.Shutdown()
	return "Done!"
}

// Response2FA returns the current two-factor code from the linked local
// authenticator.
func (b *Bot) Response2FA() string {
	b.mu.Lock()
	authenticator := b.authenticator
	b.mu.Unlock()

	if authenticator == nil {
		return "That bot doesn't have local 2FA enabled!"
	}

	t := b.client.ServerTime()
	return fmt.Sprintf("2FA Token: %s (expires in %d seconds)", authenticator.GenerateCode(t), guard.CodeValidity(t))
}

// Response2FAOff delinks the local authenticator. Memory is cleared even
// when the remote deactivation fails, so the operator message reflects only
// the remote outcome.
func (b *Bot) Response2FAOff(ctx context.Context) string {
	b.mu.Lock()
	authenticator := b.authenticator
	b.authenticator = nil
	b.mu.Unlock()

	if authenticator == nil {
		return "That bot doesn't have local 2FA enabled!"
	}

	if !guard.Delink(ctx, b.web, authenticator, b.paths.Authenticator, b.logger) {
		return "Something went wrong during delinking the authenticator!"
	}
	return "Done! Bot is no longer using a local authenticator."
}

// ResponseSendTrade sends the bot's whole tradable inventory to the master.
func (b *Bot) ResponseSendTrade(ctx context.Context) string {
	if b.settings.MasterID == 0 {
		return "Trade couldn't be sent because MasterID is not defined!"
	}

	items, err := b.web.GetTradableInventory(ctx)
	if err != nil {
		b.logger.Warn("fetching tradable inventory", "error", err)
		return "Trade offer failed due to error!"
	}
	if len(items) == 0 {
		return "Nothing to send, inventory seems empty!"
	}

	token := ""
	if config.HasCredential(b.settings.TradeToken) {
		token = b.settings.TradeToken
	}

	ok, err := b.web.SendTradeOffer(ctx, items, b.settings.MasterID, token)
	if err != nil || !ok {
		if err != nil {
			b.logger.Warn("sending trade offer", "error", err)
		}
		b.recordTrade(ctx, len(items), false)
		return "Trade offer failed due to error!"
	}

	b.recordTrade(ctx, len(items), true)
	b.acceptAllConfirmations(ctx)
	return "Trade offer sent successfully!"
}

// ResponseAddLicense activates free licenses for the given comma-separated
// game IDs.
func (b *Bot) ResponseAddLicense(ctx context.Context, games string) string {
	ids := parseGameIDs(games)
	if len(ids) == 0 {
		return "Couldn't parse any games given!"
	}

	var sb strings.Builder
	for _, id := range ids {
		result, err := b.client.RequestFreeLicense(ctx, id)
		if err != nil {
			b.logger.Warn("requesting free license", "game", id, "error", err)
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		status := "Failed"
		if result.OK {
			status = "OK"
		}
		fmt.Fprintf(&sb, "Result: %s | Granted apps: %s | Granted packages: %s",
			status, joinGameIDs(result.GrantedApps), joinGameIDs(result.GrantedPackages))
	}

	if sb.Len() == 0 {
		return "Couldn't activate any of the given games!"
	}
	return sb.String()
}

// ResponsePlay plays the given comma-separated game IDs manually. A zero ID
// leaves manual mode and resumes automatic behavior.
func (b *Bot) ResponsePlay(ctx context.Context, games string) string {
	ids := parseGameIDs(games)
	if len(ids) == 0 {
		return "Couldn't parse any games given!"
	}

	for _, id := range ids {
		if id == 0 {
			if b.farm.SwitchToManualMode(ctx, false) {
				b.resetGamesPlayed()
				b.startFarming()
			}
			return "Done!"
		}
	}

	b.farm.SwitchToManualMode(ctx, true)
	b.client.PlayGames(ids)
	return "Done!"
}

// ResponseRejoinChat rejoins the configured master group chat.
func (b *Bot) ResponseRejoinChat() string {
	if b.settings.MasterGroupID == 0 {
		return "That bot has no master group configured!"
	}
	b.client.JoinChat(b.settings.MasterGroupID)
	return "Done!"
}

// OnFarmingFinished runs the configured post-farming actions.
func (b *Bot) OnFarmingFinished(farmedSomething bool) {
	b.logger.Info("farming finished", "farmed", farmedSomething)

	if farmedSomething && b.settings.SendOnFinish {
		reply := b.ResponseSendTrade(context.Background())
		b.logger.Info("automatic loot send", "result", reply)
	}
	if farmedSomething {
		b.notify(fmt.Sprintf("Bot %s finished farming.", b.name))
	}
	if b.settings.ShutdownOnFinish {
		b.Shutdown()
	}
}

// acceptAllConfirmations approves every pending mobile confirmation using
// the local authenticator.
func (b *Bot) acceptAllConfirmations(ctx context.Context) {
	b.mu.Lock()
	authenticator := b.authenticator
	b.mu.Unlock()
	if authenticator == nil {
		return
	}

	if err := b.web.RefreshSession(ctx); err != nil {
		b.logger.Warn("refreshing web session", "error", err)
		return
	}

	confirmations, err := b.web.FetchConfirmations(ctx)
	if err != nil {
		b.logger.Warn("fetching confirmations", "error", err)
		return
	}

	for _, conf := range confirmations {
		if err := b.web.AcceptConfirmation(ctx, conf); err != nil {
			b.logger.Warn("accepting confirmation", "id", conf.ID, "error", err)
		}
	}
}

// checkTrades inspects pending incoming trade offers after logon and
// approves outstanding confirmations when any exist.
func (b *Bot) checkTrades(ctx context.Context) {
	pending, err := b.web.PendingTradeOffers(ctx)
	if err != nil {
		b.logger.Warn("checking pending trades", "error", err)
		return
	}
	if pending == 0 {
		return
	}

	b.logger.Info("pending trade offers found", "count", pending)
	b.acceptAllConfirmations(ctx)
}

// tradeLoop periodically sends the accumulated loot to the master.
func (b *Bot) tradeLoop(period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if !b.client.Connected() {
				continue
			}
			reply := b.ResponseSendTrade(context.Background())
			b.logger.Info("periodic loot send", "result", reply)
		case <-b.tradeStop:
			return
		}
	}
}

func parseGameIDs(list string) []uint32 {
	var ids []uint32
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint32(id))
	}
	return ids
}

func joinGameIDs(ids []uint32) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ", ")
}
