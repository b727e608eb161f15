// ABOUTME: Logon result handling via a transition table keyed by result code.
// ABOUTME: Success drives web session init, linking, presence, and the farming kick-off.

package bot

import (
	"context"
	"fmt"

	"github.com/farmhand-dev/farmhand/internal/config"
	"github.com/farmhand-dev/farmhand/internal/guard"
	"github.com/farmhand-dev/farmhand/internal/input"
	"github.com/farmhand-dev/farmhand/internal/transport"
)

// logonHandlers maps each known logon result to its handler. Unknown results
// are fatal: the account cannot make progress by retrying.
var logonHandlers map[transport.LogonResult]func(*Bot, context.Context, transport.LoggedOnEvent)

func init() {
	logonHandlers = map[transport.LogonResult]func(*Bot, context.Context, transport.LoggedOnEvent){
		transport.LogonOK:                 (*Bot).logonOK,
		transport.LogonAccountDenied:      (*Bot).logonAccountDenied,
		transport.LogonNeedTwoFactor:      (*Bot).logonNeedTwoFactor,
		transport.LogonInvalidPassword:    (*Bot).logonInvalidPassword,
		transport.LogonNoConnection:       (*Bot).logonTransient,
		transport.LogonServiceUnavailable: (*Bot).logonTransient,
		transport.LogonTimeout:            (*Bot).logonTransient,
		transport.LogonTryAnotherServer:   (*Bot).logonTransient,
		transport.LogonRateLimitExceeded:  (*Bot).logonTransient,
		transport.LogonAccountDisabled:    (*Bot).logonFatal,
	}
}

func (b *Bot) handleLoggedOn(ctx context.Context, ev transport.LoggedOnEvent) {
	handler, ok := logonHandlers[ev.Result]
	if !ok {
		handler = (*Bot).logonFatal
	}
	handler(b, ctx, ev)
}

// logonAccountDenied means the service wants the code mailed to the account's
// address. The code is stored for the reconnect that follows.
func (b *Bot) logonAccountDenied(ctx context.Context, ev transport.LoggedOnEvent) {
	b.logger.Warn("logon denied, guard code required")
	code := b.prompter.Request(b.name, input.KindGuardCode)

	b.mu.Lock()
	b.authCode = code
	b.mu.Unlock()
}

// logonNeedTwoFactor resolves the two-factor code locally when an
// authenticator is linked, otherwise asks the operator.
func (b *Bot) logonNeedTwoFactor(ctx context.Context, ev transport.LoggedOnEvent) {
	b.logger.Warn("logon requires two-factor code")

	b.mu.Lock()
	authenticator := b.authenticator
	b.mu.Unlock()

	var code string
	if authenticator != nil {
		code = authenticator.GenerateCode(b.client.ServerTime())
	} else {
		code = b.prompter.Request(b.name, input.KindTwoFactorCode)
	}

	b.mu.Lock()
	b.twoFactorCode = code
	b.mu.Unlock()
}

func (b *Bot) logonInvalidPassword(ctx context.Context, ev transport.LoggedOnEvent) {
	b.logger.Warn("logon rejected: invalid credentials")
	b.recordLogon(ctx, ev.Result.String())

	b.mu.Lock()
	b.invalidPassword = true
	b.mu.Unlock()
}

func (b *Bot) logonTransient(ctx context.Context, ev transport.LoggedOnEvent) {
	b.logger.Warn("logon failed, will retry", "result", ev.Result.String())
}

func (b *Bot) logonFatal(ctx context.Context, ev transport.LoggedOnEvent) {
	b.logger.Error("unrecoverable logon failure", "result", ev.Result.String())
	b.recordLogon(ctx, ev.Result.String())
	b.notify(fmt.Sprintf("Bot %s hit an unrecoverable logon failure: %s", b.name, ev.Result.String()))
	b.Shutdown()
}

func (b *Bot) logonOK(ctx context.Context, ev transport.LoggedOnEvent) {
	b.logger.Info("logged on successfully")
	b.recordLogon(ctx, ev.Result.String())

	b.mu.Lock()
	hadTwoFactorCode := b.twoFactorCode != ""
	b.authCode = ""
	b.twoFactorCode = ""
	b.invalidPassword = false
	hasAuthenticator := b.authenticator != nil
	b.mu.Unlock()

	// A code prompted for this logon means the account already carries a
	// second factor somewhere; the service would refuse a new link now.
	if b.settings.UseLocalAuthenticator && !hasAuthenticator && !hadTwoFactorCode {
		b.linkAuthenticator(ctx)
	}

	if config.HasCredential(b.settings.Nickname) {
		b.client.SetNickname(b.settings.Nickname)
	}
	if !b.settings.FarmOffline {
		b.client.SetPresenceOnline()
	}
	b.resetGamesPlayed()

	b.mu.Lock()
	pin := b.parentalPIN
	b.mu.Unlock()
	if pin == config.Unset {
		pin = b.prompter.Request(b.name, input.KindParentalPIN)
		b.mu.Lock()
		b.parentalPIN = pin
		b.mu.Unlock()
	}

	if err := b.web.Init(ctx, ev.Nonce, pin); err != nil {
		b.logger.Warn("web session init failed, restarting", "error", err)
		b.Restart()
		return
	}

	if b.settings.MasterGroupID != 0 {
		if err := b.web.JoinGroup(ctx, b.settings.MasterGroupID); err != nil {
			b.logger.Warn("joining master group", "error", err)
		}
		b.client.JoinChat(b.settings.MasterGroupID)
	}
	if b.settings.Statistics {
		if err := b.web.JoinGroup(ctx, communityGroupID); err != nil {
			b.logger.Warn("joining community group", "error", err)
		}
	}

	if b.settings.HandleOfflineMessages {
		if err := b.web.MarkInventory(ctx); err != nil {
			b.logger.Warn("marking inventory", "error", err)
		}
	}

	b.checkTrades(ctx)
	b.startFarming()
}

// linkAuthenticator runs the interactive linking flow over a fresh web
// session. A failed flow leaves the account without a local authenticator;
// logon proceeds regardless.
func (b *Bot) linkAuthenticator(ctx context.Context) {
	b.mu.Lock()
	login, password := b.login, b.password
	b.mu.Unlock()
	session := b.web.NewLinkSession(login, password)

	authenticator, err := guard.Link(ctx, session, b.prompter, b.paths.Authenticator, b.name, b.logger)
	if err != nil {
		b.logger.Warn("authenticator linking failed", "error", err)
		return
	}

	b.mu.Lock()
	b.authenticator = authenticator
	b.mu.Unlock()
}

// resetGamesPlayed announces the configured idle games, or clears presence
// when the list contains the zero sentinel.
func (b *Bot) resetGamesPlayed() {
	for _, id := range b.settings.IdleGames {
		if id == 0 {
			b.client.PlayGames(nil)
			return
		}
	}
	b.client.PlayGames(b.settings.IdleGames)
}
