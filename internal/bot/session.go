// ABOUTME: Session lifecycle: start/stop/restart, the callback loop, and event handlers.
// ABOUTME: Disconnects classify into backoff sleeps before exactly one reconnect attempt.

package bot

import (
	"context"
	"crypto/sha1"
	"io"
	"os"
	"strings"
	"time"

	"github.com/farmhand-dev/farmhand/internal/config"
	"github.com/farmhand-dev/farmhand/internal/input"
	"github.com/farmhand-dev/farmhand/internal/transport"
)

// Backoff applied when the last logon failed with bad credentials and no
// stored login key could be discarded instead.
const invalidPasswordBackoff = 25 * time.Minute

// Backoff applied when the session was displaced by a login elsewhere.
const displacedBackoff = 30 * time.Minute

// Settle delay between the stop and start halves of a restart, giving the
// transport time to flush the disconnect.
const restartDelay = 5 * time.Second

// Start brings the session up and keeps it up until Stop or Shutdown. The
// callback loop is launched once per running period; a Start on an already
// connected bot is a no-op.
func (b *Bot) Start() {
	if b.client.Connected() {
		return
	}

	if b.keepRunning.CompareAndSwap(false, true) {
		ctx, cancel := context.WithCancel(context.Background())
		b.mu.Lock()
		b.loopCancel = cancel
		b.mu.Unlock()
		go b.handleCallbacks(ctx)
	}

	b.logger.Info("starting session")
	b.waitConnectSlot(context.Background())
	b.client.Connect()
}

// Stop tears the session down without clearing the intent to run. The
// disconnect it causes is treated as user-initiated and not retried.
func (b *Bot) Stop() {
	if !b.client.Connected() {
		return
	}
	b.logger.Info("stopping session")
	b.client.Disconnect()
}

// Shutdown stops the bot for good: the callback loop exits, timers stop, and
// the coordinator hook fires.
func (b *Bot) Shutdown() {
	if !b.keepRunning.CompareAndSwap(true, false) {
		return
	}

	b.logger.Info("shutting down")
	b.stopFarming()
	b.Stop()

	b.mu.Lock()
	cancel := b.loopCancel
	b.loopCancel = nil
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if b.tradeStop != nil {
		b.tradeOnce.Do(func() { close(b.tradeStop) })
	}

	if b.onShutdown != nil {
		b.onShutdown()
	}
}

// Restart is Stop plus Start with a short settle delay, used when the web
// session breaks underneath a live connection.
func (b *Bot) Restart() {
	b.Stop()
	time.Sleep(restartDelay)
	b.Start()
}

// waitConnectSlot throttles fresh connections across all bots of the
// process. A bot holding a pending two-factor code skips the wait so the
// code does not expire in the queue.
func (b *Bot) waitConnectSlot(ctx context.Context) {
	if b.connectLimiter == nil {
		return
	}

	b.mu.Lock()
	pending := b.twoFactorCode != "" || b.authCode != ""
	b.mu.Unlock()
	if pending {
		return
	}

	if err := b.connectLimiter.Wait(ctx); err != nil {
		b.logger.Warn("connect throttle interrupted", "error", err)
	}
}

// handleCallbacks is the per-bot event loop. It drains transport events,
// polling at the configured interval, until shutdown.
func (b *Bot) handleCallbacks(ctx context.Context) {
	events := b.client.Events()

	for b.keepRunning.Load() {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.handleEvent(ctx, ev)
		case <-time.After(b.callbackInterval):
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bot) handleEvent(ctx context.Context, ev transport.Event) {
	switch ev := ev.(type) {
	case transport.ConnectedEvent:
		b.handleConnected(ev)
	case transport.DisconnectedEvent:
		b.handleDisconnected(ctx, ev)
	case transport.LoggedOnEvent:
		b.handleLoggedOn(ctx, ev)
	case transport.LoggedOffEvent:
		b.handleLoggedOff(ev)
	case transport.LoginKeyEvent:
		b.handleLoginKey(ev)
	case transport.MachineAuthEvent:
		b.handleMachineAuth(ev)
	case transport.ChatMessageEvent:
		b.handleChatMessage(ctx, ev)
	case transport.ChatInviteEvent:
		b.handleChatInvite(ev)
	case transport.FriendRequestEvent:
		b.handleFriendRequest(ev)
	case transport.PurchaseResponseEvent:
		b.handlePurchaseResponse(ev)
	default:
		b.logger.Debug("unhandled event", "type", ev)
	}
}

func (b *Bot) handleConnected(ev transport.ConnectedEvent) {
	if !ev.OK {
		b.logger.Error("unable to connect", "reason", ev.Reason)
		return
	}

	b.logger.Info("connected to service")

	if data, err := os.ReadFile(b.paths.LoginKey); err == nil {
		b.mu.Lock()
		b.loginKey = strings.TrimSpace(string(data))
		b.mu.Unlock()
	} else if !os.IsNotExist(err) {
		b.logger.Warn("reading login key file", "error", err)
	}

	var sentryHash []byte
	if data, err := os.ReadFile(b.paths.Sentry); err == nil {
		sum := sha1.Sum(data)
		sentryHash = sum[:]
	} else if !os.IsNotExist(err) {
		b.logger.Warn("reading sentry file", "error", err)
	}

	b.mu.Lock()
	loginKey := b.loginKey
	authCode := b.authCode
	twoFactorCode := b.twoFactorCode
	login := b.login
	password := b.password
	b.mu.Unlock()

	if !config.HasCredential(login) {
		login = b.prompter.Request(b.name, input.KindLogin)
	}
	if !config.HasCredential(password) && loginKey == "" {
		password = b.prompter.Request(b.name, input.KindPassword)
	}

	b.mu.Lock()
	b.login = login
	b.password = password
	b.mu.Unlock()

	b.logger.Info("logging on", "login", login)
	b.client.LogOn(transport.LogOnDetails{
		Username:      login,
		Password:      password,
		AuthCode:      authCode,
		TwoFactorCode: twoFactorCode,
		LoginKey:      loginKey,
		LoginID:       sharedLoginID,
		SentryHash:    sentryHash,
		RememberLogin: true,
	})
}

func (b *Bot) handleDisconnected(ctx context.Context, ev transport.DisconnectedEvent) {
	b.logger.Info("disconnected from service")
	b.stopFarming()

	if !b.keepRunning.Load() || ev.UserInitiated {
		return
	}

	b.mu.Lock()
	invalidPassword := b.invalidPassword
	displaced := b.loggedInElsewhere
	loginKey := b.loginKey
	b.invalidPassword = false
	b.loggedInElsewhere = false
	b.mu.Unlock()

	switch {
	case invalidPassword && loginKey != "":
		// The stored key likely expired; retry without it before
		// blaming the password.
		b.logger.Warn("removing expired login key")
		b.mu.Lock()
		b.loginKey = ""
		b.mu.Unlock()
		if err := os.Remove(b.paths.LoginKey); err != nil && !os.IsNotExist(err) {
			b.logger.Warn("removing login key file", "error", err)
		}
	case invalidPassword:
		b.logger.Warn("credentials were rejected, backing off", "sleep", invalidPasswordBackoff)
		b.sleep(ctx, invalidPasswordBackoff)
	case displaced:
		b.logger.Warn("session was displaced by another login, backing off", "sleep", displacedBackoff)
		b.sleep(ctx, displacedBackoff)
	}

	if !b.keepRunning.Load() {
		return
	}

	b.logger.Info("reconnecting")
	b.waitConnectSlot(ctx)
	b.client.Connect()
}

func (b *Bot) handleLoggedOff(ev transport.LoggedOffEvent) {
	b.logger.Info("logged off", "result", ev.Result.String())
	if ev.Result.Elsewhere() {
		b.mu.Lock()
		b.loggedInElsewhere = true
		b.mu.Unlock()
	}
}

func (b *Bot) handleLoginKey(ev transport.LoginKeyEvent) {
	if err := os.WriteFile(b.paths.LoginKey, []byte(ev.LoginKey), 0o600); err != nil {
		b.logger.Warn("persisting login key", "error", err)
	}

	b.mu.Lock()
	b.loginKey = ev.LoginKey
	b.mu.Unlock()

	b.client.AcceptLoginKey(ev.UniqueID)
}

// handleMachineAuth writes the sentry chunk at the requested offset and
// responds with the SHA-1 of the full file. Any local failure means no
// response; the service re-issues the challenge on the next logon.
func (b *Bot) handleMachineAuth(ev transport.MachineAuthEvent) {
	f, err := os.OpenFile(b.paths.Sentry, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		b.logger.Warn("opening sentry file", "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Seek(ev.Offset, io.SeekStart); err != nil {
		b.logger.Warn("seeking sentry file", "error", err)
		return
	}
	if _, err := f.Write(ev.Data); err != nil {
		b.logger.Warn("writing sentry file", "error", err)
		return
	}

	info, err := f.Stat()
	if err != nil {
		b.logger.Warn("inspecting sentry file", "error", err)
		return
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		b.logger.Warn("rewinding sentry file", "error", err)
		return
	}
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		b.logger.Warn("hashing sentry file", "error", err)
		return
	}

	b.client.SendMachineAuthResponse(transport.MachineAuthResponse{
		JobID:        ev.JobID,
		FileName:     ev.FileName,
		Offset:       ev.Offset,
		BytesWritten: len(ev.Data),
		FileSize:     int(info.Size()),
		Hash:         h.Sum(nil),
	})
}

func (b *Bot) handleChatMessage(ctx context.Context, ev transport.ChatMessageEvent) {
	if ev.SenderID == 0 || ev.SenderID != b.settings.MasterID {
		return
	}

	if ev.ChatRoomID != 0 && strings.EqualFold(strings.TrimSpace(ev.Message), "!leave") {
		b.client.LeaveChat(ev.ChatRoomID)
		return
	}

	if b.handler == nil {
		return
	}

	reply := b.handler(ctx, b, ev.Message)
	if reply == "" {
		return
	}

	if ev.ChatRoomID != 0 {
		b.client.SendChatMessage(ev.ChatRoomID, reply)
	} else {
		b.client.SendMessage(ev.SenderID, reply)
	}
}

func (b *Bot) handleChatInvite(ev transport.ChatInviteEvent) {
	if ev.PatronID != b.settings.MasterID {
		return
	}
	b.client.JoinChat(ev.ChatRoomID)
}

func (b *Bot) handleFriendRequest(ev transport.FriendRequestEvent) {
	if ev.UserID != b.settings.MasterID {
		return
	}
	b.client.AddFriend(ev.UserID)
}

// handlePurchaseResponse restarts farming after a successful redemption so a
// newly granted game enters the queue.
func (b *Bot) handlePurchaseResponse(ev transport.PurchaseResponseEvent) {
	if ev.Result != transport.PurchaseOK {
		return
	}
	b.restartFarming()
}

// startFarming launches the blocking farm run on its own cancellable task.
func (b *Bot) startFarming() {
	b.farmMu.Lock()
	if b.farmCancel != nil {
		b.farmCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.farmCancel = cancel
	b.farmMu.Unlock()

	go b.farm.Start(ctx)
}

func (b *Bot) restartFarming() {
	b.farmMu.Lock()
	if b.farmCancel != nil {
		b.farmCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.farmCancel = cancel
	b.farmMu.Unlock()

	go b.farm.Restart(ctx)
}

func (b *Bot) stopFarming() {
	b.farmMu.Lock()
	cancel := b.farmCancel
	b.farmCancel = nil
	b.farmMu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.farm.Stop()
}

// sleep blocks for the given backoff, waking early on shutdown.
func (b *Bot) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
