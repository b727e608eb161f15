// ABOUTME: Text command dispatcher for the privileged controller.
// ABOUTME: Two independent tables: zero-argument commands and commands taking 1-2 arguments.

package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/farmhand-dev/farmhand/internal/bot"
	"github.com/farmhand-dev/farmhand/internal/redeem"
)

// commandMarker prefixes every command message; anything else is treated as
// a bare redemption-key batch.
const commandMarker = "!"

type zeroArgHandler func(d *Dispatcher, ctx context.Context, b *bot.Bot) string
type withArgHandler func(d *Dispatcher, ctx context.Context, b *bot.Bot, args []string) string

// Dispatcher routes controller messages to per-bot or global handlers.
type Dispatcher struct {
	registry    *bot.Registry
	distributor *redeem.Distributor
	logger      *slog.Logger

	// OnExit and OnRestart are wired by the process owner; nil disables the
	// corresponding commands' side effects.
	OnExit    func()
	OnRestart func()
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *bot.Registry, distributor *redeem.Distributor, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:    registry,
		distributor: distributor,
		logger:      logger.With("component", "command"),
	}
}

// The two tables are consulted independently: a single-token message only
// ever hits zeroArgCommands, a multi-token one only withArgCommands.
var zeroArgCommands = map[string]zeroArgHandler{
	"status":     func(d *Dispatcher, ctx context.Context, b *bot.Bot) string { return b.ResponseStatus() },
	"statusall":  (*Dispatcher).statusAll,
	"loot":       func(d *Dispatcher, ctx context.Context, b *bot.Bot) string { return b.ResponseSendTrade(ctx) },
	"2fa":        func(d *Dispatcher, ctx context.Context, b *bot.Bot) string { return b.Response2FA() },
	"2faoff":     func(d *Dispatcher, ctx context.Context, b *bot.Bot) string { return b.Response2FAOff(ctx) },
	"rejoinchat": (*Dispatcher).rejoinChatAll,
	"stop":       func(d *Dispatcher, ctx context.Context, b *bot.Bot) string { return b.ResponseStop() },
	"exit":       (*Dispatcher).exitAll,
	"restart":    (*Dispatcher).restartAll,
}

var withArgCommands = map[string]withArgHandler{
	"status":     targetCommand(func(ctx context.Context, b *bot.Bot) string { return b.ResponseStatus() }),
	"start":      targetCommand(func(ctx context.Context, b *bot.Bot) string { return b.ResponseStart() }),
	"stop":       targetCommand(func(ctx context.Context, b *bot.Bot) string { return b.ResponseStop() }),
	"loot":       targetCommand(func(ctx context.Context, b *bot.Bot) string { return b.ResponseSendTrade(ctx) }),
	"2fa":        targetCommand(func(ctx context.Context, b *bot.Bot) string { return b.Response2FA() }),
	"2faoff":     targetCommand(func(ctx context.Context, b *bot.Bot) string { return b.Response2FAOff(ctx) }),
	"addlicense": gamesCommand((*bot.Bot).ResponseAddLicense),
	"play":       gamesCommand((*bot.Bot).ResponsePlay),
	"redeem":     (*Dispatcher).redeemCommand,
}

// Handle parses one controller message and returns the reply. An empty
// reply means nothing is sent back.
func (d *Dispatcher) Handle(ctx context.Context, b *bot.Bot, message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return ""
	}

	if !strings.HasPrefix(message, commandMarker) {
		return d.distributor.Process(ctx, b, message, true)
	}

	fields := strings.Fields(message)
	token := strings.ToLower(strings.TrimPrefix(fields[0], commandMarker))

	if len(fields) == 1 {
		handler, ok := zeroArgCommands[token]
		if !ok {
			return "Unrecognized command: " + token
		}
		return handler(d, ctx, b)
	}

	handler, ok := withArgCommands[token]
	if !ok {
		return "Unrecognized command: " + token
	}
	return handler(d, ctx, b, fields[1:])
}

// targetCommand adapts a per-bot response to the single-argument form where
// the argument names the target bot.
func targetCommand(respond func(ctx context.Context, b *bot.Bot) string) withArgHandler {
	return func(d *Dispatcher, ctx context.Context, b *bot.Bot, args []string) string {
		target, reply := d.lookupBot(args[0])
		if target == nil {
			return reply
		}
		return respond(ctx, target)
	}
}

// gamesCommand adapts a games-list response to both forms: with a leading
// bot name and without.
func gamesCommand(respond func(b *bot.Bot, ctx context.Context, games string) string) withArgHandler {
	return func(d *Dispatcher, ctx context.Context, b *bot.Bot, args []string) string {
		if len(args) >= 2 {
			target, reply := d.lookupBot(args[0])
			if target == nil {
				return reply
			}
			return respond(target, ctx, strings.Join(args[1:], ","))
		}
		return respond(b, ctx, args[0])
	}
}

// redeemCommand starts a batch on the receiving bot, or on the bot named by
// a leading argument. Explicitly given keys skip the structural check applied
// to bare batches.
func (d *Dispatcher) redeemCommand(ctx context.Context, b *bot.Bot, args []string) string {
	target := b
	if len(args) >= 2 {
		if named, ok := d.registry.Get(args[0]); ok {
			target = named
			args = args[1:]
		}
	}
	return d.distributor.Process(ctx, target, strings.Join(args, "\n"), false)
}

func (d *Dispatcher) statusAll(ctx context.Context, b *bot.Bot) string {
	var sb strings.Builder
	for _, other := range d.registry.Snapshot() {
		sb.WriteString(other.ResponseStatus())
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "There are %d bots initialized and %d of them are currently running.",
		d.registry.Len(), d.registry.RunningCount())
	return sb.String()
}

// rejoinChatAll rejoins every bot with a configured master group. Bots
// without one are skipped silently.
func (d *Dispatcher) rejoinChatAll(ctx context.Context, b *bot.Bot) string {
	for _, other := range d.registry.Snapshot() {
		if other.Settings().MasterGroupID == 0 {
			continue
		}
		other.ResponseRejoinChat()
	}
	return "Done!"
}

func (d *Dispatcher) exitAll(ctx context.Context, b *bot.Bot) string {
	d.logger.Info("exit requested by controller")
	if d.OnExit != nil {
		go d.OnExit()
	}
	return "Done!"
}

func (d *Dispatcher) restartAll(ctx context.Context, b *bot.Bot) string {
	d.logger.Info("restart requested by controller")
	if d.OnRestart != nil {
		go d.OnRestart()
	}
	return "Done!"
}

func (d *Dispatcher) lookupBot(name string) (*bot.Bot, string) {
	target, ok := d.registry.Get(name)
	if !ok {
		return nil, fmt.Sprintf("Couldn't find any bot named %s!", name)
	}
	return target, ""
}
