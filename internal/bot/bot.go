// ABOUTME: Bot owns one authenticated agent: its session, collaborators, and files.
// ABOUTME: Construction registers into the process registry; disabled or duplicate bots are discarded.

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/farmhand-dev/farmhand/internal/config"
	"github.com/farmhand-dev/farmhand/internal/farmer"
	"github.com/farmhand-dev/farmhand/internal/guard"
	"github.com/farmhand-dev/farmhand/internal/input"
	"github.com/farmhand-dev/farmhand/internal/transport"
	"github.com/farmhand-dev/farmhand/internal/websession"
)

// ErrBotDisabled indicates the bot's settings mark it disabled; the instance
// is discarded without registering.
var ErrBotDisabled = errors.New("bot is disabled")

// sharedLoginID is sent with every logon request. It must be identical
// across all bots of a deployment so the service multiplexes their sessions
// instead of treating each as a new device.
const sharedLoginID uint32 = 0x5FA81D20

// communityGroupID is the opt-in community group joined when statistics are
// enabled.
const communityGroupID uint64 = 103582791434202956

// WebSession is the web collaborator surface the bot drives.
type WebSession interface {
	Init(ctx context.Context, nonce, parentalPIN string) error
	GetTradableInventory(ctx context.Context) ([]websession.Item, error)
	SendTradeOffer(ctx context.Context, items []websession.Item, partnerID uint64, token string) (bool, error)
	PendingTradeOffers(ctx context.Context) (int, error)
	JoinGroup(ctx context.Context, groupID uint64) error
	MarkInventory(ctx context.Context) error
	RefreshSession(ctx context.Context) error
	FetchConfirmations(ctx context.Context) ([]guard.Confirmation, error)
	AcceptConfirmation(ctx context.Context, conf guard.Confirmation) error
	DeactivateAuthenticator(ctx context.Context, a *guard.Authenticator) error
	NewLinkSession(login, password string) guard.LinkSession
}

// ActivityStore records bot events for later inspection. All methods are
// optional; a nil store disables recording.
type ActivityStore interface {
	RecordLogon(ctx context.Context, bot, result string) error
	RecordRedemption(ctx context.Context, bot, key, status string) error
	RecordTrade(ctx context.Context, bot string, items int, success bool) error
}

// Notifier pushes operator notifications. A nil notifier disables them.
type Notifier interface {
	Send(message string) error
}

// CommandHandler turns a privileged chat message into a reply. It is
// injected after construction to keep the dispatcher out of this package.
type CommandHandler func(ctx context.Context, b *Bot, message string) string

// Options carries everything a bot needs at construction.
type Options struct {
	Name     string
	Settings *config.BotSettings
	Paths    config.BotPaths

	Client   transport.Client
	Web      WebSession
	Farm     farmer.Farmer
	Registry *Registry
	Activity ActivityStore
	Notifier Notifier
	Prompter input.Prompter

	// ConnectLimiter is the process-wide limiter throttling fresh connect
	// attempts across all bots.
	ConnectLimiter *rate.Limiter

	// CallbackInterval is the poll interval of the callback loop.
	CallbackInterval time.Duration

	Logger *slog.Logger
}

// Bot is one managed agent.
type Bot struct {
	name     string
	settings *config.BotSettings
	paths    config.BotPaths
	logger   *slog.Logger

	client   transport.Client
	web      WebSession
	farm     farmer.Farmer
	registry *Registry
	activity ActivityStore
	notifier Notifier
	prompter input.Prompter

	connectLimiter   *rate.Limiter
	callbackInterval time.Duration

	handler    CommandHandler
	onShutdown func()

	keepRunning atomic.Bool

	mu                sync.Mutex
	loopCancel        context.CancelFunc
	authenticator     *guard.Authenticator
	authCode          string
	twoFactorCode     string
	loginKey          string
	invalidPassword   bool
	loggedInElsewhere bool

	// Working credentials, seeded from settings. Values prompted from the
	// operator land here so the settings stay as the file declared them.
	login       string
	password    string
	parentalPIN string

	farmMu     sync.Mutex
	farmCancel context.CancelFunc

	tradeStop chan struct{}
	tradeOnce sync.Once
}

// New constructs a bot and registers it. A disabled bot yields ErrBotDisabled;
// a duplicate name yields ErrBotAlreadyRegistered. In both cases there is no
// registry entry and the instance should be discarded.
func New(opts Options) (*Bot, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("bot name is required")
	}
	if !opts.Settings.Enabled {
		return nil, ErrBotDisabled
	}

	interval := opts.CallbackInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	b := &Bot{
		name:             opts.Name,
		settings:         opts.Settings,
		paths:            opts.Paths,
		logger:           opts.Logger.With("bot", opts.Name),
		client:           opts.Client,
		web:              opts.Web,
		farm:             opts.Farm,
		registry:         opts.Registry,
		activity:         opts.Activity,
		notifier:         opts.Notifier,
		prompter:         opts.Prompter,
		connectLimiter:   opts.ConnectLimiter,
		callbackInterval: interval,
		login:            opts.Settings.Login,
		password:         opts.Settings.Password,
		parentalPIN:      opts.Settings.ParentalPIN,
	}

	if opts.Settings.UseLocalAuthenticator {
		authenticator, err := guard.Load(opts.Paths.Authenticator)
		if err == nil {
			b.authenticator = authenticator
		} else if !errors.Is(err, os.ErrNotExist) {
			b.logger.Warn("loading authenticator file", "error", err)
		}
	}

	if err := opts.Registry.Register(b); err != nil {
		return nil, err
	}

	if opts.Settings.TradePeriodHours > 0 {
		b.tradeStop = make(chan struct{})
		go b.tradeLoop(time.Duration(opts.Settings.TradePeriodHours) * time.Hour)
	}

	return b, nil
}

// Name returns the bot's unique name.
func (b *Bot) Name() string {
	return b.name
}

// Settings returns the bot's configuration.
func (b *Bot) Settings() *config.BotSettings {
	return b.settings
}

// KeepRunning reports whether the bot's session is supposed to be up.
func (b *Bot) KeepRunning() bool {
	return b.keepRunning.Load()
}

// SetCommandHandler injects the command dispatcher entry point.
func (b *Bot) SetCommandHandler(handler CommandHandler) {
	b.handler = handler
}

// SetOnShutdown installs the process coordinator hook invoked when this bot
// finishes for good.
func (b *Bot) SetOnShutdown(fn func()) {
	b.onShutdown = fn
}

// RedeemKey submits one redemption code for this bot's account and records
// the outcome.
func (b *Bot) RedeemKey(ctx context.Context, key string) (*transport.PurchaseReceipt, error) {
	receipt, err := b.client.RedeemKey(ctx, key)
	if err == nil && receipt != nil {
		b.recordRedemption(ctx, key, receipt.Result.String())
	}
	return receipt, err
}

// Farm exposes the farming collaborator for status queries.
func (b *Bot) Farm() farmer.Farmer {
	return b.farm
}

func (b *Bot) recordLogon(ctx context.Context, result string) {
	if b.activity == nil {
		return
	}
	if err := b.activity.RecordLogon(ctx, b.name, result); err != nil {
		b.logger.Warn("recording logon", "error", err)
	}
}

func (b *Bot) recordRedemption(ctx context.Context, key, status string) {
	if b.activity == nil {
		return
	}
	if err := b.activity.RecordRedemption(ctx, b.name, key, status); err != nil {
		b.logger.Warn("recording redemption", "error", err)
	}
}

func (b *Bot) recordTrade(ctx context.Context, items int, success bool) {
	if b.activity == nil {
		return
	}
	if err := b.activity.RecordTrade(ctx, b.name, items, success); err != nil {
		b.logger.Warn("recording trade", "error", err)
	}
}

func (b *Bot) notify(message string) {
	if b.notifier == nil {
		return
	}
	if err := b.notifier.Send(message); err != nil {
		b.logger.Warn("sending notification", "error", err)
	}
}
