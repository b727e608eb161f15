// ABOUTME: Process-wide bot registry with first-registration-wins semantics.
// ABOUTME: Lookups and snapshots are served under a read lock in registration order.

package bot

import (
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrBotAlreadyRegistered is returned when a bot name is taken; the
	// existing entry is never replaced.
	ErrBotAlreadyRegistered = errors.New("bot already registered")

	// ErrBotNotFound is returned when a named bot does not exist.
	ErrBotNotFound = errors.New("bot not found")
)

// Registry holds every constructed bot of the process, keyed by name.
type Registry struct {
	logger *slog.Logger

	mu    sync.RWMutex
	bots  map[string]*Bot
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logger.With("component", "registry"),
		bots:   make(map[string]*Bot),
	}
}

// Register adds a bot under its name. The first registration wins; a second
// bot with the same name is rejected with ErrBotAlreadyRegistered.
func (r *Registry) Register(b *Bot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bots[b.name]; exists {
		return ErrBotAlreadyRegistered
	}

	r.bots[b.name] = b
	r.order = append(r.order, b.name)
	r.logger.Info("bot registered", "bot", b.name, "total", len(r.bots))
	return nil
}

// Get returns the bot with the given name.
func (r *Registry) Get(name string) (*Bot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bots[name]
	return b, ok
}

// Names lists bot names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Snapshot lists all bots in registration order. The slice is a copy; the
// bots themselves are shared.
func (r *Registry) Snapshot() []*Bot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bots := make([]*Bot, 0, len(r.order))
	for _, name := range r.order {
		bots = append(bots, r.bots[name])
	}
	return bots
}

// Len reports how many bots are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bots)
}

// RunningCount reports how many registered bots currently keep a session up.
func (r *Registry) RunningCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, b := range r.bots {
		if b.KeepRunning() {
			count++
		}
	}
	return count
}
