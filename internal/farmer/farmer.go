// ABOUTME: Card-farming scheduler collaborator owned by each bot.
// ABOUTME: Tracks the farming queue and presence; drop heuristics live outside the core.

package farmer

import (
	"context"
	"log/slog"
	"sync"
)

// Farmer is the scheduling collaborator the session state machine starts,
// stops, and restarts around connection changes.
type Farmer interface {
	// Start begins farming the queued games. It blocks until farming
	// finishes or ctx is cancelled, so callers run it on its own task.
	Start(ctx context.Context)

	// Stop halts farming immediately and clears current presence.
	Stop()

	// Restart is Stop followed by Start with the same queue.
	Restart(ctx context.Context)

	// CurrentlyFarming lists the games being farmed right now.
	CurrentlyFarming() []uint32

	// QueueCount reports how many games remain to farm.
	QueueCount() int

	// SwitchToManualMode toggles manual play. Entering manual mode stops
	// farming; the return value reports whether the mode changed.
	SwitchToManualMode(ctx context.Context, manual bool) bool
}

// Presence announces played games to the remote service.
type Presence interface {
	PlayGames(gameIDs []uint32)
}

// batchSize caps how many games are farmed concurrently, matching the
// service-side limit on simultaneous play sessions.
const batchSize = 32

// Scheduler is the in-process Farmer implementation. It owns the queue and
// presence; which games are worth farming is decided by whoever fills the
// queue.
type Scheduler struct {
	presence Presence
	logger   *slog.Logger

	// onFinished fires when the queue drains; farmedSomething is true when
	// at least one game was farmed this run.
	onFinished func(farmedSomething bool)

	mu        sync.Mutex
	blacklist map[uint32]struct{}
	queue     []uint32
	current   []uint32
	manual    bool
	running   bool
	done      chan struct{}
}

// NewScheduler creates a scheduler announcing presence through the given
// collaborator. Blacklisted games are dropped from any queue assignment.
func NewScheduler(presence Presence, blacklist []uint32, onFinished func(bool), logger *slog.Logger) *Scheduler {
	bl := make(map[uint32]struct{}, len(blacklist))
	for _, id := range blacklist {
		bl[id] = struct{}{}
	}

	return &Scheduler{
		presence:   presence,
		logger:     logger,
		onFinished: onFinished,
		blacklist:  bl,
	}
}

// SetQueue replaces the set of games to farm, dropping blacklisted entries.
func (s *Scheduler) SetQueue(gameIDs []uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = s.queue[:0]
	for _, id := range gameIDs {
		if _, blocked := s.blacklist[id]; blocked {
			continue
		}
		s.queue = append(s.queue, id)
	}
}

// Start begins farming. It returns immediately when already running, in
// manual mode, or when the queue is empty (reporting a finished run).
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running || s.manual {
		s.mu.Unlock()
		return
	}
	if len(s.queue) == 0 {
		s.mu.Unlock()
		if s.onFinished != nil {
			s.onFinished(false)
		}
		return
	}

	batch := s.queue
	if len(batch) > batchSize {
		batch = batch[:batchSize]
	}
	s.current = append([]uint32(nil), batch...)
	s.running = true
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.Info("farming started", "games", len(batch))
	s.presence.PlayGames(batch)

	select {
	case <-ctx.Done():
		s.Stop()
	case <-done:
	}
}

// Stop halts farming and resets presence.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.current = nil
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.mu.Unlock()

	s.logger.Info("farming stopped")
	s.presence.PlayGames(nil)
}

// Restart stops and starts farming with the current queue.
func (s *Scheduler) Restart(ctx context.Context) {
	s.Stop()
	s.Start(ctx)
}

// MarkFinished records that the current batch is done. farmed reports
// whether anything was actually farmed; the finished hook receives it.
func (s *Scheduler) MarkFinished(farmed bool) {
	s.mu.Lock()
	current := s.current
	remaining := s.queue
	if len(current) > 0 && len(remaining) >= len(current) {
		s.queue = remaining[len(current):]
	}
	s.current = nil
	s.running = false
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.mu.Unlock()

	s.presence.PlayGames(nil)
	if s.onFinished != nil {
		s.onFinished(farmed)
	}
}

// CurrentlyFarming lists the games being farmed right now.
func (s *Scheduler) CurrentlyFarming() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.current...)
}

// QueueCount reports how many games remain to farm.
func (s *Scheduler) QueueCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// SwitchToManualMode toggles manual play mode.
func (s *Scheduler) SwitchToManualMode(ctx context.Context, manual bool) bool {
	s.mu.Lock()
	changed := s.manual != manual
	s.manual = manual
	s.mu.Unlock()

	if manual && changed {
		s.Stop()
	}
	return changed
}
