// ABOUTME: Tests for the farming scheduler: queueing, blacklist, manual mode.
// ABOUTME: Presence is a recording stub; Start runs on its own goroutine where needed.

package farmer

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type recordingPresence struct {
	mu     sync.Mutex
	played [][]uint32
}

func (p *recordingPresence) PlayGames(gameIDs []uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, gameIDs)
}

func (p *recordingPresence) calls() [][]uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]uint32(nil), p.played...)
}

func TestSetQueue(t *testing.T) {
	t.Run("blacklisted games are dropped", func(t *testing.T) {
		s := NewScheduler(&recordingPresence{}, []uint32{440}, nil, slog.Default())
		s.SetQueue([]uint32{10, 440, 20})

		if got := s.QueueCount(); got != 2 {
			t.Fatalf("expected 2 queued, got %d", got)
		}
	})
}

func TestStart(t *testing.T) {
	t.Run("empty queue reports an immediately finished run", func(t *testing.T) {
		var finished, farmed bool
		s := NewScheduler(&recordingPresence{}, nil, func(f bool) {
			finished = true
			farmed = f
		}, slog.Default())

		s.Start(context.Background())

		if !finished {
			t.Fatal("finished hook must fire")
		}
		if farmed {
			t.Fatal("an empty run farmed nothing")
		}
	})

	t.Run("a queued batch is announced and farming blocks until stopped", func(t *testing.T) {
		presence := &recordingPresence{}
		s := NewScheduler(presence, nil, nil, slog.Default())
		s.SetQueue([]uint32{10, 20, 30})

		done := make(chan struct{})
		go func() {
			s.Start(context.Background())
			close(done)
		}()

		// Wait for the batch announcement.
		deadline := time.After(2 * time.Second)
		for len(presence.calls()) == 0 {
			select {
			case <-deadline:
				t.Fatal("batch was never announced")
			default:
				time.Sleep(5 * time.Millisecond)
			}
		}

		if got := s.CurrentlyFarming(); len(got) != 3 {
			t.Fatalf("expected 3 games farming, got %v", got)
		}

		s.Stop()
		<-done

		calls := presence.calls()
		last := calls[len(calls)-1]
		if last != nil {
			t.Fatalf("stop must reset presence, got %v", last)
		}
	})

	t.Run("cancellation stops farming", func(t *testing.T) {
		presence := &recordingPresence{}
		s := NewScheduler(presence, nil, nil, slog.Default())
		s.SetQueue([]uint32{10})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			s.Start(ctx)
			close(done)
		}()

		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("start did not return after cancellation")
		}
	})
}

func TestMarkFinished(t *testing.T) {
	presence := &recordingPresence{}
	var finished bool
	s := NewScheduler(presence, nil, func(f bool) { finished = f }, slog.Default())
	s.SetQueue([]uint32{10, 20})

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()
	for len(presence.calls()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	s.MarkFinished(true)
	<-done

	if !finished {
		t.Fatal("finished hook must receive the farmed flag")
	}
	if got := s.QueueCount(); got != 0 {
		t.Fatalf("expected drained queue, got %d", got)
	}
}

func TestSwitchToManualMode(t *testing.T) {
	t.Run("entering manual mode stops farming", func(t *testing.T) {
		presence := &recordingPresence{}
		s := NewScheduler(presence, nil, nil, slog.Default())
		s.SetQueue([]uint32{10})

		done := make(chan struct{})
		go func() {
			s.Start(context.Background())
			close(done)
		}()
		for len(presence.calls()) == 0 {
			time.Sleep(5 * time.Millisecond)
		}

		if !s.SwitchToManualMode(context.Background(), true) {
			t.Fatal("expected a mode change")
		}
		<-done

		if s.SwitchToManualMode(context.Background(), true) {
			t.Fatal("repeated switch should report no change")
		}
	})

	t.Run("manual mode blocks automatic starts", func(t *testing.T) {
		s := NewScheduler(&recordingPresence{}, nil, nil, slog.Default())
		s.SetQueue([]uint32{10})
		s.SwitchToManualMode(context.Background(), true)

		s.Start(context.Background()) // returns immediately
		if got := s.CurrentlyFarming(); len(got) != 0 {
			t.Fatalf("manual mode must not farm, got %v", got)
		}
	})
}
