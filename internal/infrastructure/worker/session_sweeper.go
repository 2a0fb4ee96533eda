package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionStore is the part of the session manager the sweeper needs
type SessionStore interface {
	Sweep(idle time.Duration) int
	Count() int
}

// SessionSweeper periodically closes edit sessions nobody has used for a while
type SessionSweeper struct {
	sessions SessionStore
	logger   *zap.Logger

	interval time.Duration
	idle     time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	swept  int
}

// NewSessionSweeper creates a sweeper that checks every interval and closes
// sessions idle for longer than idle
func NewSessionSweeper(sessions SessionStore, interval, idle time.Duration, logger *zap.Logger) *SessionSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SessionSweeper{
		sessions: sessions,
		logger:   logger,
		interval: interval,
		idle:     idle,
	}
}

// Start launches the sweep loop
func (s *SessionSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("session sweeper is already running")
	}
	if s.idle <= 0 {
		return fmt.Errorf("session sweeper needs a positive idle timeout")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("SessionSweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("idle_timeout", s.idle))

	go s.loop(loopCtx, s.done)
	return nil
}

// Stop ends the loop and waits for it
func (s *SessionSweeper) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	s.logger.Info("SessionSweeper stopped")
	return nil
}

// Name returns the worker name
func (s *SessionSweeper) Name() string {
	return "SessionSweeper"
}

// Swept returns how many sessions the sweeper has closed
func (s *SessionSweeper) Swept() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swept
}

func (s *SessionSweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *SessionSweeper) sweep() {
	n := s.sessions.Sweep(s.idle)
	if n == 0 {
		return
	}

	s.mu.Lock()
	s.swept += n
	s.mu.Unlock()

	s.logger.Info("Idle sessions closed",
		zap.Int("closed", n),
		zap.Int("open", s.sessions.Count()))
}
