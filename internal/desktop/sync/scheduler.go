package sync

import (
	"context"
	"sync"
	"time"

	"github.com/dealersoft/dealerdesk/internal/logging"
)

// State is the scheduler's lifecycle phase, owned by the Scheduler rather
// than living in a package-level flag.
type State int

const (
	// StateIdle means no user is signed in and no timers are armed.
	StateIdle State = iota
	// StateScheduled means the one-time initial delay is counting down.
	StateScheduled
	// StateRunning means a sync cycle is in flight.
	StateRunning
	// StateWaiting means the interval timer is armed for the next cycle.
	StateWaiting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	}
	return "unknown"
}

// Syncer is the slice of Engine the scheduler needs.
type Syncer interface {
	PerformSync(ctx context.Context, userID string) (*Result, error)
}

// SchedulerConfig carries the timing knobs. The initial delay keeps sync off
// the critical path at launch; the timeout is the hard per-cycle budget.
type SchedulerConfig struct {
	InitialDelay  time.Duration
	Interval      time.Duration
	Timeout       time.Duration
	ShutdownGrace time.Duration
}

// Scheduler drives the engine: one delayed initial run, then a fixed
// interval, with a single-flight guard so cycles never overlap. Sign-out
// cancels everything back to Idle.
type Scheduler struct {
	syncer Syncer
	log    logging.Logger
	cfg    SchedulerConfig

	mu      sync.Mutex
	state   State
	userID  string
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewScheduler(syncer Syncer, log logging.Logger, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{
		syncer: syncer,
		log:    log.With("component", "scheduler"),
		cfg:    cfg,
		state:  StateIdle,
	}
}

// State returns the current lifecycle phase.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnSignIn arms the initial delayed sync for userID. A session change while
// timers are already armed restarts them for the new user.
func (s *Scheduler) OnSignIn(userID string) {
	if userID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()

	ctx, cancel := context.WithCancel(context.Background())
	s.userID = userID
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = StateScheduled
	go s.loop(ctx, userID, s.done)
}

// OnSignOut cancels all timers and any in-flight cycle and returns to Idle.
func (s *Scheduler) OnSignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

func (s *Scheduler) cancelLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		s.done = nil
	}
	s.userID = ""
	s.state = StateIdle
}

// Stop cancels the timers and, if a user is signed in, attempts one final
// best-effort sync bounded by the shutdown grace period. It never blocks
// beyond that budget.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	userID := s.userID
	done := s.done
	s.cancelLocked()
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	if userID == "" || s.cfg.ShutdownGrace <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	s.runOnce(ctx, userID, StateIdle)
}

func (s *Scheduler) loop(ctx context.Context, userID string, done chan struct{}) {
	defer close(done)

	initial := time.NewTimer(s.cfg.InitialDelay)
	defer initial.Stop()
	select {
	case <-ctx.Done():
		return
	case <-initial.C:
	}
	s.runOnce(ctx, userID, StateWaiting)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Fire-and-check: if the previous cycle is still running the
			// guard makes this tick a no-op.
			go s.runOnce(ctx, userID, StateWaiting)
		}
	}
}

// runOnce executes one cycle under the single-flight guard, racing the hard
// timeout. after is the state to settle in when the cycle ends.
func (s *Scheduler) runOnce(ctx context.Context, userID string, after State) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.state = StateRunning
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		if s.state == StateRunning {
			s.state = after
		}
		s.mu.Unlock()
	}()

	runCtx := ctx
	var cancel context.CancelFunc
	if s.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	res, err := s.syncer.PerformSync(runCtx, userID)
	if err != nil {
		s.log.Warn(ctx, "sync cycle failed",
			"user_id", userID, "pushed", res.PushedTotal(), "pulled", res.PulledTotal(), "error", err)
		return
	}
	s.log.Debug(ctx, "sync cycle completed",
		"user_id", userID, "pushed", res.PushedTotal(), "pulled", res.PulledTotal())
}
