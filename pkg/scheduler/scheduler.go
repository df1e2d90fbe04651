// Package scheduler runs the reconciliation engine's tick loop: on every
// interval it lists the registered stacks from the store and reconciles
// each one in turn, then sleeps until the next tick.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/acticloud/heatspreader/pkg/log"
	"github.com/acticloud/heatspreader/pkg/metrics"
	"github.com/acticloud/heatspreader/pkg/reconciler"
	"github.com/acticloud/heatspreader/pkg/store"
)

// State is the scheduler's run state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
	StateForceStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateForceStopped:
		return "force_stopped"
	default:
		return "idle"
	}
}

// Config tunes the tick loop. Zero values are replaced with the defaults.
type Config struct {
	// UpdateFrequency is how long the scheduler sleeps between ticks.
	UpdateFrequency time.Duration
	// DriverTimeout sizes each stack's reconcile budget within a tick:
	// DriverTimeout for every driver call the stack may need (see
	// maxCloudCalls), applied as one deadline for the whole stack rather
	// than one deadline per call.
	DriverTimeout time.Duration
}

const (
	defaultUpdateFrequency = 10 * time.Second
	defaultDriverTimeout   = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.UpdateFrequency <= 0 {
		c.UpdateFrequency = defaultUpdateFrequency
	}
	if c.DriverTimeout <= 0 {
		c.DriverTimeout = defaultDriverTimeout
	}
	return c
}

// Scheduler owns the Idle -> Running -> Stopping -> Stopped state machine.
// ForceStopped is reachable from any state and is terminal, like Stopped.
type Scheduler struct {
	stackStore store.StackStore
	reconciler *reconciler.Reconciler
	cfg        Config

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// New returns an idle Scheduler.
func New(stackStore store.StackStore, rec *reconciler.Reconciler, cfg Config) *Scheduler {
	return &Scheduler{
		stackStore: stackStore,
		reconciler: rec,
		cfg:        cfg.withDefaults(),
		state:      StateIdle,
	}
}

// State returns the scheduler's current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setStateLocked(state State) {
	if state == s.state {
		return
	}
	log.WithComponent("scheduler").Info().
		Str("from", s.state.String()).
		Str("to", state.String()).
		Msg("scheduler_state_transition")
	s.state = state
}

// Run blocks, ticking every cfg.UpdateFrequency until Stop, ForceStop, or
// parent ctx cancellation ends the loop. It returns nil once stopped; it
// is an error to call Run on a Scheduler that isn't Idle.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("scheduler: Run called from state %s, want idle", state)
	}
	s.setStateLocked(StateRunning)
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	defer cancel()
	log.WithComponent("scheduler").Info().Msg("scheduler_start")

	for s.State() == StateRunning {
		timer := metrics.NewTimer()
		s.tick(runCtx)
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()

		if s.State() != StateRunning {
			break
		}

		select {
		case <-time.After(s.cfg.UpdateFrequency):
		case <-runCtx.Done():
		}
		if runCtx.Err() != nil {
			break
		}
	}

	s.mu.Lock()
	final := StateStopped
	if s.state == StateForceStopped {
		final = StateForceStopped
	}
	s.state = final
	s.mu.Unlock()

	log.WithComponent("scheduler").Info().Str("state", final.String()).Msg("scheduler_stop_complete")
	return nil
}

// tick lists the current stacks and reconciles each in turn, stopping
// early if the scheduler is no longer running. A stack whose reconcile
// budget runs out is left for the next tick; the stacks after it are
// still reconciled.
func (s *Scheduler) tick(ctx context.Context) {
	stacks, err := s.stackStore.List(ctx)
	if err != nil {
		log.WithComponent("scheduler").Error().Err(err).Msg("list_stacks_failed")
		return
	}

	for _, stack := range stacks {
		if s.State() != StateRunning {
			return
		}

		tickCtx, cancel := context.WithTimeout(ctx, s.cfg.DriverTimeout*time.Duration(maxCloudCalls(stack.Weights)))
		err := s.reconciler.Reconcile(tickCtx, stack)
		cancel()

		if err != nil {
			log.WithStack(stack.StackName).Debug().Err(err).Msg("reconcile_interrupted")
			if ctx.Err() != nil {
				return
			}
			continue
		}
		metrics.StacksReconciledTotal.Inc()
	}
}

// maxCloudCalls bounds the per-stack reconcile budget: Reconcile makes at
// most two driver calls (a Get then an Update) per cloud the stack is
// weighted for.
func maxCloudCalls(weights map[string]float64) int {
	if len(weights) == 0 {
		return 1
	}
	return 2 * len(weights)
}

// Stop requests a graceful stop: the scheduler finishes any in-flight
// driver call it can't cleanly abort, then exits Run after its current
// tick. Stop is a no-op unless the scheduler is Running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return
	}
	s.setStateLocked(StateStopping)
	if s.cancel != nil {
		s.cancel()
	}
}

// ForceStop cancels the in-flight tick context immediately, abandoning
// any outstanding driver calls rather than waiting for them. It is valid
// from any state.
func (s *Scheduler) ForceStop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setStateLocked(StateForceStopped)
	if s.cancel != nil {
		s.cancel()
	}
}
