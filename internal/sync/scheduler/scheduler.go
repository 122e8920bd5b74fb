// Package scheduler decides when the sync engine drains: on a fixed interval
// while foregrounded, on an offline to online transition, and on demand.
package scheduler

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/emaamul/core/internal/errors"
	"github.com/emaamul/core/internal/logging"
	syncpkg "github.com/emaamul/core/internal/sync"
	"github.com/emaamul/core/internal/sync/connectivity"
)

// Config holds scheduler configuration.
type Config struct {
	// Interval between periodic drains (default: 5 seconds).
	Interval time.Duration
	// Probe, when set, is polled every WatchInterval to detect
	// connectivity transitions. Hosts that receive connectivity events
	// call SetOnlineStatus instead.
	Probe         connectivity.Probe
	WatchInterval time.Duration
	// DrainTimeout bounds one drain pass (default: 2 minutes).
	DrainTimeout time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:     5 * time.Second,
		DrainTimeout: 2 * time.Minute,
	}
}

// Scheduler triggers drains in the background. It never runs two drains at
// once: every trigger is funnelled through one loop.
type Scheduler struct {
	interval      time.Duration
	watchInterval time.Duration
	drainTimeout  time.Duration
	probe         connectivity.Probe

	trigger chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu         sync.RWMutex
	drainer    syncpkg.Drainer
	isRunning  bool
	isOnline   bool
	foreground bool
	lastRun    time.Time
	runs       int
}

// New creates a Scheduler for drainer.
func New(drainer syncpkg.Drainer, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = defaults.DrainTimeout
	}
	if config.WatchInterval <= 0 {
		config.WatchInterval = config.Interval
	}

	return &Scheduler{
		drainer:       drainer,
		interval:      config.Interval,
		watchInterval: config.WatchInterval,
		drainTimeout:  config.DrainTimeout,
		probe:         config.Probe,
		trigger:       make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		foreground:    true,
	}
}

// SetDrainer swaps the engine, used when the signed-in identity changes.
func (s *Scheduler) SetDrainer(drainer syncpkg.Drainer) {
	s.mu.Lock()
	s.drainer = drainer
	s.mu.Unlock()
}

// Start starts the background loops.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(ctx)

	if s.probe != nil {
		s.wg.Add(1)
		go s.watchLoop(ctx)
	}

	logging.Info("Sync scheduler started", map[string]any{"interval": s.interval.String()})
}

// Stop stops the scheduler and waits for an in-flight drain to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Sync scheduler stopped", nil)
}

// SetOnlineStatus records connectivity. Going from offline to online
// triggers a drain.
func (s *Scheduler) SetOnlineStatus(isOnline bool) {
	s.mu.Lock()
	wasOnline := s.isOnline
	s.isOnline = isOnline
	s.mu.Unlock()

	if wasOnline == isOnline {
		return
	}
	logging.Info("Online status changed", map[string]any{"was_online": wasOnline, "is_online": isOnline})
	if isOnline {
		s.Trigger()
	}
}

// SetForeground gates periodic drains. Transitions and Trigger still drain
// while backgrounded.
func (s *Scheduler) SetForeground(foreground bool) {
	s.mu.Lock()
	s.foreground = foreground
	s.mu.Unlock()
}

// Trigger requests a drain without waiting for it. Requests made while one
// is pending collapse into it.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// SyncNow drains synchronously on the caller's goroutine.
func (s *Scheduler) SyncNow(ctx context.Context) (bool, error) {
	return s.drain(ctx)
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.RLock()
			foreground := s.foreground
			s.mu.RUnlock()
			if !foreground {
				continue
			}
			s.runDrain(ctx, "interval")
		case <-s.trigger:
			s.runDrain(ctx, "trigger")
		}
	}
}

func (s *Scheduler) watchLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			state, err := s.probe.Check(ctx)
			if err != nil {
				logging.Debug("Connectivity probe failed", map[string]any{"error": err.Error()})
			}
			s.SetOnlineStatus(err == nil && state.Online())
		}
	}
}

func (s *Scheduler) runDrain(ctx context.Context, reason string) {
	ctx, cancel := context.WithTimeout(ctx, s.drainTimeout)
	defer cancel()

	ran, err := s.drain(ctx)
	switch {
	case apperrors.Is(err, apperrors.ErrSyncInProgress):
		logging.Debug("Drain already in progress, skipping", map[string]any{"reason": reason})
	case err != nil:
		logging.ErrorWithCode("Scheduled drain failed", string(apperrors.CodeOf(err)), err,
			map[string]any{"reason": reason})
	case ran:
		logging.Debug("Scheduled drain completed", map[string]any{"reason": reason})
	}
}

func (s *Scheduler) drain(ctx context.Context) (bool, error) {
	s.mu.RLock()
	drainer := s.drainer
	s.mu.RUnlock()
	if drainer == nil {
		return false, nil
	}

	ran, err := drainer.DrainQueue(ctx)

	s.mu.Lock()
	s.lastRun = time.Now()
	s.runs++
	s.mu.Unlock()
	return ran, err
}

// Status is a snapshot of the scheduler.
type Status struct {
	IsRunning  bool       `json:"is_running" yaml:"is_running"`
	IsOnline   bool       `json:"is_online" yaml:"is_online"`
	Foreground bool       `json:"foreground" yaml:"foreground"`
	LastRun    *time.Time `json:"last_run,omitempty" yaml:"last_run,omitempty"`
	Runs       int        `json:"runs" yaml:"runs"`
}

// GetStatus returns the current status of the scheduler.
func (s *Scheduler) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{
		IsRunning:  s.isRunning,
		IsOnline:   s.isOnline,
		Foreground: s.foreground,
		Runs:       s.runs,
	}
	if !s.lastRun.IsZero() {
		last := s.lastRun
		status.LastRun = &last
	}
	return status
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
