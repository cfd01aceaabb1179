// Package worker runs sync in the background: a debounced push after
// local edits and a periodic pull.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nirmaan/internal/amqp"
	"nirmaan/internal/ledger"
	"nirmaan/internal/log"
	"nirmaan/internal/services"
)

// Syncer is the part of the sync engine the scheduler drives.
type Syncer interface {
	Push(ctx context.Context) services.Report
	Pull(ctx context.Context) services.Report
}

// SchedulerConfig holds the scheduler timings
type SchedulerConfig struct {
	// PushDelay is how long edits must be quiet before a push (default: 750ms)
	PushDelay time.Duration

	// PullInterval is how often to pull (default: 60s)
	PullInterval time.Duration

	// WatchInterval is how often the attached store is checked for writes
	// made by other processes, such as the CLI (default: 2s, 0 disables)
	WatchInterval time.Duration
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		PushDelay:     750 * time.Millisecond,
		PullInterval:  60 * time.Second,
		WatchInterval: 2 * time.Second,
	}
}

// Scheduler serializes every sync run on one goroutine. Pushes are
// debounced: each SchedulePush restarts the delay, so a burst of edits
// costs one push.
type Scheduler struct {
	syncer Syncer
	config SchedulerConfig
	log    *log.Logger
	store  *ledger.Store

	mu          sync.Mutex
	running     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	pushTimer   *time.Timer
	pushPending bool

	pushCh chan struct{}
	pullCh chan struct{}
}

func NewScheduler(syncer Syncer, config SchedulerConfig, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	return &Scheduler{
		syncer: syncer,
		config: config,
		log:    logger.WithComponent(log.ComponentWorker),
		pushCh: make(chan struct{}, 1),
		pullCh: make(chan struct{}, 1),
	}
}

// Start pulls once and then begins the loop. Returns an error if already
// running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	s.log.InfoContext(ctx, "Scheduler started",
		"push_delay", s.config.PushDelay,
		"pull_interval", s.config.PullInterval,
		"watch_interval", s.config.WatchInterval)

	return nil
}

// Stop ends the loop, running a push first if one is pending, and waits
// for it to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	if s.pushTimer != nil {
		s.pushTimer.Stop()
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		s.log.InfoContext(ctx, "Scheduler stopped gracefully")
	case <-ctx.Done():
		s.log.WarnContext(ctx, "Scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return nil
}

// IsRunning returns whether the scheduler loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SchedulePush (re)starts the push delay.
func (s *Scheduler) SchedulePush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushPending = true
	if s.pushTimer != nil {
		s.pushTimer.Stop()
	}
	s.pushTimer = time.AfterFunc(s.config.PushDelay, func() {
		signal(s.pushCh)
	})
}

// RequestPull asks for a pull as soon as the loop is free. Requests made
// while one is queued collapse into it.
func (s *Scheduler) RequestPull() {
	signal(s.pullCh)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *Scheduler) takePending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pushPending
	s.pushPending = false
	return p
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	pullTicker := time.NewTicker(s.config.PullInterval)
	defer pullTicker.Stop()

	var watch <-chan time.Time
	s.mu.Lock()
	store := s.store
	s.mu.Unlock()
	if store != nil && s.config.WatchInterval > 0 {
		t := time.NewTicker(s.config.WatchInterval)
		defer t.Stop()
		watch = t.C
	}

	s.syncer.Pull(ctx)

	for {
		select {
		case <-s.stopCh:
			if s.takePending() {
				s.syncer.Push(ctx)
			}
			return
		case <-ctx.Done():
			return
		case <-s.pushCh:
			if s.takePending() {
				s.syncer.Push(ctx)
			}
		case <-s.pullCh:
			s.syncer.Pull(ctx)
		case <-pullTicker.C:
			s.syncer.Pull(ctx)
		case <-watch:
			// Local changes found here reach SchedulePush via AttachStore.
			store.Refresh(ctx)
		}
	}
}

// AttachStore schedules a push after every local edit of synced data,
// including edits other processes write to the same store, which the loop
// picks up every WatchInterval. Attach before Start. Pulled changes,
// resets and session or bookkeeping updates are ignored.
func (s *Scheduler) AttachStore(store *ledger.Store) (cancel func()) {
	s.mu.Lock()
	s.store = store
	s.mu.Unlock()
	return store.Subscribe(func(c ledger.Change) {
		if c.Origin != ledger.OriginLocal {
			return
		}
		switch c.Collection {
		case ledger.NameAuth, ledger.NameSync:
			return
		}
		s.SchedulePush()
	})
}

// HandleSyncEvent reacts to another device's push by pulling early.
func (s *Scheduler) HandleSyncEvent(ctx context.Context, ev *amqp.SyncEvent) error {
	s.log.InfoContext(ctx, "Remote device synced, pulling",
		log.FieldDevice, ev.Device,
		log.FieldDirection, ev.Direction)
	s.RequestPull()
	return nil
}
