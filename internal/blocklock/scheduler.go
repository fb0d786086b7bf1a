package blocklock

import "time"

// Scheduler is the handler's single self-driven worker: a periodic ticker
// plus a debounced wake channel, modeled on the node's own status-sync loop
// (ticker + non-blocking signal channel, one worker goroutine so no two
// scheduled actions ever run concurrently with each other).
type Scheduler struct {
	store *Store

	wakeCh chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	onTick func()
}

// NewScheduler builds a scheduler that calls onTick on every periodic tick
// and every debounced wake-up.
func NewScheduler(store *Store, onTick func()) *Scheduler {
	return &Scheduler{
		store:  store,
		wakeCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		onTick: onTick,
	}
}

// Start launches the worker goroutine. It is not safe to call twice.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop signals the worker to exit and waits for it to do so.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// ScheduleTrySign requests a near-term re-evaluation of the chain tip for
// signing, coalescing repeated requests: if one is already pending, this is
// a no-op.
func (s *Scheduler) ScheduleTrySign() {
	if s.store.trySignScheduled.CompareAndSwap(false, true) {
		s.wake()
	}
}

func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(SchedulerTickSeconds * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.store.trySignScheduled.Store(false)
			s.onTick()
		case <-s.wakeCh:
			s.store.trySignScheduled.Store(false)
			s.onTick()
		case <-s.stopCh:
			return
		}
	}
}
