package session

import (
	"context"
	"sync"
	"time"

	"github.com/agentuity/tiercache/logger"
)

// DefaultReapInterval is the sweep cadence when no override is configured.
const DefaultReapInterval = time.Minute

// Reaper periodically sweeps expired records out of a Store, decoupled from
// request-serving goroutines. It shares the store's expiry check, so a sweep
// racing a touch on the same identifier never removes a record the touch is
// concurrently extending.
type Reaper struct {
	ctx       context.Context
	cancel    context.CancelFunc
	store     Store
	interval  time.Duration
	log       logger.Logger
	now       func() time.Time
	waitGroup sync.WaitGroup
	once      sync.Once
}

// ReaperOption configures a Reaper.
type ReaperOption func(*Reaper)

// WithReapInterval sets the sweep cadence. Defaults to DefaultReapInterval
// (1 minute).
func WithReapInterval(d time.Duration) ReaperOption {
	return func(r *Reaper) { r.interval = d }
}

// WithReaperClock overrides the time source used for the expiry cutoff.
func WithReaperClock(now func() time.Time) ReaperOption {
	return func(r *Reaper) { r.now = now }
}

// NewReaper starts a background sweep loop against store. It runs until
// Close is called or parent is cancelled.
func NewReaper(parent context.Context, store Store, log logger.Logger, opts ...ReaperOption) *Reaper {
	ctx, cancel := context.WithCancel(parent)
	r := &Reaper{
		ctx:      ctx,
		cancel:   cancel,
		store:    store,
		interval: DefaultReapInterval,
		log:      log.WithPrefix("[reaper]"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.waitGroup.Add(1)
	go r.run()
	return r
}

func (r *Reaper) run() {
	defer r.waitGroup.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			removed, err := r.store.SweepExpired(r.ctx, r.now())
			if err != nil {
				r.log.Warn("sweep failed: %s", err)
				continue
			}
			if removed > 0 {
				r.log.Debug("swept %d expired session(s)", removed)
			}
		}
	}
}

// Close stops the sweep loop and waits for an in-flight sweep to finish.
func (r *Reaper) Close() {
	r.once.Do(func() {
		r.cancel()
		r.waitGroup.Wait()
	})
}
