package services

import (
	"context"
	"sync"
	"time"
)

const (
	defaultPendingPaymentTimeout = 3 * time.Minute
	defaultPaymentSweepInterval  = time.Minute
	reaperExpireTimeout          = 10 * time.Second
)

// PaymentSweeper removes pending payments older than a window.
type PaymentSweeper interface {
	ExpireStale(ctx context.Context, olderThan time.Duration) (int, error)
}

type reaperTimer interface {
	Stop() bool
}

// PendingPaymentReaperConfig tunes the reaper. Zero values fall back to defaults.
type PendingPaymentReaperConfig struct {
	Timeout       time.Duration
	SweepInterval time.Duration
	Logger        func(ctx context.Context, event string, fields map[string]any)

	afterFunc func(time.Duration, func()) reaperTimer
}

// PendingPaymentReaper deletes payments that stay pending past the timeout. Each payment gets an
// in-process timer; Run adds a periodic sweep so payments survive instance restarts.
type PendingPaymentReaper struct {
	timeout   time.Duration
	interval  time.Duration
	logger    func(context.Context, string, map[string]any)
	afterFunc func(time.Duration, func()) reaperTimer

	mu      sync.Mutex
	timers  map[string]reaperTimer
	stopped bool
	wg      sync.WaitGroup
}

// NewPendingPaymentReaper constructs a reaper with the supplied configuration.
func NewPendingPaymentReaper(cfg PendingPaymentReaperConfig) *PendingPaymentReaper {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultPendingPaymentTimeout
	}
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = defaultPaymentSweepInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	afterFunc := cfg.afterFunc
	if afterFunc == nil {
		afterFunc = func(d time.Duration, fn func()) reaperTimer {
			return time.AfterFunc(d, fn)
		}
	}
	return &PendingPaymentReaper{
		timeout:   timeout,
		interval:  interval,
		logger:    logger,
		afterFunc: afterFunc,
		timers:    make(map[string]reaperTimer),
	}
}

// Timeout reports how long a payment may stay pending.
func (r *PendingPaymentReaper) Timeout() time.Duration {
	return r.timeout
}

// Schedule arms a timer that calls expire once the timeout elapses. Re-scheduling replaces the
// previous timer for the same payment.
func (r *PendingPaymentReaper) Schedule(paymentID string, expire func(context.Context) error) {
	if paymentID == "" || expire == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if existing, ok := r.timers[paymentID]; ok {
		existing.Stop()
	}

	var timer reaperTimer
	timer = r.afterFunc(r.timeout, func() {
		r.mu.Lock()
		current, ok := r.timers[paymentID]
		if !ok || current != timer {
			r.mu.Unlock()
			return
		}
		delete(r.timers, paymentID)
		r.wg.Add(1)
		r.mu.Unlock()
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), reaperExpireTimeout)
		defer cancel()
		if err := expire(ctx); err != nil {
			r.logger(ctx, "payment.reaper.expire.failed", map[string]any{
				"payment": paymentID,
				"error":   err.Error(),
			})
		}
	})
	r.timers[paymentID] = timer
}

// Cancel disarms the timer for the payment, if any.
func (r *PendingPaymentReaper) Cancel(paymentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if timer, ok := r.timers[paymentID]; ok {
		timer.Stop()
		delete(r.timers, paymentID)
	}
}

// Pending reports how many timers are armed.
func (r *PendingPaymentReaper) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Stop disarms every timer and waits for in-flight expirations. Later Schedule calls are ignored.
func (r *PendingPaymentReaper) Stop() {
	r.mu.Lock()
	r.stopped = true
	for id, timer := range r.timers {
		timer.Stop()
		delete(r.timers, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// Run sweeps stale payments every interval until ctx is cancelled. A sweep runs immediately so
// payments orphaned by a previous instance are collected on startup.
func (r *PendingPaymentReaper) Run(ctx context.Context, sweeper PaymentSweeper) error {
	if sweeper == nil {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweep(ctx, sweeper)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.sweep(ctx, sweeper)
		}
	}
}

func (r *PendingPaymentReaper) sweep(ctx context.Context, sweeper PaymentSweeper) {
	expired, err := sweeper.ExpireStale(ctx, r.timeout)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger(ctx, "payment.reaper.sweep.failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	if expired > 0 {
		r.logger(ctx, "payment.reaper.sweep", map[string]any{
			"expired": expired,
		})
	}
}
