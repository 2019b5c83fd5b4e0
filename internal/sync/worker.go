package sync

import (
	"context"
	"time"

	"github.com/gravityfall/calendar-booking-backend/internal/booking"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/logging"
)

// WorkerConfig tunes the retry loop.
type WorkerConfig struct {
	Interval       time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	// RetryWindow also selects already-synced bookings whose local state
	// changed after the last push, within this window.
	RetryWindow time.Duration
}

type bookingSource interface {
	ListNeedingSync(ctx context.Context, q booking.SyncQuery) ([]*booking.Booking, error)
}

type pusher interface {
	PushUpdate(ctx context.Context, b *booking.Booking) ([]booking.ProviderResult, error)
	PushDelete(ctx context.Context, b *booking.Booking) ([]booking.ProviderResult, error)
}

type pendingCleaner interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// Worker periodically drains sync debt: bookings whose calendar push failed
// or never happened, and bookings changed since their last successful push.
// It also sweeps expired pending connections each cycle.
type Worker struct {
	bookings bookingSource
	pusher   pusher
	cleaner  pendingCleaner
	cfg      WorkerConfig
	logger   *logging.Logger
	now      func() time.Time
}

func NewWorker(bookings bookingSource, p pusher, cleaner pendingCleaner, cfg WorkerConfig, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		bookings: bookings,
		pusher:   p,
		cleaner:  cleaner,
		cfg:      cfg,
		logger:   logger.Named("sync.worker"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is cancelled, executing one cycle per interval.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("sync worker started",
		"interval", w.cfg.Interval, "batch_size", w.cfg.BatchSize, "max_attempts", w.cfg.MaxAttempts)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sync worker stopped")
			return
		case <-ticker.C:
			w.RunCycle(ctx)
		}
	}
}

// RunCycle performs one sweep. Exported so a manual trigger or test can run
// a cycle without the ticker.
func (w *Worker) RunCycle(ctx context.Context) {
	if w.cleaner != nil {
		if n, err := w.cleaner.CleanupExpired(ctx); err != nil {
			w.logger.Warn("pending connection cleanup failed", "error", err)
		} else if n > 0 {
			w.logger.Info("expired pending connections removed", "count", n)
		}
	}

	candidates, err := w.bookings.ListNeedingSync(ctx, booking.SyncQuery{
		MaxAttempts:   w.cfg.MaxAttempts,
		UpdatedWithin: w.cfg.RetryWindow,
		Limit:         w.cfg.BatchSize,
	})
	if err != nil {
		w.logger.Error("listing bookings needing sync failed", "error", err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	w.logger.Info("sync cycle started", "candidates", len(candidates))

	var pushed, skipped int
	for _, b := range candidates {
		if ctx.Err() != nil {
			return
		}
		if !w.attemptDue(b) {
			skipped++
			continue
		}

		if _, err := w.dispatch(ctx, b); err != nil {
			// dispatch errors are infrastructure failures (the push itself
			// records per-provider outcomes on the booking row).
			w.logger.Error("sync dispatch failed", "booking_id", b.ID, "error", err)
			continue
		}
		pushed++
	}

	w.logger.Info("sync cycle finished", "pushed", pushed, "skipped", skipped)
}

// attemptDue applies exponential backoff between retries, anchored on the
// booking's last state change. The delay doubles per attempt and is capped
// at one worker interval, so a booking is retried at most once per cycle and
// never starves.
func (w *Worker) attemptDue(b *booking.Booking) bool {
	if b.SyncAttempts == 0 {
		return true
	}
	delay := w.cfg.RetryBaseDelay << (b.SyncAttempts - 1)
	if delay > w.cfg.Interval {
		delay = w.cfg.Interval
	}
	return !w.now().Before(b.UpdatedAt.Add(delay))
}

func (w *Worker) dispatch(ctx context.Context, b *booking.Booking) ([]booking.ProviderResult, error) {
	if b.Status == booking.StatusCancelled {
		return w.pusher.PushDelete(ctx, b)
	}
	return w.pusher.PushUpdate(ctx, b)
}
