package reschedule

import (
	"context"
	"net/http"
	"time"

	"github.com/gravityfall/calendar-booking-backend/internal/booking"
	"github.com/gravityfall/calendar-booking-backend/internal/host"
	"github.com/gravityfall/calendar-booking-backend/internal/notify"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/apperror"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/logging"
	"github.com/gravityfall/calendar-booking-backend/internal/timeutil"
)

var (
	ErrNotEligible  = apperror.New(http.StatusConflict, "cancelled bookings cannot be rescheduled")
	ErrTimeConflict = apperror.New(http.StatusConflict, "new time range conflicts with another booking")
	ErrInvalidRange = apperror.New(http.StatusBadRequest, "start time must be before end time")
	ErrStartInPast  = apperror.New(http.StatusBadRequest, "new start time must be in the future")
)

type Request struct {
	BookingID string
	HostID    string
	StartTime time.Time
	EndTime   time.Time
	Reason    string
}

// Service moves an existing booking to a new time window, keeping the row's
// identity and its provider event. The local move always lands; the calendar
// update may trail behind as sync debt.
type Service interface {
	Reschedule(ctx context.Context, req Request) (*booking.Booking, error)
}

type service struct {
	bookings booking.Repository
	hosts    host.Repository
	syncer   booking.Syncer
	sender   notify.Sender
	logger   *logging.Logger
}

func NewService(bookings booking.Repository, hosts host.Repository, syncer booking.Syncer, sender notify.Sender, logger *logging.Logger) Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &service{
		bookings: bookings,
		hosts:    hosts,
		syncer:   syncer,
		sender:   sender,
		logger:   logger.Named("reschedule"),
	}
}

func (s *service) Reschedule(ctx context.Context, req Request) (*booking.Booking, error) {
	rng, err := timeutil.NewRange(req.StartTime, req.EndTime)
	if err != nil {
		return nil, ErrInvalidRange
	}
	if rng.Start.Before(time.Now().UTC()) {
		return nil, ErrStartInPast
	}

	b, err := s.bookings.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if b.HostID != req.HostID {
		return nil, booking.ErrNotFound
	}
	if b.Status == booking.StatusCancelled {
		return nil, ErrNotEligible
	}

	// The booking may move into its own current window; only other active
	// bookings block the target range.
	conflict, err := s.bookings.HasActiveOverlap(ctx, b.HostID, rng.Start, rng.End, b.ID)
	if err != nil {
		return nil, err
	}
	if conflict {
		return nil, ErrTimeConflict
	}

	oldStart := b.StartTime
	b.StartTime = rng.Start
	b.EndTime = rng.End
	b.Status = booking.StatusRescheduled

	if err := s.bookings.UpdateDetails(ctx, b); err != nil {
		return nil, err
	}
	// Flag the move as sync debt before touching the provider; a successful
	// push settles it, anything else leaves the worker a retryable row.
	if err := s.bookings.MarkSyncPending(ctx, b.ID); err != nil {
		s.logger.Warn("sync flag update failed after reschedule", "booking_id", b.ID, "error", err)
	}

	s.logger.Info("booking rescheduled",
		"booking_id", b.ID, "host_id", b.HostID,
		"old_start", oldStart, "new_start", b.StartTime,
		"reason", req.Reason)

	// Calendar propagation is asynchronous in spirit: a failed push leaves
	// the local move intact and the worker retries.
	if s.syncer != nil {
		if _, err := s.syncer.PushUpdate(ctx, b); err != nil {
			s.logger.Warn("calendar push failed after reschedule",
				"booking_id", b.ID, "error", err)
		}
		if fresh, err := s.bookings.GetByID(ctx, b.ID); err == nil {
			b = fresh
		}
	}

	s.notifyRescheduled(ctx, b, oldStart)
	return b, nil
}

func (s *service) notifyRescheduled(ctx context.Context, b *booking.Booking, oldStart time.Time) {
	if s.sender == nil {
		return
	}
	h, err := s.hosts.GetByID(ctx, b.HostID)
	if err != nil {
		s.logger.Warn("host lookup failed for notification", "booking_id", b.ID, "error", err)
		return
	}
	d := notify.Details{
		BookingID:    b.ID,
		HostEmail:    h.Email,
		HostName:     h.Name(),
		GuestEmail:   b.GuestEmail,
		GuestName:    b.GuestName,
		StartTime:    b.StartTime,
		EndTime:      b.EndTime,
		OldStartTime: &oldStart,
	}
	if err := s.sender.SendReschedule(ctx, d); err != nil {
		s.logger.Warn("notification send failed", "booking_id", b.ID, "error", err)
	}
}
