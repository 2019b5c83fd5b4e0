package booking

import (
	"context"
	"errors"
	"time"

	"github.com/gravityfall/calendar-booking-backend/internal/availability"
	"github.com/gravityfall/calendar-booking-backend/internal/host"
	"github.com/gravityfall/calendar-booking-backend/internal/notify"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/logging"
)

// ProviderResult reports the outcome of one provider push during a sync
// fan-out. A failed provider never hides another provider's success.
type ProviderResult struct {
	Provider string `json:"provider"`
	Success  bool   `json:"success"`
	EventID  string `json:"event_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Syncer pushes local booking state to the host's connected calendars and
// records the outcome on the booking row. Implemented by the sync package.
type Syncer interface {
	PushCreate(ctx context.Context, b *Booking) ([]ProviderResult, error)
	PushUpdate(ctx context.Context, b *Booking) ([]ProviderResult, error)
	PushDelete(ctx context.Context, b *Booking) ([]ProviderResult, error)
}

// SlotRecreator re-opens the time window of a cancelled booking.
type SlotRecreator interface {
	RecreateSlot(ctx context.Context, hostID string, start, end time.Time) (*availability.Slot, error)
}

type CreateRequest struct {
	SlotID       string
	GuestName    string
	GuestEmail   string
	GuestMessage *string
}

type Service interface {
	// Create books the slot for the guest. The database write is the source
	// of truth; calendar propagation happens after commit and its failure is
	// recorded as sync debt, never surfaced as a booking failure.
	Create(ctx context.Context, req CreateRequest) (*Booking, error)
	GetByID(ctx context.Context, hostID, id string) (*Booking, error)
	List(ctx context.Context, filter Filter) ([]*Booking, int, error)
	// Cancel releases the booking's window. The row is kept for history.
	Cancel(ctx context.Context, hostID, id string) (*Booking, error)
	// Purge permanently removes a cancelled booking row.
	Purge(ctx context.Context, hostID, id string) error
	// Resync pushes the booking's current state to every connected provider.
	Resync(ctx context.Context, hostID, id string) ([]ProviderResult, error)
}

type service struct {
	repo   Repository
	hosts  host.Repository
	slots  SlotRecreator
	syncer Syncer
	sender notify.Sender
	logger *logging.Logger
}

// NewService creates a booking service. syncer may be nil when no calendar
// integration is configured.
func NewService(repo Repository, hosts host.Repository, slots SlotRecreator, syncer Syncer, sender notify.Sender, logger *logging.Logger) Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &service{
		repo:   repo,
		hosts:  hosts,
		slots:  slots,
		syncer: syncer,
		sender: sender,
		logger: logger.Named("booking"),
	}
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*Booking, error) {
	b := &Booking{
		SlotID:       req.SlotID,
		GuestName:    req.GuestName,
		GuestEmail:   req.GuestEmail,
		GuestMessage: req.GuestMessage,
	}

	// Atomic check-and-consume: exactly one of two racing requests gets the
	// slot; the other sees ErrSlotUnavailable.
	if err := s.repo.CreateConsumingSlot(ctx, b); err != nil {
		return nil, err
	}

	s.logger.Info("booking created",
		"booking_id", b.ID, "host_id", b.HostID, "slot_id", b.SlotID,
		"start", b.StartTime, "end", b.EndTime)

	if s.syncer != nil {
		if _, err := s.syncer.PushCreate(ctx, b); err != nil {
			// The booking stands regardless; the worker retries the push.
			s.logger.Warn("calendar push failed after booking create",
				"booking_id", b.ID, "error", err)
		}
		// Pick up whatever sync state the push recorded.
		if fresh, err := s.repo.GetByID(ctx, b.ID); err == nil {
			b = fresh
		}
	}

	if d, ok := s.notificationDetails(ctx, b); ok {
		if err := s.sender.SendBookingConfirmation(ctx, d); err != nil {
			s.logger.Warn("notification send failed", "booking_id", b.ID, "error", err)
		}
	}
	return b, nil
}

func (s *service) GetByID(ctx context.Context, hostID, id string) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.HostID != hostID {
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	if filter.Status != "" {
		switch Status(filter.Status) {
		case StatusConfirmed, StatusCancelled, StatusRescheduled:
		default:
			return nil, 0, ErrInvalidStatus
		}
	}
	return s.repo.List(ctx, filter)
}

func (s *service) Cancel(ctx context.Context, hostID, id string) (*Booking, error) {
	b, err := s.GetByID(ctx, hostID, id)
	if err != nil {
		return nil, err
	}
	if b.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	if err := s.repo.UpdateStatus(ctx, id, StatusCancelled); err != nil {
		return nil, err
	}
	b.Status = StatusCancelled

	// Best effort: a lingering provider event is sync debt, not a failure.
	if s.syncer != nil {
		if _, err := s.syncer.PushDelete(ctx, b); err != nil {
			s.logger.Warn("calendar delete failed after cancel",
				"booking_id", b.ID, "error", err)
		}
	}

	// Re-open the freed window. Skipped silently when another slot or
	// booking already covers it.
	if s.slots != nil {
		if _, err := s.slots.RecreateSlot(ctx, b.HostID, b.StartTime, b.EndTime); err != nil &&
			!errors.Is(err, availability.ErrOverlap) {
			s.logger.Error("slot recreation failed after cancel",
				"booking_id", b.ID, "error", err)
		}
	}

	s.logger.Info("booking cancelled", "booking_id", b.ID, "host_id", b.HostID)
	if d, ok := s.notificationDetails(ctx, b); ok {
		if err := s.sender.SendCancellation(ctx, d); err != nil {
			s.logger.Warn("notification send failed", "booking_id", b.ID, "error", err)
		}
	}
	return b, nil
}

func (s *service) Purge(ctx context.Context, hostID, id string) error {
	b, err := s.GetByID(ctx, hostID, id)
	if err != nil {
		return err
	}
	if b.Status != StatusCancelled {
		return ErrInvalidStatus
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("booking purged", "booking_id", id, "host_id", hostID)
	return nil
}

func (s *service) Resync(ctx context.Context, hostID, id string) ([]ProviderResult, error) {
	b, err := s.GetByID(ctx, hostID, id)
	if err != nil {
		return nil, err
	}
	if s.syncer == nil {
		return nil, nil
	}
	if b.Status == StatusCancelled {
		return s.syncer.PushDelete(ctx, b)
	}
	return s.syncer.PushUpdate(ctx, b)
}

func (s *service) notificationDetails(ctx context.Context, b *Booking) (notify.Details, bool) {
	if s.sender == nil {
		return notify.Details{}, false
	}
	h, err := s.hosts.GetByID(ctx, b.HostID)
	if err != nil {
		s.logger.Warn("host lookup failed for notification", "booking_id", b.ID, "error", err)
		return notify.Details{}, false
	}
	return notify.Details{
		BookingID:  b.ID,
		HostEmail:  h.Email,
		HostName:   h.Name(),
		GuestEmail: b.GuestEmail,
		GuestName:  b.GuestName,
		StartTime:  b.StartTime,
		EndTime:    b.EndTime,
	}, true
}
