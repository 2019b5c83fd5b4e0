package availability

import (
	"context"
	"errors"
	"time"

	"github.com/gravityfall/calendar-booking-backend/internal/host"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/logging"
	"github.com/gravityfall/calendar-booking-backend/internal/timeutil"
)

// CalendarGateway is the slice of the sync layer the availability store needs
// for busy-placeholder parity with the host's connected calendar.
type CalendarGateway interface {
	Connected(ctx context.Context, hostID string) (bool, error)
	// CreateBusyEvent creates the placeholder and returns its provider event ID.
	CreateBusyEvent(ctx context.Context, hostID string, r timeutil.Range) (string, error)
	DeleteEvent(ctx context.Context, hostID string, eventID string) error
}

// BookingGuard is the slice of the booking store used for overlap rejection.
type BookingGuard interface {
	HasActiveOverlap(ctx context.Context, hostID string, start, end time.Time, excludeBookingID string) (bool, error)
}

type CreateSlotRequest struct {
	HostID    string
	StartTime time.Time
	EndTime   time.Time
}

type Service interface {
	CreateSlot(ctx context.Context, req CreateSlotRequest) (*Slot, error)
	ListAvailable(ctx context.Context, hostID string, forDate *time.Time) ([]*Slot, error)
	ListForHost(ctx context.Context, hostID string, includeUnavailable bool) ([]*Slot, error)
	GetByID(ctx context.Context, hostID, slotID string) (*Slot, error)
	DeleteSlot(ctx context.Context, hostID, slotID string) error
	// RecreateSlot re-opens a time window freed by a cancellation. Unlike
	// CreateSlot it never fails closed on the calendar: the compensating slot
	// must exist regardless of provider state.
	RecreateSlot(ctx context.Context, hostID string, start, end time.Time) (*Slot, error)
}

type service struct {
	repo     Repository
	hosts    host.Repository
	bookings BookingGuard
	gateway  CalendarGateway
	logger   *logging.Logger
}

// NewService creates an availability service. gateway may be nil when no
// calendar integration is configured.
func NewService(repo Repository, hosts host.Repository, bookings BookingGuard, gateway CalendarGateway, logger *logging.Logger) Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &service{
		repo:     repo,
		hosts:    hosts,
		bookings: bookings,
		gateway:  gateway,
		logger:   logger.Named("availability"),
	}
}

func (s *service) CreateSlot(ctx context.Context, req CreateSlotRequest) (*Slot, error) {
	rng, err := timeutil.NewRange(req.StartTime, req.EndTime)
	if err != nil {
		return nil, ErrInvalidTimeRange
	}
	if rng.Start.Before(time.Now().UTC()) {
		return nil, ErrStartTimePast
	}

	if _, err := s.hosts.GetByID(ctx, req.HostID); err != nil {
		return nil, err
	}

	// The interval test is timezone-independent; no two available slots of a
	// host may overlap, and a confirmed booking blocks the range too.
	hasSlot, err := s.repo.HasOverlap(ctx, req.HostID, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}
	if hasSlot {
		return nil, ErrOverlap
	}

	hasBooking, err := s.bookings.HasActiveOverlap(ctx, req.HostID, rng.Start, rng.End, "")
	if err != nil {
		return nil, err
	}
	if hasBooking {
		return nil, ErrOverlap
	}

	slot := &Slot{
		HostID:      req.HostID,
		StartTime:   rng.Start,
		EndTime:     rng.End,
		IsAvailable: true,
	}
	if err := s.repo.Create(ctx, slot); err != nil {
		return nil, err
	}

	// Calendar parity is fail-closed: if the busy placeholder cannot be
	// created while a connection is active, the local slot must not survive.
	if s.gateway != nil {
		connected, err := s.gateway.Connected(ctx, req.HostID)
		if err != nil {
			s.rollbackSlot(ctx, slot)
			return nil, err
		}
		if connected {
			eventID, err := s.gateway.CreateBusyEvent(ctx, req.HostID, rng)
			if err != nil {
				s.logger.Warn("busy event creation failed, rolling back slot",
					"host_id", req.HostID, "slot_id", slot.ID, "error", err)
				s.rollbackSlot(ctx, slot)
				return nil, ErrCalendarUnavailable
			}
			if err := s.repo.SetExternalEventID(ctx, slot.ID, &eventID); err != nil {
				// Without the linkage the slot and the busy event can never
				// be reconciled; undo both sides.
				s.logger.Warn("event linkage failed, rolling back slot",
					"host_id", req.HostID, "slot_id", slot.ID, "error", err)
				s.rollbackSlot(ctx, slot)
				if derr := s.gateway.DeleteEvent(ctx, req.HostID, eventID); derr != nil {
					s.logger.Error("failed to remove orphaned busy event",
						"host_id", req.HostID, "event_id", eventID, "error", derr)
				}
				return nil, err
			}
			slot.ExternalEventID = &eventID
		}
	}

	s.logger.Info("availability slot created",
		"host_id", req.HostID, "slot_id", slot.ID,
		"start", slot.StartTime, "end", slot.EndTime)
	return slot, nil
}

func (s *service) rollbackSlot(ctx context.Context, slot *Slot) {
	if err := s.repo.Delete(ctx, slot.ID); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Error("failed to roll back slot", "slot_id", slot.ID, "error", err)
	}
}

func (s *service) ListAvailable(ctx context.Context, hostID string, forDate *time.Time) ([]*Slot, error) {
	var window *timeutil.Range
	if forDate != nil {
		h, err := s.hosts.GetByID(ctx, hostID)
		if err != nil {
			return nil, err
		}
		// Date filtering buckets by the host's local calendar day.
		w, err := timeutil.DayWindow(*forDate, h.Timezone)
		if err != nil {
			return nil, err
		}
		window = &w
	}
	return s.repo.ListAvailable(ctx, hostID, window)
}

func (s *service) ListForHost(ctx context.Context, hostID string, includeUnavailable bool) ([]*Slot, error) {
	return s.repo.List(ctx, hostID, includeUnavailable)
}

func (s *service) GetByID(ctx context.Context, hostID, slotID string) (*Slot, error) {
	slot, err := s.repo.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.HostID != hostID {
		return nil, ErrNotFound
	}
	return slot, nil
}

func (s *service) DeleteSlot(ctx context.Context, hostID, slotID string) error {
	slot, err := s.GetByID(ctx, hostID, slotID)
	if err != nil {
		return err
	}

	// Slots are provenance for bookings; any referencing booking, whatever
	// its status, blocks deletion.
	hasBooking, err := s.repo.HasBooking(ctx, slotID)
	if err != nil {
		return err
	}
	if hasBooking {
		return ErrHasBooking
	}

	if err := s.repo.Delete(ctx, slotID); err != nil {
		return err
	}

	// The slot is gone either way; a dangling busy block in the provider is
	// the acceptable failure mode here, not a phantom local slot.
	if s.gateway != nil && slot.ExternalEventID != nil {
		if err := s.gateway.DeleteEvent(ctx, hostID, *slot.ExternalEventID); err != nil {
			s.logger.Warn("failed to delete busy event for removed slot",
				"host_id", hostID, "slot_id", slotID, "event_id", *slot.ExternalEventID, "error", err)
		}
	}

	s.logger.Info("availability slot deleted", "host_id", hostID, "slot_id", slotID)
	return nil
}

func (s *service) RecreateSlot(ctx context.Context, hostID string, start, end time.Time) (*Slot, error) {
	rng, err := timeutil.NewRange(start, end)
	if err != nil {
		return nil, ErrInvalidTimeRange
	}

	// If the window is occupied again (e.g. a new booking already covers it),
	// skip recreation rather than violating the no-overlap invariant.
	hasSlot, err := s.repo.HasOverlap(ctx, hostID, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}
	hasBooking, err := s.bookings.HasActiveOverlap(ctx, hostID, rng.Start, rng.End, "")
	if err != nil {
		return nil, err
	}
	if hasSlot || hasBooking {
		s.logger.Info("skipping slot recreation, window occupied", "host_id", hostID, "start", rng.Start)
		return nil, ErrOverlap
	}

	slot := &Slot{
		HostID:      hostID,
		StartTime:   rng.Start,
		EndTime:     rng.End,
		IsAvailable: true,
	}
	if err := s.repo.Create(ctx, slot); err != nil {
		return nil, err
	}

	s.logger.Info("availability slot recreated", "host_id", hostID, "slot_id", slot.ID, "start", rng.Start)
	return slot, nil
}
