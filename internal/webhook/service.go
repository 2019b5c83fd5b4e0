package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/gravityfall/calendar-booking-backend/internal/availability"
	"github.com/gravityfall/calendar-booking-backend/internal/booking"
	"github.com/gravityfall/calendar-booking-backend/internal/calendar"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/logging"
)

// Service ingests provider change notifications and reconciles them against
// local bookings. The database remains the source of truth for availability;
// inbound changes only flow into bookings per the configured conflict mode,
// except cancellations, which always win.
type Service interface {
	// VerifySignature checks the HMAC-SHA256 hex signature over the raw
	// body. An empty configured secret disables verification.
	VerifySignature(body []byte, signature string) error
	Process(ctx context.Context, provider calendar.Type, p Payload) (*Outcome, error)
}

type service struct {
	bookings booking.Repository
	slots    booking.SlotRecreator
	secret   string
	mode     ConflictMode
	logger   *logging.Logger
}

func NewService(bookings booking.Repository, slots booking.SlotRecreator, secret string, mode ConflictMode, logger *logging.Logger) Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &service{
		bookings: bookings,
		slots:    slots,
		secret:   secret,
		mode:     mode,
		logger:   logger.Named("webhook"),
	}
}

func (s *service) VerifySignature(body []byte, signature string) error {
	if s.secret == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

func (s *service) Process(ctx context.Context, provider calendar.Type, p Payload) (*Outcome, error) {
	if p.Resource.ID == "" {
		return nil, ErrInvalidPayload
	}

	b, err := s.bookings.GetByExternalEventID(ctx, p.Resource.ID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			// Events we never created (or busy placeholders) are not ours
			// to reconcile. Acknowledge so the provider stops retrying.
			return &Outcome{Action: "ignored", Message: "no matching booking"}, nil
		}
		return nil, err
	}

	if p.Resource.Status == "cancelled" {
		return s.applyCancellation(ctx, provider, b)
	}

	start, end, err := parseEventTimes(p.Resource)
	if err != nil {
		return nil, ErrInvalidPayload
	}

	if start.Equal(b.StartTime) && end.Equal(b.EndTime) {
		return &Outcome{Action: "acknowledged", BookingID: b.ID}, nil
	}

	return s.applyTimeChange(ctx, provider, b, start, end)
}

// applyCancellation is mode-independent: a deletion on either side always
// deletes, so a provider-side cancel lands locally and frees the window.
func (s *service) applyCancellation(ctx context.Context, provider calendar.Type, b *booking.Booking) (*Outcome, error) {
	if b.Status == booking.StatusCancelled {
		return &Outcome{Action: "acknowledged", BookingID: b.ID}, nil
	}

	if err := s.bookings.UpdateStatus(ctx, b.ID, booking.StatusCancelled); err != nil {
		return nil, err
	}

	if s.slots != nil {
		if _, err := s.slots.RecreateSlot(ctx, b.HostID, b.StartTime, b.EndTime); err != nil &&
			!errors.Is(err, availability.ErrOverlap) {
			s.logger.Error("slot recreation failed after provider cancel",
				"booking_id", b.ID, "error", err)
		}
	}

	s.logger.Info("booking cancelled by provider",
		"booking_id", b.ID, "provider", provider)
	return &Outcome{Action: "cancelled", BookingID: b.ID}, nil
}

func (s *service) applyTimeChange(ctx context.Context, provider calendar.Type, b *booking.Booking, start, end time.Time) (*Outcome, error) {
	note := fmt.Sprintf("provider %s reports %s/%s, local is %s/%s",
		provider,
		start.Format(time.RFC3339), end.Format(time.RFC3339),
		b.StartTime.Format(time.RFC3339), b.EndTime.Format(time.RFC3339))

	switch s.mode {
	case ProviderWins:
		b.StartTime = start
		b.EndTime = end
		if err := s.bookings.UpdateDetails(ctx, b); err != nil {
			return nil, err
		}
		// Local now mirrors the provider; settle the sync state so the
		// worker does not push the same values back.
		if err := s.bookings.MarkSynced(ctx, b.ID, ""); err != nil {
			return nil, err
		}
		s.logger.Info("booking updated from provider", "booking_id", b.ID, "provider", provider)
		return &Outcome{Action: "updated", BookingID: b.ID}, nil

	case DatabaseWins:
		// Local values stand. The divergence is recorded on the row but does
		// not overwrite anything and does not trigger a push-back.
		if err := s.bookings.RecordSyncNote(ctx, b.ID, note); err != nil {
			return nil, err
		}
		s.logger.Info("provider change noted, local state kept",
			"booking_id", b.ID, "provider", provider, "detail", note)
		return &Outcome{Action: "noted", BookingID: b.ID, Message: note}, nil

	default: // Manual
		if err := s.bookings.MarkSyncConflict(ctx, b.ID, note); err != nil {
			return nil, err
		}
		s.logger.Warn("sync conflict flagged for manual resolution",
			"booking_id", b.ID, "provider", provider, "detail", note)
		return &Outcome{Action: "conflict", BookingID: b.ID, Message: note}, nil
	}
}

func parseEventTimes(r Resource) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, r.Start.DateTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse(time.RFC3339, r.End.DateTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, errors.New("end not after start")
	}
	return start.UTC(), end.UTC(), nil
}
