package notify

import (
	"context"
	"time"

	"github.com/gravityfall/calendar-booking-backend/internal/pkg/logging"
)

// Details carries everything a sender needs to render a message. Both the
// guest and the host copies are built from the same payload.
type Details struct {
	BookingID  string
	HostEmail  string
	HostName   string
	GuestEmail string
	GuestName  string
	StartTime  time.Time
	EndTime    time.Time
	// OldStartTime is set for reschedules only.
	OldStartTime *time.Time
}

// Sender delivers booking lifecycle notifications. Delivery is best effort;
// callers never fail their operation on a send error.
type Sender interface {
	SendBookingConfirmation(ctx context.Context, d Details) error
	SendCancellation(ctx context.Context, d Details) error
	SendReschedule(ctx context.Context, d Details) error
}

// LogSender writes notifications to the structured log instead of an outbound
// channel. It stands in wherever a real mail integration is not configured.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger.Named("notify")}
}

func (s *LogSender) SendBookingConfirmation(_ context.Context, d Details) error {
	s.log("booking_confirmed", d)
	return nil
}

func (s *LogSender) SendCancellation(_ context.Context, d Details) error {
	s.log("booking_cancelled", d)
	return nil
}

func (s *LogSender) SendReschedule(_ context.Context, d Details) error {
	s.log("booking_rescheduled", d)
	return nil
}

func (s *LogSender) log(event string, d Details) {
	attrs := []any{
		"event", event,
		"booking_id", d.BookingID,
		"host_email", d.HostEmail,
		"guest_email", d.GuestEmail,
		"start", d.StartTime,
		"end", d.EndTime,
	}
	if d.OldStartTime != nil {
		attrs = append(attrs, "old_start", *d.OldStartTime)
	}
	s.logger.Info("notification", attrs...)
}
