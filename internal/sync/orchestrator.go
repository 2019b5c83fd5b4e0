package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gravityfall/calendar-booking-backend/internal/booking"
	"github.com/gravityfall/calendar-booking-backend/internal/calendar"
	"github.com/gravityfall/calendar-booking-backend/internal/connection"
	"github.com/gravityfall/calendar-booking-backend/internal/host"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/logging"
)

// Orchestrator fans booking changes out to every active calendar connection
// of the booking's host and records the outcome on the booking row. It is the
// sole writer of the booking sync fields.
type Orchestrator struct {
	bookings booking.Repository
	conns    connection.Repository
	tokens   *connection.TokenService
	hosts    host.Repository
	factory  *calendar.Factory
	cfg      Config
	logger   *logging.Logger
}

// Config carries the provider build knobs the orchestrator passes through.
type Config struct {
	ProviderTimeout time.Duration
}

func NewOrchestrator(
	bookings booking.Repository,
	conns connection.Repository,
	tokens *connection.TokenService,
	hosts host.Repository,
	factory *calendar.Factory,
	cfg Config,
	logger *logging.Logger,
) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		bookings: bookings,
		conns:    conns,
		tokens:   tokens,
		hosts:    hosts,
		factory:  factory,
		cfg:      cfg,
		logger:   logger.Named("sync"),
	}
}

// PushCreate propagates a new booking. When the booking already carries a
// provider event ID the push degrades to an update, so retries after a
// partial failure never duplicate events.
func (o *Orchestrator) PushCreate(ctx context.Context, b *booking.Booking) ([]booking.ProviderResult, error) {
	return o.pushUpsert(ctx, b)
}

// PushUpdate propagates changed times or details of an existing booking.
// A booking that was never pushed gets its event created here.
func (o *Orchestrator) PushUpdate(ctx context.Context, b *booking.Booking) ([]booking.ProviderResult, error) {
	return o.pushUpsert(ctx, b)
}

func (o *Orchestrator) pushUpsert(ctx context.Context, b *booking.Booking) ([]booking.ProviderResult, error) {
	conns, err := o.conns.ListActive(ctx, b.HostID)
	if err != nil {
		return nil, err
	}
	if len(conns) == 0 {
		// No connections means nothing to sync. The booking stays pending
		// without burning a retry attempt; the retry selection skips hosts
		// without an active connection, so the row waits outside the queue
		// until a calendar is connected.
		return nil, nil
	}

	payload := o.eventPayload(ctx, b)

	results := make([]booking.ProviderResult, 0, len(conns))
	var createdEventID string

	for _, conn := range conns {
		res := booking.ProviderResult{Provider: string(conn.Provider)}

		provider, err := o.buildProvider(ctx, conn)
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}

		if b.ExternalEventID != nil && *b.ExternalEventID != "" {
			if err := provider.UpdateEvent(ctx, *b.ExternalEventID, payload); err != nil {
				res.Error = err.Error()
			} else {
				res.Success = true
				res.EventID = *b.ExternalEventID
			}
		} else {
			eventID, err := provider.CreateEvent(ctx, payload)
			if err != nil {
				res.Error = err.Error()
			} else {
				res.Success = true
				res.EventID = eventID
				if createdEventID == "" {
					createdEventID = eventID
				}
			}
		}

		results = append(results, res)
	}

	return results, o.record(ctx, b, results, createdEventID)
}

// PushDelete removes the booking's provider events. Providers treat a
// missing event as already deleted.
func (o *Orchestrator) PushDelete(ctx context.Context, b *booking.Booking) ([]booking.ProviderResult, error) {
	if b.ExternalEventID == nil || *b.ExternalEventID == "" {
		// Nothing ever reached a provider; settle the debt immediately.
		return nil, o.bookings.MarkSynced(ctx, b.ID, "")
	}

	conns, err := o.conns.ListActive(ctx, b.HostID)
	if err != nil {
		return nil, err
	}
	if len(conns) == 0 {
		return nil, nil
	}

	results := make([]booking.ProviderResult, 0, len(conns))
	for _, conn := range conns {
		res := booking.ProviderResult{Provider: string(conn.Provider)}

		provider, err := o.buildProvider(ctx, conn)
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}

		if err := provider.DeleteEvent(ctx, *b.ExternalEventID); err != nil {
			res.Error = err.Error()
		} else {
			res.Success = true
		}
		results = append(results, res)
	}

	return results, o.record(ctx, b, results, "")
}

// record translates fan-out results into the booking's sync bookkeeping.
// A single failed provider marks the whole booking failed so the worker
// retries; successful providers are shielded from duplicates by the
// create-degrades-to-update rule.
func (o *Orchestrator) record(ctx context.Context, b *booking.Booking, results []booking.ProviderResult, createdEventID string) error {
	var failures []string
	for _, r := range results {
		if !r.Success {
			failures = append(failures, fmt.Sprintf("%s: %s", r.Provider, r.Error))
		}
	}

	if len(failures) > 0 {
		msg := strings.Join(failures, "; ")
		o.logger.Warn("calendar push partially failed",
			"booking_id", b.ID, "host_id", b.HostID, "errors", msg)
		return o.bookings.MarkSyncFailed(ctx, b.ID, msg)
	}

	o.logger.Info("calendar push succeeded",
		"booking_id", b.ID, "host_id", b.HostID, "providers", len(results))
	return o.bookings.MarkSynced(ctx, b.ID, createdEventID)
}

func (o *Orchestrator) buildProvider(ctx context.Context, conn *connection.Connection) (calendar.Provider, error) {
	return o.factory.New(ctx, conn.Provider, calendar.BuildConfig{
		TokenSource: o.tokens.TokenSource(ctx, conn.HostID, conn.Provider),
		Timeout:     o.cfg.ProviderTimeout,
		Logger:      o.logger,
	})
}

func (o *Orchestrator) eventPayload(ctx context.Context, b *booking.Booking) calendar.EventPayload {
	tz := "UTC"
	if h, err := o.hosts.GetByID(ctx, b.HostID); err == nil && h.Timezone != "" {
		tz = h.Timezone
	}

	desc := fmt.Sprintf("Guest: %s <%s>", b.GuestName, b.GuestEmail)
	if b.GuestMessage != nil && *b.GuestMessage != "" {
		desc += "\n\n" + *b.GuestMessage
	}

	return calendar.EventPayload{
		Summary:     fmt.Sprintf("Booking: %s", b.GuestName),
		Description: desc,
		Start:       b.StartTime,
		End:         b.EndTime,
		Timezone:    tz,
	}
}
