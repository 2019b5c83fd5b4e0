package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/gravityfall/calendar-booking-backend/internal/calendar"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/logging"
)

const defaultCalendarID = "primary"

// Provider implements calendar.Provider on top of the Google Calendar API.
type Provider struct {
	service    *gcal.Service
	calendarID string
	timeout    time.Duration
	logger     *logging.Logger
}

// New creates a Google Calendar provider using the connection's token source.
func New(ctx context.Context, cfg calendar.BuildConfig) (calendar.Provider, error) {
	if cfg.TokenSource == nil {
		return nil, fmt.Errorf("google calendar: token source required")
	}

	service, err := gcal.NewService(ctx, option.WithTokenSource(cfg.TokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = defaultCalendarID
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Provider{
		service:    service,
		calendarID: calendarID,
		timeout:    timeout,
		logger:     logger.Named("calendar.google"),
	}, nil
}

func (p *Provider) Type() calendar.Type {
	return calendar.TypeGoogle
}

func (p *Provider) CreateEvent(ctx context.Context, payload calendar.EventPayload) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	created, err := p.service.Events.Insert(p.calendarID, toGoogleEvent(payload)).
		Context(ctx).
		Do()
	if err != nil {
		return "", wrapAPIError("create event", err)
	}

	p.logger.Debug("created google event", "event_id", created.Id)
	return created.Id, nil
}

func (p *Provider) UpdateEvent(ctx context.Context, eventID string, payload calendar.EventPayload) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.service.Events.Update(p.calendarID, eventID, toGoogleEvent(payload)).
		Context(ctx).
		Do()
	if err != nil {
		if isNotFound(err) {
			return calendar.ErrEventNotFound
		}
		return wrapAPIError("update event", err)
	}
	return nil
}

func (p *Provider) DeleteEvent(ctx context.Context, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.service.Events.Delete(p.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		// Deleting an already-deleted event is a success for our purposes.
		if isNotFound(err) {
			p.logger.Debug("google event already gone", "event_id", eventID)
			return nil
		}
		return wrapAPIError("delete event", err)
	}
	return nil
}

func (p *Provider) GetEvent(ctx context.Context, eventID string) (*calendar.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ev, err := p.service.Events.Get(p.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, calendar.ErrEventNotFound
		}
		return nil, wrapAPIError("get event", err)
	}
	return fromGoogleEvent(ev), nil
}

func (p *Provider) ListEvents(ctx context.Context, start, end time.Time) ([]*calendar.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.service.Events.List(p.calendarID).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(start.UTC().Format(time.RFC3339)).
		TimeMax(end.UTC().Format(time.RFC3339)).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapAPIError("list events", err)
	}

	events := make([]*calendar.Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		// Skip all-day events; the engine deals in timed slots only.
		if item.Start == nil || item.Start.DateTime == "" {
			continue
		}
		events = append(events, fromGoogleEvent(item))
	}
	return events, nil
}

func (p *Provider) CheckFreeBusy(ctx context.Context, start, end time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.service.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: start.UTC().Format(time.RFC3339),
		TimeMax: end.UTC().Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: p.calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return false, wrapAPIError("freebusy query", err)
	}

	cal, ok := resp.Calendars[p.calendarID]
	if !ok {
		return false, fmt.Errorf("freebusy response missing calendar %s", p.calendarID)
	}
	return len(cal.Busy) == 0, nil
}

func toGoogleEvent(p calendar.EventPayload) *gcal.Event {
	tz := p.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return &gcal.Event{
		Summary:     p.Summary,
		Description: p.Description,
		Start: &gcal.EventDateTime{
			DateTime: p.Start.UTC().Format(time.RFC3339),
			TimeZone: tz,
		},
		End: &gcal.EventDateTime{
			DateTime: p.End.UTC().Format(time.RFC3339),
			TimeZone: tz,
		},
		// Mark the event as busy so free/busy lookups see the block.
		Transparency: "opaque",
	}
}

func fromGoogleEvent(ev *gcal.Event) *calendar.Event {
	var start, end time.Time
	if ev.Start != nil && ev.Start.DateTime != "" {
		start, _ = time.Parse(time.RFC3339, ev.Start.DateTime)
	}
	if ev.End != nil && ev.End.DateTime != "" {
		end, _ = time.Parse(time.RFC3339, ev.End.DateTime)
	}

	status := calendar.EventStatusConfirmed
	if ev.Status == "cancelled" {
		status = calendar.EventStatusCancelled
	}

	return &calendar.Event{
		ProviderEventID: ev.Id,
		Status:          status,
		Payload: calendar.EventPayload{
			Summary:     ev.Summary,
			Description: ev.Description,
			Start:       start.UTC(),
			End:         end.UTC(),
			Timezone:    "UTC",
		},
	}
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}

func wrapAPIError(op string, err error) error {
	return fmt.Errorf("google calendar %s failed: %w", op, err)
}
