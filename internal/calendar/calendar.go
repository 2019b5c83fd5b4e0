package calendar

import (
	"context"
	"net/http"
	"time"

	"github.com/gravityfall/calendar-booking-backend/internal/pkg/apperror"
)

var (
	ErrUnsupportedProvider = apperror.New(http.StatusBadRequest, "unsupported calendar provider")
	ErrEventNotFound       = apperror.New(http.StatusNotFound, "calendar event not found")
	ErrProviderUnavailable = apperror.New(http.StatusBadGateway, "calendar provider unavailable")
)

// Type identifies a calendar provider.
type Type string

const (
	TypeGoogle    Type = "google"
	TypeMicrosoft Type = "microsoft"
)

// ParseType validates a provider name from an external source (URL path,
// database column).
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeGoogle, TypeMicrosoft:
		return Type(s), nil
	default:
		return "", ErrUnsupportedProvider
	}
}

// EventPayload is the provider-independent event representation pushed to and
// pulled from external calendars. Times are UTC instants; Timezone is the
// display timezone hint for the provider.
type EventPayload struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Timezone    string
}

// Event statuses as normalized from provider responses.
const (
	EventStatusConfirmed = "confirmed"
	EventStatusCancelled = "cancelled"
)

// Event is a provider event with its external identity.
type Event struct {
	ProviderEventID string
	Payload         EventPayload
	Status          string
}

// Provider is the uniform contract every calendar integration implements.
// All calls are blocking I/O and honor context cancellation; implementations
// apply their own bounded request timeout.
type Provider interface {
	Type() Type

	// CreateEvent creates an event and returns the provider's event ID.
	CreateEvent(ctx context.Context, p EventPayload) (string, error)
	UpdateEvent(ctx context.Context, eventID string, p EventPayload) error
	// DeleteEvent is idempotent: deleting an already-gone event succeeds.
	DeleteEvent(ctx context.Context, eventID string) error
	// GetEvent returns ErrEventNotFound when the event does not exist.
	GetEvent(ctx context.Context, eventID string) (*Event, error)
	ListEvents(ctx context.Context, start, end time.Time) ([]*Event, error)
	// CheckFreeBusy reports whether the range is free of busy blocks.
	CheckFreeBusy(ctx context.Context, start, end time.Time) (bool, error)
}
