package webhook

import (
	"net/http"

	"github.com/gravityfall/calendar-booking-backend/internal/pkg/apperror"
)

var (
	ErrInvalidSignature = apperror.New(http.StatusUnauthorized, "invalid webhook signature")
	ErrInvalidPayload   = apperror.New(http.StatusBadRequest, "invalid webhook payload")
)

// ConflictMode decides which side wins when an inbound change disagrees with
// local state.
type ConflictMode string

const (
	DatabaseWins ConflictMode = "database_wins"
	ProviderWins ConflictMode = "provider_wins"
	Manual       ConflictMode = "manual"
)

// EventTime mirrors the provider's nested time object.
type EventTime struct {
	DateTime string `json:"dateTime"`
	Timezone string `json:"timeZone,omitempty"`
}

// Resource is the event snapshot carried by an inbound notification.
type Resource struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary,omitempty"`
	Description string    `json:"description,omitempty"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
	Status      string    `json:"status"`
}

// Payload is the body of an inbound provider notification.
type Payload struct {
	Resource Resource `json:"resource"`
}

// Outcome reports how a notification was applied.
type Outcome struct {
	// Action is one of "ignored", "acknowledged", "cancelled",
	// "updated", "noted", "conflict".
	Action    string `json:"action"`
	BookingID string `json:"booking_id,omitempty"`
	Message   string `json:"message,omitempty"`
}
