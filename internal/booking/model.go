package booking

import (
	"net/http"
	"time"

	"github.com/gravityfall/calendar-booking-backend/internal/pkg/apperror"
)

var (
	ErrNotFound         = apperror.New(http.StatusNotFound, "booking not found")
	ErrSlotUnavailable  = apperror.New(http.StatusConflict, "slot is no longer available")
	ErrTimeConflict     = apperror.New(http.StatusConflict, "time range already booked")
	ErrInvalidTimeRange = apperror.New(http.StatusBadRequest, "start time must be before end time")
	ErrInvalidStatus    = apperror.New(http.StatusBadRequest, "invalid booking status")
	ErrAlreadyCancelled = apperror.New(http.StatusConflict, "booking is already cancelled")
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusConfirmed   Status = "confirmed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
)

// Active reports whether the booking still claims its time range.
func (s Status) Active() bool {
	return s != StatusCancelled
}

// SyncStatus tracks the booking's consistency with external calendars.
type SyncStatus string

const (
	SyncPending  SyncStatus = "pending"
	SyncSynced   SyncStatus = "synced"
	SyncFailed   SyncStatus = "failed"
	SyncConflict SyncStatus = "conflict"
)

// Booking is a guest's confirmed claim on a time window. The booking owns the
// canonical start/end; SlotID is a provenance back-reference, not the source
// of truth (the slot is consumed when the booking is created).
type Booking struct {
	ID           string
	HostID       string
	SlotID       string
	GuestName    string
	GuestEmail   string
	GuestMessage *string
	StartTime    time.Time
	EndTime      time.Time
	Status       Status

	ExternalEventID *string
	SyncStatus      SyncStatus
	SyncError       *string
	SyncAttempts    int
	LastSyncedAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter narrows booking list queries.
type Filter struct {
	HostID    string
	Status    string
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// SyncQuery selects bookings carrying sync debt for the background worker.
type SyncQuery struct {
	// MaxAttempts excludes bookings already retried this many times.
	MaxAttempts int
	// UpdatedWithin additionally selects synced bookings whose local state
	// changed after the last successful push, within this window.
	UpdatedWithin time.Duration
	Limit         int
}
