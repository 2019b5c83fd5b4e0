package availability

import (
	"net/http"
	"time"

	"github.com/gravityfall/calendar-booking-backend/internal/pkg/apperror"
)

var (
	ErrNotFound            = apperror.New(http.StatusNotFound, "availability slot not found")
	ErrOverlap             = apperror.New(http.StatusConflict, "time range overlaps an existing slot or booking")
	ErrInvalidTimeRange    = apperror.New(http.StatusBadRequest, "start time must be before end time")
	ErrStartTimePast       = apperror.New(http.StatusBadRequest, "cannot create availability in the past")
	ErrHasBooking          = apperror.New(http.StatusConflict, "cannot delete slot with bookings")
	ErrCalendarUnavailable = apperror.New(http.StatusBadGateway, "couldn't update the connected calendar, slot not saved")
)

// Slot is a host-declared bookable time window. Times are UTC instants.
// ExternalEventID links the busy placeholder event in the host's connected
// calendar; a slot never exists locally without that counterpart while a
// connection is active.
type Slot struct {
	ID              string
	HostID          string
	StartTime       time.Time
	EndTime         time.Time
	IsAvailable     bool
	ExternalEventID *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
