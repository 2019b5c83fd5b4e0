package http

import (
	"time"

	"github.com/gravityfall/calendar-booking-backend/internal/availability"
)

// CreateSlotRequest carries wall-clock times. Values without a UTC offset
// are interpreted in the host's configured timezone.
type CreateSlotRequest struct {
	StartTime string `json:"start_time" binding:"required"`
	EndTime   string `json:"end_time" binding:"required"`
}

type SlotResponse struct {
	ID              string    `json:"id"`
	HostID          string    `json:"host_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	IsAvailable     bool      `json:"is_available"`
	ExternalEventID *string   `json:"external_event_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func NewSlotResponse(s *availability.Slot) SlotResponse {
	return SlotResponse{
		ID:              s.ID,
		HostID:          s.HostID,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		IsAvailable:     s.IsAvailable,
		ExternalEventID: s.ExternalEventID,
		CreatedAt:       s.CreatedAt,
	}
}

func NewSlotListResponse(slots []*availability.Slot) []SlotResponse {
	items := make([]SlotResponse, len(slots))
	for i, s := range slots {
		items[i] = NewSlotResponse(s)
	}
	return items
}
