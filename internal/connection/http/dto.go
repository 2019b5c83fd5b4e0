package http

import (
	"time"

	"github.com/gravityfall/calendar-booking-backend/internal/connection"
)

// CompleteRequest claims a staged OAuth connection for the logged-in host.
type CompleteRequest struct {
	PendingID string `json:"pending_id" binding:"required,uuid"`
	Provider  string `json:"provider" binding:"required,oneof=google microsoft"`
}

type ConnectionResponse struct {
	ID            string    `json:"id"`
	Provider      string    `json:"provider"`
	CalendarEmail string    `json:"calendar_email"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

func NewConnectionResponse(c *connection.Connection) ConnectionResponse {
	return ConnectionResponse{
		ID:            c.ID,
		Provider:      string(c.Provider),
		CalendarEmail: c.CalendarEmail,
		Active:        c.Active,
		CreatedAt:     c.CreatedAt,
	}
}
