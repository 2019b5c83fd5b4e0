package http

import (
	"time"

	"github.com/gravityfall/calendar-booking-backend/internal/booking"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/request"
)

// CreateBookingRequest is the public booking form: a guest claims a slot.
type CreateBookingRequest struct {
	SlotID       string  `json:"slot_id" binding:"required,uuid"`
	GuestName    string  `json:"guest_name" binding:"required,max=200"`
	GuestEmail   string  `json:"guest_email" binding:"required,email"`
	GuestMessage *string `json:"guest_message" binding:"omitempty,max=2000"`
}

// ListBookingsRequest defines query parameters for listing bookings.
type ListBookingsRequest struct {
	request.ListParams
	Status        string     `form:"status" binding:"omitempty,oneof=confirmed cancelled rescheduled"`
	StartTimeFrom *time.Time `form:"start_time_from" time_format:"2006-01-02T15:04:05Z07:00"`
	StartTimeTo   *time.Time `form:"start_time_to" time_format:"2006-01-02T15:04:05Z07:00"`
	SortBy        string     `form:"sort_by" binding:"omitempty,oneof=start_time end_time created_at status"`
}

// Validate performs custom validation for ListBookingsRequest.
func (r *ListBookingsRequest) Validate() error {
	if r.StartTimeFrom != nil && r.StartTimeTo != nil {
		if r.StartTimeFrom.After(*r.StartTimeTo) {
			return booking.ErrInvalidTimeRange
		}
	}
	return nil
}

// RescheduleRequest moves a booking to a new time window.
type RescheduleRequest struct {
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required"`
	Reason    string    `json:"reason" binding:"omitempty,max=500"`
}

type SyncState struct {
	Status       string     `json:"status"`
	Error        *string    `json:"error,omitempty"`
	Attempts     int        `json:"attempts"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

type BookingResponse struct {
	ID              string    `json:"id"`
	HostID          string    `json:"host_id"`
	SlotID          string    `json:"slot_id"`
	GuestName       string    `json:"guest_name"`
	GuestEmail      string    `json:"guest_email"`
	GuestMessage    *string   `json:"guest_message,omitempty"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Status          string    `json:"status"`
	ExternalEventID *string   `json:"external_event_id,omitempty"`
	Sync            SyncState `json:"sync"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func NewBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:              b.ID,
		HostID:          b.HostID,
		SlotID:          b.SlotID,
		GuestName:       b.GuestName,
		GuestEmail:      b.GuestEmail,
		GuestMessage:    b.GuestMessage,
		StartTime:       b.StartTime,
		EndTime:         b.EndTime,
		Status:          string(b.Status),
		ExternalEventID: b.ExternalEventID,
		Sync:            NewSyncState(b),
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func NewSyncState(b *booking.Booking) SyncState {
	return SyncState{
		Status:       string(b.SyncStatus),
		Error:        b.SyncError,
		Attempts:     b.SyncAttempts,
		LastSyncedAt: b.LastSyncedAt,
	}
}

// SyncPushResponse reports the outcome of a manual sync trigger.
type SyncPushResponse struct {
	Results []booking.ProviderResult `json:"results"`
	Sync    SyncState                `json:"sync"`
}
