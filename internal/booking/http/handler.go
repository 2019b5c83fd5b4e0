package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gravityfall/calendar-booking-backend/internal/auth"
	"github.com/gravityfall/calendar-booking-backend/internal/booking"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/response"
	"github.com/gravityfall/calendar-booking-backend/internal/reschedule"
)

type Handler struct {
	service     booking.Service
	rescheduler reschedule.Service
}

func NewHandler(service booking.Service, rescheduler reschedule.Service) *Handler {
	return &Handler{
		service:     service,
		rescheduler: rescheduler,
	}
}

// Create is public: guests book without an account.
func (h *Handler) Create(c *gin.Context) {
	var body CreateBookingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	b, err := h.service.Create(c.Request.Context(), booking.CreateRequest{
		SlotID:       body.SlotID,
		GuestName:    body.GuestName,
		GuestEmail:   body.GuestEmail,
		GuestMessage: body.GuestMessage,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewBookingResponse(b))
}

func (h *Handler) List(c *gin.Context) {
	var q ListBookingsRequest
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters", "details": err.Error()})
		return
	}
	if err := q.Validate(); err != nil {
		response.Error(c, err)
		return
	}

	filter := booking.Filter{
		HostID:    auth.GetHostID(c),
		Status:    q.Status,
		StartTime: q.StartTimeFrom,
		EndTime:   q.StartTimeTo,
		Page:      q.Page,
		PageSize:  q.PageSize,
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
	}

	bookings, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		items[i] = NewBookingResponse(b)
	}

	c.JSON(http.StatusOK, response.NewPageResponse(items, filter.Page, filter.PageSize, total))
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := h.bookingID(c)
	if !ok {
		return
	}

	b, err := h.service.GetByID(c.Request.Context(), auth.GetHostID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

// Cancel releases the booking's window but keeps the row for history.
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := h.bookingID(c)
	if !ok {
		return
	}

	b, err := h.service.Cancel(c.Request.Context(), auth.GetHostID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

// Purge permanently removes a cancelled booking.
func (h *Handler) Purge(c *gin.Context) {
	id, ok := h.bookingID(c)
	if !ok {
		return
	}

	if err := h.service.Purge(c.Request.Context(), auth.GetHostID(c), id); err != nil {
		response.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) Reschedule(c *gin.Context) {
	id, ok := h.bookingID(c)
	if !ok {
		return
	}

	var body RescheduleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	b, err := h.rescheduler.Reschedule(c.Request.Context(), reschedule.Request{
		BookingID: id,
		HostID:    auth.GetHostID(c),
		StartTime: body.StartTime,
		EndTime:   body.EndTime,
		Reason:    body.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

// SyncStatus reports the booking's calendar sync state.
func (h *Handler) SyncStatus(c *gin.Context) {
	id, ok := h.bookingID(c)
	if !ok {
		return
	}

	b, err := h.service.GetByID(c.Request.Context(), auth.GetHostID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewSyncState(b))
}

// TriggerSync pushes the booking's current state to every connected provider
// immediately, outside the worker's schedule.
func (h *Handler) TriggerSync(c *gin.Context) {
	id, ok := h.bookingID(c)
	if !ok {
		return
	}

	hostID := auth.GetHostID(c)
	results, err := h.service.Resync(c.Request.Context(), hostID, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	b, err := h.service.GetByID(c.Request.Context(), hostID, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	if results == nil {
		results = []booking.ProviderResult{}
	}
	c.JSON(http.StatusOK, SyncPushResponse{Results: results, Sync: NewSyncState(b)})
}

func (h *Handler) bookingID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return "", false
	}
	return id, true
}
