package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gravityfall/calendar-booking-backend/internal/auth"
	"github.com/gravityfall/calendar-booking-backend/internal/availability"
	"github.com/gravityfall/calendar-booking-backend/internal/host"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/response"
	"github.com/gravityfall/calendar-booking-backend/internal/timeutil"
)

type Handler struct {
	service availability.Service
	hosts   host.Repository
}

func NewHandler(service availability.Service, hosts host.Repository) *Handler {
	return &Handler{service: service, hosts: hosts}
}

func (h *Handler) Create(c *gin.Context) {
	var body CreateSlotRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	hostID := auth.GetHostID(c)
	hst, err := h.hosts.GetByID(c.Request.Context(), hostID)
	if err != nil {
		response.Error(c, err)
		return
	}

	start, err := timeutil.ParseWallClock(body.StartTime, hst.Timezone)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_time"})
		return
	}
	end, err := timeutil.ParseWallClock(body.EndTime, hst.Timezone)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_time"})
		return
	}

	slot, err := h.service.CreateSlot(c.Request.Context(), availability.CreateSlotRequest{
		HostID:    hostID,
		StartTime: start,
		EndTime:   end,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewSlotResponse(slot))
}

// ListOwn returns every slot of the authenticated host, consumed ones
// included when include_unavailable is set.
func (h *Handler) ListOwn(c *gin.Context) {
	includeUnavailable := c.Query("include_unavailable") == "true"

	slots, err := h.service.ListForHost(c.Request.Context(), auth.GetHostID(c), includeUnavailable)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": NewSlotListResponse(slots)})
}

// ListPublic is the guest-facing view: bookable future slots of a host,
// optionally narrowed to one calendar day in the host's timezone.
func (h *Handler) ListPublic(c *gin.Context) {
	hostID := c.Param("id")
	if _, err := uuid.Parse(hostID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}

	var forDate *time.Time
	if v := c.Query("date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
			return
		}
		forDate = &t
	}

	slots, err := h.service.ListAvailable(c.Request.Context(), hostID, forDate)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": NewSlotListResponse(slots)})
}

func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}

	if err := h.service.DeleteSlot(c.Request.Context(), auth.GetHostID(c), id); err != nil {
		response.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
