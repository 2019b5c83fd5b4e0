package host

import (
	"net/http"
	"time"

	"github.com/gravityfall/calendar-booking-backend/internal/pkg/apperror"
)

var ErrNotFound = apperror.New(http.StatusNotFound, "host not found")

// Host is the read model for a booking host. Profile CRUD lives outside this
// service; the engine only needs identity, contact and timezone.
type Host struct {
	ID          string
	Email       string
	DisplayName *string
	Timezone    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Name returns the display name, falling back to the email address.
func (h *Host) Name() string {
	if h.DisplayName != nil && *h.DisplayName != "" {
		return *h.DisplayName
	}
	return h.Email
}
