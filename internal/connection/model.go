package connection

import (
	"net/http"
	"time"

	"github.com/gravityfall/calendar-booking-backend/internal/calendar"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/apperror"
)

var (
	ErrNotFound        = apperror.New(http.StatusNotFound, "calendar connection not found")
	ErrPendingNotFound = apperror.New(http.StatusNotFound, "pending connection not found or expired")
	ErrNotConnected    = apperror.New(http.StatusConflict, "calendar not connected")
	ErrTokenRefresh    = apperror.New(http.StatusBadGateway, "failed to refresh provider tokens")
	ErrReconnectNeeded = apperror.New(http.StatusConflict, "calendar connection expired, please reconnect")
)

// Connection holds a host's credentials for one calendar provider.
type Connection struct {
	ID            string
	HostID        string
	Provider      calendar.Type
	CalendarEmail string
	AccessToken   string
	RefreshToken  *string
	TokenExpiry   *time.Time
	Scope         string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PendingConnection is the short-lived staging row bridging an OAuth callback
// (no authenticated session yet) to the session that completes the
// connection. It is consumed exactly once or garbage-collected after
// ExpiresAt.
type PendingConnection struct {
	ID            string
	HostID        *string
	CalendarEmail string
	AccessToken   string
	RefreshToken  *string
	Scope         string
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// Expired reports whether the staging row has passed its TTL.
func (p *PendingConnection) Expired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}
