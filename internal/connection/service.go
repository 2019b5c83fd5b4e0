package connection

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gravityfall/calendar-booking-backend/internal/calendar"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/logging"
)

// CreatePendingRequest carries the token payload arriving from the OAuth
// callback collaborator.
type CreatePendingRequest struct {
	HostID        *string
	CalendarEmail string
	AccessToken   string
	RefreshToken  *string
	Scope         string
}

// Service manages the calendar connection lifecycle: staging rows from OAuth
// callbacks, completion into durable connections, and disconnect.
type Service interface {
	// CreatePending stages OAuth tokens and returns the connection ID the
	// completion endpoint consumes.
	CreatePending(ctx context.Context, req CreatePendingRequest) (string, error)
	// Complete consumes a staging row (at most once) and activates the
	// connection for the authenticated host.
	Complete(ctx context.Context, pendingID string, hostID string, provider calendar.Type) (*Connection, error)
	ListForHost(ctx context.Context, hostID string) ([]*Connection, error)
	Disconnect(ctx context.Context, hostID string, provider calendar.Type) error
	// CleanupExpired garbage-collects staging rows past their TTL.
	CleanupExpired(ctx context.Context) (int, error)
	IsConnected(ctx context.Context, hostID string) (bool, error)
}

type service struct {
	repo   Repository
	ttl    time.Duration
	logger *logging.Logger
}

// NewService creates a connection service. ttl bounds the lifetime of
// pending staging rows.
func NewService(repo Repository, ttl time.Duration, logger *logging.Logger) Service {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &service{repo: repo, ttl: ttl, logger: logger.Named("connection")}
}

func (s *service) CreatePending(ctx context.Context, req CreatePendingRequest) (string, error) {
	p := &PendingConnection{
		ID:            uuid.NewString(),
		HostID:        req.HostID,
		CalendarEmail: req.CalendarEmail,
		AccessToken:   req.AccessToken,
		RefreshToken:  req.RefreshToken,
		Scope:         req.Scope,
		ExpiresAt:     time.Now().UTC().Add(s.ttl),
	}

	if err := s.repo.CreatePending(ctx, p); err != nil {
		return "", err
	}

	s.logger.Info("staged pending calendar connection", "connection_id", p.ID, "calendar_email", p.CalendarEmail)
	return p.ID, nil
}

func (s *service) Complete(ctx context.Context, pendingID string, hostID string, provider calendar.Type) (*Connection, error) {
	p, err := s.repo.ConsumePending(ctx, pendingID)
	if err != nil {
		return nil, err
	}

	conn := &Connection{
		HostID:        hostID,
		Provider:      provider,
		CalendarEmail: p.CalendarEmail,
		AccessToken:   p.AccessToken,
		RefreshToken:  p.RefreshToken,
		Scope:         p.Scope,
	}

	if err := s.repo.Upsert(ctx, conn); err != nil {
		return nil, err
	}

	s.logger.Info("calendar connection completed", "host_id", hostID, "provider", provider, "calendar_email", conn.CalendarEmail)
	return conn, nil
}

func (s *service) ListForHost(ctx context.Context, hostID string) ([]*Connection, error) {
	return s.repo.ListActive(ctx, hostID)
}

func (s *service) Disconnect(ctx context.Context, hostID string, provider calendar.Type) error {
	if err := s.repo.Deactivate(ctx, hostID, provider); err != nil {
		return err
	}
	s.logger.Info("calendar disconnected", "host_id", hostID, "provider", provider)
	return nil
}

func (s *service) CleanupExpired(ctx context.Context) (int, error) {
	n, err := s.repo.DeleteExpiredPending(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("cleaned up expired pending connections", "count", n)
	}
	return n, nil
}

func (s *service) IsConnected(ctx context.Context, hostID string) (bool, error) {
	conns, err := s.repo.ListActive(ctx, hostID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return len(conns) > 0, nil
}
