package sync

import (
	"context"

	"github.com/gravityfall/calendar-booking-backend/internal/calendar"
	"github.com/gravityfall/calendar-booking-backend/internal/connection"
	"github.com/gravityfall/calendar-booking-backend/internal/host"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/logging"
	"github.com/gravityfall/calendar-booking-backend/internal/timeutil"
)

// Gateway exposes the provider layer to the availability store: busy
// placeholders for open slots, without any booking bookkeeping.
type Gateway struct {
	conns   connection.Repository
	tokens  *connection.TokenService
	hosts   host.Repository
	factory *calendar.Factory
	cfg     Config
	logger  *logging.Logger
}

func NewGateway(
	conns connection.Repository,
	tokens *connection.TokenService,
	hosts host.Repository,
	factory *calendar.Factory,
	cfg Config,
	logger *logging.Logger,
) *Gateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &Gateway{
		conns:   conns,
		tokens:  tokens,
		hosts:   hosts,
		factory: factory,
		cfg:     cfg,
		logger:  logger.Named("sync.gateway"),
	}
}

func (g *Gateway) Connected(ctx context.Context, hostID string) (bool, error) {
	conns, err := g.conns.ListActive(ctx, hostID)
	if err != nil {
		return false, err
	}
	return len(conns) > 0, nil
}

// CreateBusyEvent writes a busy placeholder covering the range to the host's
// primary active connection and returns the provider event ID. Errors
// propagate so the caller can fail closed.
func (g *Gateway) CreateBusyEvent(ctx context.Context, hostID string, r timeutil.Range) (string, error) {
	conn, provider, err := g.primaryProvider(ctx, hostID)
	if err != nil {
		return "", err
	}

	tz := "UTC"
	if h, err := g.hosts.GetByID(ctx, hostID); err == nil && h.Timezone != "" {
		tz = h.Timezone
	}

	eventID, err := provider.CreateEvent(ctx, calendar.EventPayload{
		Summary:  "Busy",
		Start:    r.Start,
		End:      r.End,
		Timezone: tz,
	})
	if err != nil {
		return "", err
	}

	g.logger.Info("busy event created",
		"host_id", hostID, "provider", conn.Provider, "event_id", eventID)
	return eventID, nil
}

func (g *Gateway) DeleteEvent(ctx context.Context, hostID string, eventID string) error {
	_, provider, err := g.primaryProvider(ctx, hostID)
	if err != nil {
		return err
	}
	return provider.DeleteEvent(ctx, eventID)
}

func (g *Gateway) primaryProvider(ctx context.Context, hostID string) (*connection.Connection, calendar.Provider, error) {
	conns, err := g.conns.ListActive(ctx, hostID)
	if err != nil {
		return nil, nil, err
	}
	if len(conns) == 0 {
		return nil, nil, connection.ErrNotConnected
	}

	conn := conns[0]
	provider, err := g.factory.New(ctx, conn.Provider, calendar.BuildConfig{
		TokenSource: g.tokens.TokenSource(ctx, conn.HostID, conn.Provider),
		Timeout:     g.cfg.ProviderTimeout,
		Logger:      g.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return conn, provider, nil
}
