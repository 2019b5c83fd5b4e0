package connection

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/gravityfall/calendar-booking-backend/internal/calendar"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/logging"
)

// expirySkew is how close to expiry a token may be before we refresh it.
const expirySkew = time.Minute

// TokenProvider yields a valid access token for a host's provider
// connection, refreshing through OAuth when necessary.
type TokenProvider interface {
	GetValidAccessToken(ctx context.Context, hostID string, provider calendar.Type) (string, error)
}

// TokenService implements TokenProvider backed by stored connections.
// Refreshes are serialized per (host, provider) so two concurrent callers
// cannot invalidate each other's freshly-issued token.
type TokenService struct {
	repo    Repository
	configs map[calendar.Type]*oauth2.Config
	logger  *logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTokenService creates a token service. oauthConfigs maps each supported
// provider type to the OAuth client used for its token refresh.
func NewTokenService(repo Repository, oauthConfigs map[calendar.Type]*oauth2.Config, logger *logging.Logger) *TokenService {
	if logger == nil {
		logger = logging.Default()
	}
	return &TokenService{
		repo:    repo,
		configs: oauthConfigs,
		logger:  logger.Named("connection.tokens"),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *TokenService) lockFor(hostID string, provider calendar.Type) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hostID + "/" + string(provider)
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// GetValidAccessToken returns the connection's access token, refreshing it
// first when it expires within the skew window.
func (s *TokenService) GetValidAccessToken(ctx context.Context, hostID string, provider calendar.Type) (string, error) {
	lock := s.lockFor(hostID, provider)
	lock.Lock()
	defer lock.Unlock()

	conn, err := s.repo.GetByHostAndProvider(ctx, hostID, provider)
	if err != nil {
		return "", err
	}
	if !conn.Active {
		return "", ErrNotConnected
	}

	if !s.needsRefresh(conn) {
		return conn.AccessToken, nil
	}

	return s.refresh(ctx, conn)
}

func (s *TokenService) needsRefresh(conn *Connection) bool {
	if conn.TokenExpiry == nil {
		// No expiry on record; trust the token until the provider rejects it.
		return false
	}
	return time.Now().UTC().After(conn.TokenExpiry.Add(-expirySkew))
}

func (s *TokenService) refresh(ctx context.Context, conn *Connection) (string, error) {
	if conn.RefreshToken == nil || *conn.RefreshToken == "" {
		return "", ErrReconnectNeeded
	}

	cfg, ok := s.configs[conn.Provider]
	if !ok || cfg == nil {
		return "", ErrTokenRefresh
	}

	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: *conn.RefreshToken})
	token, err := src.Token()
	if err != nil {
		s.logger.Warn("token refresh failed", "host_id", conn.HostID, "provider", conn.Provider, "error", err)
		// An invalid grant means the refresh token itself is dead and the
		// host has to reconnect; anything else is a transient provider fault.
		if retrieveErr, ok := err.(*oauth2.RetrieveError); ok && retrieveErr.Response != nil && retrieveErr.Response.StatusCode == 400 {
			return "", ErrReconnectNeeded
		}
		return "", ErrTokenRefresh
	}

	var newRefresh *string
	if token.RefreshToken != "" && (conn.RefreshToken == nil || token.RefreshToken != *conn.RefreshToken) {
		newRefresh = &token.RefreshToken
	}
	var expiry *time.Time
	if !token.Expiry.IsZero() {
		e := token.Expiry.UTC()
		expiry = &e
	}

	if err := s.repo.UpdateTokens(ctx, conn.ID, token.AccessToken, newRefresh, expiry); err != nil {
		return "", err
	}

	s.logger.Info("refreshed provider tokens", "host_id", conn.HostID, "provider", conn.Provider)
	return token.AccessToken, nil
}

// TokenSource adapts the service to oauth2.TokenSource for one connection,
// carrying the caller's context into each token fetch.
func (s *TokenService) TokenSource(ctx context.Context, hostID string, provider calendar.Type) oauth2.TokenSource {
	return &hostTokenSource{svc: s, ctx: ctx, hostID: hostID, provider: provider}
}

type hostTokenSource struct {
	svc      *TokenService
	ctx      context.Context
	hostID   string
	provider calendar.Type
}

func (t *hostTokenSource) Token() (*oauth2.Token, error) {
	access, err := t.svc.GetValidAccessToken(t.ctx, t.hostID, t.provider)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: access}, nil
}
