package connection

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/gravityfall/calendar-booking-backend/internal/calendar"
)

func (r *fakeRepo) GetByHostAndProvider(_ context.Context, hostID string, provider calendar.Type) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[hostID+"/"+string(provider)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeRepo) UpdateTokens(_ context.Context, id string, accessToken string, refreshToken *string, expiry *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		if c.ID == id {
			c.AccessToken = accessToken
			if refreshToken != nil {
				c.RefreshToken = refreshToken
			}
			c.TokenExpiry = expiry
			return nil
		}
	}
	return ErrNotFound
}

func seedConnection(repo *fakeRepo, expiry *time.Time, refreshToken *string) *Connection {
	c := &Connection{
		ID:           "conn-1",
		HostID:       testHostID,
		Provider:     calendar.TypeGoogle,
		AccessToken:  "at-old",
		RefreshToken: refreshToken,
		TokenExpiry:  expiry,
		Active:       true,
	}
	repo.conns[testHostID+"/"+string(calendar.TypeGoogle)] = c
	return c
}

// tokenEndpoint stands in for the provider's OAuth token URL.
func tokenEndpoint(calls *int32, status int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
}

func oauthConfigFor(srv *httptest.Server) map[calendar.Type]*oauth2.Config {
	return map[calendar.Type]*oauth2.Config{
		calendar.TypeGoogle: {
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			Endpoint:     oauth2.Endpoint{TokenURL: srv.URL},
		},
	}
}

const freshTokenJSON = `{"access_token":"at-new","token_type":"Bearer","expires_in":3600,"refresh_token":"rt-new"}`

func TestGetValidAccessToken(t *testing.T) {
	ctx := context.Background()
	rt := "rt-old"

	t.Run("Fresh Token Skips Refresh", func(t *testing.T) {
		var calls int32
		srv := tokenEndpoint(&calls, http.StatusOK, freshTokenJSON)
		defer srv.Close()

		repo := newFakeRepo()
		expiry := time.Now().UTC().Add(time.Hour)
		seedConnection(repo, &expiry, &rt)
		svc := NewTokenService(repo, oauthConfigFor(srv), nil)

		access, err := svc.GetValidAccessToken(ctx, testHostID, calendar.TypeGoogle)
		require.NoError(t, err)
		assert.Equal(t, "at-old", access)
		assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
	})

	t.Run("No Expiry On Record Skips Refresh", func(t *testing.T) {
		var calls int32
		srv := tokenEndpoint(&calls, http.StatusOK, freshTokenJSON)
		defer srv.Close()

		repo := newFakeRepo()
		seedConnection(repo, nil, &rt)
		svc := NewTokenService(repo, oauthConfigFor(srv), nil)

		access, err := svc.GetValidAccessToken(ctx, testHostID, calendar.TypeGoogle)
		require.NoError(t, err)
		assert.Equal(t, "at-old", access)
		assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
	})

	t.Run("Refreshes Inside Expiry Skew", func(t *testing.T) {
		var calls int32
		srv := tokenEndpoint(&calls, http.StatusOK, freshTokenJSON)
		defer srv.Close()

		repo := newFakeRepo()
		expiry := time.Now().UTC().Add(30 * time.Second)
		seedConnection(repo, &expiry, &rt)
		svc := NewTokenService(repo, oauthConfigFor(srv), nil)

		access, err := svc.GetValidAccessToken(ctx, testHostID, calendar.TypeGoogle)
		require.NoError(t, err)
		assert.Equal(t, "at-new", access)
		assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

		// The rotated tokens must be persisted for the next caller.
		stored, err := repo.GetByHostAndProvider(ctx, testHostID, calendar.TypeGoogle)
		require.NoError(t, err)
		assert.Equal(t, "at-new", stored.AccessToken)
		require.NotNil(t, stored.RefreshToken)
		assert.Equal(t, "rt-new", *stored.RefreshToken)
		require.NotNil(t, stored.TokenExpiry)
		assert.True(t, stored.TokenExpiry.After(time.Now().UTC().Add(30*time.Minute)))
	})

	t.Run("Invalid Grant Requires Reconnect", func(t *testing.T) {
		var calls int32
		srv := tokenEndpoint(&calls, http.StatusBadRequest, `{"error":"invalid_grant"}`)
		defer srv.Close()

		repo := newFakeRepo()
		expiry := time.Now().UTC().Add(-time.Minute)
		seedConnection(repo, &expiry, &rt)
		svc := NewTokenService(repo, oauthConfigFor(srv), nil)

		_, err := svc.GetValidAccessToken(ctx, testHostID, calendar.TypeGoogle)
		assert.ErrorIs(t, err, ErrReconnectNeeded)
	})

	t.Run("Transient Provider Fault", func(t *testing.T) {
		var calls int32
		srv := tokenEndpoint(&calls, http.StatusInternalServerError, `{"error":"server_error"}`)
		defer srv.Close()

		repo := newFakeRepo()
		expiry := time.Now().UTC().Add(-time.Minute)
		seedConnection(repo, &expiry, &rt)
		svc := NewTokenService(repo, oauthConfigFor(srv), nil)

		_, err := svc.GetValidAccessToken(ctx, testHostID, calendar.TypeGoogle)
		assert.ErrorIs(t, err, ErrTokenRefresh)
	})

	t.Run("Missing Refresh Token Requires Reconnect", func(t *testing.T) {
		var calls int32
		srv := tokenEndpoint(&calls, http.StatusOK, freshTokenJSON)
		defer srv.Close()

		repo := newFakeRepo()
		expiry := time.Now().UTC().Add(-time.Minute)
		seedConnection(repo, &expiry, nil)
		svc := NewTokenService(repo, oauthConfigFor(srv), nil)

		_, err := svc.GetValidAccessToken(ctx, testHostID, calendar.TypeGoogle)
		assert.ErrorIs(t, err, ErrReconnectNeeded)
		assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
	})

	t.Run("Unconfigured Provider", func(t *testing.T) {
		repo := newFakeRepo()
		expiry := time.Now().UTC().Add(-time.Minute)
		seedConnection(repo, &expiry, &rt)
		svc := NewTokenService(repo, map[calendar.Type]*oauth2.Config{}, nil)

		_, err := svc.GetValidAccessToken(ctx, testHostID, calendar.TypeGoogle)
		assert.ErrorIs(t, err, ErrTokenRefresh)
	})

	t.Run("Inactive Connection", func(t *testing.T) {
		repo := newFakeRepo()
		expiry := time.Now().UTC().Add(time.Hour)
		c := seedConnection(repo, &expiry, &rt)
		c.Active = false
		svc := NewTokenService(repo, map[calendar.Type]*oauth2.Config{}, nil)

		_, err := svc.GetValidAccessToken(ctx, testHostID, calendar.TypeGoogle)
		assert.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("Concurrent Callers Share One Refresh", func(t *testing.T) {
		var calls int32
		srv := tokenEndpoint(&calls, http.StatusOK, freshTokenJSON)
		defer srv.Close()

		repo := newFakeRepo()
		expiry := time.Now().UTC().Add(30 * time.Second)
		seedConnection(repo, &expiry, &rt)
		svc := NewTokenService(repo, oauthConfigFor(srv), nil)

		var wg sync.WaitGroup
		tokens := make([]string, 2)
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tokens[i], errs[i] = svc.GetValidAccessToken(ctx, testHostID, calendar.TypeGoogle)
			}(i)
		}
		wg.Wait()

		for i := 0; i < 2; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, "at-new", tokens[i])
		}
		// Serialized refresh: the second caller re-reads the stored
		// connection and finds it already fresh.
		assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	})
}

func TestTokenSource(t *testing.T) {
	var calls int32
	srv := tokenEndpoint(&calls, http.StatusOK, freshTokenJSON)
	defer srv.Close()

	repo := newFakeRepo()
	rt := "rt-old"
	expiry := time.Now().UTC().Add(time.Hour)
	seedConnection(repo, &expiry, &rt)
	svc := NewTokenService(repo, oauthConfigFor(srv), nil)

	src := svc.TokenSource(context.Background(), testHostID, calendar.TypeGoogle)
	token, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "at-old", token.AccessToken)
}
