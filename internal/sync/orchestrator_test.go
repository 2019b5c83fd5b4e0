package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravityfall/calendar-booking-backend/internal/booking"
	"github.com/gravityfall/calendar-booking-backend/internal/calendar"
	"github.com/gravityfall/calendar-booking-backend/internal/connection"
	"github.com/gravityfall/calendar-booking-backend/internal/host"
)

const testHostID = "5e0f7a26-0000-0000-0000-000000000001"

type fakeBookingRepo struct {
	booking.Repository
	synced    map[string]string
	failed    map[string]string
	pending   map[string]bool
	conflicts map[string]string
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{
		synced:    make(map[string]string),
		failed:    make(map[string]string),
		pending:   make(map[string]bool),
		conflicts: make(map[string]string),
	}
}

func (r *fakeBookingRepo) MarkSynced(_ context.Context, id string, eventID string) error {
	r.synced[id] = eventID
	return nil
}

func (r *fakeBookingRepo) MarkSyncFailed(_ context.Context, id string, msg string) error {
	r.failed[id] = msg
	return nil
}

func (r *fakeBookingRepo) MarkSyncConflict(_ context.Context, id string, note string) error {
	r.conflicts[id] = note
	return nil
}

func (r *fakeBookingRepo) MarkSyncPending(_ context.Context, id string) error {
	r.pending[id] = true
	return nil
}

type fakeConnRepo struct {
	connection.Repository
	conns []*connection.Connection
}

func (r *fakeConnRepo) ListActive(_ context.Context, _ string) ([]*connection.Connection, error) {
	return r.conns, nil
}

type fakeHosts struct{}

func (fakeHosts) GetByID(_ context.Context, _ string) (*host.Host, error) {
	return &host.Host{ID: testHostID, Email: "host@example.com", Timezone: "America/New_York"}, nil
}

func (fakeHosts) GetByEmail(_ context.Context, _ string) (*host.Host, error) {
	return nil, host.ErrNotFound
}

// fakeProvider records calls; one instance is shared across builds.
type fakeProvider struct {
	providerType calendar.Type
	createErr    error
	updateErr    error
	deleteErr    error
	created      []calendar.EventPayload
	updated      map[string]calendar.EventPayload
	deleted      []string
	nextEventID  string
}

func newFakeProvider(t calendar.Type) *fakeProvider {
	return &fakeProvider{providerType: t, updated: make(map[string]calendar.EventPayload), nextEventID: "evt-new"}
}

func (p *fakeProvider) Type() calendar.Type { return p.providerType }

func (p *fakeProvider) CreateEvent(_ context.Context, payload calendar.EventPayload) (string, error) {
	if p.createErr != nil {
		return "", p.createErr
	}
	p.created = append(p.created, payload)
	return p.nextEventID, nil
}

func (p *fakeProvider) UpdateEvent(_ context.Context, eventID string, payload calendar.EventPayload) error {
	if p.updateErr != nil {
		return p.updateErr
	}
	p.updated[eventID] = payload
	return nil
}

func (p *fakeProvider) DeleteEvent(_ context.Context, eventID string) error {
	if p.deleteErr != nil {
		return p.deleteErr
	}
	p.deleted = append(p.deleted, eventID)
	return nil
}

func (p *fakeProvider) GetEvent(_ context.Context, _ string) (*calendar.Event, error) {
	return nil, calendar.ErrEventNotFound
}

func (p *fakeProvider) ListEvents(_ context.Context, _, _ time.Time) ([]*calendar.Event, error) {
	return nil, nil
}

func (p *fakeProvider) CheckFreeBusy(_ context.Context, _, _ time.Time) (bool, error) {
	return true, nil
}

func testConn(provider calendar.Type) *connection.Connection {
	return &connection.Connection{
		ID:       "conn-" + string(provider),
		HostID:   testHostID,
		Provider: provider,
		Active:   true,
	}
}

func newTestOrchestrator(t *testing.T, repo *fakeBookingRepo, conns *fakeConnRepo, providers map[calendar.Type]*fakeProvider) *Orchestrator {
	t.Helper()

	factory := calendar.NewFactory()
	for pt, p := range providers {
		p := p
		require.NoError(t, factory.Register(pt, func(_ context.Context, _ calendar.BuildConfig) (calendar.Provider, error) {
			return p, nil
		}))
	}

	tokens := connection.NewTokenService(conns, nil, nil)
	return NewOrchestrator(repo, conns, tokens, fakeHosts{}, factory, Config{ProviderTimeout: time.Second}, nil)
}

func testBooking(eventID string) *booking.Booking {
	start := time.Date(2026, 9, 10, 14, 0, 0, 0, time.UTC)
	b := &booking.Booking{
		ID:         "b1",
		HostID:     testHostID,
		GuestName:  "Ada",
		GuestEmail: "ada@example.com",
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
		Status:     booking.StatusConfirmed,
		SyncStatus: booking.SyncPending,
	}
	if eventID != "" {
		b.ExternalEventID = &eventID
	}
	return b
}

func TestPushCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates Event And Marks Synced", func(t *testing.T) {
		repo := newFakeBookingRepo()
		provider := newFakeProvider(calendar.TypeGoogle)
		conns := &fakeConnRepo{conns: []*connection.Connection{testConn(calendar.TypeGoogle)}}
		orch := newTestOrchestrator(t, repo, conns, map[calendar.Type]*fakeProvider{calendar.TypeGoogle: provider})

		results, err := orch.PushCreate(ctx, testBooking(""))
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.True(t, results[0].Success)
		assert.Equal(t, "evt-new", results[0].EventID)
		assert.Equal(t, "evt-new", repo.synced["b1"])

		require.Len(t, provider.created, 1)
		assert.Equal(t, "Booking: Ada", provider.created[0].Summary)
		assert.Equal(t, "America/New_York", provider.created[0].Timezone)
	})

	t.Run("Existing Event Degrades To Update", func(t *testing.T) {
		repo := newFakeBookingRepo()
		provider := newFakeProvider(calendar.TypeGoogle)
		conns := &fakeConnRepo{conns: []*connection.Connection{testConn(calendar.TypeGoogle)}}
		orch := newTestOrchestrator(t, repo, conns, map[calendar.Type]*fakeProvider{calendar.TypeGoogle: provider})

		results, err := orch.PushCreate(ctx, testBooking("evt-old"))
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.True(t, results[0].Success)

		assert.Empty(t, provider.created, "no duplicate event on retry")
		assert.Contains(t, provider.updated, "evt-old")
	})

	t.Run("No Connections Is A NoOp", func(t *testing.T) {
		repo := newFakeBookingRepo()
		orch := newTestOrchestrator(t, repo, &fakeConnRepo{}, nil)

		results, err := orch.PushCreate(ctx, testBooking(""))
		require.NoError(t, err)
		assert.Nil(t, results)
		assert.Empty(t, repo.synced)
		assert.Empty(t, repo.failed, "no attempt burned without connections")
	})

	t.Run("Provider Failure Marks Failed", func(t *testing.T) {
		repo := newFakeBookingRepo()
		provider := newFakeProvider(calendar.TypeGoogle)
		provider.createErr = errors.New("rate limited")
		conns := &fakeConnRepo{conns: []*connection.Connection{testConn(calendar.TypeGoogle)}}
		orch := newTestOrchestrator(t, repo, conns, map[calendar.Type]*fakeProvider{calendar.TypeGoogle: provider})

		results, err := orch.PushCreate(ctx, testBooking(""))
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.False(t, results[0].Success)
		assert.Contains(t, repo.failed["b1"], "rate limited")
	})

	t.Run("One Provider Failing Never Hides The Other", func(t *testing.T) {
		repo := newFakeBookingRepo()
		ok := newFakeProvider(calendar.TypeGoogle)
		bad := newFakeProvider(calendar.TypeMicrosoft)
		bad.createErr = errors.New("unreachable")
		conns := &fakeConnRepo{conns: []*connection.Connection{
			testConn(calendar.TypeGoogle),
			testConn(calendar.TypeMicrosoft),
		}}
		orch := newTestOrchestrator(t, repo, conns, map[calendar.Type]*fakeProvider{
			calendar.TypeGoogle:    ok,
			calendar.TypeMicrosoft: bad,
		})

		results, err := orch.PushCreate(ctx, testBooking(""))
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.True(t, results[0].Success)
		assert.False(t, results[1].Success)

		// The booking still carries debt for the failed provider.
		assert.Contains(t, repo.failed["b1"], "microsoft")
	})

	t.Run("Unregistered Provider Reported Per Connection", func(t *testing.T) {
		repo := newFakeBookingRepo()
		conns := &fakeConnRepo{conns: []*connection.Connection{testConn(calendar.TypeMicrosoft)}}
		orch := newTestOrchestrator(t, repo, conns, nil)

		results, err := orch.PushCreate(ctx, testBooking(""))
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.False(t, results[0].Success)
	})
}

func TestPushDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("Deletes Provider Event", func(t *testing.T) {
		repo := newFakeBookingRepo()
		provider := newFakeProvider(calendar.TypeGoogle)
		conns := &fakeConnRepo{conns: []*connection.Connection{testConn(calendar.TypeGoogle)}}
		orch := newTestOrchestrator(t, repo, conns, map[calendar.Type]*fakeProvider{calendar.TypeGoogle: provider})

		results, err := orch.PushDelete(ctx, testBooking("evt-1"))
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.True(t, results[0].Success)
		assert.Equal(t, []string{"evt-1"}, provider.deleted)
	})

	t.Run("No Event Settles Immediately", func(t *testing.T) {
		repo := newFakeBookingRepo()
		orch := newTestOrchestrator(t, repo, &fakeConnRepo{}, nil)

		results, err := orch.PushDelete(ctx, testBooking(""))
		require.NoError(t, err)
		assert.Nil(t, results)
		assert.Contains(t, repo.synced, "b1")
	})

	t.Run("Failure Marks Failed For Retry", func(t *testing.T) {
		repo := newFakeBookingRepo()
		provider := newFakeProvider(calendar.TypeGoogle)
		provider.deleteErr = errors.New("timeout")
		conns := &fakeConnRepo{conns: []*connection.Connection{testConn(calendar.TypeGoogle)}}
		orch := newTestOrchestrator(t, repo, conns, map[calendar.Type]*fakeProvider{calendar.TypeGoogle: provider})

		_, err := orch.PushDelete(ctx, testBooking("evt-1"))
		require.NoError(t, err)
		assert.Contains(t, repo.failed["b1"], "timeout")
	})
}
