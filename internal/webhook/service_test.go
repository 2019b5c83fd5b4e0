package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravityfall/calendar-booking-backend/internal/availability"
	"github.com/gravityfall/calendar-booking-backend/internal/booking"
	"github.com/gravityfall/calendar-booking-backend/internal/calendar"
)

type fakeRepo struct {
	booking.Repository
	byEvent   map[string]*booking.Booking
	statuses  map[string]booking.Status
	details   map[string]*booking.Booking
	synced    map[string]bool
	notes     map[string]string
	conflicts map[string]string
}

func newFakeRepo(bookings ...*booking.Booking) *fakeRepo {
	r := &fakeRepo{
		byEvent:   make(map[string]*booking.Booking),
		statuses:  make(map[string]booking.Status),
		details:   make(map[string]*booking.Booking),
		synced:    make(map[string]bool),
		notes:     make(map[string]string),
		conflicts: make(map[string]string),
	}
	for _, b := range bookings {
		if b.ExternalEventID != nil {
			r.byEvent[*b.ExternalEventID] = b
		}
	}
	return r
}

func (r *fakeRepo) GetByExternalEventID(_ context.Context, eventID string) (*booking.Booking, error) {
	b, ok := r.byEvent[eventID]
	if !ok {
		return nil, booking.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, id string, status booking.Status) error {
	r.statuses[id] = status
	return nil
}

func (r *fakeRepo) UpdateDetails(_ context.Context, b *booking.Booking) error {
	cp := *b
	r.details[b.ID] = &cp
	return nil
}

func (r *fakeRepo) MarkSynced(_ context.Context, id string, _ string) error {
	r.synced[id] = true
	return nil
}

func (r *fakeRepo) RecordSyncNote(_ context.Context, id string, note string) error {
	r.notes[id] = note
	return nil
}

func (r *fakeRepo) MarkSyncConflict(_ context.Context, id string, note string) error {
	r.conflicts[id] = note
	return nil
}

type fakeRecreator struct {
	calls int
}

func (f *fakeRecreator) RecreateSlot(_ context.Context, hostID string, start, end time.Time) (*availability.Slot, error) {
	f.calls++
	return &availability.Slot{HostID: hostID, StartTime: start, EndTime: end, IsAvailable: true}, nil
}

func seedBooking() *booking.Booking {
	start := time.Date(2026, 9, 10, 14, 0, 0, 0, time.UTC)
	evt := "evt-1"
	return &booking.Booking{
		ID:              "b1",
		HostID:          "h1",
		StartTime:       start,
		EndTime:         start.Add(time.Hour),
		Status:          booking.StatusConfirmed,
		ExternalEventID: &evt,
		SyncStatus:      booking.SyncSynced,
	}
}

func payloadFor(b *booking.Booking, start, end time.Time, status string) Payload {
	return Payload{Resource: Resource{
		ID:     *b.ExternalEventID,
		Start:  EventTime{DateTime: start.Format(time.RFC3339)},
		End:    EventTime{DateTime: end.Format(time.RFC3339)},
		Status: status,
	}}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"resource":{"id":"evt-1"}}`)

	sign := func(secret string) string {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		return hex.EncodeToString(mac.Sum(nil))
	}

	t.Run("Valid Signature", func(t *testing.T) {
		svc := NewService(newFakeRepo(), nil, "topsecret", Manual, nil)
		assert.NoError(t, svc.VerifySignature(body, sign("topsecret")))
	})

	t.Run("Wrong Secret", func(t *testing.T) {
		svc := NewService(newFakeRepo(), nil, "topsecret", Manual, nil)
		assert.ErrorIs(t, svc.VerifySignature(body, sign("other")), ErrInvalidSignature)
	})

	t.Run("Missing Signature", func(t *testing.T) {
		svc := NewService(newFakeRepo(), nil, "topsecret", Manual, nil)
		assert.ErrorIs(t, svc.VerifySignature(body, ""), ErrInvalidSignature)
	})

	t.Run("Empty Secret Disables Verification", func(t *testing.T) {
		svc := NewService(newFakeRepo(), nil, "", Manual, nil)
		assert.NoError(t, svc.VerifySignature(body, ""))
	})
}

func TestProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("Unknown Event Is Acknowledged NoOp", func(t *testing.T) {
		svc := NewService(newFakeRepo(), &fakeRecreator{}, "", Manual, nil)

		out, err := svc.Process(ctx, calendar.TypeGoogle, Payload{Resource: Resource{ID: "evt-unknown", Status: "confirmed"}})
		require.NoError(t, err)
		assert.Equal(t, "ignored", out.Action)
	})

	t.Run("Missing Resource ID Rejected", func(t *testing.T) {
		svc := NewService(newFakeRepo(), &fakeRecreator{}, "", Manual, nil)

		_, err := svc.Process(ctx, calendar.TypeGoogle, Payload{})
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("Matching Times Acknowledged", func(t *testing.T) {
		b := seedBooking()
		repo := newFakeRepo(b)
		svc := NewService(repo, &fakeRecreator{}, "", Manual, nil)

		out, err := svc.Process(ctx, calendar.TypeGoogle, payloadFor(b, b.StartTime, b.EndTime, "confirmed"))
		require.NoError(t, err)
		assert.Equal(t, "acknowledged", out.Action)
		assert.Empty(t, repo.conflicts)
	})
}

func TestProcessCancellation(t *testing.T) {
	ctx := context.Background()

	// Cancellation ignores the conflict mode entirely.
	for _, mode := range []ConflictMode{DatabaseWins, ProviderWins, Manual} {
		t.Run("Cancelled Wins Under "+string(mode), func(t *testing.T) {
			b := seedBooking()
			repo := newFakeRepo(b)
			slots := &fakeRecreator{}
			svc := NewService(repo, slots, "", mode, nil)

			out, err := svc.Process(ctx, calendar.TypeGoogle, payloadFor(b, b.StartTime, b.EndTime, "cancelled"))
			require.NoError(t, err)
			assert.Equal(t, "cancelled", out.Action)
			assert.Equal(t, booking.StatusCancelled, repo.statuses["b1"])
			assert.Equal(t, 1, slots.calls, "freed window re-opens")
		})
	}

	t.Run("Already Cancelled Is Idempotent", func(t *testing.T) {
		b := seedBooking()
		b.Status = booking.StatusCancelled
		repo := newFakeRepo(b)
		slots := &fakeRecreator{}
		svc := NewService(repo, slots, "", Manual, nil)

		out, err := svc.Process(ctx, calendar.TypeGoogle, payloadFor(b, b.StartTime, b.EndTime, "cancelled"))
		require.NoError(t, err)
		assert.Equal(t, "acknowledged", out.Action)
		assert.Equal(t, 0, slots.calls)
	})
}

func TestProcessTimeChange(t *testing.T) {
	ctx := context.Background()
	newStart := time.Date(2026, 9, 10, 16, 0, 0, 0, time.UTC)
	newEnd := newStart.Add(time.Hour)

	t.Run("Provider Wins Overwrites Local", func(t *testing.T) {
		b := seedBooking()
		repo := newFakeRepo(b)
		svc := NewService(repo, &fakeRecreator{}, "", ProviderWins, nil)

		out, err := svc.Process(ctx, calendar.TypeGoogle, payloadFor(b, newStart, newEnd, "confirmed"))
		require.NoError(t, err)
		assert.Equal(t, "updated", out.Action)

		updated := repo.details["b1"]
		require.NotNil(t, updated)
		assert.True(t, updated.StartTime.Equal(newStart))
		assert.True(t, updated.EndTime.Equal(newEnd))
		assert.True(t, repo.synced["b1"], "no push-back of mirrored values")
	})

	t.Run("Database Wins Notes Without Overwriting", func(t *testing.T) {
		b := seedBooking()
		repo := newFakeRepo(b)
		svc := NewService(repo, &fakeRecreator{}, "", DatabaseWins, nil)

		out, err := svc.Process(ctx, calendar.TypeGoogle, payloadFor(b, newStart, newEnd, "confirmed"))
		require.NoError(t, err)
		assert.Equal(t, "noted", out.Action)
		assert.Empty(t, repo.details, "local values untouched")
		assert.Contains(t, repo.notes["b1"], "google")
	})

	t.Run("Manual Flags Conflict", func(t *testing.T) {
		b := seedBooking()
		repo := newFakeRepo(b)
		svc := NewService(repo, &fakeRecreator{}, "", Manual, nil)

		out, err := svc.Process(ctx, calendar.TypeGoogle, payloadFor(b, newStart, newEnd, "confirmed"))
		require.NoError(t, err)
		assert.Equal(t, "conflict", out.Action)
		assert.Empty(t, repo.details)
		assert.Contains(t, repo.conflicts["b1"], "google")
	})

	t.Run("Unparseable Times Rejected", func(t *testing.T) {
		b := seedBooking()
		repo := newFakeRepo(b)
		svc := NewService(repo, &fakeRecreator{}, "", Manual, nil)

		p := payloadFor(b, newStart, newEnd, "confirmed")
		p.Resource.Start.DateTime = "yesterday"
		_, err := svc.Process(ctx, calendar.TypeGoogle, p)
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}
