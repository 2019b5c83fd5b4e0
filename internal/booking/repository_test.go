package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListNeedingSyncQuery(t *testing.T) {
	q := SyncQuery{MaxAttempts: 3, UpdatedWithin: time.Hour, Limit: 50}
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	sql, args, err := listNeedingSyncQuery(q, now)
	require.NoError(t, err)

	t.Run("Skips Hosts Without Active Connection", func(t *testing.T) {
		// A host with no calendar has nothing to push; left in the selection
		// its rows would sit at the front of the updated_at ordering forever
		// and starve real sync debt out of the capped batch.
		assert.Contains(t, sql,
			"EXISTS (SELECT 1 FROM public.calendar_connections c WHERE c.host_id = bookings.host_id AND c.is_active)")
	})

	t.Run("Selects Retryable Debt And Stale Synced Rows", func(t *testing.T) {
		assert.Contains(t, sql, "sync_status IN")
		assert.Contains(t, sql, "sync_attempts <")
		assert.Contains(t, sql, "updated_at > COALESCE(last_synced_at, 'epoch'::timestamptz)")
		assert.Contains(t, args, SyncPending)
		assert.Contains(t, args, SyncFailed)
		assert.Contains(t, args, 3)
		assert.Contains(t, args, now.Add(-time.Hour))
	})

	t.Run("Orders Oldest First With Capped Batch", func(t *testing.T) {
		assert.Contains(t, sql, "ORDER BY updated_at ASC")
		assert.Contains(t, sql, "LIMIT 50")
	})

	t.Run("No Limit When Unset", func(t *testing.T) {
		sql, _, err := listNeedingSyncQuery(SyncQuery{MaxAttempts: 3, UpdatedWithin: time.Hour}, now)
		require.NoError(t, err)
		assert.NotContains(t, sql, "LIMIT")
	})
}

func TestMarkSyncFailedQuery(t *testing.T) {
	sql, args, err := markSyncFailedQuery("b1", "google: timeout")
	require.NoError(t, err)

	// The worker measures retry backoff from updated_at, so every failed
	// attempt has to move it.
	assert.Contains(t, sql, "updated_at = now()")
	assert.Contains(t, sql, "sync_attempts = sync_attempts + 1")
	assert.Contains(t, args, SyncFailed)
	assert.Contains(t, args, "google: timeout")
	assert.Contains(t, args, "b1")
}
