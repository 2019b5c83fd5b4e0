package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines storage for bookings.
type Repository interface {
	// CreateConsumingSlot atomically re-validates the slot under a row lock,
	// inserts the booking and deletes the slot. Exactly one of two racing
	// callers wins; the loser gets ErrSlotUnavailable.
	CreateConsumingSlot(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id string) (*Booking, error)
	GetByExternalEventID(ctx context.Context, providerEventID string) (*Booking, error)
	List(ctx context.Context, filter Filter) ([]*Booking, int, error)

	UpdateStatus(ctx context.Context, id string, status Status) error
	// UpdateDetails persists time and guest field changes (reschedule, webhook).
	UpdateDetails(ctx context.Context, b *Booking) error
	Delete(ctx context.Context, id string) error

	// Sync bookkeeping. The sync orchestrator is the only writer of these.
	MarkSynced(ctx context.Context, id string, providerEventID string) error
	MarkSyncFailed(ctx context.Context, id string, message string) error
	MarkSyncConflict(ctx context.Context, id string, note string) error
	RecordSyncNote(ctx context.Context, id string, note string) error
	MarkSyncPending(ctx context.Context, id string) error

	ListNeedingSync(ctx context.Context, q SyncQuery) ([]*Booking, error)

	// HasActiveOverlap checks non-cancelled bookings of the host against
	// [start, end). excludeBookingID ignores the booking itself on updates.
	HasActiveOverlap(ctx context.Context, hostID string, start, end time.Time, excludeBookingID string) (bool, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

// NewPgxRepository creates a new Repository implementation using pgxpool.
func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

var bookingColumns = []string{
	"id", "host_id", "slot_id", "guest_name", "guest_email", "guest_message",
	"start_time", "end_time", "status",
	"external_event_id", "sync_status", "sync_error", "sync_attempts", "last_synced_at",
	"created_at", "updated_at",
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(
		&b.ID, &b.HostID, &b.SlotID, &b.GuestName, &b.GuestEmail, &b.GuestMessage,
		&b.StartTime, &b.EndTime, &b.Status,
		&b.ExternalEventID, &b.SyncStatus, &b.SyncError, &b.SyncAttempts, &b.LastSyncedAt,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *pgxRepository) CreateConsumingSlot(ctx context.Context, b *Booking) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin booking tx failed: %w", err)
	}
	defer tx.Rollback(ctx)

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	// Lock the slot row. The second of two racing bookings blocks here and
	// then sees the slot gone.
	lockQuery, args, err := psql.Select("id", "host_id", "start_time", "end_time", "is_available").
		From("public.availability_slots").
		Where(squirrel.Eq{"id": b.SlotID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return fmt.Errorf("build slot lock query failed: %w", err)
	}

	var (
		slotID, hostID     string
		slotStart, slotEnd time.Time
		isAvailable        bool
	)
	if err := tx.QueryRow(ctx, lockQuery, args...).Scan(&slotID, &hostID, &slotStart, &slotEnd, &isAvailable); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSlotUnavailable
		}
		return fmt.Errorf("lock slot failed: %w", err)
	}

	if !isAvailable || !slotStart.After(time.Now().UTC()) {
		return ErrSlotUnavailable
	}

	// Re-validate under the lock: no active booking may reference the slot
	// or overlap its range.
	refQuery, refArgs, err := psql.Select("1").
		From("public.bookings").
		Where(squirrel.Eq{"host_id": hostID}).
		Where(squirrel.NotEq{"status": StatusCancelled}).
		Where(squirrel.Or{
			squirrel.Eq{"slot_id": slotID},
			squirrel.And{
				squirrel.Lt{"start_time": slotEnd},
				squirrel.Gt{"end_time": slotStart},
			},
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build booking recheck query failed: %w", err)
	}

	var taken bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS ("+refQuery+")", refArgs...).Scan(&taken); err != nil {
		return fmt.Errorf("booking recheck failed: %w", err)
	}
	if taken {
		return ErrSlotUnavailable
	}

	// The slot's stored range is authoritative for the booking's times.
	b.HostID = hostID
	b.StartTime = slotStart
	b.EndTime = slotEnd
	b.Status = StatusConfirmed
	b.SyncStatus = SyncPending

	insert, insertArgs, err := psql.Insert("public.bookings").
		Columns("host_id", "slot_id", "guest_name", "guest_email", "guest_message",
			"start_time", "end_time", "status", "sync_status").
		Values(b.HostID, b.SlotID, b.GuestName, b.GuestEmail, b.GuestMessage,
			b.StartTime, b.EndTime, b.Status, b.SyncStatus).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create booking query failed: %w", err)
	}

	if err := tx.QueryRow(ctx, insert, insertArgs...).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ExclusionViolation {
			return ErrTimeConflict
		}
		return fmt.Errorf("create booking failed: %w", err)
	}

	// A booked slot is never left bookable: consume it in the same tx.
	del, delArgs, err := psql.Delete("public.availability_slots").
		Where(squirrel.Eq{"id": slotID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume slot query failed: %w", err)
	}
	if _, err := tx.Exec(ctx, del, delArgs...); err != nil {
		return fmt.Errorf("consume slot failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit booking tx failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Booking, error) {
	return r.getBy(ctx, squirrel.Eq{"id": id})
}

func (r *pgxRepository) GetByExternalEventID(ctx context.Context, providerEventID string) (*Booking, error) {
	return r.getBy(ctx, squirrel.Eq{"external_event_id": providerEventID})
}

func (r *pgxRepository) getBy(ctx context.Context, pred squirrel.Eq) (*Booking, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(bookingColumns...).
		From("public.bookings").
		Where(pred).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get booking query failed: %w", err)
	}

	b, err := scanBooking(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking failed: %w", err)
	}
	return b, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	cols := append([]string{}, bookingColumns...)
	cols = append(cols, "count(*) OVER() AS total_count")
	query := psql.Select(cols...).From("public.bookings")

	if filter.HostID != "" {
		query = query.Where(squirrel.Eq{"host_id": filter.HostID})
	}
	if filter.Status != "" {
		query = query.Where(squirrel.Eq{"status": filter.Status})
	}
	// Date range filtering (intersection logic)
	if filter.StartTime != nil {
		query = query.Where(squirrel.GtOrEq{"end_time": filter.StartTime})
	}
	if filter.EndTime != nil {
		query = query.Where(squirrel.LtOrEq{"start_time": filter.EndTime})
	}

	orderBy := "start_time"
	if filter.SortBy != "" {
		orderBy = filter.SortBy
	}
	orderDir := "DESC"
	if filter.SortOrder != "" {
		orderDir = filter.SortOrder
	}
	query = query.OrderBy(orderBy + " " + orderDir)

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize
	query = query.Limit(uint64(filter.PageSize)).Offset(uint64(offset))

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list bookings query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings failed: %w", err)
	}
	defer rows.Close()

	var bookings []*Booking
	var total int

	for rows.Next() {
		var b Booking
		if err := rows.Scan(
			&b.ID, &b.HostID, &b.SlotID, &b.GuestName, &b.GuestEmail, &b.GuestMessage,
			&b.StartTime, &b.EndTime, &b.Status,
			&b.ExternalEventID, &b.SyncStatus, &b.SyncError, &b.SyncAttempts, &b.LastSyncedAt,
			&b.CreatedAt, &b.UpdatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan booking failed: %w", err)
		}
		bookings = append(bookings, &b)
	}

	return bookings, total, rows.Err()
}

func (r *pgxRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.bookings").
		Set("status", status).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update booking status query failed: %w", err)
	}
	return r.exec(ctx, query, args)
}

func (r *pgxRepository) UpdateDetails(ctx context.Context, b *Booking) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.bookings").
		Set("guest_name", b.GuestName).
		Set("guest_message", b.GuestMessage).
		Set("start_time", b.StartTime).
		Set("end_time", b.EndTime).
		Set("status", b.Status).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": b.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update booking query failed: %w", err)
	}
	return r.exec(ctx, query, args)
}

func (r *pgxRepository) Delete(ctx context.Context, id string) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Delete("public.bookings").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete booking query failed: %w", err)
	}
	return r.exec(ctx, query, args)
}

func (r *pgxRepository) MarkSynced(ctx context.Context, id string, providerEventID string) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	builder := psql.Update("public.bookings").
		Set("sync_status", SyncSynced).
		Set("sync_error", nil).
		Set("sync_attempts", squirrel.Expr("sync_attempts + 1")).
		Set("last_synced_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id})

	if providerEventID != "" {
		builder = builder.Set("external_event_id", providerEventID)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build mark synced query failed: %w", err)
	}
	return r.exec(ctx, query, args)
}

// markSyncFailedQuery bumps updated_at alongside the sync fields: the worker
// anchors its retry backoff on updated_at, so each failed attempt must move
// the anchor or the exponential schedule never engages.
func markSyncFailedQuery(id string, message string) (string, []interface{}, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	return psql.Update("public.bookings").
		Set("sync_status", SyncFailed).
		Set("sync_error", message).
		Set("sync_attempts", squirrel.Expr("sync_attempts + 1")).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
}

func (r *pgxRepository) MarkSyncFailed(ctx context.Context, id string, message string) error {
	query, args, err := markSyncFailedQuery(id, message)
	if err != nil {
		return fmt.Errorf("build mark sync failed query failed: %w", err)
	}
	return r.exec(ctx, query, args)
}

func (r *pgxRepository) MarkSyncConflict(ctx context.Context, id string, note string) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.bookings").
		Set("sync_status", SyncConflict).
		Set("sync_error", note).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark sync conflict query failed: %w", err)
	}
	return r.exec(ctx, query, args)
}

// RecordSyncNote annotates the booking without touching its sync status or
// updated_at, so the note neither blocks nor triggers worker pushes.
func (r *pgxRepository) RecordSyncNote(ctx context.Context, id string, note string) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.bookings").
		Set("sync_error", note).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record sync note query failed: %w", err)
	}
	return r.exec(ctx, query, args)
}

func (r *pgxRepository) MarkSyncPending(ctx context.Context, id string) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.bookings").
		Set("sync_status", SyncPending).
		Set("sync_error", nil).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark sync pending query failed: %w", err)
	}
	return r.exec(ctx, query, args)
}

// listNeedingSyncQuery builds the retry selection. Bookings of hosts without
// an active calendar connection are excluded: they have nowhere to push, and
// left in they would age to the front of the updated_at ordering and crowd
// real sync debt out of the batch. Their rows stay pending and re-enter the
// queue as soon as a connection appears.
func listNeedingSyncQuery(q SyncQuery, now time.Time) (string, []interface{}, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	windowStart := now.Add(-q.UpdatedWithin)

	// Cancelled bookings stay eligible: a failed provider delete is sync
	// debt like any other.
	query := psql.Select(bookingColumns...).
		From("public.bookings").
		Where(squirrel.Expr(
			"EXISTS (SELECT 1 FROM public.calendar_connections c WHERE c.host_id = bookings.host_id AND c.is_active)")).
		Where(squirrel.Or{
			// Sync debt that has not exhausted its retry budget.
			squirrel.And{
				squirrel.Eq{"sync_status": []SyncStatus{SyncPending, SyncFailed}},
				squirrel.Lt{"sync_attempts": q.MaxAttempts},
			},
			// Recently changed bookings whose last push predates the change.
			squirrel.And{
				squirrel.Eq{"sync_status": SyncSynced},
				squirrel.GtOrEq{"updated_at": windowStart},
				squirrel.Expr("updated_at > COALESCE(last_synced_at, 'epoch'::timestamptz)"),
			},
		}).
		OrderBy("updated_at ASC")

	if q.Limit > 0 {
		query = query.Limit(uint64(q.Limit))
	}

	return query.ToSql()
}

func (r *pgxRepository) ListNeedingSync(ctx context.Context, q SyncQuery) ([]*Booking, error) {
	sql, args, err := listNeedingSyncQuery(q, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("build list needing sync query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list needing sync failed: %w", err)
	}
	defer rows.Close()

	var bookings []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking failed: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (r *pgxRepository) HasActiveOverlap(ctx context.Context, hostID string, start, end time.Time, excludeBookingID string) (bool, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	sub := psql.Select("1").
		From("public.bookings").
		Where(squirrel.Eq{"host_id": hostID}).
		Where(squirrel.NotEq{"status": StatusCancelled}).
		Where(squirrel.Lt{"start_time": end}).
		Where(squirrel.Gt{"end_time": start})

	if excludeBookingID != "" {
		sub = sub.Where(squirrel.NotEq{"id": excludeBookingID})
	}

	sql, args, err := sub.ToSql()
	if err != nil {
		return false, fmt.Errorf("build booking overlap query failed: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, "SELECT EXISTS ("+sql+")", args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check booking overlap failed: %w", err)
	}
	return exists, nil
}

func (r *pgxRepository) exec(ctx context.Context, query string, args []interface{}) error {
	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec booking query failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
