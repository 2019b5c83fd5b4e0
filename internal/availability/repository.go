package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gravityfall/calendar-booking-backend/internal/timeutil"
)

// Repository defines storage for availability slots.
type Repository interface {
	Create(ctx context.Context, s *Slot) error
	GetByID(ctx context.Context, id string) (*Slot, error)
	// ListAvailable returns bookable slots: available, starting in the
	// future, and not referenced by any confirmed booking. window narrows the
	// result to slots starting inside it.
	ListAvailable(ctx context.Context, hostID string, window *timeutil.Range) ([]*Slot, error)
	List(ctx context.Context, hostID string, includeUnavailable bool) ([]*Slot, error)
	// HasOverlap checks available slots of the host against [start, end).
	HasOverlap(ctx context.Context, hostID string, start, end time.Time) (bool, error)
	// HasBooking reports whether any booking of any status references the slot.
	HasBooking(ctx context.Context, slotID string) (bool, error)
	SetExternalEventID(ctx context.Context, id string, eventID *string) error
	Delete(ctx context.Context, id string) error
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

// NewPgxRepository creates a new Repository implementation using pgxpool.
func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

var slotColumns = []string{
	"id", "host_id", "start_time", "end_time", "is_available", "external_event_id", "created_at", "updated_at",
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(
		&s.ID, &s.HostID, &s.StartTime, &s.EndTime, &s.IsAvailable, &s.ExternalEventID, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *pgxRepository) Create(ctx context.Context, s *Slot) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.availability_slots").
		Columns("host_id", "start_time", "end_time", "is_available", "external_event_id").
		Values(s.HostID, s.StartTime, s.EndTime, s.IsAvailable, s.ExternalEventID).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create slot query failed: %w", err)
	}

	return r.pool.QueryRow(ctx, query, args...).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Slot, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(slotColumns...).
		From("public.availability_slots").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get slot query failed: %w", err)
	}

	s, err := scanSlot(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get slot failed: %w", err)
	}
	return s, nil
}

func (r *pgxRepository) ListAvailable(ctx context.Context, hostID string, window *timeutil.Range) ([]*Slot, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query := psql.Select(slotColumns...).
		From("public.availability_slots s").
		Where(squirrel.Eq{"host_id": hostID, "is_available": true}).
		Where(squirrel.Gt{"start_time": time.Now().UTC()}).
		// Belt and braces: a slot referenced by a confirmed booking is not
		// bookable even if consumption failed to remove it.
		Where(squirrel.Expr(`NOT EXISTS (
			SELECT 1 FROM public.bookings b
			WHERE b.slot_id = s.id AND b.status = 'confirmed'
		)`)).
		OrderBy("start_time ASC")

	if window != nil {
		query = query.
			Where(squirrel.GtOrEq{"start_time": window.Start}).
			Where(squirrel.Lt{"start_time": window.End})
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list available slots query failed: %w", err)
	}

	return r.querySlots(ctx, sql, args)
}

func (r *pgxRepository) List(ctx context.Context, hostID string, includeUnavailable bool) ([]*Slot, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query := psql.Select(slotColumns...).
		From("public.availability_slots").
		Where(squirrel.Eq{"host_id": hostID}).
		OrderBy("start_time ASC")

	if !includeUnavailable {
		query = query.Where(squirrel.Eq{"is_available": true})
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list slots query failed: %w", err)
	}

	return r.querySlots(ctx, sql, args)
}

func (r *pgxRepository) querySlots(ctx context.Context, sql string, args []interface{}) ([]*Slot, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list slots failed: %w", err)
	}
	defer rows.Close()

	var slots []*Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot failed: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func (r *pgxRepository) HasOverlap(ctx context.Context, hostID string, start, end time.Time) (bool, error) {
	// Half-open interval test: (NewStart < ExistingEnd) AND (NewEnd > ExistingStart)
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	sub, args, err := psql.Select("1").
		From("public.availability_slots").
		Where(squirrel.Eq{"host_id": hostID, "is_available": true}).
		Where(squirrel.Lt{"start_time": end}).
		Where(squirrel.Gt{"end_time": start}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build slot overlap query failed: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, "SELECT EXISTS ("+sub+")", args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check slot overlap failed: %w", err)
	}
	return exists, nil
}

func (r *pgxRepository) HasBooking(ctx context.Context, slotID string) (bool, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	sub, args, err := psql.Select("1").
		From("public.bookings").
		Where(squirrel.Eq{"slot_id": slotID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build slot booking query failed: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, "SELECT EXISTS ("+sub+")", args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check slot booking failed: %w", err)
	}
	return exists, nil
}

func (r *pgxRepository) SetExternalEventID(ctx context.Context, id string, eventID *string) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.availability_slots").
		Set("external_event_id", eventID).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set slot event id query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set slot event id failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) Delete(ctx context.Context, id string) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Delete("public.availability_slots").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete slot query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete slot failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
