package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gravityfall/calendar-booking-backend/internal/calendar"
)

// Repository defines storage for calendar connections and their OAuth
// staging rows.
type Repository interface {
	Upsert(ctx context.Context, c *Connection) error
	GetByHostAndProvider(ctx context.Context, hostID string, provider calendar.Type) (*Connection, error)
	ListActive(ctx context.Context, hostID string) ([]*Connection, error)
	UpdateTokens(ctx context.Context, id string, accessToken string, refreshToken *string, expiry *time.Time) error
	Deactivate(ctx context.Context, hostID string, provider calendar.Type) error

	CreatePending(ctx context.Context, p *PendingConnection) error
	// ConsumePending fetches a non-expired staging row and deletes it in the
	// same transaction, so a connection can be completed at most once.
	ConsumePending(ctx context.Context, id string) (*PendingConnection, error)
	DeleteExpiredPending(ctx context.Context, now time.Time) (int, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

// NewPgxRepository creates a new Repository implementation using pgxpool.
func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

var connectionColumns = []string{
	"id", "host_id", "provider", "calendar_email", "access_token",
	"refresh_token", "token_expiry", "scope", "is_active", "created_at", "updated_at",
}

func scanConnection(row pgx.Row) (*Connection, error) {
	var c Connection
	err := row.Scan(
		&c.ID, &c.HostID, &c.Provider, &c.CalendarEmail, &c.AccessToken,
		&c.RefreshToken, &c.TokenExpiry, &c.Scope, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *pgxRepository) Upsert(ctx context.Context, c *Connection) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.calendar_connections").
		Columns("host_id", "provider", "calendar_email", "access_token", "refresh_token", "token_expiry", "scope", "is_active").
		Values(c.HostID, c.Provider, c.CalendarEmail, c.AccessToken, c.RefreshToken, c.TokenExpiry, c.Scope, true).
		Suffix(`ON CONFLICT (host_id, provider) DO UPDATE SET
			calendar_email = EXCLUDED.calendar_email,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry = EXCLUDED.token_expiry,
			scope = EXCLUDED.scope,
			is_active = true,
			updated_at = now()
		RETURNING id, created_at, updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert connection query failed: %w", err)
	}

	c.Active = true
	return r.pool.QueryRow(ctx, query, args...).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *pgxRepository) GetByHostAndProvider(ctx context.Context, hostID string, provider calendar.Type) (*Connection, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(connectionColumns...).
		From("public.calendar_connections").
		Where(squirrel.Eq{"host_id": hostID, "provider": provider}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get connection query failed: %w", err)
	}

	c, err := scanConnection(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get connection failed: %w", err)
	}
	return c, nil
}

func (r *pgxRepository) ListActive(ctx context.Context, hostID string) ([]*Connection, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(connectionColumns...).
		From("public.calendar_connections").
		Where(squirrel.Eq{"host_id": hostID, "is_active": true}).
		OrderBy("provider").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list connections query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list connections failed: %w", err)
	}
	defer rows.Close()

	var conns []*Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection failed: %w", err)
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

func (r *pgxRepository) UpdateTokens(ctx context.Context, id string, accessToken string, refreshToken *string, expiry *time.Time) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	builder := psql.Update("public.calendar_connections").
		Set("access_token", accessToken).
		Set("token_expiry", expiry).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id})

	// A refresh response may omit the refresh token; keep the stored one then.
	if refreshToken != nil {
		builder = builder.Set("refresh_token", refreshToken)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build update tokens query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update tokens failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) Deactivate(ctx context.Context, hostID string, provider calendar.Type) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.calendar_connections").
		Set("is_active", false).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"host_id": hostID, "provider": provider}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate connection query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deactivate connection failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) CreatePending(ctx context.Context, p *PendingConnection) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.pending_calendar_connections").
		Columns("id", "host_id", "calendar_email", "access_token", "refresh_token", "scope", "expires_at").
		Values(p.ID, p.HostID, p.CalendarEmail, p.AccessToken, p.RefreshToken, p.Scope, p.ExpiresAt).
		Suffix("RETURNING created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create pending connection query failed: %w", err)
	}

	return r.pool.QueryRow(ctx, query, args...).Scan(&p.CreatedAt)
}

func (r *pgxRepository) ConsumePending(ctx context.Context, id string) (*PendingConnection, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin consume pending tx failed: %w", err)
	}
	defer tx.Rollback(ctx)

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"id", "host_id", "calendar_email", "access_token", "refresh_token", "scope", "expires_at", "created_at",
	).
		From("public.pending_calendar_connections").
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Gt{"expires_at": time.Now().UTC()}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build consume pending query failed: %w", err)
	}

	var p PendingConnection
	if err := tx.QueryRow(ctx, query, args...).Scan(
		&p.ID, &p.HostID, &p.CalendarEmail, &p.AccessToken, &p.RefreshToken, &p.Scope, &p.ExpiresAt, &p.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPendingNotFound
		}
		return nil, fmt.Errorf("consume pending failed: %w", err)
	}

	del, args, err := psql.Delete("public.pending_calendar_connections").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build delete pending query failed: %w", err)
	}
	if _, err := tx.Exec(ctx, del, args...); err != nil {
		return nil, fmt.Errorf("delete pending failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit consume pending failed: %w", err)
	}
	return &p, nil
}

func (r *pgxRepository) DeleteExpiredPending(ctx context.Context, now time.Time) (int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Delete("public.pending_calendar_connections").
		Where(squirrel.LtOrEq{"expires_at": now}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup pending query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup pending failed: %w", err)
	}
	return int(ct.RowsAffected()), nil
}
