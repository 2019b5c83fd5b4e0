package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines read access to host records.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Host, error)
	GetByEmail(ctx context.Context, email string) (*Host, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

// NewPgxRepository creates a new Repository implementation using pgxpool.
func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Host, error) {
	return r.getBy(ctx, squirrel.Eq{"id": id})
}

func (r *pgxRepository) GetByEmail(ctx context.Context, email string) (*Host, error) {
	return r.getBy(ctx, squirrel.Eq{"email": email})
}

func (r *pgxRepository) getBy(ctx context.Context, pred squirrel.Eq) (*Host, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"id", "email", "display_name", "timezone", "created_at", "updated_at",
	).
		From("public.hosts").
		Where(pred).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get host query failed: %w", err)
	}

	var h Host
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&h.ID, &h.Email, &h.DisplayName, &h.Timezone, &h.CreatedAt, &h.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get host failed: %w", err)
	}
	return &h, nil
}
