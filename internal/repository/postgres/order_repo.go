package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `id, order_number, client_id, freelancer_id, status, last_activity_at, created_at`

type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

func (r *OrderRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Order, error) {
	orders := make(map[uuid.UUID]*domain.Order, len(ids))
	if len(ids) == 0 {
		return orders, nil
	}

	rows, err := r.pool.Query(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders[o.ID] = o
	}
	return orders, rows.Err()
}

func (r *OrderRepo) TouchLastActivity(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE orders SET last_activity_at = $1 WHERE id = $2`, at, id)
	return err
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.Number, &o.ClientID, &o.FreelancerID, &o.Status, &o.LastActivityAt, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
