package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type FavoriteRepository struct {
	pool *pgxpool.Pool
}

func NewFavoriteRepository(pool *pgxpool.Pool) *FavoriteRepository {
	return &FavoriteRepository{pool: pool}
}

func (r *FavoriteRepository) Add(ctx context.Context, userID, listingID string) error {
	const query = `
		INSERT INTO favorites (user_id, listing_id) VALUES ($1, $2)
		ON CONFLICT (user_id, listing_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, userID, listingID)
	return err
}

func (r *FavoriteRepository) Remove(ctx context.Context, userID, listingID string) error {
	const query = `DELETE FROM favorites WHERE user_id = $1 AND listing_id = $2`
	_, err := r.pool.Exec(ctx, query, userID, listingID)
	return err
}

func (r *FavoriteRepository) Exists(ctx context.Context, userID, listingID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM favorites WHERE user_id = $1 AND listing_id = $2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, userID, listingID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *FavoriteRepository) ListIDs(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT listing_id FROM favorites WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
