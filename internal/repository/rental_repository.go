package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"moradia/api/internal/models"
)

var (
	ErrRentalNotFound = errors.New("rental not found")

	// ErrOpenRentalExists surfaces the partial unique indexes guarding the
	// one-open-rental-per-listing and per-tenant invariants.
	ErrOpenRentalExists = errors.New("open rental already exists")
)

const uniqueViolation = "23505"

type RentalRepository struct {
	pool *pgxpool.Pool
}

func NewRentalRepository(pool *pgxpool.Pool) *RentalRepository {
	return &RentalRepository{pool: pool}
}

const rentalColumns = `id, listing_id, tenant_id, status, data_inicio, data_fim, created_at`

func scanRental(row pgx.Row) (models.Rental, error) {
	var rental models.Rental
	if err := row.Scan(
		&rental.ID,
		&rental.ListingID,
		&rental.TenantID,
		&rental.Status,
		&rental.StartDate,
		&rental.EndDate,
		&rental.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Rental{}, ErrRentalNotFound
		}
		return models.Rental{}, err
	}
	return rental, nil
}

func (r *RentalRepository) Create(ctx context.Context, rental models.Rental) error {
	const query = `
		INSERT INTO rentals (id, listing_id, tenant_id, status, data_inicio, data_fim, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	_, err := r.pool.Exec(ctx, query,
		rental.ID,
		rental.ListingID,
		rental.TenantID,
		rental.Status,
		rental.StartDate,
		rental.EndDate,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrOpenRentalExists
		}
		return err
	}
	return nil
}

func (r *RentalRepository) GetByID(ctx context.Context, id string) (models.Rental, error) {
	const query = `SELECT ` + rentalColumns + ` FROM rentals WHERE id = $1`
	return scanRental(r.pool.QueryRow(ctx, query, id))
}

func (r *RentalRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM rentals WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRentalNotFound
	}
	return nil
}

// SetActive confirms a pending rental, refreshing its start date.
func (r *RentalRepository) SetActive(ctx context.Context, id string, start time.Time) error {
	const query = `UPDATE rentals SET status = $2, data_inicio = $3 WHERE id = $1 AND status = $4`
	cmd, err := r.pool.Exec(ctx, query, id, models.RentalStatusActive, start, models.RentalStatusPending)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRentalNotFound
	}
	return nil
}

// SetFinished closes an active rental, stamping its end date.
func (r *RentalRepository) SetFinished(ctx context.Context, id string, end time.Time) error {
	const query = `UPDATE rentals SET status = $2, data_fim = $3 WHERE id = $1 AND status = $4`
	cmd, err := r.pool.Exec(ctx, query, id, models.RentalStatusFinished, end, models.RentalStatusActive)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRentalNotFound
	}
	return nil
}

func (r *RentalRepository) FindOpenByListing(ctx context.Context, listingID string) (models.Rental, error) {
	const query = `
		SELECT ` + rentalColumns + ` FROM rentals
		WHERE listing_id = $1 AND status IN ($2, $3)
	`
	return scanRental(r.pool.QueryRow(ctx, query, listingID, models.RentalStatusPending, models.RentalStatusActive))
}

func (r *RentalRepository) FindOpenByTenant(ctx context.Context, tenantID string) (models.Rental, error) {
	const query = `
		SELECT ` + rentalColumns + ` FROM rentals
		WHERE tenant_id = $1 AND status IN ($2, $3)
	`
	return scanRental(r.pool.QueryRow(ctx, query, tenantID, models.RentalStatusPending, models.RentalStatusActive))
}

func (r *RentalRepository) ListByTenant(ctx context.Context, tenantID string) ([]models.Rental, error) {
	const query = `
		SELECT ` + rentalColumns + ` FROM rentals
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, tenantID)
}

func (r *RentalRepository) ListByListings(ctx context.Context, listingIDs []string) ([]models.Rental, error) {
	const query = `
		SELECT ` + rentalColumns + ` FROM rentals
		WHERE listing_id = ANY($1)
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, listingIDs)
}

func (r *RentalRepository) list(ctx context.Context, query string, arg any) ([]models.Rental, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rentals []models.Rental
	for rows.Next() {
		rental, err := scanRental(rows)
		if err != nil {
			return nil, err
		}
		rentals = append(rentals, rental)
	}
	return rentals, rows.Err()
}
