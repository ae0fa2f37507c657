package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"moradia/api/internal/models"
)

var (
	ErrListingNotFound = errors.New("listing not found")

	// ErrStatusConflict means a conditional status transition found the
	// listing in a different state than expected.
	ErrStatusConflict = errors.New("listing status conflict")
)

type ListingRepository struct {
	pool *pgxpool.Pool
}

func NewListingRepository(pool *pgxpool.Pool) *ListingRepository {
	return &ListingRepository{pool: pool}
}

const listingColumns = `
	id, proprietario_id, titulo, descricao, latitude, longitude, endereco, preco,
	tipo, status, quartos, banheiros, mobiliado, permitido_pet, garagem, area,
	proximidade_sede, proximidade_quinta, created_at, updated_at`

func scanListing(row pgx.Row) (models.Listing, error) {
	var l models.Listing
	if err := row.Scan(
		&l.ID,
		&l.OwnerID,
		&l.Title,
		&l.Description,
		&l.Latitude,
		&l.Longitude,
		&l.Address,
		&l.Price,
		&l.Type,
		&l.Status,
		&l.Bedrooms,
		&l.Bathrooms,
		&l.Furnished,
		&l.PetsAllowed,
		&l.Garage,
		&l.Area,
		&l.DistanceSede,
		&l.DistanceQuinta,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Listing{}, ErrListingNotFound
		}
		return models.Listing{}, err
	}
	return l, nil
}

func (r *ListingRepository) Create(ctx context.Context, l models.Listing) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const query = `
		INSERT INTO listings (
			id, proprietario_id, titulo, descricao, latitude, longitude, endereco, preco,
			tipo, status, quartos, banheiros, mobiliado, permitido_pet, garagem, area,
			proximidade_sede, proximidade_quinta, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, NOW(), NOW()
		)
	`
	if _, err := tx.Exec(ctx, query,
		l.ID, l.OwnerID, l.Title, l.Description, l.Latitude, l.Longitude, l.Address, l.Price,
		l.Type, l.Status, l.Bedrooms, l.Bathrooms, l.Furnished, l.PetsAllowed, l.Garage, l.Area,
		l.DistanceSede, l.DistanceQuinta,
	); err != nil {
		return err
	}

	if err := insertImages(ctx, tx, l.ID, l.Images); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func insertImages(ctx context.Context, tx pgx.Tx, listingID string, urls []string) error {
	const query = `INSERT INTO listing_images (listing_id, position, url) VALUES ($1, $2, $3)`
	for i, u := range urls {
		if _, err := tx.Exec(ctx, query, listingID, i, u); err != nil {
			return err
		}
	}
	return nil
}

func (r *ListingRepository) GetByID(ctx context.Context, id string) (models.Listing, error) {
	const query = `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`
	l, err := scanListing(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return models.Listing{}, err
	}

	images, err := r.imagesFor(ctx, []string{id})
	if err != nil {
		return models.Listing{}, err
	}
	l.Images = images[id]
	return l, nil
}

func (r *ListingRepository) Update(ctx context.Context, l models.Listing, replaceImages bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const query = `
		UPDATE listings
		SET titulo = $2, descricao = $3, latitude = $4, longitude = $5, endereco = $6,
		    preco = $7, tipo = $8, status = $9, quartos = $10, banheiros = $11,
		    mobiliado = $12, permitido_pet = $13, garagem = $14, area = $15,
		    proximidade_sede = $16, proximidade_quinta = $17, updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := tx.Exec(ctx, query,
		l.ID, l.Title, l.Description, l.Latitude, l.Longitude, l.Address,
		l.Price, l.Type, l.Status, l.Bedrooms, l.Bathrooms,
		l.Furnished, l.PetsAllowed, l.Garage, l.Area,
		l.DistanceSede, l.DistanceQuinta,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrListingNotFound
	}

	if replaceImages {
		if _, err := tx.Exec(ctx, `DELETE FROM listing_images WHERE listing_id = $1`, l.ID); err != nil {
			return err
		}
		if err := insertImages(ctx, tx, l.ID, l.Images); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *ListingRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrListingNotFound
	}
	return nil
}

// TransitionStatus atomically moves a listing from one status to another.
// The conditional UPDATE is what serializes concurrent rental starts: of
// two racing transitions only one sees a row in the expected state.
func (r *ListingRepository) TransitionStatus(ctx context.Context, id string, from, to models.ListingStatus) error {
	const query = `UPDATE listings SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	cmd, err := r.pool.Exec(ctx, query, id, from, to)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}

	var current models.ListingStatus
	if err := r.pool.QueryRow(ctx, `SELECT status FROM listings WHERE id = $1`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrListingNotFound
		}
		return err
	}
	return fmt.Errorf("%w: have %s, want %s", ErrStatusConflict, current, from)
}

func (r *ListingRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Listing, error) {
	const query = `SELECT ` + listingColumns + ` FROM listings WHERE proprietario_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return r.attachImages(ctx, listings)
}

// SearchFilter restricts and orders a listing search. Zero values mean "no
// restriction"; SortColumn must come from the validated allow-list.
type SearchFilter struct {
	OwnerID      string
	IDs          []string
	Type         string
	Status       string
	PriceMin     *float64
	PriceMax     *float64
	AreaMin      *float64
	AreaMax      *float64
	BedroomsMin  *int
	BathroomsMin *int
	Furnished    *bool
	PetsAllowed  *bool
	Garage       *bool
	Address      string
	Text         string
	SortColumn   string
	SortDesc     bool
	Limit        int
	Offset       int
}

func (f SearchFilter) build() (string, []any) {
	var clauses []string
	var args []any

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.OwnerID != "" {
		add("proprietario_id = $%d", f.OwnerID)
	}
	if f.IDs != nil {
		add("id = ANY($%d)", f.IDs)
	}
	if f.Type != "" {
		add("tipo = $%d", f.Type)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.PriceMin != nil {
		add("preco >= $%d", *f.PriceMin)
	}
	if f.PriceMax != nil {
		add("preco <= $%d", *f.PriceMax)
	}
	if f.AreaMin != nil {
		add("area >= $%d", *f.AreaMin)
	}
	if f.AreaMax != nil {
		add("area <= $%d", *f.AreaMax)
	}
	if f.BedroomsMin != nil {
		add("quartos >= $%d", *f.BedroomsMin)
	}
	if f.BathroomsMin != nil {
		add("banheiros >= $%d", *f.BathroomsMin)
	}
	if f.Furnished != nil {
		add("mobiliado = $%d", *f.Furnished)
	}
	if f.PetsAllowed != nil {
		add("permitido_pet = $%d", *f.PetsAllowed)
	}
	if f.Garage != nil {
		add("garagem = $%d", *f.Garage)
	}
	if f.Address != "" {
		add("endereco ILIKE '%%' || $%d || '%%'", f.Address)
	}
	if f.Text != "" {
		args = append(args, f.Text)
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			"(titulo ILIKE '%%' || $%d || '%%' OR descricao ILIKE '%%' || $%d || '%%' OR endereco ILIKE '%%' || $%d || '%%')",
			n, n, n))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *ListingRepository) Search(ctx context.Context, f SearchFilter) ([]models.Listing, int, error) {
	where, args := f.build()

	countQuery := `SELECT COUNT(*) FROM listings` + where
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "created_at DESC"
	if f.SortColumn != "" {
		direction := "ASC"
		if f.SortDesc {
			direction = "DESC"
		}
		order = f.SortColumn + " " + direction
	}

	query := fmt.Sprintf(`SELECT %s FROM listings%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		listingColumns, where, order, len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, 0, err
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	listings, err = r.attachImages(ctx, listings)
	if err != nil {
		return nil, 0, err
	}
	return listings, total, nil
}

func (r *ListingRepository) attachImages(ctx context.Context, listings []models.Listing) ([]models.Listing, error) {
	if len(listings) == 0 {
		return listings, nil
	}

	ids := make([]string, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.ID)
	}

	images, err := r.imagesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range listings {
		listings[i].Images = images[listings[i].ID]
	}
	return listings, nil
}

func (r *ListingRepository) imagesFor(ctx context.Context, listingIDs []string) (map[string][]string, error) {
	const query = `
		SELECT listing_id, url FROM listing_images
		WHERE listing_id = ANY($1)
		ORDER BY listing_id, position
	`
	rows, err := r.pool.Query(ctx, query, listingIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := make(map[string][]string, len(listingIDs))
	for rows.Next() {
		var listingID, u string
		if err := rows.Scan(&listingID, &u); err != nil {
			return nil, err
		}
		images[listingID] = append(images[listingID], u)
	}
	return images, rows.Err()
}
