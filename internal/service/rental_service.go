package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"moradia/api/internal/apperr"
	"moradia/api/internal/ids"
	"moradia/api/internal/models"
	"moradia/api/internal/repository"
)

// ListingStore is the listing access the lifecycle engine needs. The
// conditional TransitionStatus is the engine's only write path into a
// listing, which keeps the paired records consistent under concurrency.
type ListingStore interface {
	GetByID(ctx context.Context, id string) (models.Listing, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Listing, error)
	TransitionStatus(ctx context.Context, id string, from, to models.ListingStatus) error
}

type RentalStore interface {
	Create(ctx context.Context, rental models.Rental) error
	GetByID(ctx context.Context, id string) (models.Rental, error)
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, start time.Time) error
	SetFinished(ctx context.Context, id string, end time.Time) error
	FindOpenByListing(ctx context.Context, listingID string) (models.Rental, error)
	FindOpenByTenant(ctx context.Context, tenantID string) (models.Rental, error)
	ListByTenant(ctx context.Context, tenantID string) ([]models.Rental, error)
	ListByListings(ctx context.Context, listingIDs []string) ([]models.Rental, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

// RentalService drives the coupled listing/rental state machine:
//
//	listing: disponivel -> pendente -> alugado -> disponivel
//	rental:  (none)     -> pendente -> ativo   -> finalizado
//
// with cancellation deleting the pending rental and freeing the listing.
type RentalService struct {
	listings ListingStore
	rentals  RentalStore
	users    UserStore
	log      zerolog.Logger
	now      func() time.Time
}

func NewRentalService(listings ListingStore, rentals RentalStore, users UserStore, log zerolog.Logger) *RentalService {
	return &RentalService{
		listings: listings,
		rentals:  rentals,
		users:    users,
		log:      log,
		now:      time.Now,
	}
}

// RentalDetail is a rental with its related entities resolved.
type RentalDetail struct {
	Rental  models.Rental
	Listing models.Listing
	Tenant  *models.User
}

// RentalBuckets partitions rentals by lifecycle stage, newest first.
type RentalBuckets struct {
	Pending  []RentalDetail
	Active   []RentalDetail
	Finished []RentalDetail
}

// Start creates a pending rental for a student on the actor's available
// listing and reserves the listing. The reservation is an atomic
// compare-and-set, so two concurrent starts on the same listing cannot both
// succeed.
func (s *RentalService) Start(ctx context.Context, listingID, studentID, actorID string) (RentalDetail, error) {
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, repository.ErrListingNotFound) {
			return RentalDetail{}, apperr.NotFound("Imóvel não encontrado.")
		}
		return RentalDetail{}, err
	}

	if listing.OwnerID != actorID {
		return RentalDetail{}, apperr.Authorization("Você não tem permissão para alugar este imóvel.")
	}

	if listing.Status != models.ListingStatusAvailable {
		return RentalDetail{}, apperr.Conflict("O imóvel não está disponível para aluguel.")
	}

	student, err := s.users.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return RentalDetail{}, apperr.Validation("Estudante inválido ou não encontrado.")
		}
		return RentalDetail{}, err
	}
	if student.Role != models.UserRoleStudent {
		return RentalDetail{}, apperr.Validation("Estudante inválido ou não encontrado.")
	}

	if _, err := s.rentals.FindOpenByTenant(ctx, studentID); err == nil {
		return RentalDetail{}, apperr.Conflict("Este estudante já possui um aluguel ativo ou pendente.")
	} else if !errors.Is(err, repository.ErrRentalNotFound) {
		return RentalDetail{}, err
	}

	if err := s.listings.TransitionStatus(ctx, listingID, models.ListingStatusAvailable, models.ListingStatusPending); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return RentalDetail{}, apperr.Conflict("O imóvel não está disponível para aluguel.")
		}
		if errors.Is(err, repository.ErrListingNotFound) {
			return RentalDetail{}, apperr.NotFound("Imóvel não encontrado.")
		}
		return RentalDetail{}, err
	}

	rental := models.Rental{
		ID:        ids.New(),
		ListingID: listingID,
		TenantID:  studentID,
		Status:    models.RentalStatusPending,
		StartDate: s.now(),
		EndDate:   nil,
	}

	if err := s.rentals.Create(ctx, rental); err != nil {
		s.revertListing(ctx, listingID, models.ListingStatusPending, models.ListingStatusAvailable)
		if errors.Is(err, repository.ErrOpenRentalExists) {
			return RentalDetail{}, apperr.Conflict("Este estudante já possui um aluguel ativo ou pendente.")
		}
		return RentalDetail{}, fmt.Errorf("create rental: %w", err)
	}

	listing.Status = models.ListingStatusPending
	return RentalDetail{Rental: rental, Listing: listing, Tenant: &student}, nil
}

// Confirm activates the actor's own pending rental and marks the listing
// rented. The start date is refreshed to the confirmation instant.
func (s *RentalService) Confirm(ctx context.Context, rentalID, actorID string) (RentalDetail, error) {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil || actor.Role != models.UserRoleStudent {
		return RentalDetail{}, apperr.Authorization("Apenas estudantes podem confirmar aluguéis.")
	}

	rental, err := s.rentals.GetByID(ctx, rentalID)
	if err != nil {
		if errors.Is(err, repository.ErrRentalNotFound) {
			return RentalDetail{}, apperr.Validation("Aluguel pendente não encontrado.")
		}
		return RentalDetail{}, err
	}
	if rental.TenantID != actorID {
		return RentalDetail{}, apperr.Validation("Aluguel pendente não encontrado.")
	}
	if rental.Status != models.RentalStatusPending {
		return RentalDetail{}, apperr.Conflict("Aluguel pendente não encontrado.")
	}

	start := s.now()
	if err := s.rentals.SetActive(ctx, rentalID, start); err != nil {
		if errors.Is(err, repository.ErrRentalNotFound) {
			return RentalDetail{}, apperr.Conflict("Aluguel pendente não encontrado.")
		}
		return RentalDetail{}, err
	}

	if err := s.listings.TransitionStatus(ctx, rental.ListingID, models.ListingStatusPending, models.ListingStatusRented); err != nil {
		s.log.Error().Err(err).
			Str("rental_id", rentalID).
			Str("listing_id", rental.ListingID).
			Msg("listing transition to rented failed after rental activation")
		return RentalDetail{}, err
	}

	rental.Status = models.RentalStatusActive
	rental.StartDate = start

	listing, err := s.listings.GetByID(ctx, rental.ListingID)
	if err != nil {
		return RentalDetail{}, err
	}
	return RentalDetail{Rental: rental, Listing: listing, Tenant: &actor}, nil
}

// Cancel removes a pending rental. Either party may cancel; the listing
// returns to available and the rental leaves no trace.
func (s *RentalService) Cancel(ctx context.Context, rentalID, actorID string) (RentalDetail, error) {
	rental, err := s.rentals.GetByID(ctx, rentalID)
	if err != nil {
		if errors.Is(err, repository.ErrRentalNotFound) {
			return RentalDetail{}, apperr.NotFound("Aluguel não encontrado.")
		}
		return RentalDetail{}, err
	}

	listing, err := s.listings.GetByID(ctx, rental.ListingID)
	if err != nil {
		return RentalDetail{}, err
	}

	if actorID != rental.TenantID && actorID != listing.OwnerID {
		return RentalDetail{}, apperr.Authorization("Você não tem permissão para cancelar este aluguel.")
	}

	if rental.Status != models.RentalStatusPending {
		return RentalDetail{}, apperr.Conflict(fmt.Sprintf("Aluguel com status '%s' não pode ser cancelado.", rental.Status))
	}

	if err := s.listings.TransitionStatus(ctx, rental.ListingID, models.ListingStatusPending, models.ListingStatusAvailable); err != nil {
		return RentalDetail{}, err
	}

	if err := s.rentals.Delete(ctx, rentalID); err != nil && !errors.Is(err, repository.ErrRentalNotFound) {
		return RentalDetail{}, err
	}

	listing.Status = models.ListingStatusAvailable
	return RentalDetail{Rental: rental, Listing: listing}, nil
}

// Finish closes an active rental on the actor's listing, stamping the end
// date and freeing the listing.
func (s *RentalService) Finish(ctx context.Context, rentalID, actorID string) (RentalDetail, error) {
	rental, err := s.rentals.GetByID(ctx, rentalID)
	if err != nil {
		if errors.Is(err, repository.ErrRentalNotFound) {
			return RentalDetail{}, apperr.NotFound("Aluguel não encontrado.")
		}
		return RentalDetail{}, err
	}

	listing, err := s.listings.GetByID(ctx, rental.ListingID)
	if err != nil {
		return RentalDetail{}, err
	}

	if listing.OwnerID != actorID {
		return RentalDetail{}, apperr.Authorization("Você não tem permissão para finalizar este aluguel.")
	}

	if rental.Status != models.RentalStatusActive {
		return RentalDetail{}, apperr.Conflict(fmt.Sprintf(
			"Só é possível finalizar um aluguel com status 'ativo'. Status atual: '%s'.", rental.Status))
	}

	end := s.now()
	if err := s.rentals.SetFinished(ctx, rentalID, end); err != nil {
		if errors.Is(err, repository.ErrRentalNotFound) {
			return RentalDetail{}, apperr.Conflict(fmt.Sprintf(
				"Só é possível finalizar um aluguel com status 'ativo'. Status atual: '%s'.", rental.Status))
		}
		return RentalDetail{}, err
	}

	if err := s.listings.TransitionStatus(ctx, rental.ListingID, models.ListingStatusRented, models.ListingStatusAvailable); err != nil {
		s.log.Error().Err(err).
			Str("rental_id", rentalID).
			Str("listing_id", rental.ListingID).
			Msg("listing transition to available failed after rental finish")
		return RentalDetail{}, err
	}

	rental.Status = models.RentalStatusFinished
	rental.EndDate = &end
	listing.Status = models.ListingStatusAvailable
	return RentalDetail{Rental: rental, Listing: listing}, nil
}

// TenantRentals partitions the tenant's rental history.
func (s *RentalService) TenantRentals(ctx context.Context, tenantID string) (RentalBuckets, error) {
	if _, err := s.users.GetByID(ctx, tenantID); err != nil {
		return RentalBuckets{}, apperr.Authorization("Apenas estudantes podem acessar aluguéis.")
	}

	rentals, err := s.rentals.ListByTenant(ctx, tenantID)
	if err != nil {
		return RentalBuckets{}, err
	}

	details, err := s.resolve(ctx, rentals, nil, false)
	if err != nil {
		return RentalBuckets{}, err
	}
	return bucketize(details), nil
}

// OwnerRentals aggregates rentals across all of the owner's listings,
// resolving the tenant behind each one.
func (s *RentalService) OwnerRentals(ctx context.Context, ownerID string) (RentalBuckets, error) {
	listings, err := s.listings.ListByOwner(ctx, ownerID)
	if err != nil {
		return RentalBuckets{}, err
	}
	if len(listings) == 0 {
		return RentalBuckets{}, apperr.NotFound("Este proprietário não possui imóveis.")
	}

	byID := make(map[string]models.Listing, len(listings))
	listingIDs := make([]string, 0, len(listings))
	for _, l := range listings {
		byID[l.ID] = l
		listingIDs = append(listingIDs, l.ID)
	}

	rentals, err := s.rentals.ListByListings(ctx, listingIDs)
	if err != nil {
		return RentalBuckets{}, err
	}

	details, err := s.resolve(ctx, rentals, byID, true)
	if err != nil {
		return RentalBuckets{}, err
	}
	return bucketize(details), nil
}

// OpenForListing answers who currently requests or holds the listing.
func (s *RentalService) OpenForListing(ctx context.Context, listingID string) (RentalDetail, error) {
	rental, err := s.rentals.FindOpenByListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, repository.ErrRentalNotFound) {
			return RentalDetail{}, apperr.NotFound("Nenhum aluguel ativo ou pendente encontrado para este imóvel.")
		}
		return RentalDetail{}, err
	}

	listing, err := s.listings.GetByID(ctx, rental.ListingID)
	if err != nil {
		return RentalDetail{}, err
	}

	tenant, err := s.users.GetByID(ctx, rental.TenantID)
	if err != nil {
		return RentalDetail{}, err
	}

	return RentalDetail{Rental: rental, Listing: listing, Tenant: &tenant}, nil
}

func (s *RentalService) resolve(ctx context.Context, rentals []models.Rental, listings map[string]models.Listing, withTenant bool) ([]RentalDetail, error) {
	details := make([]RentalDetail, 0, len(rentals))
	for _, rental := range rentals {
		detail := RentalDetail{Rental: rental}

		if listings != nil {
			detail.Listing = listings[rental.ListingID]
		} else {
			listing, err := s.listings.GetByID(ctx, rental.ListingID)
			if err != nil {
				return nil, err
			}
			detail.Listing = listing
		}

		if withTenant {
			tenant, err := s.users.GetByID(ctx, rental.TenantID)
			if err != nil {
				return nil, err
			}
			detail.Tenant = &tenant
		}

		details = append(details, detail)
	}
	return details, nil
}

func bucketize(details []RentalDetail) RentalBuckets {
	var buckets RentalBuckets
	for _, detail := range details {
		switch detail.Rental.Status {
		case models.RentalStatusPending:
			buckets.Pending = append(buckets.Pending, detail)
		case models.RentalStatusActive:
			buckets.Active = append(buckets.Active, detail)
		case models.RentalStatusFinished:
			buckets.Finished = append(buckets.Finished, detail)
		}
	}
	return buckets
}

func (s *RentalService) revertListing(ctx context.Context, listingID string, from, to models.ListingStatus) {
	if err := s.listings.TransitionStatus(ctx, listingID, from, to); err != nil {
		s.log.Error().Err(err).
			Str("listing_id", listingID).
			Msg("listing status revert failed")
	}
}
