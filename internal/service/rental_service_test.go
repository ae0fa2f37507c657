package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moradia/api/internal/apperr"
	"moradia/api/internal/models"
	"moradia/api/internal/repository"
)

type fakeListingStore struct {
	listings      map[string]models.Listing
	transitionErr error
}

func (f *fakeListingStore) GetByID(_ context.Context, id string) (models.Listing, error) {
	listing, ok := f.listings[id]
	if !ok {
		return models.Listing{}, repository.ErrListingNotFound
	}
	return listing, nil
}

func (f *fakeListingStore) ListByOwner(_ context.Context, ownerID string) ([]models.Listing, error) {
	var out []models.Listing
	for _, listing := range f.listings {
		if listing.OwnerID == ownerID {
			out = append(out, listing)
		}
	}
	return out, nil
}

func (f *fakeListingStore) TransitionStatus(_ context.Context, id string, from, to models.ListingStatus) error {
	if f.transitionErr != nil {
		return f.transitionErr
	}
	listing, ok := f.listings[id]
	if !ok {
		return repository.ErrListingNotFound
	}
	if listing.Status != from {
		return fmt.Errorf("%w: have %s, want %s", repository.ErrStatusConflict, listing.Status, from)
	}
	listing.Status = to
	f.listings[id] = listing
	return nil
}

type fakeRentalStore struct {
	rentals   map[string]models.Rental
	createErr error
}

func (f *fakeRentalStore) Create(_ context.Context, rental models.Rental) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.rentals[rental.ID] = rental
	return nil
}

func (f *fakeRentalStore) GetByID(_ context.Context, id string) (models.Rental, error) {
	rental, ok := f.rentals[id]
	if !ok {
		return models.Rental{}, repository.ErrRentalNotFound
	}
	return rental, nil
}

func (f *fakeRentalStore) Delete(_ context.Context, id string) error {
	if _, ok := f.rentals[id]; !ok {
		return repository.ErrRentalNotFound
	}
	delete(f.rentals, id)
	return nil
}

func (f *fakeRentalStore) SetActive(_ context.Context, id string, start time.Time) error {
	rental, ok := f.rentals[id]
	if !ok || rental.Status != models.RentalStatusPending {
		return repository.ErrRentalNotFound
	}
	rental.Status = models.RentalStatusActive
	rental.StartDate = start
	f.rentals[id] = rental
	return nil
}

func (f *fakeRentalStore) SetFinished(_ context.Context, id string, end time.Time) error {
	rental, ok := f.rentals[id]
	if !ok || rental.Status != models.RentalStatusActive {
		return repository.ErrRentalNotFound
	}
	rental.Status = models.RentalStatusFinished
	rental.EndDate = &end
	f.rentals[id] = rental
	return nil
}

func (f *fakeRentalStore) FindOpenByListing(_ context.Context, listingID string) (models.Rental, error) {
	for _, rental := range f.rentals {
		if rental.ListingID == listingID && rental.Status.Open() {
			return rental, nil
		}
	}
	return models.Rental{}, repository.ErrRentalNotFound
}

func (f *fakeRentalStore) FindOpenByTenant(_ context.Context, tenantID string) (models.Rental, error) {
	for _, rental := range f.rentals {
		if rental.TenantID == tenantID && rental.Status.Open() {
			return rental, nil
		}
	}
	return models.Rental{}, repository.ErrRentalNotFound
}

func (f *fakeRentalStore) ListByTenant(_ context.Context, tenantID string) ([]models.Rental, error) {
	var out []models.Rental
	for _, rental := range f.rentals {
		if rental.TenantID == tenantID {
			out = append(out, rental)
		}
	}
	return out, nil
}

func (f *fakeRentalStore) ListByListings(_ context.Context, listingIDs []string) ([]models.Rental, error) {
	wanted := make(map[string]struct{}, len(listingIDs))
	for _, id := range listingIDs {
		wanted[id] = struct{}{}
	}
	var out []models.Rental
	for _, rental := range f.rentals {
		if _, ok := wanted[rental.ListingID]; ok {
			out = append(out, rental)
		}
	}
	return out, nil
}

type fakeUserStore struct {
	users map[string]models.User
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

type rentalFixture struct {
	svc      *RentalService
	listings *fakeListingStore
	rentals  *fakeRentalStore
	users    *fakeUserStore
	now      time.Time
}

func newRentalFixture(t *testing.T) *rentalFixture {
	t.Helper()

	listings := &fakeListingStore{listings: map[string]models.Listing{
		"listing-1": {
			ID:      "listing-1",
			OwnerID: "owner-1",
			Title:   "Kitnet perto da sede",
			Status:  models.ListingStatusAvailable,
		},
	}}
	rentals := &fakeRentalStore{rentals: map[string]models.Rental{}}
	users := &fakeUserStore{users: map[string]models.User{
		"owner-1":   {ID: "owner-1", Name: "Dona Marta", Role: models.UserRoleOwner},
		"student-1": {ID: "student-1", Name: "João", Role: models.UserRoleStudent},
		"student-2": {ID: "student-2", Name: "Maria", Role: models.UserRoleStudent},
	}}

	svc := NewRentalService(listings, rentals, users, zerolog.Nop())
	fixed := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	return &rentalFixture{svc: svc, listings: listings, rentals: rentals, users: users, now: fixed}
}

func TestRentalLifecycle(t *testing.T) {
	f := newRentalFixture(t)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, "listing-1", "student-1", "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.RentalStatusPending, started.Rental.Status)
	assert.Equal(t, models.ListingStatusPending, started.Listing.Status)
	assert.Equal(t, models.ListingStatusPending, f.listings.listings["listing-1"].Status)
	require.NotNil(t, started.Tenant)
	assert.Equal(t, "student-1", started.Tenant.ID)
	assert.Nil(t, started.Rental.EndDate)

	confirmTime := f.now.Add(2 * time.Hour)
	f.svc.now = func() time.Time { return confirmTime }

	confirmed, err := f.svc.Confirm(ctx, started.Rental.ID, "student-1")
	require.NoError(t, err)
	assert.Equal(t, models.RentalStatusActive, confirmed.Rental.Status)
	assert.Equal(t, confirmTime, confirmed.Rental.StartDate)
	assert.Equal(t, models.ListingStatusRented, f.listings.listings["listing-1"].Status)

	finishTime := confirmTime.Add(30 * 24 * time.Hour)
	f.svc.now = func() time.Time { return finishTime }

	finished, err := f.svc.Finish(ctx, started.Rental.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.RentalStatusFinished, finished.Rental.Status)
	require.NotNil(t, finished.Rental.EndDate)
	assert.Equal(t, finishTime, *finished.Rental.EndDate)
	assert.Equal(t, models.ListingStatusAvailable, f.listings.listings["listing-1"].Status)

	stored := f.rentals.rentals[started.Rental.ID]
	assert.Equal(t, models.RentalStatusFinished, stored.Status)
}

func TestStartRejectsNonOwner(t *testing.T) {
	f := newRentalFixture(t)

	_, err := f.svc.Start(context.Background(), "listing-1", "student-1", "student-2")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))
	assert.Equal(t, models.ListingStatusAvailable, f.listings.listings["listing-1"].Status)
}

func TestStartRejectsUnavailableListing(t *testing.T) {
	f := newRentalFixture(t)
	listing := f.listings.listings["listing-1"]
	listing.Status = models.ListingStatusUnavailable
	f.listings.listings["listing-1"] = listing

	_, err := f.svc.Start(context.Background(), "listing-1", "student-1", "owner-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Equal(t, "O imóvel não está disponível para aluguel.", apperr.Message(err, ""))
}

func TestStartRejectsUnknownListing(t *testing.T) {
	f := newRentalFixture(t)

	_, err := f.svc.Start(context.Background(), "nope", "student-1", "owner-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestStartRejectsNonStudentTenant(t *testing.T) {
	f := newRentalFixture(t)

	_, err := f.svc.Start(context.Background(), "listing-1", "owner-1", "owner-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Equal(t, "Estudante inválido ou não encontrado.", apperr.Message(err, ""))
}

func TestStartRejectsEngagedStudent(t *testing.T) {
	f := newRentalFixture(t)
	ctx := context.Background()

	f.listings.listings["listing-2"] = models.Listing{
		ID:      "listing-2",
		OwnerID: "owner-1",
		Status:  models.ListingStatusAvailable,
	}

	_, err := f.svc.Start(ctx, "listing-1", "student-1", "owner-1")
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, "listing-2", "student-1", "owner-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Equal(t, "Este estudante já possui um aluguel ativo ou pendente.", apperr.Message(err, ""))
	assert.Equal(t, models.ListingStatusAvailable, f.listings.listings["listing-2"].Status)
}

func TestStartRevertsListingWhenRentalInsertLosesRace(t *testing.T) {
	f := newRentalFixture(t)
	f.rentals.createErr = repository.ErrOpenRentalExists

	_, err := f.svc.Start(context.Background(), "listing-1", "student-1", "owner-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Equal(t, models.ListingStatusAvailable, f.listings.listings["listing-1"].Status)
	assert.Empty(t, f.rentals.rentals)
}

func TestStartConflictWhenReservationLosesRace(t *testing.T) {
	f := newRentalFixture(t)
	f.listings.transitionErr = fmt.Errorf("%w: have pendente, want disponivel", repository.ErrStatusConflict)

	_, err := f.svc.Start(context.Background(), "listing-1", "student-1", "owner-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Empty(t, f.rentals.rentals)
}

func TestConfirmRejectsOwner(t *testing.T) {
	f := newRentalFixture(t)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, "listing-1", "student-1", "owner-1")
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, started.Rental.ID, "owner-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestConfirmRejectsForeignRental(t *testing.T) {
	f := newRentalFixture(t)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, "listing-1", "student-1", "owner-1")
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, started.Rental.ID, "student-2")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Equal(t, "Aluguel pendente não encontrado.", apperr.Message(err, ""))
	assert.Equal(t, models.ListingStatusPending, f.listings.listings["listing-1"].Status)
}

func TestCancelRestoresListingAndDeletesRental(t *testing.T) {
	f := newRentalFixture(t)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, "listing-1", "student-1", "owner-1")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, started.Rental.ID, "student-1")
	require.NoError(t, err)

	assert.Equal(t, models.ListingStatusAvailable, f.listings.listings["listing-1"].Status)
	assert.Empty(t, f.rentals.rentals)
}

func TestCancelAllowedForOwner(t *testing.T) {
	f := newRentalFixture(t)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, "listing-1", "student-1", "owner-1")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, started.Rental.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusAvailable, f.listings.listings["listing-1"].Status)
}

func TestCancelRejectsThirdParty(t *testing.T) {
	f := newRentalFixture(t)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, "listing-1", "student-1", "owner-1")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, started.Rental.ID, "student-2")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))
	assert.Len(t, f.rentals.rentals, 1)
}

func TestCancelRejectsActiveRental(t *testing.T) {
	f := newRentalFixture(t)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, "listing-1", "student-1", "owner-1")
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, started.Rental.ID, "student-1")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, started.Rental.ID, "student-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Equal(t, "Aluguel com status 'ativo' não pode ser cancelado.", apperr.Message(err, ""))
}

func TestCancelUnknownRental(t *testing.T) {
	f := newRentalFixture(t)

	_, err := f.svc.Cancel(context.Background(), "nope", "student-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestFinishRejectsNonOwner(t *testing.T) {
	f := newRentalFixture(t)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, "listing-1", "student-1", "owner-1")
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, started.Rental.ID, "student-1")
	require.NoError(t, err)

	_, err = f.svc.Finish(ctx, started.Rental.ID, "student-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestFinishRejectsPendingRental(t *testing.T) {
	f := newRentalFixture(t)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, "listing-1", "student-1", "owner-1")
	require.NoError(t, err)

	_, err = f.svc.Finish(ctx, started.Rental.ID, "owner-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Equal(t, "Só é possível finalizar um aluguel com status 'ativo'. Status atual: 'pendente'.", apperr.Message(err, ""))
}

func TestTenantRentalsBuckets(t *testing.T) {
	f := newRentalFixture(t)
	ctx := context.Background()

	f.rentals.rentals["r-old"] = models.Rental{
		ID:        "r-old",
		ListingID: "listing-1",
		TenantID:  "student-1",
		Status:    models.RentalStatusFinished,
	}

	started, err := f.svc.Start(ctx, "listing-1", "student-1", "owner-1")
	require.NoError(t, err)

	buckets, err := f.svc.TenantRentals(ctx, "student-1")
	require.NoError(t, err)
	require.Len(t, buckets.Pending, 1)
	assert.Equal(t, started.Rental.ID, buckets.Pending[0].Rental.ID)
	assert.Len(t, buckets.Active, 0)
	require.Len(t, buckets.Finished, 1)
	assert.Equal(t, "r-old", buckets.Finished[0].Rental.ID)
}

func TestOwnerRentalsResolvesTenants(t *testing.T) {
	f := newRentalFixture(t)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, "listing-1", "student-1", "owner-1")
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, started.Rental.ID, "student-1")
	require.NoError(t, err)

	buckets, err := f.svc.OwnerRentals(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, buckets.Active, 1)
	require.NotNil(t, buckets.Active[0].Tenant)
	assert.Equal(t, "João", buckets.Active[0].Tenant.Name)
	assert.Equal(t, "listing-1", buckets.Active[0].Listing.ID)
}

func TestOwnerRentalsWithoutListings(t *testing.T) {
	f := newRentalFixture(t)
	f.users.users["owner-2"] = models.User{ID: "owner-2", Role: models.UserRoleOwner}

	_, err := f.svc.OwnerRentals(context.Background(), "owner-2")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.Equal(t, "Este proprietário não possui imóveis.", apperr.Message(err, ""))
}

func TestOpenForListing(t *testing.T) {
	f := newRentalFixture(t)
	ctx := context.Background()

	_, err := f.svc.OpenForListing(ctx, "listing-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	started, err := f.svc.Start(ctx, "listing-1", "student-1", "owner-1")
	require.NoError(t, err)

	detail, err := f.svc.OpenForListing(ctx, "listing-1")
	require.NoError(t, err)
	assert.Equal(t, started.Rental.ID, detail.Rental.ID)
	require.NotNil(t, detail.Tenant)
	assert.Equal(t, "student-1", detail.Tenant.ID)
}
