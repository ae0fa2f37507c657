package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moradia/api/internal/apperr"
	"moradia/api/internal/config"
	"moradia/api/internal/models"
	"moradia/api/internal/repository"
)

var testCampus = config.CampusConfig{
	SedeLat:   -22.4338603,
	SedeLng:   -42.9791791,
	QuintaLat: -22.3936848,
	QuintaLng: -42.959655,
}

type fakeListingRepo struct {
	listings   map[string]models.Listing
	results    []models.Listing
	total      int
	lastFilter repository.SearchFilter
	deleted    []string
}

func (f *fakeListingRepo) Create(_ context.Context, l models.Listing) error {
	f.listings[l.ID] = l
	return nil
}

func (f *fakeListingRepo) GetByID(_ context.Context, id string) (models.Listing, error) {
	l, ok := f.listings[id]
	if !ok {
		return models.Listing{}, repository.ErrListingNotFound
	}
	return l, nil
}

func (f *fakeListingRepo) Update(_ context.Context, l models.Listing, _ bool) error {
	if _, ok := f.listings[l.ID]; !ok {
		return repository.ErrListingNotFound
	}
	f.listings[l.ID] = l
	return nil
}

func (f *fakeListingRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.listings[id]; !ok {
		return repository.ErrListingNotFound
	}
	delete(f.listings, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeListingRepo) Search(_ context.Context, filter repository.SearchFilter) ([]models.Listing, int, error) {
	f.lastFilter = filter
	return f.results, f.total, nil
}

type fakeGeocoder struct {
	address string
	err     error
}

func (f *fakeGeocoder) ReverseGeocode(context.Context, float64, float64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.address, nil
}

type fakeImageStore struct {
	uploads []string
}

func (f *fakeImageStore) Upload(_ context.Context, key string, _ io.Reader, _ int64, _ string) (string, error) {
	f.uploads = append(f.uploads, key)
	return "https://cdn.example/" + key, nil
}

type fakeFavorites struct {
	byUser map[string]map[string]bool
}

func (f *fakeFavorites) Add(_ context.Context, userID, listingID string) error {
	if f.byUser[userID] == nil {
		f.byUser[userID] = map[string]bool{}
	}
	f.byUser[userID][listingID] = true
	return nil
}

func (f *fakeFavorites) Remove(_ context.Context, userID, listingID string) error {
	delete(f.byUser[userID], listingID)
	return nil
}

func (f *fakeFavorites) Exists(_ context.Context, userID, listingID string) (bool, error) {
	return f.byUser[userID][listingID], nil
}

func (f *fakeFavorites) ListIDs(_ context.Context, userID string) ([]string, error) {
	var ids []string
	for id := range f.byUser[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func makeImageHeaders(t *testing.T, count int) []*multipart.FileHeader {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for i := 0; i < count; i++ {
		fw, err := w.CreateFormFile("imagens", "foto.jpg")
		require.NoError(t, err)
		_, err = fw.Write([]byte("not a real jpeg"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	return form.File["imagens"]
}

func ptr[T any](v T) *T { return &v }

func newListingFixture() (*ListingService, *fakeListingRepo, *fakeGeocoder, *fakeImageStore, *fakeFavorites) {
	repo := &fakeListingRepo{listings: map[string]models.Listing{}}
	geocoder := &fakeGeocoder{address: "Rua das Flores, 42, Alto, Teresópolis"}
	images := &fakeImageStore{}
	favorites := &fakeFavorites{byUser: map[string]map[string]bool{}}
	svc := NewListingService(repo, favorites, geocoder, images, testCampus, zerolog.Nop())
	return svc, repo, geocoder, images, favorites
}

func validCreateInput(t *testing.T) CreateListingInput {
	return CreateListingInput{
		Title:     "Kitnet no Alto",
		Latitude:  ptr(-22.43),
		Longitude: ptr(-42.98),
		Price:     ptr(900.0),
		Type:      "kitnet",
		Area:      ptr(30.0),
		Images:    makeImageHeaders(t, 2),
	}
}

func TestCreateListing(t *testing.T) {
	svc, repo, geocoder, images, _ := newListingFixture()

	listing, err := svc.Create(context.Background(), "owner-1", validCreateInput(t))
	require.NoError(t, err)

	assert.Equal(t, "owner-1", listing.OwnerID)
	assert.Equal(t, models.ListingStatusAvailable, listing.Status)
	assert.Equal(t, geocoder.address, listing.Address)
	assert.Equal(t, 1, listing.Bedrooms)
	assert.Equal(t, 1, listing.Bathrooms)
	assert.Greater(t, listing.DistanceSede, 0.0)
	assert.Greater(t, listing.DistanceQuinta, 0.0)
	assert.Len(t, listing.Images, 2)
	assert.Len(t, images.uploads, 2)
	assert.Contains(t, repo.listings, listing.ID)
}

func TestCreateListingValidation(t *testing.T) {
	svc, _, _, _, _ := newListingFixture()

	tests := []struct {
		name    string
		mutate  func(*CreateListingInput)
		message string
	}{
		{"missing title", func(in *CreateListingInput) { in.Title = "  " }, "O título é obrigatório."},
		{"missing coordinates", func(in *CreateListingInput) { in.Latitude = nil }, "A latitude e a longitude são obrigatórias."},
		{"missing price", func(in *CreateListingInput) { in.Price = nil }, "O preço é obrigatório."},
		{"negative price", func(in *CreateListingInput) { in.Price = ptr(-1.0) }, "O preço deve ser um número positivo."},
		{"missing area", func(in *CreateListingInput) { in.Area = nil }, "A área do imóvel é obrigatória."},
		{"negative area", func(in *CreateListingInput) { in.Area = ptr(-5.0) }, "A área deve ser positiva."},
		{"bad type", func(in *CreateListingInput) { in.Type = "mansao" }, "Tipo inválido. Selecione apartamento, casa ou kitnet."},
		{"negative bedrooms", func(in *CreateListingInput) { in.Bedrooms = -1 }, "O número de quartos deve ser maior que zero."},
		{"no images", func(in *CreateListingInput) { in.Images = nil }, "É obrigatória pelo menos uma imagem."},
		{"too many images", func(in *CreateListingInput) { in.Images = makeImageHeaders(t, 9) }, "São permitidas no máximo 8 imagens."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := validCreateInput(t)
			tc.mutate(&input)

			_, err := svc.Create(context.Background(), "owner-1", input)
			require.Error(t, err)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation))
			assert.Equal(t, tc.message, apperr.Message(err, ""))
		})
	}
}

func TestCreateListingGeocodeFailure(t *testing.T) {
	svc, _, geocoder, _, _ := newListingFixture()
	geocoder.err = errors.New("nominatim timeout")

	_, err := svc.Create(context.Background(), "owner-1", validCreateInput(t))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindDependency))
	assert.Equal(t, "Erro ao buscar endereço!", apperr.Message(err, ""))
}

func TestBuildSearchFilterDefaults(t *testing.T) {
	filter, page, limit, err := buildSearchFilter(SearchInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, page)
	assert.Equal(t, 12, limit)
	assert.Equal(t, 12, filter.Limit)
	assert.Equal(t, 0, filter.Offset)
	assert.Empty(t, filter.SortColumn)
}

func TestBuildSearchFilterValidation(t *testing.T) {
	tests := []struct {
		name    string
		input   SearchInput
		message string
	}{
		{"non numeric price", SearchInput{PriceMin: "abc"}, "Digite um número positivo."},
		{"price below one", SearchInput{PriceMax: "0"}, "Digite um número positivo."},
		{"inverted price range", SearchInput{PriceMin: "500", PriceMax: "100"}, "O preço mínimo não pode ser maior que o preço máximo."},
		{"bad type", SearchInput{Type: "castelo"}, "Escolha entre esses tipos: apartamento, casa, kitnet."},
		{"bad status", SearchInput{Status: "vendido"}, "Status inválido. Selecione disponível, pendente, alugado ou indisponível."},
		{"bad bedrooms", SearchInput{Bedrooms: "dois"}, "Número de quartos inválido."},
		{"bad furnished flag", SearchInput{Furnished: "sim"}, "O valor de mobiliado deve ser true ou false."},
		{"bad pets flag", SearchInput{Pets: "talvez"}, "O valor de permitidoPet deve ser true ou false."},
		{"negative area", SearchInput{AreaMin: "-10"}, "A área mínima deve ser um número positivo."},
		{"inverted area range", SearchInput{AreaMin: "80", AreaMax: "40"}, "A área mínima não pode ser maior que a área máxima."},
		{"bad order", SearchInput{SortBy: "preco", Order: "up"}, "A ordenação deve ser asc (crescente) ou desc (decrescente)."},
		{"bad sort field", SearchInput{SortBy: "cor"}, "Campo de ordenação inválido. Use um dos seguintes: preco, proximidadeUnifesoSede, proximidadeUnifesoQuinta, quartos, banheiros, area, createdAt."},
		{"bad page", SearchInput{Page: "0"}, "O número da página deve ser um número positivo."},
		{"limit too high", SearchInput{Limit: "101"}, "O limite deve ser um número entre 1 e 100."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := buildSearchFilter(tc.input)
			require.Error(t, err)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation))
			assert.Equal(t, tc.message, apperr.Message(err, ""))
		})
	}
}

func TestBuildSearchFilterMapsFields(t *testing.T) {
	filter, page, limit, err := buildSearchFilter(SearchInput{
		PriceMin:  "500",
		PriceMax:  "1500",
		Type:      "kitnet",
		Furnished: "true",
		Garage:    "false",
		SortBy:    "proximidadeUnifesoSede",
		Order:     "desc",
		Page:      "3",
		Limit:     "10",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, page)
	assert.Equal(t, 10, limit)
	assert.Equal(t, 20, filter.Offset)
	assert.Equal(t, "proximidade_sede", filter.SortColumn)
	assert.True(t, filter.SortDesc)
	require.NotNil(t, filter.PriceMin)
	assert.Equal(t, 500.0, *filter.PriceMin)
	require.NotNil(t, filter.Furnished)
	assert.True(t, *filter.Furnished)
	require.NotNil(t, filter.Garage)
	assert.False(t, *filter.Garage)
}

func TestSearchPagination(t *testing.T) {
	svc, repo, _, _, _ := newListingFixture()
	repo.results = []models.Listing{{ID: "l1"}, {ID: "l2"}}
	repo.total = 25

	result, err := svc.Search(context.Background(), nil, SearchInput{Page: "2"})
	require.NoError(t, err)

	assert.Equal(t, 25, result.Total)
	assert.Equal(t, 2, result.Page)
	assert.Equal(t, 3, result.TotalPages)
	assert.Equal(t, 12, repo.lastFilter.Offset)
	assert.Len(t, result.Listings, 2)
}

func TestSearchScopesToOwner(t *testing.T) {
	svc, repo, _, _, _ := newListingFixture()
	owner := models.User{ID: "owner-1", Role: models.UserRoleOwner}

	_, err := svc.Search(context.Background(), &owner, SearchInput{Owner: "meus"})
	require.NoError(t, err)
	assert.Equal(t, "owner-1", repo.lastFilter.OwnerID)

	_, err = svc.Search(context.Background(), nil, SearchInput{Owner: "meus"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthentication))
}

func TestSearchDecoratesFavoritesForStudents(t *testing.T) {
	svc, repo, _, _, favorites := newListingFixture()
	repo.results = []models.Listing{{ID: "l1"}, {ID: "l2"}}
	repo.total = 2
	student := models.User{ID: "student-1", Role: models.UserRoleStudent}
	require.NoError(t, favorites.Add(context.Background(), "student-1", "l2"))

	result, err := svc.Search(context.Background(), &student, SearchInput{})
	require.NoError(t, err)
	require.Len(t, result.Listings, 2)
	assert.False(t, result.Listings[0].Favorited)
	assert.True(t, result.Listings[1].Favorited)
}

func TestSearchFavoritesRequiresStudent(t *testing.T) {
	svc, _, _, _, _ := newListingFixture()
	owner := models.User{ID: "owner-1", Role: models.UserRoleOwner}

	_, err := svc.SearchFavorites(context.Background(), owner, SearchInput{})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestSearchFavoritesEmpty(t *testing.T) {
	svc, _, _, _, _ := newListingFixture()
	student := models.User{ID: "student-1", Role: models.UserRoleStudent}

	result, err := svc.SearchFavorites(context.Background(), student, SearchInput{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.Equal(t, 1, result.Page)
	assert.Empty(t, result.Listings)
}

func seedListing(repo *fakeListingRepo, status models.ListingStatus) models.Listing {
	listing := models.Listing{
		ID:      "listing-1",
		OwnerID: "owner-1",
		Title:   "Casa no centro",
		Status:  status,
		Type:    models.ListingTypeHouse,
		Price:   1200,
	}
	repo.listings[listing.ID] = listing
	return listing
}

func TestUpdateListingGuards(t *testing.T) {
	svc, repo, _, _, _ := newListingFixture()
	seedListing(repo, models.ListingStatusAvailable)

	_, err := svc.Update(context.Background(), "listing-1", "intruder", UpdateListingInput{})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	_, err = svc.Update(context.Background(), "listing-1", "owner-1", UpdateListingInput{OwnerProvided: true})
	require.Error(t, err)
	assert.Equal(t, "Você não pode alterar o proprietário do imóvel.", apperr.Message(err, ""))

	_, err = svc.Update(context.Background(), "listing-1", "owner-1", UpdateListingInput{Status: ptr("alugado")})
	require.Error(t, err)
	assert.Equal(t, "Status inválido. O status só pode ser 'disponivel' ou 'indisponivel'.", apperr.Message(err, ""))
}

func TestUpdateListingLockedWhileEngaged(t *testing.T) {
	svc, repo, _, _, _ := newListingFixture()
	seedListing(repo, models.ListingStatusPending)

	_, err := svc.Update(context.Background(), "listing-1", "owner-1", UpdateListingInput{Price: ptr(1000.0)})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestUpdateListingFields(t *testing.T) {
	svc, repo, _, _, _ := newListingFixture()
	seedListing(repo, models.ListingStatusAvailable)

	updated, err := svc.Update(context.Background(), "listing-1", "owner-1", UpdateListingInput{
		Price:  ptr(1500.0),
		Status: ptr("indisponivel"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1500.0, updated.Price)
	assert.Equal(t, models.ListingStatusUnavailable, updated.Status)
	assert.Equal(t, models.ListingStatusUnavailable, repo.listings["listing-1"].Status)
}

func TestDeleteListingGuards(t *testing.T) {
	svc, repo, _, _, _ := newListingFixture()
	seedListing(repo, models.ListingStatusRented)

	err := svc.Delete(context.Background(), "listing-1", "intruder")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	err = svc.Delete(context.Background(), "listing-1", "owner-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestDeleteListing(t *testing.T) {
	svc, repo, _, _, _ := newListingFixture()
	seedListing(repo, models.ListingStatusAvailable)

	require.NoError(t, svc.Delete(context.Background(), "listing-1", "owner-1"))
	assert.Equal(t, []string{"listing-1"}, repo.deleted)
}

func TestGetListingDecoratesFavorite(t *testing.T) {
	svc, repo, _, _, favorites := newListingFixture()
	seedListing(repo, models.ListingStatusAvailable)
	student := models.User{ID: "student-1", Role: models.UserRoleStudent}
	require.NoError(t, favorites.Add(context.Background(), "student-1", "listing-1"))

	view, err := svc.GetByID(context.Background(), "listing-1", &student)
	require.NoError(t, err)
	assert.True(t, view.Favorited)

	view, err = svc.GetByID(context.Background(), "listing-1", nil)
	require.NoError(t, err)
	assert.False(t, view.Favorited)
}
