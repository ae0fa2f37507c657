package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"moradia/api/internal/apperr"
	"moradia/api/internal/config"
	"moradia/api/internal/geo"
	"moradia/api/internal/ids"
	"moradia/api/internal/models"
	"moradia/api/internal/repository"
)

type ListingRepo interface {
	Create(ctx context.Context, l models.Listing) error
	GetByID(ctx context.Context, id string) (models.Listing, error)
	Update(ctx context.Context, l models.Listing, replaceImages bool) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, f repository.SearchFilter) ([]models.Listing, int, error)
}

type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

type ImageStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

type FavoriteStore interface {
	Add(ctx context.Context, userID, listingID string) error
	Remove(ctx context.Context, userID, listingID string) error
	Exists(ctx context.Context, userID, listingID string) (bool, error)
	ListIDs(ctx context.Context, userID string) ([]string, error)
}

const maxListingImages = 8

// sortColumns maps the public sort field allow-list onto table columns.
var sortColumns = map[string]string{
	"preco":                    "preco",
	"proximidadeUnifesoSede":   "proximidade_sede",
	"proximidadeUnifesoQuinta": "proximidade_quinta",
	"quartos":                  "quartos",
	"banheiros":                "banheiros",
	"area":                     "area",
	"createdAt":                "created_at",
}

func sortFieldList() string {
	return "preco, proximidadeUnifesoSede, proximidadeUnifesoQuinta, quartos, banheiros, area, createdAt"
}

type ListingService struct {
	listings  ListingRepo
	favorites FavoriteStore
	geocoder  Geocoder
	images    ImageStore
	campus    config.CampusConfig
	log       zerolog.Logger
}

func NewListingService(
	listings ListingRepo,
	favorites FavoriteStore,
	geocoder Geocoder,
	images ImageStore,
	campus config.CampusConfig,
	log zerolog.Logger,
) *ListingService {
	return &ListingService{
		listings:  listings,
		favorites: favorites,
		geocoder:  geocoder,
		images:    images,
		campus:    campus,
		log:       log,
	}
}

type CreateListingInput struct {
	Title       string
	Description string
	Latitude    *float64
	Longitude   *float64
	Price       *float64
	Type        string
	Bedrooms    int
	Bathrooms   int
	Furnished   bool
	PetsAllowed bool
	Garage      bool
	Area        *float64
	Images      []*multipart.FileHeader
}

func (s *ListingService) Create(ctx context.Context, ownerID string, input CreateListingInput) (models.Listing, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)

	if input.Title == "" {
		return models.Listing{}, apperr.Validation("O título é obrigatório.")
	}
	if len(input.Title) > 100 {
		return models.Listing{}, apperr.Validation("O titulo deve ter no máximo 100 caracteres.")
	}
	if len(input.Description) > 1000 {
		return models.Listing{}, apperr.Validation("A descrição deve ter no máximo 1000 caracteres.")
	}
	if input.Latitude == nil || input.Longitude == nil {
		return models.Listing{}, apperr.Validation("A latitude e a longitude são obrigatórias.")
	}
	if input.Price == nil {
		return models.Listing{}, apperr.Validation("O preço é obrigatório.")
	}
	if *input.Price < 0 {
		return models.Listing{}, apperr.Validation("O preço deve ser um número positivo.")
	}
	if input.Area == nil {
		return models.Listing{}, apperr.Validation("A área do imóvel é obrigatória.")
	}
	if *input.Area < 0 {
		return models.Listing{}, apperr.Validation("A área deve ser positiva.")
	}
	if !models.ListingType(input.Type).Valid() {
		return models.Listing{}, apperr.Validation("Tipo inválido. Selecione apartamento, casa ou kitnet.")
	}
	if input.Bedrooms == 0 {
		input.Bedrooms = 1
	}
	if input.Bathrooms == 0 {
		input.Bathrooms = 1
	}
	if input.Bedrooms < 1 {
		return models.Listing{}, apperr.Validation("O número de quartos deve ser maior que zero.")
	}
	if input.Bathrooms < 1 {
		return models.Listing{}, apperr.Validation("O número de banheiros deve ser maior que zero.")
	}
	if len(input.Images) == 0 {
		return models.Listing{}, apperr.Validation("É obrigatória pelo menos uma imagem.")
	}
	if len(input.Images) > maxListingImages {
		return models.Listing{}, apperr.Validation(fmt.Sprintf("São permitidas no máximo %d imagens.", maxListingImages))
	}

	address, err := s.geocoder.ReverseGeocode(ctx, *input.Latitude, *input.Longitude)
	if err != nil {
		return models.Listing{}, apperr.Dependency("Erro ao buscar endereço!", err)
	}

	listingID := ids.New()
	imageURLs, err := s.uploadImages(ctx, listingID, input.Images)
	if err != nil {
		return models.Listing{}, apperr.Dependency("Erro ao enviar imagens!", err)
	}

	listing := models.Listing{
		ID:             listingID,
		OwnerID:        ownerID,
		Title:          input.Title,
		Description:    input.Description,
		Latitude:       *input.Latitude,
		Longitude:      *input.Longitude,
		Address:        address,
		Price:          *input.Price,
		Type:           models.ListingType(input.Type),
		Status:         models.ListingStatusAvailable,
		Bedrooms:       input.Bedrooms,
		Bathrooms:      input.Bathrooms,
		Furnished:      input.Furnished,
		PetsAllowed:    input.PetsAllowed,
		Garage:         input.Garage,
		Area:           *input.Area,
		DistanceSede:   geo.DistanceKm(*input.Latitude, *input.Longitude, s.campus.SedeLat, s.campus.SedeLng),
		DistanceQuinta: geo.DistanceKm(*input.Latitude, *input.Longitude, s.campus.QuintaLat, s.campus.QuintaLng),
		Images:         imageURLs,
	}

	if err := s.listings.Create(ctx, listing); err != nil {
		return models.Listing{}, err
	}
	return listing, nil
}

func (s *ListingService) uploadImages(ctx context.Context, listingID string, headers []*multipart.FileHeader) ([]string, error) {
	urls := make([]string, 0, len(headers))
	for i, header := range headers {
		file, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %s: %w", header.Filename, err)
		}

		key := fmt.Sprintf("imoveis/%s/%d-%s", listingID, i, ids.New())
		u, err := s.images.Upload(ctx, key, file, header.Size, header.Header.Get("Content-Type"))
		file.Close()
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, nil
}

// ListingView decorates a listing with the caller's favorite flag.
type ListingView struct {
	Listing   models.Listing
	Favorited bool
}

func (s *ListingService) GetByID(ctx context.Context, id string, actor *models.User) (ListingView, error) {
	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrListingNotFound) {
			return ListingView{}, apperr.NotFound("Imóvel não encontrado.")
		}
		return ListingView{}, err
	}

	view := ListingView{Listing: listing}
	if actor != nil && actor.Role == models.UserRoleStudent {
		favorited, err := s.favorites.Exists(ctx, actor.ID, id)
		if err != nil {
			return ListingView{}, err
		}
		view.Favorited = favorited
	}
	return view, nil
}

// SearchInput carries the raw query values; validation happens here so the
// messages match the public contract exactly.
type SearchInput struct {
	PriceMin  string
	PriceMax  string
	Type      string
	Status    string
	Bedrooms  string
	Bathrooms string
	Address   string
	Furnished string
	AreaMin   string
	AreaMax   string
	Pets      string
	Garage    string
	Text      string
	SortBy    string
	Order     string
	Page      string
	Limit     string
	Owner     string
}

type SearchResult struct {
	Total      int
	Page       int
	TotalPages int
	Listings   []ListingView
}

func (s *ListingService) Search(ctx context.Context, actor *models.User, input SearchInput) (SearchResult, error) {
	return s.search(ctx, actor, input, nil)
}

// SearchFavorites runs the same filter pipeline restricted to the student's
// favorited listings.
func (s *ListingService) SearchFavorites(ctx context.Context, actor models.User, input SearchInput) (SearchResult, error) {
	if actor.Role != models.UserRoleStudent {
		return SearchResult{}, apperr.Authorization("Apenas estudantes podem ver os seus favoritos.")
	}

	favoriteIDs, err := s.favorites.ListIDs(ctx, actor.ID)
	if err != nil {
		return SearchResult{}, err
	}
	if len(favoriteIDs) == 0 {
		return SearchResult{Total: 0, Page: 1, TotalPages: 1, Listings: []ListingView{}}, nil
	}

	return s.search(ctx, &actor, input, favoriteIDs)
}

func (s *ListingService) search(ctx context.Context, actor *models.User, input SearchInput, restrictIDs []string) (SearchResult, error) {
	filter, page, limit, err := buildSearchFilter(input)
	if err != nil {
		return SearchResult{}, err
	}
	filter.IDs = restrictIDs

	if input.Owner == "meus" {
		if actor == nil {
			return SearchResult{}, apperr.Authentication("Token não fornecido.")
		}
		filter.OwnerID = actor.ID
	}

	listings, total, err := s.listings.Search(ctx, filter)
	if err != nil {
		return SearchResult{}, err
	}

	favorited := map[string]bool{}
	if actor != nil && actor.Role == models.UserRoleStudent {
		favoriteIDs, err := s.favorites.ListIDs(ctx, actor.ID)
		if err != nil {
			return SearchResult{}, err
		}
		for _, id := range favoriteIDs {
			favorited[id] = true
		}
	}

	views := make([]ListingView, 0, len(listings))
	for _, listing := range listings {
		views = append(views, ListingView{
			Listing:   listing,
			Favorited: favorited[listing.ID],
		})
	}

	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	if totalPages == 0 {
		totalPages = 1
	}

	return SearchResult{
		Total:      total,
		Page:       page,
		TotalPages: totalPages,
		Listings:   views,
	}, nil
}

func buildSearchFilter(input SearchInput) (repository.SearchFilter, int, int, error) {
	var filter repository.SearchFilter
	fail := func(message string) (repository.SearchFilter, int, int, error) {
		return repository.SearchFilter{}, 0, 0, apperr.Validation(message)
	}

	priceMin, ok := parseOptionalPositive(input.PriceMin)
	if !ok {
		return fail("Digite um número positivo.")
	}
	priceMax, ok := parseOptionalPositive(input.PriceMax)
	if !ok {
		return fail("Digite um número positivo.")
	}
	if priceMin != nil && priceMax != nil && *priceMin > *priceMax {
		return fail("O preço mínimo não pode ser maior que o preço máximo.")
	}
	filter.PriceMin = priceMin
	filter.PriceMax = priceMax

	if input.Type != "" {
		if !models.ListingType(input.Type).Valid() {
			return fail("Escolha entre esses tipos: apartamento, casa, kitnet.")
		}
		filter.Type = input.Type
	}

	if input.Status != "" {
		if !models.ListingStatus(input.Status).Valid() {
			return fail("Status inválido. Selecione disponível, pendente, alugado ou indisponível.")
		}
		filter.Status = input.Status
	}

	if input.Bedrooms != "" {
		n, err := strconv.Atoi(input.Bedrooms)
		if err != nil {
			return fail("Número de quartos inválido.")
		}
		filter.BedroomsMin = &n
	}

	if input.Bathrooms != "" {
		n, err := strconv.Atoi(input.Bathrooms)
		if err != nil {
			return fail("Número de banheiros inválido.")
		}
		filter.BathroomsMin = &n
	}

	if input.Furnished != "" {
		if input.Furnished != "true" && input.Furnished != "false" {
			return fail("O valor de mobiliado deve ser true ou false.")
		}
		furnished := input.Furnished == "true"
		filter.Furnished = &furnished
	}
	if input.Pets != "" {
		if input.Pets != "true" && input.Pets != "false" {
			return fail("O valor de permitidoPet deve ser true ou false.")
		}
		pets := input.Pets == "true"
		filter.PetsAllowed = &pets
	}
	if input.Garage != "" {
		if input.Garage != "true" && input.Garage != "false" {
			return fail("O valor de garagem deve ser true ou false.")
		}
		garage := input.Garage == "true"
		filter.Garage = &garage
	}

	areaMin, ok := parseOptionalNonNegative(input.AreaMin)
	if !ok {
		return fail("A área mínima deve ser um número positivo.")
	}
	areaMax, ok := parseOptionalNonNegative(input.AreaMax)
	if !ok {
		return fail("A área máxima deve ser um número positivo.")
	}
	if areaMin != nil && areaMax != nil && *areaMin > *areaMax {
		return fail("A área mínima não pode ser maior que a área máxima.")
	}
	filter.AreaMin = areaMin
	filter.AreaMax = areaMax

	if input.Order != "" && input.Order != "asc" && input.Order != "desc" {
		return fail("A ordenação deve ser asc (crescente) ou desc (decrescente).")
	}
	if input.SortBy != "" {
		column, ok := sortColumns[input.SortBy]
		if !ok {
			return fail("Campo de ordenação inválido. Use um dos seguintes: " + sortFieldList() + ".")
		}
		filter.SortColumn = column
		filter.SortDesc = input.Order == "desc"
	}

	page := 1
	if input.Page != "" {
		n, err := strconv.Atoi(input.Page)
		if err != nil || n <= 0 {
			return fail("O número da página deve ser um número positivo.")
		}
		page = n
	}

	limit := 12
	if input.Limit != "" {
		n, err := strconv.Atoi(input.Limit)
		if err != nil || n <= 0 || n > 100 {
			return fail("O limite deve ser um número entre 1 e 100.")
		}
		limit = n
	}

	filter.Address = input.Address
	filter.Text = input.Text
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	return filter, page, limit, nil
}

func parseOptionalPositive(raw string) (*float64, bool) {
	if raw == "" {
		return nil, true
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || n < 1 {
		return nil, false
	}
	return &n, true
}

func parseOptionalNonNegative(raw string) (*float64, bool) {
	if raw == "" {
		return nil, true
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || n < 0 {
		return nil, false
	}
	return &n, true
}

type UpdateListingInput struct {
	Title         *string
	Description   *string
	Latitude      *float64
	Longitude     *float64
	Price         *float64
	Type          *string
	Status        *string
	Bedrooms      *int
	Bathrooms     *int
	Furnished     *bool
	PetsAllowed   *bool
	Garage        *bool
	Area          *float64
	Images        []*multipart.FileHeader
	OwnerProvided bool
}

func (s *ListingService) Update(ctx context.Context, id, actorID string, input UpdateListingInput) (models.Listing, error) {
	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrListingNotFound) {
			return models.Listing{}, apperr.NotFound("Imóvel não encontrado.")
		}
		return models.Listing{}, err
	}

	if listing.OwnerID != actorID {
		return models.Listing{}, apperr.Authorization("Você não tem permissão para editar este imóvel.")
	}
	if input.OwnerProvided {
		return models.Listing{}, apperr.Validation("Você não pode alterar o proprietário do imóvel.")
	}
	if !listing.Status.Editable() {
		return models.Listing{}, apperr.Conflict("O imóvel não pode ser editado porque seu status não é 'disponível' ou 'indisponível'.")
	}

	if input.Type != nil && !models.ListingType(*input.Type).Valid() {
		return models.Listing{}, apperr.Validation("Tipo inválido. Escolha entre: apartamento, casa, kitnet.")
	}

	if input.Status != nil {
		next := models.ListingStatus(*input.Status)
		if !next.Editable() {
			return models.Listing{}, apperr.Validation("Status inválido. O status só pode ser 'disponivel' ou 'indisponivel'.")
		}
		listing.Status = next
	}

	if input.Latitude != nil && input.Longitude != nil {
		listing.Latitude = *input.Latitude
		listing.Longitude = *input.Longitude

		address, err := s.geocoder.ReverseGeocode(ctx, *input.Latitude, *input.Longitude)
		if err != nil {
			return models.Listing{}, apperr.Dependency("Erro ao buscar novo endereço.", err)
		}
		listing.Address = address
		listing.DistanceSede = geo.DistanceKm(*input.Latitude, *input.Longitude, s.campus.SedeLat, s.campus.SedeLng)
		listing.DistanceQuinta = geo.DistanceKm(*input.Latitude, *input.Longitude, s.campus.QuintaLat, s.campus.QuintaLng)
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return models.Listing{}, apperr.Validation("O título é obrigatório.")
		}
		if len(title) > 100 {
			return models.Listing{}, apperr.Validation("O titulo deve ter no máximo 100 caracteres.")
		}
		listing.Title = title
	}
	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		if len(description) > 1000 {
			return models.Listing{}, apperr.Validation("A descrição deve ter no máximo 1000 caracteres.")
		}
		listing.Description = description
	}
	if input.Price != nil {
		if *input.Price < 0 {
			return models.Listing{}, apperr.Validation("O preço deve ser um número positivo.")
		}
		listing.Price = *input.Price
	}
	if input.Type != nil {
		listing.Type = models.ListingType(*input.Type)
	}
	if input.Bedrooms != nil {
		if *input.Bedrooms < 1 {
			return models.Listing{}, apperr.Validation("O número de quartos deve ser maior que zero.")
		}
		listing.Bedrooms = *input.Bedrooms
	}
	if input.Bathrooms != nil {
		if *input.Bathrooms < 1 {
			return models.Listing{}, apperr.Validation("O número de banheiros deve ser maior que zero.")
		}
		listing.Bathrooms = *input.Bathrooms
	}
	if input.Furnished != nil {
		listing.Furnished = *input.Furnished
	}
	if input.PetsAllowed != nil {
		listing.PetsAllowed = *input.PetsAllowed
	}
	if input.Garage != nil {
		listing.Garage = *input.Garage
	}
	if input.Area != nil {
		if *input.Area < 0 {
			return models.Listing{}, apperr.Validation("A área deve ser positiva.")
		}
		listing.Area = *input.Area
	}

	replaceImages := false
	if len(input.Images) > 0 {
		if len(input.Images) > maxListingImages {
			return models.Listing{}, apperr.Validation(fmt.Sprintf("São permitidas no máximo %d imagens.", maxListingImages))
		}
		urls, err := s.uploadImages(ctx, listing.ID, input.Images)
		if err != nil {
			return models.Listing{}, apperr.Dependency("Erro ao enviar imagens!", err)
		}
		listing.Images = urls
		replaceImages = true
	}

	if err := s.listings.Update(ctx, listing, replaceImages); err != nil {
		return models.Listing{}, err
	}
	return listing, nil
}

func (s *ListingService) Delete(ctx context.Context, id, actorID string) error {
	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrListingNotFound) {
			return apperr.NotFound("Imóvel não encontrado.")
		}
		return err
	}

	if listing.OwnerID != actorID {
		return apperr.Authorization("Você não tem permissão para deletar este imóvel.")
	}
	if !listing.Status.Editable() {
		return apperr.Conflict("O imóvel só pode ser deletado se o seu status estiver disponível ou indisponível.")
	}

	return s.listings.Delete(ctx, id)
}
