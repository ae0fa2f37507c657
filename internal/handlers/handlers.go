// Package handlers wires the HTTP surface: route registration, request
// decoding and the response shapes of the public contract.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"moradia/api/internal/apperr"
	"moradia/api/internal/config"
	"moradia/api/internal/geo"
	"moradia/api/internal/middleware"
	"moradia/api/internal/models"
	"moradia/api/internal/repository"
	"moradia/api/internal/service"
)

type HandlerSet struct {
	cfg      *config.AppConfig
	log      zerolog.Logger
	pool     *pgxpool.Pool
	redis    *redis.Client
	users    *repository.UserRepository
	userSvc  *service.UserService
	listings *service.ListingService
	rentals  *service.RentalService
	geocoder *geo.Geocoder
}

func NewHandlerSet(
	cfg *config.AppConfig,
	log zerolog.Logger,
	pool *pgxpool.Pool,
	redisClient *redis.Client,
	users *repository.UserRepository,
	userSvc *service.UserService,
	listings *service.ListingService,
	rentals *service.RentalService,
	geocoder *geo.Geocoder,
) *HandlerSet {
	return &HandlerSet{
		cfg:      cfg,
		log:      log,
		pool:     pool,
		redis:    redisClient,
		users:    users,
		userSvc:  userSvc,
		listings: listings,
		rentals:  rentals,
		geocoder: geocoder,
	}
}

func (h *HandlerSet) Register(router *gin.Engine) {
	auth := middleware.Auth(h.cfg, h.users)
	optionalAuth := middleware.OptionalAuth(h.cfg, h.users)
	ownerOnly := middleware.RequireRoles(models.UserRoleOwner)
	studentOnly := middleware.RequireRoles(models.UserRoleStudent)

	api := router.Group("/api")

	api.GET("/healthz", h.Health)
	api.GET("/geocode", h.Geocode)

	users := api.Group("/usuarios")
	{
		users.POST("/cadastrar", h.SignUp)
		users.POST("/login", h.Login)
		users.GET("/perfil", auth, h.Profile)
		users.PUT("/perfil", auth, h.UpdateProfile)
		users.GET("/estudantes", auth, ownerOnly, h.ListStudents)
		users.GET("/favoritos", auth, studentOnly, h.SearchFavorites)
		users.POST("/favoritos/:id", auth, studentOnly, h.ToggleFavorite)
	}

	listings := api.Group("/imoveis")
	{
		listings.GET("", optionalAuth, h.SearchListings)
		listings.GET("/:id", optionalAuth, h.GetListing)
		listings.POST("", auth, ownerOnly, h.CreateListing)
		listings.PUT("/:id", auth, ownerOnly, h.UpdateListing)
		listings.DELETE("/:id", auth, ownerOnly, h.DeleteListing)
	}

	rentals := api.Group("/alugueis", auth)
	{
		rentals.POST("/alugar/:id", ownerOnly, h.StartRental)
		rentals.POST("/confirmar", studentOnly, h.ConfirmRental)
		rentals.POST("/cancelar/:id", h.CancelRental)
		rentals.POST("/finalizar/:id", ownerOnly, h.FinishRental)
		rentals.GET("/estudante", studentOnly, h.TenantRentals)
		rentals.GET("/proprietario", ownerOnly, h.OwnerRentals)
		rentals.GET("/imovel/:imovelId", h.ListingRental)
	}
}

func (h *HandlerSet) respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
	}
	c.JSON(status, gin.H{"mensagem": apperr.Message(err, "Erro interno do servidor.")})
}

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"nome"`
	Email     string    `json:"email"`
	Phone     string    `json:"telefone"`
	Role      string    `json:"tipo"`
	PhotoURL  *string   `json:"fotoPerfil,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func newUserResponse(u models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      string(u.Role),
		PhotoURL:  u.PhotoURL,
		CreatedAt: u.CreatedAt,
	}
}

type listingResponse struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"proprietario"`
	Title          string    `json:"titulo"`
	Description    string    `json:"descricao"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Address        string    `json:"endereco"`
	Price          float64   `json:"preco"`
	Type           string    `json:"tipo"`
	Status         string    `json:"status"`
	Bedrooms       int       `json:"quartos"`
	Bathrooms      int       `json:"banheiros"`
	Furnished      bool      `json:"mobiliado"`
	PetsAllowed    bool      `json:"permitidoPet"`
	Garage         bool      `json:"garagem"`
	Area           float64   `json:"area"`
	DistanceSede   float64   `json:"proximidadeUnifesoSede"`
	DistanceQuinta float64   `json:"proximidadeUnifesoQuinta"`
	Images         []string  `json:"imagens"`
	Favorited      *bool     `json:"favoritado,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func newListingResponse(l models.Listing) listingResponse {
	images := l.Images
	if images == nil {
		images = []string{}
	}
	return listingResponse{
		ID:             l.ID,
		OwnerID:        l.OwnerID,
		Title:          l.Title,
		Description:    l.Description,
		Latitude:       l.Latitude,
		Longitude:      l.Longitude,
		Address:        l.Address,
		Price:          l.Price,
		Type:           string(l.Type),
		Status:         string(l.Status),
		Bedrooms:       l.Bedrooms,
		Bathrooms:      l.Bathrooms,
		Furnished:      l.Furnished,
		PetsAllowed:    l.PetsAllowed,
		Garage:         l.Garage,
		Area:           l.Area,
		DistanceSede:   l.DistanceSede,
		DistanceQuinta: l.DistanceQuinta,
		Images:         images,
		CreatedAt:      l.CreatedAt,
	}
}

// newListingView decorates the listing with the caller's favorite flag. The
// flag is only serialized for student callers.
func newListingView(v service.ListingView, actor *models.User) listingResponse {
	resp := newListingResponse(v.Listing)
	if actor != nil && actor.Role == models.UserRoleStudent {
		favorited := v.Favorited
		resp.Favorited = &favorited
	}
	return resp
}

type rentalResponse struct {
	ID        string          `json:"id"`
	Listing   listingResponse `json:"imovel"`
	Tenant    *userResponse   `json:"locatario,omitempty"`
	Status    string          `json:"status"`
	StartDate time.Time       `json:"dataInicio"`
	EndDate   *time.Time      `json:"dataFim,omitempty"`
}

func newRentalResponse(d service.RentalDetail) rentalResponse {
	resp := rentalResponse{
		ID:        d.Rental.ID,
		Listing:   newListingResponse(d.Listing),
		Status:    string(d.Rental.Status),
		StartDate: d.Rental.StartDate,
		EndDate:   d.Rental.EndDate,
	}
	if d.Tenant != nil {
		tenant := newUserResponse(*d.Tenant)
		resp.Tenant = &tenant
	}
	return resp
}

func newRentalResponses(details []service.RentalDetail) []rentalResponse {
	responses := make([]rentalResponse, 0, len(details))
	for _, detail := range details {
		responses = append(responses, newRentalResponse(detail))
	}
	return responses
}
