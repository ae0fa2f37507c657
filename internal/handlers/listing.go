package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"moradia/api/internal/apperr"
	"moradia/api/internal/middleware"
	"moradia/api/internal/models"
	"moradia/api/internal/service"
)

func (h *HandlerSet) CreateListing(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		h.respondError(c, apperr.Authentication("Token não fornecido."))
		return
	}

	input := service.CreateListingInput{
		Title:       c.PostForm("titulo"),
		Description: c.PostForm("descricao"),
		Type:        c.PostForm("tipo"),
	}

	var err error
	if input.Latitude, err = optionalFormFloat(c, "latitude"); err != nil {
		h.respondError(c, apperr.Validation("A latitude e a longitude devem ser números válidos."))
		return
	}
	if input.Longitude, err = optionalFormFloat(c, "longitude"); err != nil {
		h.respondError(c, apperr.Validation("A latitude e a longitude devem ser números válidos."))
		return
	}
	if input.Price, err = optionalFormFloat(c, "preco"); err != nil {
		h.respondError(c, apperr.Validation("O preço deve ser um número positivo."))
		return
	}
	if input.Area, err = optionalFormFloat(c, "area"); err != nil {
		h.respondError(c, apperr.Validation("A área deve ser positiva."))
		return
	}
	if input.Bedrooms, err = optionalFormInt(c, "quartos"); err != nil {
		h.respondError(c, apperr.Validation("O número de quartos deve ser maior que zero."))
		return
	}
	if input.Bathrooms, err = optionalFormInt(c, "banheiros"); err != nil {
		h.respondError(c, apperr.Validation("O número de banheiros deve ser maior que zero."))
		return
	}
	input.Furnished = c.PostForm("mobiliado") == "true"
	input.PetsAllowed = c.PostForm("permitidoPet") == "true"
	input.Garage = c.PostForm("garagem") == "true"

	if form, err := c.MultipartForm(); err == nil {
		input.Images = form.File["imagens"]
	}

	listing, err := h.listings.Create(c.Request.Context(), actor.ID, input)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"mensagem": "Imóvel criado com sucesso.",
		"imovel":   newListingResponse(listing),
	})
}

func (h *HandlerSet) GetListing(c *gin.Context) {
	actor := currentUserPtr(c)

	view, err := h.listings.GetByID(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"imovel": newListingView(view, actor)})
}

func (h *HandlerSet) SearchListings(c *gin.Context) {
	actor := currentUserPtr(c)

	result, err := h.listings.Search(c.Request.Context(), actor, searchInputFromQuery(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newSearchResponse(result, actor))
}

func (h *HandlerSet) UpdateListing(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		h.respondError(c, apperr.Authentication("Token não fornecido."))
		return
	}

	var input service.UpdateListingInput
	if v, ok := c.GetPostForm("titulo"); ok {
		input.Title = &v
	}
	if v, ok := c.GetPostForm("descricao"); ok {
		input.Description = &v
	}
	if v, ok := c.GetPostForm("tipo"); ok {
		input.Type = &v
	}
	if v, ok := c.GetPostForm("status"); ok {
		input.Status = &v
	}
	if _, ok := c.GetPostForm("proprietario"); ok {
		input.OwnerProvided = true
	}

	var err error
	if input.Latitude, err = optionalFormFloat(c, "latitude"); err != nil {
		h.respondError(c, apperr.Validation("A latitude e a longitude devem ser números válidos."))
		return
	}
	if input.Longitude, err = optionalFormFloat(c, "longitude"); err != nil {
		h.respondError(c, apperr.Validation("A latitude e a longitude devem ser números válidos."))
		return
	}
	if input.Price, err = optionalFormFloat(c, "preco"); err != nil {
		h.respondError(c, apperr.Validation("O preço deve ser um número positivo."))
		return
	}
	if input.Area, err = optionalFormFloat(c, "area"); err != nil {
		h.respondError(c, apperr.Validation("A área deve ser positiva."))
		return
	}
	if input.Bedrooms, err = optionalFormIntPtr(c, "quartos"); err != nil {
		h.respondError(c, apperr.Validation("O número de quartos deve ser maior que zero."))
		return
	}
	if input.Bathrooms, err = optionalFormIntPtr(c, "banheiros"); err != nil {
		h.respondError(c, apperr.Validation("O número de banheiros deve ser maior que zero."))
		return
	}
	if input.Furnished, err = optionalFormBoolPtr(c, "mobiliado"); err != nil {
		h.respondError(c, apperr.Validation("O valor de mobiliado deve ser true ou false."))
		return
	}
	if input.PetsAllowed, err = optionalFormBoolPtr(c, "permitidoPet"); err != nil {
		h.respondError(c, apperr.Validation("O valor de permitidoPet deve ser true ou false."))
		return
	}
	if input.Garage, err = optionalFormBoolPtr(c, "garagem"); err != nil {
		h.respondError(c, apperr.Validation("O valor de garagem deve ser true ou false."))
		return
	}

	if form, err := c.MultipartForm(); err == nil {
		input.Images = form.File["imagens"]
	}

	listing, err := h.listings.Update(c.Request.Context(), c.Param("id"), actor.ID, input)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mensagem": "Imóvel atualizado com sucesso.",
		"imovel":   newListingResponse(listing),
	})
}

func (h *HandlerSet) DeleteListing(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		h.respondError(c, apperr.Authentication("Token não fornecido."))
		return
	}

	if err := h.listings.Delete(c.Request.Context(), c.Param("id"), actor.ID); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"mensagem": "Imóvel deletado com sucesso."})
}

func currentUserPtr(c *gin.Context) *models.User {
	if actor, ok := middleware.CurrentUser(c); ok {
		return &actor
	}
	return nil
}

func searchInputFromQuery(c *gin.Context) service.SearchInput {
	return service.SearchInput{
		PriceMin:  c.Query("precoMin"),
		PriceMax:  c.Query("precoMax"),
		Type:      c.Query("tipo"),
		Status:    c.Query("status"),
		Bedrooms:  c.Query("quartos"),
		Bathrooms: c.Query("banheiros"),
		Address:   c.Query("endereco"),
		Furnished: c.Query("mobiliado"),
		AreaMin:   c.Query("areaMin"),
		AreaMax:   c.Query("areaMax"),
		Pets:      c.Query("permitidoPet"),
		Garage:    c.Query("garagem"),
		Text:      c.Query("busca"),
		SortBy:    c.Query("ordenarPor"),
		Order:     c.Query("ordem"),
		Page:      c.Query("pagina"),
		Limit:     c.Query("limite"),
		Owner:     c.Query("proprietario"),
	}
}

func newSearchResponse(result service.SearchResult, actor *models.User) gin.H {
	listings := make([]listingResponse, 0, len(result.Listings))
	for _, view := range result.Listings {
		listings = append(listings, newListingView(view, actor))
	}
	return gin.H{
		"total":        result.Total,
		"paginaAtual":  result.Page,
		"totalPaginas": result.TotalPages,
		"imoveis":      listings,
	}
}

func optionalFormFloat(c *gin.Context, field string) (*float64, error) {
	v, ok := c.GetPostForm(field)
	if !ok || v == "" {
		return nil, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func optionalFormInt(c *gin.Context, field string) (int, error) {
	v, ok := c.GetPostForm(field)
	if !ok || v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func optionalFormIntPtr(c *gin.Context, field string) (*int, error) {
	v, ok := c.GetPostForm(field)
	if !ok || v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func optionalFormBoolPtr(c *gin.Context, field string) (*bool, error) {
	v, ok := c.GetPostForm(field)
	if !ok || v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
