package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"moradia/api/internal/apperr"
	"moradia/api/internal/middleware"
	"moradia/api/internal/service"
)

func (h *HandlerSet) SignUp(c *gin.Context) {
	input := service.SignUpInput{
		Name:     c.PostForm("nome"),
		Email:    c.PostForm("email"),
		Password: c.PostForm("senha"),
		Phone:    c.PostForm("telefone"),
		Role:     c.PostForm("tipo"),
	}
	if photo, err := c.FormFile("foto"); err == nil {
		input.Photo = photo
	}

	user, err := h.userSvc.SignUp(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"mensagem": "Usuário cadastrado com sucesso.",
		"usuario":  newUserResponse(user),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"senha"`
}

func (h *HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("O e-mail e a senha são obrigatórios."))
		return
	}

	user, token, err := h.userSvc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"usuario": newUserResponse(user),
	})
}

func (h *HandlerSet) Profile(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		h.respondError(c, apperr.Authentication("Token não fornecido."))
		return
	}

	user, err := h.userSvc.Profile(c.Request.Context(), actor.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"usuario": newUserResponse(user)})
}

func (h *HandlerSet) UpdateProfile(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		h.respondError(c, apperr.Authentication("Token não fornecido."))
		return
	}

	var input service.UpdateProfileInput
	if v, ok := c.GetPostForm("nome"); ok {
		input.Name = &v
	}
	if v, ok := c.GetPostForm("email"); ok {
		input.Email = &v
	}
	if v, ok := c.GetPostForm("telefone"); ok {
		input.Phone = &v
	}
	if _, ok := c.GetPostForm("tipo"); ok {
		input.RoleProvided = true
	}
	input.CurrentPassword = c.PostForm("senhaAtual")
	input.NewPassword = c.PostForm("novaSenha")
	if photo, err := c.FormFile("foto"); err == nil {
		input.Photo = photo
	}

	user, err := h.userSvc.UpdateProfile(c.Request.Context(), actor.ID, input)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mensagem": "Perfil atualizado com sucesso.",
		"usuario":  newUserResponse(user),
	})
}

func (h *HandlerSet) ListStudents(c *gin.Context) {
	students, err := h.userSvc.ListStudents(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	responses := make([]userResponse, 0, len(students))
	for _, student := range students {
		responses = append(responses, newUserResponse(student))
	}
	c.JSON(http.StatusOK, gin.H{"estudantes": responses})
}

func (h *HandlerSet) ToggleFavorite(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		h.respondError(c, apperr.Authentication("Token não fornecido."))
		return
	}

	added, favoriteIDs, err := h.userSvc.ToggleFavorite(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	message := "Imóvel removido dos favoritos."
	if added {
		message = "Imóvel adicionado aos favoritos."
	}
	if favoriteIDs == nil {
		favoriteIDs = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"mensagem":  message,
		"favoritos": favoriteIDs,
	})
}

func (h *HandlerSet) SearchFavorites(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		h.respondError(c, apperr.Authentication("Token não fornecido."))
		return
	}

	result, err := h.listings.SearchFavorites(c.Request.Context(), actor, searchInputFromQuery(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newSearchResponse(result, &actor))
}
