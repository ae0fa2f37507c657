package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"moradia/api/internal/apperr"
	"moradia/api/internal/middleware"
	"moradia/api/internal/service"
)

type startRentalRequest struct {
	StudentID string `json:"estudanteId"`
}

func (h *HandlerSet) StartRental(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		h.respondError(c, apperr.Authentication("Token não fornecido."))
		return
	}

	var req startRentalRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.StudentID == "" {
		h.respondError(c, apperr.Validation("Estudante inválido ou não encontrado."))
		return
	}

	detail, err := h.rentals.Start(c.Request.Context(), c.Param("id"), req.StudentID, actor.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"mensagem": "Aluguel iniciado com sucesso. Aguardando confirmação do estudante.",
		"aluguel":  newRentalResponse(detail),
	})
}

type confirmRentalRequest struct {
	RentalID string `json:"aluguelId"`
}

func (h *HandlerSet) ConfirmRental(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		h.respondError(c, apperr.Authentication("Token não fornecido."))
		return
	}

	var req confirmRentalRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RentalID == "" {
		h.respondError(c, apperr.Validation("Aluguel pendente não encontrado."))
		return
	}

	detail, err := h.rentals.Confirm(c.Request.Context(), req.RentalID, actor.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mensagem": "Aluguel confirmado com sucesso.",
		"aluguel":  newRentalResponse(detail),
	})
}

func (h *HandlerSet) CancelRental(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		h.respondError(c, apperr.Authentication("Token não fornecido."))
		return
	}

	if _, err := h.rentals.Cancel(c.Request.Context(), c.Param("id"), actor.ID); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"mensagem": "Aluguel cancelado com sucesso."})
}

func (h *HandlerSet) FinishRental(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		h.respondError(c, apperr.Authentication("Token não fornecido."))
		return
	}

	detail, err := h.rentals.Finish(c.Request.Context(), c.Param("id"), actor.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mensagem": "Aluguel finalizado com sucesso.",
		"aluguel":  newRentalResponse(detail),
	})
}

func (h *HandlerSet) TenantRentals(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		h.respondError(c, apperr.Authentication("Token não fornecido."))
		return
	}

	buckets, err := h.rentals.TenantRentals(c.Request.Context(), actor.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newBucketsResponse(buckets))
}

func (h *HandlerSet) OwnerRentals(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		h.respondError(c, apperr.Authentication("Token não fornecido."))
		return
	}

	buckets, err := h.rentals.OwnerRentals(c.Request.Context(), actor.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newBucketsResponse(buckets))
}

func (h *HandlerSet) ListingRental(c *gin.Context) {
	detail, err := h.rentals.OpenForListing(c.Request.Context(), c.Param("imovelId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"aluguel": newRentalResponse(detail)})
}

func newBucketsResponse(buckets service.RentalBuckets) gin.H {
	return gin.H{
		"alugueisPendentes": newRentalResponses(buckets.Pending),
		"alugueisAlugados":  newRentalResponses(buckets.Active),
		"alugueisPassados":  newRentalResponses(buckets.Finished),
	}
}
