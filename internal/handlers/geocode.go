package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"moradia/api/internal/geo"
)

// Geocode forward-resolves a free-form address into coordinates.
func (h *HandlerSet) Geocode(c *gin.Context) {
	address := c.Query("endereco")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"mensagem": "Endereço é obrigatório!"})
		return
	}

	lat, lon, err := h.geocoder.Search(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, geo.ErrNoResults) {
			c.JSON(http.StatusNotFound, gin.H{"mensagem": "Endereço não encontrado!"})
			return
		}
		h.log.Error().Err(err).Str("endereco", address).Msg("forward geocode failed")
		c.JSON(http.StatusInternalServerError, gin.H{"mensagem": "Erro ao buscar coordenadas!"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"lat": lat, "lon": lon})
}
