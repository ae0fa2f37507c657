package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *HandlerSet) Health(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.pool.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "mensagem": "Banco de dados indisponível."})
		return
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "mensagem": "Cache indisponível."})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"ambiente": h.cfg.Environment,
	})
}
