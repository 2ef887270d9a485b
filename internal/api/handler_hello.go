package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"hello-backend/internal/fetcher"
)

// GetHello handles GET /api/hello. Every request triggers exactly one upstream
// fetch; the result is never cached.
func (h *Handler) GetHello(c *gin.Context) {
	payload, err := h.fetcher.FetchData(c.Request.Context())
	if err != nil {
		log.Printf("Live fetch failed: %v", err)
		resp := gin.H{"error": err.Error()}
		var statusErr *fetcher.StatusError
		if errors.As(err, &statusErr) {
			resp["upstreamStatus"] = statusErr.StatusCode
		}
		c.JSON(http.StatusBadGateway, resp)
		return
	}

	c.JSON(http.StatusOK, payload)
}
