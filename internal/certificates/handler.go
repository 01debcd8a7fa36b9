package certificates

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterPublicRoutes mounts the unauthenticated verification endpoint.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/certificates/verify/:number", h.Verify)
}

// RegisterRoutes mounts the authenticated certificate endpoints.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/certificates/:number/pdf", h.DownloadPDF)
}

func (h *Handler) Verify(c *gin.Context) {
	result, err := h.service.Verify(c.Request.Context(), c.Param("number"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "certificate not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) DownloadPDF(c *gin.Context) {
	reader, err := h.service.RenderPDF(c.Request.Context(), c.Param("number"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "certificate not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.DataFromReader(http.StatusOK, -1, "application/pdf", reader, nil)
}
