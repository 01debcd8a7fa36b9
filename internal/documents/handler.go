package documents

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"edistrict/certificate-portal/portal-backend/internal/applications"
	"edistrict/certificate-portal/portal-backend/internal/auth"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/applications/:id/documents", h.Upload)
	rg.GET("/applications/:id/documents", h.List)
	rg.GET("/documents/:id/download", h.Download)
}

func (h *Handler) Upload(c *gin.Context) {
	actor, appID, ok := requestScope(c)
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	doc, err := h.service.Upload(c.Request.Context(), UploadRequest{
		ApplicationID: appID,
		DocumentType:  c.PostForm("document_type"),
		FileName:      file.Filename,
		FileSize:      file.Size,
		FileContent:   f,
		Actor:         actor,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) List(c *gin.Context) {
	actor, appID, ok := requestScope(c)
	if !ok {
		return
	}

	docs, err := h.service.List(c.Request.Context(), appID, actor)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, docs)
}

func (h *Handler) Download(c *gin.Context) {
	actor, docID, ok := requestScope(c)
	if !ok {
		return
	}

	reader, doc, err := h.service.Download(c.Request.Context(), docID, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", "attachment; filename=\""+doc.FileName+"\"")
	c.DataFromReader(http.StatusOK, doc.FileSize, "application/octet-stream", reader, nil)
}

func requestScope(c *gin.Context) (applications.Actor, uuid.UUID, bool) {
	claims, ok := auth.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return applications.Actor{}, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return applications.Actor{}, uuid.Nil, false
	}
	return applications.Actor{ID: claims.ID, Roles: claims.Roles}, id, true
}

func writeError(c *gin.Context, err error) {
	var validationErr *applications.ValidationError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error(), "field": validationErr.Field})
	case errors.Is(err, applications.ErrNotFound), errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, ErrApplicationClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "application is closed for uploads"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
