package applications

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"edistrict/certificate-portal/portal-backend/internal/auth"
	"edistrict/certificate-portal/portal-backend/pkg/workflows"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	apps := rg.Group("/applications")
	{
		apps.POST("", h.Submit)
		apps.GET("", h.List)
		apps.GET("/:id", h.Get)
		apps.PUT("/:id", h.UpdateDraft)
		apps.GET("/:id/audit", h.AuditTrail)
		apps.GET("/:id/transitions", h.AllowedTransitions)
		apps.POST("/:id/transition", h.Transition)
		apps.POST("/:id/resubmit", h.Resubmit)
	}
}

type submitPayload struct {
	CertificateType string `json:"certificate_type"`
	FullName        string `json:"full_name"`
	FatherName      string `json:"father_name"`
	DateOfBirth     string `json:"date_of_birth"`
	Address         string `json:"address"`
	PhoneNumber     string `json:"phone_number"`
	Email           string `json:"email"`
	Purpose         string `json:"purpose"`
	AdditionalInfo  string `json:"additional_info"`
}

func (h *Handler) Submit(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var payload submitPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, err := h.service.Submit(c.Request.Context(), SubmitRequest{
		OwnerID:         actor.ID,
		CertificateType: payload.CertificateType,
		FullName:        payload.FullName,
		FatherName:      payload.FatherName,
		DateOfBirth:     payload.DateOfBirth,
		Address:         payload.Address,
		PhoneNumber:     payload.PhoneNumber,
		Email:           payload.Email,
		Purpose:         payload.Purpose,
		AdditionalInfo:  payload.AdditionalInfo,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, app)
}

func (h *Handler) List(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var status *workflows.Status
	if raw := c.Query("status"); raw != "" {
		st, err := workflows.ParseStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status = &st
	}

	apps, err := h.service.List(c.Request.Context(), actor, status)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, apps)
}

func (h *Handler) Get(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	app, err := h.service.Get(c.Request.Context(), id, actor)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, app)
}

func (h *Handler) UpdateDraft(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	var payload submitPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, err := h.service.UpdateDraft(c.Request.Context(), UpdateDraftRequest{
		ApplicationID:  id,
		Actor:          actor,
		FullName:       payload.FullName,
		FatherName:     payload.FatherName,
		DateOfBirth:    payload.DateOfBirth,
		Address:        payload.Address,
		PhoneNumber:    payload.PhoneNumber,
		Email:          payload.Email,
		Purpose:        payload.Purpose,
		AdditionalInfo: payload.AdditionalInfo,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, app)
}

func (h *Handler) Transition(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	var payload struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	destination, err := workflows.ParseStatus(payload.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, err := h.service.Transition(c.Request.Context(), TransitionRequest{
		ApplicationID: id,
		Destination:   destination,
		Actor:         actor,
		Reason:        payload.Reason,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, app)
}

func (h *Handler) Resubmit(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	var payload struct {
		AdditionalInfo string `json:"additional_info"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, err := h.service.Resubmit(c.Request.Context(), ResubmitRequest{
		ApplicationID:  id,
		Actor:          actor,
		AdditionalInfo: payload.AdditionalInfo,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, app)
}

func (h *Handler) AuditTrail(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	entries, err := h.service.AuditTrail(c.Request.Context(), id, actor)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

func (h *Handler) AllowedTransitions(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	statuses, err := h.service.AllowedTransitions(c.Request.Context(), id, actor)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"allowed": statuses})
}

func actorFrom(c *gin.Context) (Actor, bool) {
	claims, ok := auth.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return Actor{}, false
	}
	return Actor{ID: claims.ID, Roles: claims.Roles}, true
}

func actorAndID(c *gin.Context) (Actor, uuid.UUID, bool) {
	actor, ok := actorFrom(c)
	if !ok {
		return Actor{}, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return Actor{}, uuid.Nil, false
	}
	return actor, id, true
}

// writeError maps service-level failures to HTTP responses with enough
// context to explain the rejection.
func writeError(c *gin.Context, err error) {
	var validationErr *ValidationError
	var transitionErr *InvalidTransitionError
	var reasonErr *MissingReasonError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error(), "field": validationErr.Field})
	case errors.As(err, &reasonErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": reasonErr.Error()})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusForbidden, gin.H{
			"error":            transitionErr.Error(),
			"current_status":   transitionErr.From,
			"requested_status": transitionErr.To,
		})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "application not found"})
	case errors.Is(err, ErrConcurrentModification):
		c.JSON(http.StatusConflict, gin.H{"error": "application was modified concurrently, retry"})
	case errors.Is(err, ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "application store unavailable, retry later"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
