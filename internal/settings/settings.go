package settings

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"edistrict/certificate-portal/portal-backend/internal/auth"
	"edistrict/certificate-portal/portal-backend/pkg/workflows"
)

// WorkflowSettings is the single system-wide workflow configuration row.
// ActiveTrack applies to applications created after the change; in-flight
// applications keep the track they were created on.
type WorkflowSettings struct {
	ActiveTrack workflows.Track `json:"active_track" db:"active_track"`
	UpdatedBy   uuid.UUID       `json:"updated_by" db:"updated_by"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

type Repository interface {
	Get(ctx context.Context) (*WorkflowSettings, error)
	Upsert(ctx context.Context, settings *WorkflowSettings) error
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Get(ctx context.Context) (*WorkflowSettings, error) {
	var s WorkflowSettings
	err := r.db.GetContext(ctx, &s, "SELECT active_track, updated_by, updated_at FROM workflow_settings WHERE id = 1")
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &s, err
}

func (r *postgresRepository) Upsert(ctx context.Context, settings *WorkflowSettings) error {
	query := `
		INSERT INTO workflow_settings (id, active_track, updated_by, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			active_track = EXCLUDED.active_track,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query, settings.ActiveTrack, settings.UpdatedBy, settings.UpdatedAt)
	return err
}

// Service caches the active track so the workflow engine does not hit the
// store on every submission.
type Service struct {
	repo         Repository
	defaultTrack workflows.Track
	logger       *zap.Logger

	mu     sync.RWMutex
	cached *workflows.Track
}

func NewService(repo Repository, defaultTrack workflows.Track, logger *zap.Logger) *Service {
	return &Service{
		repo:         repo,
		defaultTrack: defaultTrack,
		logger:       logger,
	}
}

// ActiveTrack returns the configured verification track, falling back to the
// default when nothing is stored or the store is unreachable.
func (s *Service) ActiveTrack(ctx context.Context) workflows.Track {
	s.mu.RLock()
	if s.cached != nil {
		track := *s.cached
		s.mu.RUnlock()
		return track
	}
	s.mu.RUnlock()

	stored, err := s.repo.Get(ctx)
	if err != nil {
		s.logger.Warn("failed to load workflow settings, using default track", zap.Error(err))
		return s.defaultTrack
	}

	track := s.defaultTrack
	if stored != nil {
		track = stored.ActiveTrack
	}

	s.mu.Lock()
	s.cached = &track
	s.mu.Unlock()
	return track
}

// SetActiveTrack stores a new system-wide track and refreshes the cache.
func (s *Service) SetActiveTrack(ctx context.Context, track workflows.Track, updatedBy uuid.UUID) (*WorkflowSettings, error) {
	settings := &WorkflowSettings{
		ActiveTrack: track,
		UpdatedBy:   updatedBy,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, settings); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cached = &settings.ActiveTrack
	s.mu.Unlock()

	s.logger.Info("workflow track changed",
		zap.String("active_track", string(track)),
		zap.String("updated_by", updatedBy.String()))
	return settings, nil
}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the admin-only workflow settings endpoints.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/settings/workflow", h.GetWorkflow)
	rg.PUT("/settings/workflow", h.UpdateWorkflow)
}

func (h *Handler) GetWorkflow(c *gin.Context) {
	track := h.service.ActiveTrack(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"active_track": track})
}

func (h *Handler) UpdateWorkflow(c *gin.Context) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var payload struct {
		ActiveTrack string `json:"active_track"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	track, err := workflows.ParseTrack(payload.ActiveTrack)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings, err := h.service.SetActiveTrack(c.Request.Context(), track, actor.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, settings)
}
