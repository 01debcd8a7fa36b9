package applications

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"edistrict/certificate-portal/portal-backend/internal/certificates"
	"edistrict/certificate-portal/portal-backend/pkg/workflows"
)

// MemoryRepository is a mutex-guarded in-memory Repository with the same
// compare-and-swap and uniqueness semantics as the postgres implementation.
// Used by unit tests, including the concurrent-approval race tests.
type MemoryRepository struct {
	mu    sync.Mutex
	apps  map[uuid.UUID]*Application
	codes map[string]uuid.UUID
	audit map[uuid.UUID][]AuditEntry
	certs *certificates.MemoryStore
}

func NewMemoryRepository(certs *certificates.MemoryStore) *MemoryRepository {
	return &MemoryRepository{
		apps:  make(map[uuid.UUID]*Application),
		codes: make(map[string]uuid.UUID),
		audit: make(map[uuid.UUID][]AuditEntry),
		certs: certs,
	}
}

func (r *MemoryRepository) CreateApplication(_ context.Context, app *Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codes[app.ApplicationID]; ok {
		return errDuplicateCode
	}
	cp := *app
	r.apps[app.ID] = &cp
	r.codes[app.ApplicationID] = app.ID
	return nil
}

func (r *MemoryRepository) GetApplicationByID(_ context.Context, id uuid.UUID) (*Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[id]
	if !ok {
		return nil, nil
	}
	cp := *app
	return &cp, nil
}

func (r *MemoryRepository) ListApplications(_ context.Context, filter ListFilter) ([]Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Application{}
	for _, app := range r.apps {
		if filter.OwnerID != nil && app.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.Status != nil && app.Status != *filter.Status {
			continue
		}
		out = append(out, *app)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) UpdateApplicantFields(_ context.Context, app *Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.apps[app.ID]
	if !ok || stored.Status != workflows.StatusPending {
		return errStaleStatus
	}
	stored.FullName = app.FullName
	stored.FatherName = app.FatherName
	stored.DateOfBirth = app.DateOfBirth
	stored.Address = app.Address
	stored.PhoneNumber = app.PhoneNumber
	stored.Email = app.Email
	stored.Purpose = app.Purpose
	stored.AdditionalInfo = app.AdditionalInfo
	stored.UpdatedAt = app.UpdatedAt
	return nil
}

func (r *MemoryRepository) Transition(ctx context.Context, update TransitionUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.apps[update.ApplicationID]
	if !ok || app.Status != update.FromStatus {
		return errStaleStatus
	}

	if update.Certificate != nil {
		if err := r.certs.Create(ctx, update.Certificate); err != nil {
			return err
		}
	}

	app.Status = update.ToStatus
	if update.RejectionReason != nil {
		app.RejectionReason = update.RejectionReason
	}
	if update.ClearInfoRequest {
		app.InfoRequested = nil
		app.InfoRequestedFrom = nil
	} else {
		if update.InfoRequested != nil {
			app.InfoRequested = update.InfoRequested
		}
		if update.InfoRequestedFrom != nil {
			app.InfoRequestedFrom = update.InfoRequestedFrom
		}
	}
	if update.AdditionalInfo != nil {
		app.AdditionalInfo = update.AdditionalInfo
	}
	app.UpdatedAt = update.Audit.CreatedAt

	r.audit[update.ApplicationID] = append(r.audit[update.ApplicationID], update.Audit)
	return nil
}

func (r *MemoryRepository) ListAuditEntries(_ context.Context, applicationID uuid.UUID) ([]AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]AuditEntry, len(r.audit[applicationID]))
	copy(entries, r.audit[applicationID])
	return entries, nil
}

func (r *MemoryRepository) ListStale(_ context.Context, olderThan time.Time) ([]Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Application{}
	for _, app := range r.apps {
		if !workflows.IsTerminal(app.Status) && app.UpdatedAt.Before(olderThan) {
			out = append(out, *app)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}
