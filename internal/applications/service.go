package applications

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"edistrict/certificate-portal/portal-backend/internal/certificates"
	"edistrict/certificate-portal/portal-backend/pkg/workflows"
)

// codeRetries bounds regeneration attempts when a generated application code
// or certificate number collides with an existing one.
const codeRetries = 3

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// StatusChange describes a completed transition for notification dispatch.
type StatusChange struct {
	ApplicationID   uuid.UUID
	ApplicationCode string
	CertificateType CertificateType
	NewStatus       workflows.Status
	FullName        string
	RecipientEmail  string
	RecipientPhone  string
	Reason          string
}

// Notifier delivers status-change notifications. Delivery is best-effort:
// implementations log failures and never report them back to the engine.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, change StatusChange)
}

// TrackSource supplies the system-wide active verification track.
type TrackSource interface {
	ActiveTrack(ctx context.Context) workflows.Track
}

// SubmitRequest carries the applicant fields of a new application.
type SubmitRequest struct {
	OwnerID         uuid.UUID
	CertificateType string
	FullName        string
	FatherName      string
	DateOfBirth     string
	Address         string
	PhoneNumber     string
	Email           string
	Purpose         string
	AdditionalInfo  string
}

// UpdateDraftRequest carries edits to a still-pending application.
type UpdateDraftRequest struct {
	ApplicationID  uuid.UUID
	Actor          Actor
	FullName       string
	FatherName     string
	DateOfBirth    string
	Address        string
	PhoneNumber    string
	Email          string
	Purpose        string
	AdditionalInfo string
}

// TransitionRequest asks the engine to move an application to a new status.
type TransitionRequest struct {
	ApplicationID uuid.UUID
	Destination   workflows.Status
	Actor         Actor
	Reason        string
}

// ResubmitRequest is the citizen's answer to an additional-information
// request; it returns the application to the state the request was raised
// from.
type ResubmitRequest struct {
	ApplicationID  uuid.UUID
	Actor          Actor
	AdditionalInfo string
}

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*Application, error)
	Get(ctx context.Context, id uuid.UUID, actor Actor) (*Application, error)
	List(ctx context.Context, actor Actor, status *workflows.Status) ([]Application, error)
	UpdateDraft(ctx context.Context, req UpdateDraftRequest) (*Application, error)
	Transition(ctx context.Context, req TransitionRequest) (*Application, error)
	Resubmit(ctx context.Context, req ResubmitRequest) (*Application, error)
	AuditTrail(ctx context.Context, id uuid.UUID, actor Actor) ([]AuditEntry, error)
	AllowedTransitions(ctx context.Context, id uuid.UUID, actor Actor) ([]workflows.Status, error)
}

type applicationService struct {
	repo         Repository
	issuer       *certificates.Issuer
	notifier     Notifier
	sm           *workflows.StateMachine
	tracks       TrackSource
	storeTimeout time.Duration
	logger       *zap.Logger
}

func NewService(repo Repository, issuer *certificates.Issuer, notifier Notifier, tracks TrackSource, storeTimeout time.Duration, logger *zap.Logger) Service {
	return &applicationService{
		repo:         repo,
		issuer:       issuer,
		notifier:     notifier,
		sm:           workflows.NewStateMachine(),
		tracks:       tracks,
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

func (s *applicationService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

// storeErr maps a repository failure into the caller-facing taxonomy.
func storeErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrStoreUnavailable
	}
	if errors.Is(err, errStaleStatus) {
		return ErrConcurrentModification
	}
	if errors.Is(err, certificates.ErrDuplicateForApplication) {
		return ErrDuplicateCertificate
	}
	// Generated codes that still collide after the bounded retries are a
	// transient condition: a retry mints fresh candidates.
	if errors.Is(err, errDuplicateCode) || errors.Is(err, certificates.ErrDuplicateNumber) {
		return ErrStoreUnavailable
	}
	return err
}

func (s *applicationService) Submit(ctx context.Context, req SubmitRequest) (*Application, error) {
	certType, err := validateSubmit(&req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	app := &Application{
		ID:                uuid.New(),
		OwnerID:           req.OwnerID,
		CertificateType:   certType,
		FullName:          req.FullName,
		FatherName:        req.FatherName,
		DateOfBirth:       req.DateOfBirth,
		Address:           req.Address,
		PhoneNumber:       req.PhoneNumber,
		Email:             req.Email,
		Purpose:           req.Purpose,
		Status:            workflows.StatusPending,
		VerificationTrack: s.tracks.ActiveTrack(ctx),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.AdditionalInfo != "" {
		app.AdditionalInfo = &req.AdditionalInfo
	}

	for attempt := 0; attempt < codeRetries; attempt++ {
		app.ApplicationID = fmt.Sprintf("CERT%d-%s", now.Year(), certificates.NewReference(8))
		err = s.repo.CreateApplication(ctx, app)
		if !errors.Is(err, errDuplicateCode) {
			break
		}
	}
	if err != nil {
		return nil, storeErr(err)
	}

	s.logger.Info("application submitted",
		zap.String("application_id", app.ApplicationID),
		zap.String("certificate_type", string(app.CertificateType)),
		zap.String("track", string(app.VerificationTrack)))

	return app, nil
}

func (s *applicationService) Get(ctx context.Context, id uuid.UUID, actor Actor) (*Application, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	app, err := s.loadVisible(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func (s *applicationService) List(ctx context.Context, actor Actor, status *workflows.Status) ([]Application, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := ListFilter{Status: status}
	if !actor.IsOfficial() {
		owner := actor.ID
		filter.OwnerID = &owner
	}

	apps, err := s.repo.ListApplications(ctx, filter)
	if err != nil {
		return nil, storeErr(err)
	}
	return apps, nil
}

func (s *applicationService) UpdateDraft(ctx context.Context, req UpdateDraftRequest) (*Application, error) {
	fields := applicantFields{
		FullName:    req.FullName,
		FatherName:  req.FatherName,
		DateOfBirth: req.DateOfBirth,
		Address:     req.Address,
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
		Purpose:     req.Purpose,
	}
	if err := fields.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	app, err := s.loadVisible(ctx, req.ApplicationID, req.Actor)
	if err != nil {
		return nil, err
	}
	if app.OwnerID != req.Actor.ID {
		return nil, ErrNotFound
	}
	if app.Status != workflows.StatusPending {
		return nil, &InvalidTransitionError{From: app.Status, To: app.Status, Roles: req.Actor.Roles}
	}
	// An application that was flagged and resubmitted is back at pending but
	// officials have already acted on it; drafts are editable only before the
	// first transition.
	entries, err := s.repo.ListAuditEntries(ctx, app.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	if len(entries) > 0 {
		return nil, &InvalidTransitionError{From: app.Status, To: app.Status, Roles: req.Actor.Roles}
	}

	app.FullName = fields.FullName
	app.FatherName = fields.FatherName
	app.DateOfBirth = fields.DateOfBirth
	app.Address = fields.Address
	app.PhoneNumber = fields.PhoneNumber
	app.Email = fields.Email
	app.Purpose = fields.Purpose
	if req.AdditionalInfo != "" {
		app.AdditionalInfo = &req.AdditionalInfo
	}
	app.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateApplicantFields(ctx, app); err != nil {
		return nil, storeErr(err)
	}
	return app, nil
}

func (s *applicationService) Transition(ctx context.Context, req TransitionRequest) (*Application, error) {
	reason := strings.TrimSpace(req.Reason)
	if workflows.RequiresReason(req.Destination) && reason == "" {
		return nil, &MissingReasonError{To: req.Destination}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	app, err := s.load(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}

	if !s.sm.CanTransition(app.VerificationTrack, app.Status, req.Destination, req.Actor.Roles) {
		return nil, &InvalidTransitionError{From: app.Status, To: req.Destination, Roles: req.Actor.Roles}
	}

	update := TransitionUpdate{
		ApplicationID: app.ID,
		FromStatus:    app.Status,
		ToStatus:      req.Destination,
		Audit:         newAuditEntry(app.ID, app.Status, req.Destination, req.Actor, reason),
	}
	switch req.Destination {
	case workflows.StatusRejected:
		update.RejectionReason = &reason
	case workflows.StatusAdditionalInfoNeeded:
		prior := app.Status
		update.InfoRequested = &reason
		update.InfoRequestedFrom = &prior
	case workflows.StatusApproved:
		update.Certificate = s.issuer.Mint(certificates.MintRequest{
			ApplicationID:   app.ID,
			ApplicationCode: app.ApplicationID,
			CertificateType: string(app.CertificateType),
			IssuedTo:        app.FullName,
		})
	}

	err = s.repo.Transition(ctx, update)
	for attempt := 0; errors.Is(err, certificates.ErrDuplicateNumber) && attempt < codeRetries; attempt++ {
		update.Certificate = s.issuer.Mint(certificates.MintRequest{
			ApplicationID:   app.ID,
			ApplicationCode: app.ApplicationID,
			CertificateType: string(app.CertificateType),
			IssuedTo:        app.FullName,
		})
		err = s.repo.Transition(ctx, update)
	}
	if err != nil {
		if errors.Is(err, certificates.ErrDuplicateForApplication) {
			s.logger.Error("duplicate certificate issuance attempt",
				zap.String("application_id", app.ApplicationID))
		}
		return nil, storeErr(err)
	}

	return s.finishTransition(ctx, update, app, reason)
}

func (s *applicationService) Resubmit(ctx context.Context, req ResubmitRequest) (*Application, error) {
	info := strings.TrimSpace(req.AdditionalInfo)
	if info == "" {
		return nil, &ValidationError{Field: "additional_info", Message: "must not be blank"}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	app, err := s.load(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if app.OwnerID != req.Actor.ID {
		return nil, ErrNotFound
	}
	if app.Status != workflows.StatusAdditionalInfoNeeded {
		return nil, &InvalidTransitionError{From: app.Status, To: workflows.StatusAdditionalInfoNeeded, Roles: req.Actor.Roles}
	}

	// Applications flagged before the prior state was recorded resume from
	// the start of the workflow.
	prior := workflows.StatusPending
	if app.InfoRequestedFrom != nil {
		prior = *app.InfoRequestedFrom
	}

	update := TransitionUpdate{
		ApplicationID:    app.ID,
		FromStatus:       workflows.StatusAdditionalInfoNeeded,
		ToStatus:         prior,
		Audit:            newAuditEntry(app.ID, app.Status, prior, req.Actor, info),
		ClearInfoRequest: true,
		AdditionalInfo:   &info,
	}

	if err := s.repo.Transition(ctx, update); err != nil {
		return nil, storeErr(err)
	}

	return s.finishTransition(ctx, update, app, info)
}

// finishTransition reloads the updated record and dispatches the
// fire-and-forget notification.
func (s *applicationService) finishTransition(ctx context.Context, update TransitionUpdate, app *Application, reason string) (*Application, error) {
	updated, err := s.load(ctx, update.ApplicationID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("application transitioned",
		zap.String("application_id", updated.ApplicationID),
		zap.String("from", string(update.FromStatus)),
		zap.String("to", string(update.ToStatus)),
		zap.String("actor_role", string(update.Audit.ActorRole)))

	if s.notifier != nil {
		change := StatusChange{
			ApplicationID:   updated.ID,
			ApplicationCode: updated.ApplicationID,
			CertificateType: updated.CertificateType,
			NewStatus:       update.ToStatus,
			FullName:        updated.FullName,
			RecipientEmail:  updated.Email,
			RecipientPhone:  updated.PhoneNumber,
			Reason:          reason,
		}
		go s.notifier.NotifyStatusChange(context.WithoutCancel(ctx), change)
	}

	return updated, nil
}

func (s *applicationService) AuditTrail(ctx context.Context, id uuid.UUID, actor Actor) ([]AuditEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.loadVisible(ctx, id, actor); err != nil {
		return nil, err
	}

	entries, err := s.repo.ListAuditEntries(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return entries, nil
}

func (s *applicationService) AllowedTransitions(ctx context.Context, id uuid.UUID, actor Actor) ([]workflows.Status, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	app, err := s.loadVisible(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return s.sm.AllowedTransitions(app.VerificationTrack, app.Status, actor.Roles), nil
}

func (s *applicationService) load(ctx context.Context, id uuid.UUID) (*Application, error) {
	app, err := s.repo.GetApplicationByID(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	if app == nil {
		return nil, ErrNotFound
	}
	return app, nil
}

// loadVisible loads an application and enforces read scoping: citizens see
// only their own records, role-holders see all.
func (s *applicationService) loadVisible(ctx context.Context, id uuid.UUID, actor Actor) (*Application, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsOfficial() && app.OwnerID != actor.ID {
		return nil, ErrNotFound
	}
	return app, nil
}

func newAuditEntry(appID uuid.UUID, from, to workflows.Status, actor Actor, reason string) AuditEntry {
	entry := AuditEntry{
		ID:            uuid.New(),
		ApplicationID: appID,
		FromStatus:    from,
		ToStatus:      to,
		ActorID:       actor.ID,
		ActorRole:     primaryRole(actor),
		CreatedAt:     time.Now().UTC(),
	}
	if reason != "" {
		entry.Reason = &reason
	}
	return entry
}

// primaryRole picks the role recorded in the audit trail when an actor
// carries several.
func primaryRole(actor Actor) workflows.Role {
	if len(actor.Roles) > 0 {
		return actor.Roles[0]
	}
	return workflows.RoleCitizen
}

// applicantFields groups the citizen-supplied fields shared by submission
// and draft updates.
type applicantFields struct {
	FullName    string
	FatherName  string
	DateOfBirth string
	Address     string
	PhoneNumber string
	Email       string
	Purpose     string
}

// validate checks the required fields and normalizes the phone number in
// place.
func (f *applicantFields) validate() error {
	required := []struct {
		field string
		value string
	}{
		{"full_name", f.FullName},
		{"father_name", f.FatherName},
		{"date_of_birth", f.DateOfBirth},
		{"address", f.Address},
		{"phone_number", f.PhoneNumber},
		{"email", f.Email},
		{"purpose", f.Purpose},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Message: "must not be blank"}
		}
	}

	f.PhoneNumber = normalizePhone(f.PhoneNumber)
	if len(f.PhoneNumber) != 10 {
		return &ValidationError{Field: "phone_number", Message: "must be a 10-digit number"}
	}

	if !emailPattern.MatchString(f.Email) {
		return &ValidationError{Field: "email", Message: "must be a valid email address"}
	}

	return nil
}

func validateSubmit(req *SubmitRequest) (CertificateType, error) {
	certType, err := ParseCertificateType(req.CertificateType)
	if err != nil {
		return "", &ValidationError{Field: "certificate_type", Message: err.Error()}
	}

	fields := applicantFields{
		FullName:    req.FullName,
		FatherName:  req.FatherName,
		DateOfBirth: req.DateOfBirth,
		Address:     req.Address,
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
		Purpose:     req.Purpose,
	}
	if err := fields.validate(); err != nil {
		return "", err
	}
	req.PhoneNumber = fields.PhoneNumber

	return certType, nil
}

// normalizePhone strips separators and a leading country code, keeping
// digits only.
func normalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	normalized := digits.String()
	if len(normalized) == 12 && strings.HasPrefix(normalized, "91") {
		normalized = normalized[2:]
	}
	if len(normalized) == 11 && strings.HasPrefix(normalized, "0") {
		normalized = normalized[1:]
	}
	return normalized
}
